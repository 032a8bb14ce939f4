package metrics

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// CorrectionStatus tells whether an attenuation correction was applied.
type CorrectionStatus int

const (
	// Applied means Value holds the corrected value.
	Applied CorrectionStatus = iota
	// NotApplicable means no attenuator was used ("none", "-").
	NotApplicable
	// Unknown means the attenuator setting was not recorded.
	Unknown
)

func (s CorrectionStatus) String() string {
	switch s {
	case Applied:
		return "applied"
	case NotApplicable:
		return "not applicable"
	default:
		return "unknown"
	}
}

// Correction is the result of AttenuationCorrection.
type Correction struct {
	Status CorrectionStatus
	Value  Value
}

// String renders the correction for tables: the value, "-" or "?".
func (c Correction) String() string {
	switch c.Status {
	case Applied:
		return c.Value.String()
	case NotApplicable:
		return "-"
	default:
		return "?"
	}
}

// ParseAttenuation sums the dB values of a "<n>dB+<m>dB" setting.
func ParseAttenuation(att string) (int, error) {
	total := 0

	for _, part := range strings.Split(att, "+") {
		num, _, _ := strings.Cut(strings.ToLower(strings.TrimSpace(part)), "db")

		db, err := strconv.Atoi(strings.TrimSpace(num))
		if err != nil {
			return 0, fmt.Errorf("invalid attenuator %q: %w", att, err)
		}

		total += db
	}

	return total, nil
}

// AttenuationFactor returns the linear factor 10^(dB/20) of an
// attenuation with an absolute uncertainty of 1% on the dB value.
func AttenuationFactor(db int) Value {
	d := float64(db)
	n := math.Pow(10, d/20)

	return Value{N: n, S: n * math.Ln10 / 20 * 0.01 * math.Abs(d)}
}

// AttenuationCorrection scales raw by the attenuator setting att.
func AttenuationCorrection(raw Value, att string) (Correction, error) {
	switch strings.ToLower(strings.TrimSpace(att)) {
	case "none", "-":
		return Correction{Status: NotApplicable}, nil
	case "", "?", "unknown":
		return Correction{Status: Unknown}, nil
	}

	db, err := ParseAttenuation(att)
	if err != nil {
		return Correction{}, err
	}

	return Correction{Status: Applied, Value: raw.Mul(AttenuationFactor(db))}, nil
}
