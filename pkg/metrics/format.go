package metrics

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// Unavailable is displayed for values that cannot be derived.
const Unavailable = "?"

// BiasString formats bias voltages: a single value as "+500", up to
// three values ordered by magnitude joined with arrows and longer scans
// as "first ... last".
func BiasString(biases []float64) string {
	switch {
	case len(biases) == 0:
		return Unavailable
	case len(biases) == 1:
		return fmt.Sprintf("%+.0f", biases[0])
	case len(biases) < 4:
		sorted := append([]float64(nil), biases...)
		sort.SliceStable(sorted, func(i, j int) bool {
			return abs(sorted[i]) > abs(sorted[j])
		})

		parts := make([]string, len(sorted))
		for i, b := range sorted {
			parts[i] = fmt.Sprintf("%+.0f", b)
		}

		return strings.Join(parts, " → ")
	default:
		return fmt.Sprintf("%+4.0f ... %+4.0f", biases[0], biases[len(biases)-1])
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}

	return v
}

// RunsString returns the run range "first-last" with three digits.
func RunsString(runs []int) string {
	if len(runs) == 0 {
		return Unavailable
	}

	return fmt.Sprintf("%03d-%03d", runs[0], runs[len(runs)-1])
}

// EventsString formats an event count with an SI suffix, e.g. "1.2M".
func EventsString(events *int64) string {
	if events == nil {
		return Unavailable
	}

	return strings.ReplaceAll(humanize.SIWithDigits(float64(*events), 1, ""), " ", "")
}

// IrradiationString formats a fluence like "1e15" as "1.0·10^15".
// Unirradiated samples ("0" or empty) read "unirr.".
func IrradiationString(val string) string {
	val = strings.TrimSpace(val)

	switch val {
	case Unavailable:
		return val
	case "", "0":
		return "unirr."
	}

	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return Unavailable
	}

	if f == 0 {
		return "unirr."
	}

	mantissa, exp, _ := strings.Cut(strconv.FormatFloat(f, 'e', 1, 64), "e")
	e, _ := strconv.Atoi(exp)

	return fmt.Sprintf("%s·10^%d", mantissa, e)
}

// DurationString formats a duration as H:MM:SS.
func DurationString(d time.Duration) string {
	d = d.Round(time.Second)
	neg := d < 0

	if neg {
		d = -d
	}

	h := int64(d / time.Hour)
	m := int64(d%time.Hour) / int64(time.Minute)
	s := int64(d%time.Minute) / int64(time.Second)

	out := fmt.Sprintf("%d:%02d:%02d", h, m, s)
	if neg {
		out = "-" + out
	}

	return out
}

// FitString formats a fit mean, "?" when not available.
func FitString(v *Value) string {
	if v == nil {
		return Unavailable
	}

	return v.String()
}
