package campaign

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
)

type rawRunPlan struct {
	Runs        []int             `mapstructure:"runs"`
	Type        string            `mapstructure:"type"`
	Attenuators map[string]string `mapstructure:"attenuators"`
	Digitiser   string            `mapstructure:"digitiser"`
	Amplifiers  any               `mapstructure:"amplifiers"`
}

// decodeRunPlans converts a validated run plan document.
func decodeRunPlans(doc any) (map[string]map[string]*RunPlan, error) {
	campaigns, ok := doc.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("run plans are not an object")
	}

	plans := make(map[string]map[string]*RunPlan, len(campaigns))

	for tc, v := range campaigns {
		entries, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("campaign %s: run plans are not an object", tc)
		}

		plans[tc] = make(map[string]*RunPlan, len(entries))

		for tag, entry := range entries {
			p, err := decodeRunPlan(tc, tag, entry)
			if err != nil {
				return nil, fmt.Errorf("campaign %s plan %s: %w", tc, tag, err)
			}

			plans[tc][tag] = p
		}
	}

	return plans, nil
}

func decodeRunPlan(tc, tag string, entry any) (*RunPlan, error) {
	var raw rawRunPlan

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &raw,
	})
	if err != nil {
		return nil, err
	}

	if err := dec.Decode(entry); err != nil {
		return nil, fmt.Errorf("decoding: %w", err)
	}

	amps, err := decodeAmplifiers(raw.Amplifiers)
	if err != nil {
		return nil, err
	}

	return &RunPlan{
		Campaign:    tc,
		Tag:         tag,
		Runs:        raw.Runs,
		Type:        raw.Type,
		Attenuators: raw.Attenuators,
		Digitiser:   raw.Digitiser,
		Amplifiers:  amps,
	}, nil
}

// decodeAmplifiers accepts a JSON list or a string holding a JSON
// encoded list, as written by older run plan editors.
func decodeAmplifiers(v any) ([]string, error) {
	switch amps := v.(type) {
	case nil:
		return nil, nil
	case string:
		s := strings.TrimSpace(amps)
		if s == "" {
			return nil, nil
		}

		if !strings.HasPrefix(s, "[") {
			return []string{s}, nil
		}

		var list []string
		if err := json.Unmarshal([]byte(s), &list); err != nil {
			return nil, fmt.Errorf("parsing amplifiers %q: %w", s, err)
		}

		return list, nil
	default:
		var list []string
		if err := mapstructure.WeakDecode(amps, &list); err != nil {
			return nil, fmt.Errorf("decoding amplifiers: %w", err)
		}

		return list, nil
	}
}
