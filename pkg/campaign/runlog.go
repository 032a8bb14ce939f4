package campaign

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/sirupsen/logrus"
)

var (
	slotKey     = regexp.MustCompile(`^dia([1-9])$`)
	biasKey     = regexp.MustCompile(`^dia([1-9])hv$`)
	attKey      = regexp.MustCompile(`^att_dia([1-9])$`)
	rateKey     = regexp.MustCompile(`^for([1-9])$`)
	legacyName  = regexp.MustCompile(`^diamond ([1-9])$`)
	legacyBias  = regexp.MustCompile(`^hv dia([1-9])$`)
	runNumberRe = regexp.MustCompile(`^0*([0-9]+)$`)
)

// rawRun holds the fixed string fields of a run log entry. Every other
// key lands in Extra and is converted by decodeRun.
type rawRun struct {
	StartTime string         `mapstructure:"starttime0"`
	EndTime   string         `mapstructure:"endtime"`
	RunType   string         `mapstructure:"runtype"`
	Comments  string         `mapstructure:"comments"`
	MaskFile  string         `mapstructure:"maskfile"`
	Pulser    string         `mapstructure:"pulser"`
	FS11      string         `mapstructure:"fs11"`
	FS13      string         `mapstructure:"fs13"`
	Extra     map[string]any `mapstructure:",remain"`
}

// decodeRunLog converts a validated run log document into run records.
// Entries whose key is not a run number are skipped.
func decodeRunLog(
	log logrus.FieldLogger, tc string, doc any,
) (map[int]*RunRecord, error) {
	entries, ok := doc.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("run log is not an object")
	}

	runs := make(map[int]*RunRecord, len(entries))

	for key, entry := range entries {
		m := runNumberRe.FindStringSubmatch(strings.TrimSpace(key))
		if m == nil {
			log.WithField("key", key).Debug("Skipping non-run entry in run log")

			continue
		}

		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}

		fields, ok := entry.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("run %s: entry is not an object", key)
		}

		rec, err := decodeRun(log, n, fields)
		if err != nil {
			return nil, fmt.Errorf("campaign %s run %s: %w", tc, key, err)
		}

		runs[n] = rec
	}

	return runs, nil
}

func decodeRun(log logrus.FieldLogger, n int, fields map[string]any) (*RunRecord, error) {
	var raw rawRun

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &raw,
	})
	if err != nil {
		return nil, err
	}

	if err := dec.Decode(fields); err != nil {
		return nil, fmt.Errorf("decoding: %w", err)
	}

	rec := &RunRecord{
		Number:   n,
		Type:     raw.RunType,
		Comment:  raw.Comments,
		MaskFile: raw.MaskFile,
		Pulser:   raw.Pulser,
		FS11:     raw.FS11,
		FS13:     raw.FS13,
		Rates:    make(map[int]float64, 2),
	}

	rec.Start = parseTime(log, n, "starttime0", raw.StartTime)
	rec.End = parseTime(log, n, "endtime", raw.EndTime)

	slots := make(map[int]*Slot, 3)
	slot := func(ch int) *Slot {
		if s, ok := slots[ch]; ok {
			return s
		}

		s := &Slot{Channel: ch}
		slots[ch] = s

		return s
	}

	for key, value := range raw.Extra {
		switch {
		case key == "events":
			if v, ok := optionalFloat(value); ok {
				events := int64(v)
				rec.Events = &events
			}
		case key == "measuredflux":
			if v, ok := optionalFloat(value); ok {
				rec.MeasuredFlux = &v
			}
		case matchChannel(slotKey, key) > 0:
			slot(matchChannel(slotKey, key)).Name = stringValue(value)
		case matchChannel(legacyName, key) > 0:
			s := slot(matchChannel(legacyName, key))
			if s.Name == "" {
				s.Name = stringValue(value)
			}
		case matchChannel(biasKey, key) > 0:
			setBias(slot(matchChannel(biasKey, key)), value)
		case matchChannel(legacyBias, key) > 0:
			if s := slot(matchChannel(legacyBias, key)); s.Bias == nil {
				setBias(s, value)
			}
		case matchChannel(attKey, key) > 0:
			slot(matchChannel(attKey, key)).Attenuator = stringValue(value)
		case matchChannel(rateKey, key) > 0:
			if v, ok := optionalFloat(value); ok {
				rec.Rates[matchChannel(rateKey, key)] = v
			}
		}
	}

	// A bias without name is a leftover of a removed slot.
	for _, s := range slots {
		if s.Name != "" {
			rec.Slots = append(rec.Slots, *s)
		}
	}

	sort.Slice(rec.Slots, func(i, j int) bool {
		return rec.Slots[i].Channel < rec.Slots[j].Channel
	})

	return rec, nil
}

func matchChannel(re *regexp.Regexp, key string) int {
	m := re.FindStringSubmatch(key)
	if m == nil {
		return 0
	}

	ch, _ := strconv.Atoi(m[1])

	return ch
}

func setBias(s *Slot, value any) {
	if v, ok := optionalFloat(value); ok {
		s.Bias = &v
	}
}

// optionalFloat converts a loosely typed JSON value. Missing, empty and
// non-numeric values report false.
func optionalFloat(value any) (float64, bool) {
	if value == nil {
		return 0, false
	}

	if s, ok := value.(string); ok && strings.TrimSpace(s) == "" {
		return 0, false
	}

	var v float64
	if err := mapstructure.WeakDecode(value, &v); err != nil {
		return 0, false
	}

	return v, true
}

func stringValue(value any) string {
	var s string
	if err := mapstructure.WeakDecode(value, &s); err != nil {
		return ""
	}

	return strings.TrimSpace(s)
}

func parseTime(log logrus.FieldLogger, run int, field, value string) time.Time {
	if value == "" {
		return time.Time{}
	}

	t, err := time.Parse(TimeLayout, value)
	if err != nil {
		log.WithFields(logrus.Fields{
			"run":   run,
			"field": field,
			"value": value,
		}).Warn("Invalid timestamp in run log")

		return time.Time{}
	}

	return t
}
