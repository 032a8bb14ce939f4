// Package dut holds the per-DUT metadata from dia_info.json.
package dut

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/diamondpsi/psiweb/pkg/alias"
	"github.com/diamondpsi/psiweb/pkg/storage"
	"github.com/mitchellh/mapstructure"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultType is the DUT type when none is recorded for a campaign.
	DefaultType = "pad"

	// DefaultPulser is the pulser type when none is recorded.
	DefaultPulser = "extern"

	// Unknown is displayed for missing metadata.
	Unknown = "?"

	// DefaultPadSize is the metal pad edge length in mm.
	DefaultPadSize = 3.5
)

// DUT is the static metadata of one device under test.
type DUT struct {
	Name         string            `json:"name" mapstructure:"-"`
	Manufacturer string            `json:"manufacturer" mapstructure:"manufacturer"`
	Types        map[string]string `json:"types,omitempty" mapstructure:"type"`
	BoardNumbers map[string]string `json:"board_numbers,omitempty" mapstructure:"boardnumber"`
	Irradiations map[string]string `json:"irradiations,omitempty" mapstructure:"irradiation"`
	Pulsers      map[string]string `json:"pulsers,omitempty" mapstructure:"pulser"`
	Thickness    *int              `json:"thickness,omitempty" mapstructure:"thickness"`
	CCD          *int              `json:"ccd,omitempty" mapstructure:"CCD"`
	Size         []float64         `json:"size,omitempty" mapstructure:"-"`
	PadSize      *float64          `json:"pad_size,omitempty" mapstructure:"metal"`
	GuardRing    *float64          `json:"guard_ring,omitempty" mapstructure:"guard ring"`
	Comment      string            `json:"comment,omitempty" mapstructure:"comment"`
}

// Type returns the DUT type in campaign tc, "pad" by default.
func (d *DUT) Type(tc string) string {
	if t, ok := d.Types[tc]; ok && t != "" {
		return t
	}

	return DefaultType
}

// IsPixel reports whether the DUT was read out as pixel detector in tc.
func (d *DUT) IsPixel(tc string) bool {
	return strings.Contains(d.Type(tc), "pixel")
}

// Irradiation returns the fluence in campaign tc, e.g. "1e15", "0" for
// unirradiated samples. The second result is false when unrecorded.
func (d *DUT) Irradiation(tc string) (string, bool) {
	v, ok := d.Irradiations[tc]
	if !ok {
		return Unknown, false
	}

	return v, true
}

// IrradiationList returns the distinct fluences in ascending order.
func (d *DUT) IrradiationList() []string {
	seen := make(map[string]struct{}, len(d.Irradiations))
	list := make([]string, 0, len(d.Irradiations))

	for _, v := range d.Irradiations {
		if _, ok := seen[v]; ok {
			continue
		}

		seen[v] = struct{}{}
		list = append(list, v)
	}

	sort.SliceStable(list, func(i, j int) bool {
		return fluence(list[i]) < fluence(list[j])
	})

	return list
}

// TypeList returns the distinct types over the given campaigns.
func (d *DUT) TypeList(tcs []string) []string {
	seen := make(map[string]struct{}, len(tcs))
	list := make([]string, 0, 2)

	for _, tc := range tcs {
		t := d.Type(tc)
		if _, ok := seen[t]; ok {
			continue
		}

		seen[t] = struct{}{}
		list = append(list, t)
	}

	sort.Strings(list)

	return list
}

// BoardNumber returns the readout board in campaign tc or "?".
func (d *DUT) BoardNumber(tc string) string {
	if v, ok := d.BoardNumbers[tc]; ok && v != "" {
		return v
	}

	return Unknown
}

// Pulser returns the pulser type in campaign tc. Pixel DUTs have none.
func (d *DUT) Pulser(tc string) string {
	if d.IsPixel(tc) {
		return ""
	}

	if v, ok := d.Pulsers[tc]; ok && v != "" {
		return v
	}

	return DefaultPulser
}

// ActiveArea returns the metal pad area in mm².
func (d *DUT) ActiveArea() float64 {
	size := DefaultPadSize
	if d.PadSize != nil {
		size = *d.PadSize
	}

	return size * size
}

func fluence(v string) float64 {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return -1
	}

	return f
}

// Registry maps canonical DUT names to their metadata.
type Registry struct {
	duts map[string]*DUT
}

// NewRegistry creates a Registry from already decoded DUTs.
func NewRegistry(duts ...*DUT) *Registry {
	r := &Registry{duts: make(map[string]*DUT, len(duts))}
	for _, d := range duts {
		r.duts[d.Name] = d
	}

	return r
}

// Get returns the metadata of a canonical DUT name.
func (r *Registry) Get(name string) (*DUT, bool) {
	d, ok := r.duts[name]

	return d, ok
}

// Lookup returns the metadata of name or defaults when unrecorded.
func (r *Registry) Lookup(name string) *DUT {
	if d, ok := r.duts[name]; ok {
		return d
	}

	return &DUT{Name: name, Manufacturer: Unknown}
}

// Names returns the sorted DUT names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.duts))
	for name := range r.duts {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// Load reads the DUT metadata file. Keys are translated through the
// alias resolver; entries with the value "None" are treated as unset.
// A missing file yields an empty registry.
func Load(
	ctx context.Context,
	reader storage.Reader,
	name string,
	aliases *alias.Resolver,
	log logrus.FieldLogger,
) (*Registry, error) {
	log = log.WithField("component", "dut")

	data, err := reader.ReadFile(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("reading dut info: %w", err)
	}

	if data == nil {
		log.WithField("file", name).Warn("No DUT info file found")

		return NewRegistry(), nil
	}

	var doc map[string]map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing dut info %s: %w", name, err)
	}

	duts := make([]*DUT, 0, len(doc))

	for key, specs := range doc {
		canonical, ok := aliases.Translate(key)
		if !ok {
			log.WithField("dut", key).Debug("Skipping DUT info without alias")

			continue
		}

		d, err := decodeDUT(canonical, specs)
		if err != nil {
			return nil, fmt.Errorf("dut %s: %w", key, err)
		}

		duts = append(duts, d)
	}

	log.WithField("duts", len(duts)).Debug("Loaded DUT info")

	return NewRegistry(duts...), nil
}

func decodeDUT(name string, specs map[string]any) (*DUT, error) {
	for k, v := range specs {
		if s, ok := v.(string); ok && s == "None" {
			delete(specs, k)
		}
	}

	d := &DUT{Name: name, Manufacturer: Unknown}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           d,
	})
	if err != nil {
		return nil, err
	}

	if err := dec.Decode(specs); err != nil {
		return nil, fmt.Errorf("decoding: %w", err)
	}

	size, err := decodeSize(specs["size"])
	if err != nil {
		return nil, err
	}

	d.Size = size

	return d, nil
}

// decodeSize accepts a list or a JSON encoded list string and defaults
// to 5x5 mm.
func decodeSize(v any) ([]float64, error) {
	if v == nil {
		return []float64{5, 5}, nil
	}

	if s, ok := v.(string); ok {
		var size []float64
		if err := json.Unmarshal([]byte(s), &size); err != nil {
			return nil, fmt.Errorf("parsing size %q: %w", s, err)
		}

		return size, nil
	}

	var size []float64
	if err := mapstructure.WeakDecode(v, &size); err != nil {
		return nil, fmt.Errorf("decoding size: %w", err)
	}

	return size, nil
}
