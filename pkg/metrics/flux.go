package metrics

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/diamondpsi/psiweb/pkg/campaign"
	"github.com/diamondpsi/psiweb/pkg/storage"
	"github.com/sirupsen/logrus"
)

const (
	// MeasuredFluxFactor converts the scintillator rate to kHz/cm².
	MeasuredFluxFactor = 2.48

	// PixelArea is the area of one pixel in cm².
	PixelArea = 0.01 * 0.015

	// SensorArea is the area of a full unmasked ROC in cm².
	SensorArea = 52 * 80 * PixelArea

	// fullSensorRegions is the number of rate counters without mask.
	fullSensorRegions = 2
)

// noMaskNames are mask file names meaning "no mask applied".
var noMaskNames = map[string]struct{}{
	"none.msk": {},
	"none":     {},
	"no mask":  {},
	"pump.msk": {},
}

// Engine computes the derived run quantities that need input files.
type Engine struct {
	log      logrus.FieldLogger
	reader   storage.Reader
	masksDir string
}

// NewEngine creates an Engine reading mask files from masksDir.
func NewEngine(log logrus.FieldLogger, reader storage.Reader, masksDir string) *Engine {
	return &Engine{
		log:      log.WithField("component", "metrics"),
		reader:   reader,
		masksDir: masksDir,
	}
}

// Flux returns the beam flux of a run in kHz/cm² formatted as "%5.0f".
func (e *Engine) Flux(ctx context.Context, rec *campaign.RunRecord) (string, error) {
	v, err := e.FluxValue(ctx, rec)
	if err != nil {
		return "", err
	}

	return FormatFlux(v), nil
}

// FormatFlux formats a flux value without decimals.
func FormatFlux(v float64) string {
	return fmt.Sprintf("%5.0f", v)
}

// FluxValue returns the beam flux of a run in kHz/cm². Runs without
// first rate counter use the measured scintillator flux. Otherwise each
// rate counter is divided by the active area of its ROC as given by the
// mask file and the regions are averaged.
func (e *Engine) FluxValue(ctx context.Context, rec *campaign.RunRecord) (float64, error) {
	if r, ok := rec.Rate(1); (!ok || r == 0) && rec.MeasuredFlux != nil {
		return *rec.MeasuredFlux * MeasuredFluxFactor, nil
	}

	areas, err := e.maskAreas(ctx, rec)
	if err != nil {
		return 0, fmt.Errorf("run %d: %w", rec.Number, err)
	}

	var sum float64

	for i, area := range areas {
		rate, ok := rec.Rate(i + 1)
		if !ok {
			return 0, fmt.Errorf("run %d: missing rate counter for%d", rec.Number, i+1)
		}

		sum += rate / area / 1000
	}

	return sum / float64(len(areas)), nil
}

func fullSensor() []float64 {
	areas := make([]float64, fullSensorRegions)
	for i := range areas {
		areas[i] = SensorArea
	}

	return areas
}

// maskAreas returns the active area in cm² per ROC in ROC order.
func (e *Engine) maskAreas(ctx context.Context, rec *campaign.RunRecord) ([]float64, error) {
	name := MaskName(rec.MaskFile)
	if IsNoMask(name) {
		return fullSensor(), nil
	}

	data, err := e.reader.ReadFile(ctx, path.Join(e.masksDir, name))
	if err != nil {
		return nil, fmt.Errorf("reading mask file: %w", err)
	}

	if data == nil {
		e.log.WithFields(logrus.Fields{
			"run":  rec.Number,
			"mask": name,
		}).Warn("Could not find mask file, not taking any mask")

		return fullSensor(), nil
	}

	mask, err := ParseMask(data)
	if err != nil {
		return nil, fmt.Errorf("mask file %s: %w", name, err)
	}

	return mask.Areas()
}

// MaskName returns the base name of a run log mask reference.
func MaskName(ref string) string {
	return path.Base(strings.Trim(strings.TrimSpace(ref), `"`))
}

// IsNoMask reports whether a mask name means that no mask was applied.
func IsNoMask(name string) bool {
	name = strings.ToLower(name)
	if name == "" || name == "." {
		return true
	}

	_, ok := noMaskNames[name]

	return ok
}

// Corner is a pixel coordinate of a mask entry.
type Corner struct {
	X int
	Y int
}

// Mask maps a ROC number to its named corner entries.
type Mask map[int]map[string]Corner

// ParseMask parses mask lines of the form "<name> <roc> <x> <y>".
// Lines starting with '#' and lines shorter than three characters are
// skipped.
func ParseMask(data []byte) (Mask, error) {
	mask := make(Mask, 2)
	scanner := bufio.NewScanner(bytes.NewReader(data))
	lineNo := 0

	for scanner.Scan() {
		lineNo++

		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.HasPrefix(line, "#") || len(line) < 3 {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		if len(fields) < 4 {
			return nil, fmt.Errorf("line %d: expected 4 fields, got %d", lineNo, len(fields))
		}

		nums := make([]int, 3)

		for i, f := range fields[1:4] {
			n, err := strconv.Atoi(f)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}

			nums[i] = n
		}

		roc := nums[0]
		if mask[roc] == nil {
			mask[roc] = make(map[string]Corner, 2)
		}

		mask[roc][fields[0]] = Corner{X: nums[1], Y: nums[2]}
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return mask, nil
}

// Areas returns the unmasked area per ROC in cm², sorted by ROC. A ROC
// is described by its cornBot/cornTop corners or by col/row ranges.
func (m Mask) Areas() ([]float64, error) {
	if len(m) == 0 {
		return nil, fmt.Errorf("no regions defined")
	}

	rocs := make([]int, 0, len(m))
	for roc := range m {
		rocs = append(rocs, roc)
	}

	sort.Ints(rocs)

	areas := make([]float64, 0, len(rocs))

	for _, roc := range rocs {
		entries := m[roc]

		bot, okBot := entries["cornBot"]
		top, okTop := entries["cornTop"]

		if okBot && okTop {
			areas = append(areas, float64((top.Y-bot.Y+1)*(top.X-bot.X+1))*PixelArea)

			continue
		}

		col, okCol := entries["col"]
		row, okRow := entries["row"]

		if !okCol || !okRow {
			return nil, fmt.Errorf("roc %d: no corner or col/row entries", roc)
		}

		areas = append(areas, float64((col.Y-col.X+1)*(row.Y-row.X+1))*PixelArea)
	}

	return areas, nil
}
