package dut

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/diamondpsi/psiweb/pkg/alias"
	"github.com/diamondpsi/psiweb/pkg/storage"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testInfo = `{
  "ii6-b2": {
    "manufacturer": "II-VI",
    "type": {"201610": "pixel"},
    "boardnumber": {"201608": 192},
    "irradiation": {"201508": "0", "201608": "5e14", "201610": "1e15"},
    "pulser": {"201608": "intern"},
    "thickness": "500",
    "CCD": "None",
    "size": "[4.5, 4.5]",
    "metal": 3.7,
    "guard ring": "None",
    "comment": "poly"
  },
  "S129": {
    "manufacturer": "E6",
    "irradiation": {"201508": "0"},
    "size": [5, 5]
  },
  "mystery": {"manufacturer": "?"}
}`

func loadTestRegistry(t *testing.T) *Registry {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dia_info.json"), []byte(testInfo), 0o644))

	log := logrus.New()
	aliases := alias.New(log, map[string]string{"ii6-b2": "II6-B2", "s129": "S129"})

	reg, err := Load(context.Background(), storage.NewLocalReader(dir), "dia_info.json", aliases, log)
	require.NoError(t, err)

	return reg
}

func TestLoad(t *testing.T) {
	reg := loadTestRegistry(t)

	assert.Equal(t, []string{"II6-B2", "S129"}, reg.Names())

	d, ok := reg.Get("II6-B2")
	require.True(t, ok)

	assert.Equal(t, "II-VI", d.Manufacturer)
	require.NotNil(t, d.Thickness)
	assert.Equal(t, 500, *d.Thickness)
	assert.Nil(t, d.CCD)
	assert.Nil(t, d.GuardRing)
	assert.Equal(t, []float64{4.5, 4.5}, d.Size)
	assert.InDelta(t, 3.7*3.7, d.ActiveArea(), 1e-9)
	assert.Equal(t, "192", d.BoardNumber("201608"))
	assert.Equal(t, "?", d.BoardNumber("201610"))
	assert.Equal(t, "poly", d.Comment)

	s, ok := reg.Get("S129")
	require.True(t, ok)
	assert.Equal(t, []float64{5, 5}, s.Size)
	assert.InDelta(t, DefaultPadSize*DefaultPadSize, s.ActiveArea(), 1e-9)
}

func TestLoad_MissingFile(t *testing.T) {
	log := logrus.New()

	reg, err := Load(
		context.Background(), storage.NewLocalReader(t.TempDir()), "dia_info.json",
		alias.New(log, nil), log,
	)
	require.NoError(t, err)
	assert.Empty(t, reg.Names())
}

func TestDUT_PerCampaign(t *testing.T) {
	d := loadTestRegistry(t).Lookup("II6-B2")

	tests := []struct {
		tc       string
		typ      string
		isPixel  bool
		irr      string
		irrFound bool
		pulser   string
	}{
		{tc: "201508", typ: "pad", irr: "0", irrFound: true, pulser: "extern"},
		{tc: "201608", typ: "pad", irr: "5e14", irrFound: true, pulser: "intern"},
		{tc: "201610", typ: "pixel", isPixel: true, irr: "1e15", irrFound: true, pulser: ""},
		{tc: "201705", typ: "pad", irr: "?", irrFound: false, pulser: "extern"},
	}

	for _, tt := range tests {
		t.Run(tt.tc, func(t *testing.T) {
			assert.Equal(t, tt.typ, d.Type(tt.tc))
			assert.Equal(t, tt.isPixel, d.IsPixel(tt.tc))

			irr, ok := d.Irradiation(tt.tc)
			assert.Equal(t, tt.irr, irr)
			assert.Equal(t, tt.irrFound, ok)
			assert.Equal(t, tt.pulser, d.Pulser(tt.tc))
		})
	}

	assert.Equal(t, []string{"0", "5e14", "1e15"}, d.IrradiationList())
	assert.Equal(t, []string{"pad", "pixel"}, d.TypeList([]string{"201508", "201608", "201610"}))
}

func TestRegistry_LookupUnknown(t *testing.T) {
	d := NewRegistry().Lookup("S30")

	assert.Equal(t, "S30", d.Name)
	assert.Equal(t, "?", d.Manufacturer)
	assert.Equal(t, "pad", d.Type("201608"))
}
