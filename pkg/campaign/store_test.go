package campaign

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/diamondpsi/psiweb/pkg/config"
	"github.com/diamondpsi/psiweb/pkg/storage"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRunPlans = `{
  "201608": {
    "01": {"runs": [1, 2], "type": "rate_scan", "digitiser": "DRS4",
           "attenuators": {"dia1": "10dB", "pulser1": "3dB+3dB"},
           "amplifiers": "[\"OSU2\", \"OSU1\"]"},
    "01.1": {"runs": ["2"], "type": "voltage_scan", "amplifiers": ["OSU1"]}
  },
  "201510": {
    "03": {"runs": [7], "type": "pedestal"}
  }
}`

const testRunLog = `{
  "1": {
    "dia1": "II6-B2", "dia1hv": -500, "dia2": "S129", "dia2hv": "250",
    "att_dia1": "10dB",
    "starttime0": "2016-08-01T23:50:00Z", "endtime": "2016-08-02T00:10:00Z",
    "runtype": "rate_scan", "comments": "first run",
    "for1": 100000, "for2": 95000.5, "maskfile": "none.msk",
    "events": 1200000, "pulser": "extern", "fs11": 65, "fs13": "120"
  },
  "0002": {
    "diamond 1": "II6-B2", "hv dia1": "n/a", "dia2": "S129", "dia2hv": 250,
    "starttime0": "2016-08-02T00:20:00Z", "endtime": "broken",
    "runtype": "rate_scan", "comments": null, "measuredflux": 64.5
  },
  "comment": {"note": "not a run"}
}`

func newTestStore(t *testing.T, files map[string]string) *Store {
	t.Helper()

	dir := t.TempDir()

	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}

	cfg := &config.DataConfig{
		RunPlansFile: config.DefaultRunPlansFile,
		RunLogsDir:   config.DefaultRunLogsDir,
	}

	return NewStore(logrus.New(), storage.NewLocalReader(dir), cfg)
}

func TestStore_LoadRunLog(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, map[string]string{
		"run_logs/201608.json": testRunLog,
	})

	runs, err := store.LoadRunLog(ctx, "201608")
	require.NoError(t, err)
	require.Len(t, runs, 2)

	t.Run("typed fields", func(t *testing.T) {
		rec := runs[1]
		require.NotNil(t, rec)

		assert.Equal(t, time.Date(2016, 8, 1, 23, 50, 0, 0, time.UTC), rec.Start)
		assert.Equal(t, time.Date(2016, 8, 2, 0, 10, 0, 0, time.UTC), rec.End)
		assert.Equal(t, "rate_scan", rec.Type)
		assert.Equal(t, "first run", rec.Comment)
		assert.Equal(t, "none.msk", rec.MaskFile)
		assert.Equal(t, "extern", rec.Pulser)
		assert.Equal(t, "65", rec.FS11)
		assert.Equal(t, "120", rec.FS13)
		require.NotNil(t, rec.Events)
		assert.Equal(t, int64(1200000), *rec.Events)
		assert.Nil(t, rec.MeasuredFlux)
		assert.InDelta(t, 100000, rec.Rates[1], 1e-9)
		assert.InDelta(t, 95000.5, rec.Rates[2], 1e-9)
	})

	t.Run("explicit slots", func(t *testing.T) {
		rec := runs[1]
		require.Len(t, rec.Slots, 2)

		assert.Equal(t, 1, rec.Slots[0].Channel)
		assert.Equal(t, "II6-B2", rec.Slots[0].Name)
		require.NotNil(t, rec.Slots[0].Bias)
		assert.InDelta(t, -500, *rec.Slots[0].Bias, 1e-9)
		assert.Equal(t, "10dB", rec.Slots[0].Attenuator)

		assert.Equal(t, 2, rec.Slots[1].Channel)
		require.NotNil(t, rec.Slots[1].Bias)
		assert.InDelta(t, 250, *rec.Slots[1].Bias, 1e-9)
	})

	t.Run("legacy keys and malformed values", func(t *testing.T) {
		rec := runs[2]
		require.NotNil(t, rec)
		require.Len(t, rec.Slots, 2)

		assert.Equal(t, "II6-B2", rec.Slots[0].Name)
		assert.Nil(t, rec.Slots[0].Bias)
		assert.True(t, rec.End.IsZero())
		assert.Empty(t, rec.Comment)
		assert.Nil(t, rec.Events)
		require.NotNil(t, rec.MeasuredFlux)
		assert.InDelta(t, 64.5, *rec.MeasuredFlux, 1e-9)
	})
}

func TestStore_LoadRunLog_Missing(t *testing.T) {
	store := newTestStore(t, nil)

	runs, err := store.LoadRunLog(context.Background(), "201705")
	require.NoError(t, err)
	assert.NotNil(t, runs)
	assert.Empty(t, runs)
}

func TestStore_LoadRunLog_Invalid(t *testing.T) {
	store := newTestStore(t, map[string]string{
		"run_logs/201608.json": `{"1": {"starttime0": 12}}`,
		"run_logs/201609.json": `[1, 2]`,
		"run_logs/201610.json": `{"1": `,
	})

	for _, tc := range []string{"201608", "201609", "201610"} {
		_, err := store.LoadRunLog(context.Background(), tc)
		require.Error(t, err, tc)
	}
}

func TestStore_LoadRunPlans(t *testing.T) {
	ctx := context.Background()

	t.Run("decodes plans", func(t *testing.T) {
		store := newTestStore(t, map[string]string{"run_plans.json": testRunPlans})

		plans, err := store.LoadRunPlans(ctx)
		require.NoError(t, err)
		require.Len(t, plans, 2)

		p := plans["201608"]["01"]
		require.NotNil(t, p)
		assert.Equal(t, "201608", p.Campaign)
		assert.Equal(t, "01", p.Tag)
		assert.Equal(t, []int{1, 2}, p.Runs)
		assert.Equal(t, "rate scan", p.DisplayType())
		assert.Equal(t, "DRS4", p.Digitiser)
		assert.Equal(t, []string{"OSU2", "OSU1"}, p.Amplifiers)
		assert.Equal(t, "3dB+3dB", p.Attenuators["pulser1"])

		sub := plans["201608"]["01.1"]
		require.NotNil(t, sub)
		assert.Equal(t, []int{2}, sub.Runs)
		assert.Equal(t, []string{"OSU1"}, sub.Amplifiers)
		assert.False(t, sub.IsMain())
	})

	t.Run("missing file is an error", func(t *testing.T) {
		store := newTestStore(t, nil)

		_, err := store.LoadRunPlans(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not found")
	})

	t.Run("schema violations", func(t *testing.T) {
		for name, content := range map[string]string{
			"missing runs":     `{"201608": {"01": {"type": "rate_scan"}}}`,
			"bad campaign id":  `{"Aug16": {"01": {"runs": [1]}}}`,
			"bad plan tag":     `{"201608": {"RP1": {"runs": [1]}}}`,
			"runs not a list":  `{"201608": {"01": {"runs": 5}}}`,
			"amplifier number": `{"201608": {"01": {"runs": [1], "amplifiers": 3}}}`,
		} {
			store := newTestStore(t, map[string]string{"run_plans.json": content})

			_, err := store.LoadRunPlans(ctx)
			require.Error(t, err, name)
			assert.Contains(t, err.Error(), "validating", name)
		}
	})
}

func TestStore_Load(t *testing.T) {
	store := newTestStore(t, map[string]string{
		"run_plans.json":       testRunPlans,
		"run_logs/201608.json": testRunLog,
		"run_logs/201705.json": `{"1": {"dia1": "S129"}}`,
		"run_logs/notes.txt":   "ignored",
	})

	set, err := store.Load(context.Background(), []string{"201510"})
	require.NoError(t, err)

	assert.Equal(t, []string{"201608", "201705"}, set.IDs())

	c, err := set.Campaign("201608")
	require.NoError(t, err)
	assert.Len(t, c.Runs, 2)
	assert.Len(t, c.Plans, 2)

	c, err = set.Campaign("201705")
	require.NoError(t, err)
	assert.Len(t, c.Runs, 1)
	assert.Empty(t, c.Plans)
}
