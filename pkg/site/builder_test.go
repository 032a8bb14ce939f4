package site

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/diamondpsi/psiweb/pkg/alias"
	"github.com/diamondpsi/psiweb/pkg/campaign"
	"github.com/diamondpsi/psiweb/pkg/config"
	"github.com/diamondpsi/psiweb/pkg/dut"
	"github.com/diamondpsi/psiweb/pkg/fitres"
	"github.com/diamondpsi/psiweb/pkg/metrics"
	"github.com/diamondpsi/psiweb/pkg/resolver"
	"github.com/diamondpsi/psiweb/pkg/storage"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func testRun(n int, start, end string, events int64, slots ...campaign.Slot) *campaign.RunRecord {
	s, _ := time.Parse(campaign.TimeLayout, start)
	e, _ := time.Parse(campaign.TimeLayout, end)

	return &campaign.RunRecord{
		Number:   n,
		Slots:    slots,
		Start:    s,
		End:      e,
		Type:     "rate_scan",
		Events:   ptr(events),
		Rates:    map[int]float64{1: 100000, 2: 100000},
		MaskFile: "none.msk",
		Comment:  "beam ok",
	}
}

func writeTestFile(t *testing.T, root, rel, content string) {
	t.Helper()

	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func newTestBuilder(t *testing.T) *Builder {
	t.Helper()

	aug := &campaign.Campaign{
		ID: "201608",
		Runs: map[int]*campaign.RunRecord{
			1: testRun(1, "2016-08-01T10:00:00Z", "2016-08-01T11:00:00Z", 1000,
				campaign.Slot{Channel: 1, Name: "II6-B2", Bias: ptr(-500.0)},
				campaign.Slot{Channel: 2, Name: "S129", Bias: ptr(500.0)}),
			2: testRun(2, "2016-08-01T11:00:00Z", "2016-08-01T12:00:00Z", 1000,
				campaign.Slot{Channel: 1, Name: "ii6b2", Bias: ptr(-500.0)},
				campaign.Slot{Channel: 2, Name: "S129", Bias: ptr(500.0)}),
		},
		Plans: map[string]*campaign.RunPlan{
			"1": {
				Campaign:    "201608",
				Tag:         "1",
				Runs:        []int{1, 2},
				Type:        "rate_scan",
				Attenuators: map[string]string{"dia1": "20dB", "pulser": "none"},
			},
		},
	}

	may := &campaign.Campaign{
		ID: "201505",
		Runs: map[int]*campaign.RunRecord{
			1: testRun(1, "2015-05-01T10:00:00Z", "2015-05-01T11:00:00Z", 500,
				campaign.Slot{Channel: 1, Name: "S129", Bias: ptr(250.0)},
				campaign.Slot{Channel: 2, Name: "none"}),
		},
		Plans: map[string]*campaign.RunPlan{
			"01": {Campaign: "201505", Tag: "01", Runs: []int{1}, Type: "voltage_scan"},
		},
	}

	root := t.TempDir()

	for run := 1; run <= 2; run++ {
		r := string(rune('0' + run))
		writeTestFile(t, root, "fits/Ph_fit/201608_"+r+"_1_10000_eventwise_b2.json",
			`{"pars": [100], "errors": [1]}`)
		writeTestFile(t, root, "fits/Pulser/HistoFit_201608_"+r+"_1_ped_corr_BeamOn.json",
			`{"pars": [0, 50], "errors": [0, 1]}`)
		writeTestFile(t, root, "fits/Pedestal/201608_"+r+"_1_ab2_fwhm_AllCuts.json",
			`{"parameters": [0, 2, 10], "parameter_errors": [0, 0.1, 0.5]}`)
	}

	log, _ := logtest.NewNullLogger()
	reader := storage.NewLocalReader(root)
	aliases := alias.New(log, map[string]string{"ii6b2": "II6-B2", "s129": "S129"})

	duts := dut.NewRegistry(&dut.DUT{
		Name:         "II6-B2",
		Manufacturer: "II-VI",
		Irradiations: map[string]string{"201608": "1e15"},
		Thickness:    ptr(500),
		Size:         []float64{5, 5},
	})

	return NewBuilder(log, Deps{
		Resolver: resolver.New(log, campaign.NewSet(aug, may), aliases),
		DUTs:     duts,
		Metrics:  metrics.NewEngine(log, reader, "masks"),
		Fits: fitres.NewLoader(log, reader, "fits", config.FitTemplates{
			PH:             config.DefaultPHTemplate,
			Pedestal:       config.DefaultPedestalTemplate,
			Pulser:         config.DefaultPulserTemplate,
			PulserPedestal: config.DefaultPulserPedestalTemplate,
		}),
		FirstFitCampaign: config.DefaultFirstFitCampaign,
		Location:         time.FixedZone("CEST", 2*60*60),
	})
}

func TestBuilder_Build(t *testing.T) {
	s, err := newTestBuilder(t).Build(context.Background())
	require.NoError(t, err)

	require.Len(t, s.Index.DUTs, 2)

	ii6 := s.Index.DUTs[0]
	assert.Equal(t, "II6-B2", ii6.Name)
	assert.Equal(t, "II-VI", ii6.Manufacturer)
	assert.Equal(t, "500", ii6.Thickness)
	assert.Equal(t, "5x5", ii6.Size)
	assert.Equal(t, []string{"pad"}, ii6.Types)
	assert.Equal(t, []string{"1.0·10^15"}, ii6.Irradiations)
	assert.Equal(t, []string{"201608"}, ii6.Campaigns)

	s129 := s.Index.DUTs[1]
	assert.Equal(t, "S129", s129.Name)
	assert.Equal(t, "?", s129.Manufacturer)
	assert.Equal(t, []string{"201505", "201608"}, s129.Campaigns)

	require.Len(t, s.Campaigns, 2)
	aug := s.Campaigns[1]
	assert.Equal(t, "August 2016", aug.Label)
	require.Len(t, aug.Plans, 1)

	row := aug.Plans[0]
	assert.True(t, row.Main)
	assert.Equal(t, "DRS4", row.Digitiser)
	assert.Equal(t, "OSU1", row.Amplifier)
	assert.Equal(t, "pad", row.DUTType)
	assert.Equal(t, "rate scan", row.Type)
	assert.Equal(t, "001-002", row.Runs)
	assert.Equal(t, "2k", row.Events)
	require.Len(t, row.DUTs, 2)
	assert.Equal(t, "II6-B2", row.DUTs[0].Name)
	assert.Equal(t, "-500", row.DUTs[0].Bias)
	assert.Equal(t, "duts/II6-B2/201608/RP-1", row.DUTs[0].Dir)

	may := s.Campaigns[0]
	require.Len(t, may.Plans[0].DUTs, 2)
	assert.Equal(t, "none", may.Plans[0].DUTs[1].Name)
	assert.Empty(t, may.Plans[0].DUTs[1].Dir)
}

func TestBuilder_DUTPlans(t *testing.T) {
	s, err := newTestBuilder(t).Build(context.Background())
	require.NoError(t, err)

	var ii6, s129Old *DUTPlans

	for _, dp := range s.DUTPlans {
		switch {
		case dp.DUT == "II6-B2" && dp.Campaign == "201608":
			ii6 = dp
		case dp.DUT == "S129" && dp.Campaign == "201505":
			s129Old = dp
		}
	}

	require.NotNil(t, ii6)
	require.Len(t, ii6.Plans, 1)
	assert.Equal(t, "1.0·10^15", ii6.Irradiation)
	assert.Equal(t, "extern", ii6.Pulser)

	row := ii6.Plans[0]
	assert.Equal(t, "front", row.Position)
	assert.Equal(t, "20dB", row.Attenuator)
	assert.Equal(t, "none", row.PulserAttenuator)
	assert.Equal(t, "-500", row.Bias)
	assert.Equal(t, "001-002", row.Runs)
	assert.Equal(t, "160 ... 160", row.Flux)
	assert.Equal(t, "100.00 (0.00)", row.Signal)
	assert.Equal(t, "50.00 (0.00)", row.Pulser)
	assert.Equal(t, "10.00 (0.00)", row.Noise)
	assert.Equal(t, "1000.00 (23.03)", row.CorrectedSignal)
	assert.Equal(t, "-", row.CorrectedPulser)
	assert.Equal(t, "2k", row.Events)
	assert.Equal(t, "2016-08-01 12:00", row.Start)
	assert.Equal(t, "2:00:00", row.Duration)

	require.NotNil(t, s129Old)
	old := s129Old.Plans[0]
	assert.Equal(t, "?", s129Old.Irradiation)
	assert.Equal(t, "?", old.Signal)
	assert.Equal(t, "?", old.CorrectedSignal)
	assert.Equal(t, "?", old.Attenuator)

	var runs *RunList

	for _, rl := range s.RunLists {
		if rl.DUT == "II6-B2" {
			runs = rl
		}
	}

	require.NotNil(t, runs)
	require.Len(t, runs.Runs, 2)

	first := runs.Runs[0]
	assert.Equal(t, 1, first.Run)
	assert.Equal(t, "rate scan", first.Type)
	assert.Equal(t, "-500", first.Bias)
	assert.Equal(t, "160", first.Flux)
	assert.Equal(t, "100.00 (1.00)", first.PulseHeight)
	assert.Equal(t, "50.00 (1.00)", first.Pulser)
	assert.Equal(t, "10.00", first.Noise)
	assert.Equal(t, "2.00", first.Pedestal)
	assert.Equal(t, "1k", first.Events)
	assert.Equal(t, "1:00:00", first.Duration)
	assert.Equal(t, "beam ok", first.Comment)
}

func TestSite_FilesDeterministic(t *testing.T) {
	ctx := context.Background()

	a, err := newTestBuilder(t).Build(ctx)
	require.NoError(t, err)

	b, err := newTestBuilder(t).Build(ctx)
	require.NoError(t, err)

	fa, err := a.Files()
	require.NoError(t, err)

	fb, err := b.Files()
	require.NoError(t, err)

	assert.Equal(t, fa, fb)

	paths := make([]string, 0, len(fa))
	for _, f := range fa {
		paths = append(paths, f.Path)
	}

	assert.Contains(t, paths, "index.json")
	assert.Contains(t, paths, "campaigns/201608/runplans.md")
	assert.Contains(t, paths, "duts/II6-B2/201608/runplans.json")
	assert.Contains(t, paths, "duts/II6-B2/201608/RP-1/runs.json")
	assert.Contains(t, paths, "duts/S129/201505/RP-1/runs.json")
}

func TestSite_Write(t *testing.T) {
	s, err := newTestBuilder(t).Build(context.Background())
	require.NoError(t, err)

	dir := t.TempDir()

	n, err := s.Write(dir, "")
	require.NoError(t, err)
	assert.Positive(t, n)

	data, err := os.ReadFile(filepath.Join(dir, "duts", "II6-B2", "201608", "runplans.md"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "# Run Plans of II6-B2 in August 2016")
	assert.Contains(t, string(data), "| 1 | front | DRS4 | OSU1 | 20dB | none | -500 |")

	_, err = s.Write(dir, "bogus")
	assert.Error(t, err)
}

func TestHardwareDefaults(t *testing.T) {
	plan := &campaign.RunPlan{Tag: "3"}

	assert.Equal(t, "DRS4", Digitiser(plan, false))
	assert.Equal(t, "PSI46", Digitiser(plan, true))
	assert.Equal(t, "OSU1", Amplifier(plan, false))
	assert.Equal(t, "PSI46", Amplifier(plan, true))
	assert.Equal(t, "?", Attenuator(plan, 1, false, false))
	assert.Equal(t, "-", Attenuator(plan, 1, false, true))

	plan.Digitiser = "CAEN"
	plan.Amplifiers = []string{"", "OSU2-a", "OSU3"}
	assert.Equal(t, "CAEN", Digitiser(plan, true))
	assert.Equal(t, "OSU2", Amplifier(plan, false))

	plan.Amplifiers = []string{"C6", "C7"}
	assert.Equal(t, "C6, C7", Amplifier(plan, false))

	plan.Attenuators = map[string]string{"dia2": "3dB", "pulser1": "10dB", "pulser2": "20dB"}
	assert.Equal(t, "3dB", Attenuator(plan, 2, false, false))
	assert.Equal(t, "20dB", Attenuator(plan, 2, true, false))
}

func TestBuilder_DUTOnTwoChannels(t *testing.T) {
	c := &campaign.Campaign{
		ID: "201608",
		Runs: map[int]*campaign.RunRecord{
			7: testRun(7, "2016-08-04T10:00:00Z", "2016-08-04T11:00:00Z", 800,
				campaign.Slot{Channel: 1, Name: "II6-B2", Bias: ptr(-100.0)},
				campaign.Slot{Channel: 2, Name: "II6-B2", Bias: ptr(-100.0)}),
		},
		Plans: map[string]*campaign.RunPlan{
			"5": {Campaign: "201608", Tag: "5", Runs: []int{7}, Type: "rate_scan"},
		},
	}

	log, _ := logtest.NewNullLogger()
	reader := storage.NewLocalReader(t.TempDir())
	aliases := alias.New(log, map[string]string{"ii6b2": "II6-B2"})

	b := NewBuilder(log, Deps{
		Resolver: resolver.New(log, campaign.NewSet(c), aliases),
		DUTs:     dut.NewRegistry(),
		Metrics:  metrics.NewEngine(log, reader, "masks"),
		Fits: fitres.NewLoader(log, reader, "fits", config.FitTemplates{
			PH:             config.DefaultPHTemplate,
			Pedestal:       config.DefaultPedestalTemplate,
			Pulser:         config.DefaultPulserTemplate,
			PulserPedestal: config.DefaultPulserPedestalTemplate,
		}),
		FirstFitCampaign: config.DefaultFirstFitCampaign,
	})

	s, err := b.Build(context.Background())
	require.NoError(t, err)

	require.Len(t, s.RunLists, 2)
	assert.Equal(t, "duts/II6-B2/201608/RP-5-ch1", s.RunLists[0].Dir)
	assert.Equal(t, "duts/II6-B2/201608/RP-5-ch2", s.RunLists[1].Dir)

	require.Len(t, s.Campaigns, 1)
	require.Len(t, s.Campaigns[0].Plans[0].DUTs, 2)
	assert.Equal(t, "duts/II6-B2/201608/RP-5-ch1", s.Campaigns[0].Plans[0].DUTs[0].Dir)
	assert.Equal(t, "duts/II6-B2/201608/RP-5-ch2", s.Campaigns[0].Plans[0].DUTs[1].Dir)

	files, err := s.Files()
	require.NoError(t, err)

	paths := make([]string, 0, len(files))
	for _, f := range files {
		paths = append(paths, f.Path)
	}

	assert.Contains(t, paths, "duts/II6-B2/201608/RP-5-ch1/runs.json")
	assert.Contains(t, paths, "duts/II6-B2/201608/RP-5-ch2/runs.json")
}

func TestSite_FilesRejectsSharedRunListDir(t *testing.T) {
	s := &Site{
		Index: &Index{},
		RunLists: []*RunList{
			{DUT: "II6-B2", Plan: "5", Channel: 1, Dir: "duts/II6-B2/201608/RP-5"},
			{DUT: "II6-B2", Plan: "5", Channel: 2, Dir: "duts/II6-B2/201608/RP-5"},
		},
	}

	_, err := s.Files()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duts/II6-B2/201608/RP-5/runs.json")
}
