package resolver

import (
	"testing"
	"time"

	"github.com/diamondpsi/psiweb/pkg/alias"
	"github.com/diamondpsi/psiweb/pkg/campaign"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bias(v float64) *float64 { return &v }

func events(v int64) *int64 { return &v }

func slot(ch int, name string, hv float64) campaign.Slot {
	return campaign.Slot{Channel: ch, Name: name, Bias: bias(hv)}
}

func at(t *testing.T, ts string) time.Time {
	t.Helper()

	v, err := time.Parse(campaign.TimeLayout, ts)
	require.NoError(t, err)

	return v
}

func run(t *testing.T, n int, start, end string, slots ...campaign.Slot) *campaign.RunRecord {
	t.Helper()

	return &campaign.RunRecord{
		Number: n,
		Slots:  slots,
		Start:  at(t, start),
		End:    at(t, end),
	}
}

func plan(tc, tag string, runs ...int) *campaign.RunPlan {
	return &campaign.RunPlan{Campaign: tc, Tag: tag, Runs: runs, Type: "rate_scan"}
}

func newTestResolver(t *testing.T) (*Resolver, *logtest.Hook) {
	t.Helper()

	aug := &campaign.Campaign{
		ID: "201608",
		Runs: map[int]*campaign.RunRecord{
			1: run(t, 1, "2016-08-01T10:00:00Z", "2016-08-01T11:00:00Z",
				slot(1, "II6-B2", -500), slot(2, "S129", 500)),
			2: run(t, 2, "2016-08-01T11:05:00Z", "2016-08-01T12:30:00Z",
				slot(1, "ii6b2", -500), slot(2, "s129", 500)),
			3: run(t, 3, "2016-08-01T12:35:00Z", "2016-08-01T13:00:00Z",
				slot(1, "II6-B2", -300), slot(2, "S129", 500)),
			4: run(t, 4, "2016-08-02T10:00:00Z", "2016-08-02T11:00:00Z",
				slot(1, "II6-B2", 100), slot(2, "none", 0)),
			5: run(t, 5, "2016-08-02T11:00:00Z", "2016-08-02T12:00:00Z",
				slot(1, "S129", 100), slot(2, "none", 0)),
			6: run(t, 6, "2016-08-03T10:00:00Z", "2016-08-03T11:00:00Z",
				slot(1, "poly-a", 100), slot(2, "II6-B2", -200), slot(3, "S129", 300)),
			7: run(t, 7, "2016-08-04T10:00:00Z", "2016-08-04T11:00:00Z",
				slot(1, "II6-B2", -100), slot(2, "II6-B2", -100)),
			8: run(t, 8, "2016-08-05T10:00:00Z", "2016-08-05T11:00:00Z",
				slot(1, "S129", -150), slot(2, "none", 0)),
			9: run(t, 9, "2016-08-05T11:00:00Z", "2016-08-05T12:00:00Z",
				slot(1, "S129", 150), slot(2, "none", 0)),
			10: run(t, 10, "2016-08-05T12:00:00Z", "2016-08-05T13:00:00Z",
				slot(1, "S129", -200), slot(2, "none", 0)),
			11: run(t, 11, "2016-08-06T10:00:00Z", "2016-08-06T11:00:00Z",
				slot(1, "none", 0), slot(2, "none", 0), slot(3, "none", 0), slot(4, "none", 0)),
			20: run(t, 20, "2016-08-01T23:50:00Z", "2016-08-02T00:10:00Z"),
			21: run(t, 21, "2016-08-01T23:50:00Z", "2016-08-01T00:10:00Z"),
		},
		Plans: map[string]*campaign.RunPlan{
			"1": plan("201608", "1", 1, 2),
			"2": plan("201608", "2", 1, 2, 3),
			"3": plan("201608", "3", 4, 5),
			"4": plan("201608", "4", 6),
			"5": plan("201608", "5", 7),
			"6": plan("201608", "6", 8, 9, 10),
			"7": plan("201608", "7", 11),
		},
	}

	aug.Runs[1].Events = events(1000)
	aug.Runs[2].Events = events(2000)

	oct := &campaign.Campaign{
		ID: "201510",
		Runs: map[int]*campaign.RunRecord{
			1: run(t, 1, "2015-10-01T10:00:00Z", "2015-10-01T11:00:00Z",
				slot(1, "s129", 250), slot(2, "II6-B2", -250)),
		},
		Plans: map[string]*campaign.RunPlan{
			"01": plan("201510", "01", 1),
		},
	}

	log, hook := logtest.NewNullLogger()
	aliases := alias.New(log, map[string]string{
		"ii6-b2": "II6-B2",
		"ii6b2":  "II6-B2",
		"s129":   "S129",
	})

	return New(log, campaign.NewSet(aug, oct), aliases), hook
}

func TestFindRunPlansForDUT(t *testing.T) {
	r, hook := newTestResolver(t)

	got, err := r.FindRunPlansForDUT("II6-B2", "")
	require.NoError(t, err)

	assert.Equal(t, map[string][]PlanChannel{
		"201510": {{Tag: "01", Channel: 2}},
		"201608": {
			{Tag: "1", Channel: 1},
			{Tag: "2", Channel: 1},
			{Tag: "4", Channel: 2},
			{Tag: "5", Channel: 1},
			{Tag: "5", Channel: 2},
		},
	}, got)

	var ambiguous bool

	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel && e.Data["plan"] == "5" {
			ambiguous = true
		}
	}

	assert.True(t, ambiguous, "expected a warning for the plan matching on two channels")
}

func TestFindRunPlansForDUT_AliasQuery(t *testing.T) {
	r, _ := newTestResolver(t)

	got, err := r.FindRunPlansForDUT("s129", "201510")
	require.NoError(t, err)
	assert.Equal(t, map[string][]PlanChannel{"201510": {{Tag: "01", Channel: 1}}}, got)

	none, err := r.FindRunPlansForDUT("S30", "201608")
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = r.FindRunPlansForDUT("S129", "201901")
	assert.ErrorIs(t, err, campaign.ErrCampaignNotFound)
}

func TestFindRunPlansForDUT_ExcludesInconsistentPlan(t *testing.T) {
	r, _ := newTestResolver(t)

	got, err := r.FindRunPlansForDUT("S129", "201608")
	require.NoError(t, err)

	for _, pc := range got["201608"] {
		assert.NotEqual(t, "3", pc.Tag, "plan 3 changes the DUT in channel 1")
	}

	assert.Contains(t, got["201608"], PlanChannel{Tag: "6", Channel: 1})
}

func TestFindRunPlansByBias(t *testing.T) {
	r, _ := newTestResolver(t)

	got, err := r.FindRunPlansByBias("II6-B2", "201608")
	require.NoError(t, err)

	assert.Equal(t, map[string]map[float64]map[string]int{
		"201608": {
			-500: {"1": 1},
			-200: {"4": 2},
			-100: {"5": 2},
		},
	}, got)
}

func TestCampaignsForDUT(t *testing.T) {
	r, _ := newTestResolver(t)

	ids, err := r.CampaignsForDUT("S129")
	require.NoError(t, err)
	assert.Equal(t, []string{"201510", "201608"}, ids)
	assert.Equal(t, []string{"201510", "201608"}, r.Campaigns())
}

func TestBiases(t *testing.T) {
	r, _ := newTestResolver(t)

	tests := []struct {
		tag  string
		ch   int
		want []float64
	}{
		{tag: "1", ch: 1, want: []float64{-500}},
		{tag: "2", ch: 1, want: []float64{-500, -300}},
		{tag: "6", ch: 1, want: []float64{-200, -150, 150}},
	}

	for _, tt := range tests {
		t.Run(tt.tag, func(t *testing.T) {
			got, err := r.Biases("201608", tt.tag, tt.ch)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := r.Biases("201608", "1", 3)
	assert.Error(t, err)

	_, err = r.Biases("201608", "99", 1)
	assert.ErrorIs(t, err, campaign.ErrPlanNotFound)
}

func TestPosition(t *testing.T) {
	r, _ := newTestResolver(t)

	tests := []struct {
		tag  string
		ch   int
		want string
	}{
		{tag: "1", ch: 1, want: "front"},
		{tag: "1", ch: 2, want: "back"},
		{tag: "4", ch: 1, want: "front"},
		{tag: "4", ch: 2, want: "middle"},
		{tag: "4", ch: 3, want: "back"},
		{tag: "7", ch: 3, want: "2"},
	}

	for _, tt := range tests {
		got, err := r.Position("201608", tt.tag, tt.ch)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "plan %s channel %d", tt.tag, tt.ch)
	}

	_, err := r.Position("201608", "1", 3)
	assert.Error(t, err)
}

func TestDuration(t *testing.T) {
	r, _ := newTestResolver(t)

	d, err := r.RunDuration("201608", 20)
	require.NoError(t, err)
	assert.Equal(t, 20*time.Minute, d)

	wrapped, err := r.RunDuration("201608", 21)
	require.NoError(t, err)
	assert.Equal(t, -23*time.Hour-40*time.Minute+24*time.Hour, wrapped)

	pd, err := r.PlanDuration("201608", "1")
	require.NoError(t, err)
	assert.Equal(t, 2*time.Hour+30*time.Minute, pd)

	multi, err := r.Duration("201608", []int{8, 9, 10})
	require.NoError(t, err)
	assert.Equal(t, 3*time.Hour, multi)

	_, err = r.Duration("201608", []int{99})
	assert.ErrorIs(t, err, campaign.ErrRunNotFound)

	_, err = r.Duration("201608", nil)
	assert.Error(t, err)
}

func TestAllDUTs(t *testing.T) {
	r, _ := newTestResolver(t)

	all, err := r.AllDUTs("")
	require.NoError(t, err)
	assert.Equal(t, []string{"II6-B2", "S129"}, all)

	oct, err := r.AllDUTs("201510")
	require.NoError(t, err)
	assert.Equal(t, []string{"II6-B2", "S129"}, oct)
}

func TestUnknownAliases(t *testing.T) {
	r, _ := newTestResolver(t)

	names, err := r.UnknownAliases("")
	require.NoError(t, err)
	assert.Equal(t, []string{"poly-a"}, names)

	names, err = r.UnknownAliases("201510")
	require.NoError(t, err)
	assert.Empty(t, names)

	_, err = r.UnknownAliases("201001")
	require.ErrorIs(t, err, campaign.ErrCampaignNotFound)
}

func TestUnknownAliases_IgnoresBrokenPlans(t *testing.T) {
	c := &campaign.Campaign{
		ID: "201608",
		Runs: map[int]*campaign.RunRecord{
			1: run(t, 1, "2016-08-01T10:00:00Z", "2016-08-01T11:00:00Z",
				slot(1, "II6-B2", -500), slot(2, "mystery", 500)),
		},
		Plans: map[string]*campaign.RunPlan{
			"1": plan("201608", "1", 1, 2),
			"2": plan("201608", "2"),
		},
	}

	log, _ := logtest.NewNullLogger()
	r := New(log, campaign.NewSet(c), alias.New(log, map[string]string{"ii6-b2": "II6-B2"}))

	_, err := r.AllDUTs("")
	require.Error(t, err)

	names, err := r.UnknownAliases("")
	require.NoError(t, err)
	assert.Equal(t, []string{"mystery"}, names)
}

func TestPlanDUTs(t *testing.T) {
	r, _ := newTestResolver(t)

	duts, err := r.PlanDUTs("201608", "4")
	require.NoError(t, err)
	require.Len(t, duts, 3)

	assert.Equal(t, "?poly-a", duts[0].Name)
	assert.Equal(t, "II6-B2", duts[1].Name)
	assert.Equal(t, 2, duts[1].Channel)
	assert.Equal(t, 300.0, *duts[2].Bias)
}

func TestSummary(t *testing.T) {
	r, _ := newTestResolver(t)

	s, err := r.Summary("201608", "1", 1)
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2}, s.Runs)
	assert.Equal(t, "001-002", s.RunsString)
	assert.Equal(t, []float64{-500}, s.Biases)
	assert.Equal(t, "-500", s.BiasString)
	require.NotNil(t, s.Events)
	assert.Equal(t, int64(3000), *s.Events)
	assert.True(t, s.DurationKnown)
	assert.Equal(t, 2*time.Hour+30*time.Minute, s.Duration)

	partial, err := r.Summary("201608", "2", 1)
	require.NoError(t, err)
	assert.Nil(t, partial.Events)
	assert.Equal(t, "-500 → -300", partial.BiasString)
}

func TestMissingRunPropagates(t *testing.T) {
	c := &campaign.Campaign{
		ID:    "201705",
		Runs:  map[int]*campaign.RunRecord{},
		Plans: map[string]*campaign.RunPlan{"1": plan("201705", "1", 42)},
	}

	r := New(logrus.New(), campaign.NewSet(c), alias.New(logrus.New(), nil))

	_, err := r.FindRunPlansForDUT("S129", "")
	assert.ErrorIs(t, err, campaign.ErrRunNotFound)

	_, err = r.AllDUTs("201705")
	assert.ErrorIs(t, err, campaign.ErrRunNotFound)
}

func TestPlanEvents(t *testing.T) {
	r, _ := newTestResolver(t)

	total, err := r.PlanEvents("201608", "1")
	require.NoError(t, err)
	require.NotNil(t, total)
	assert.Equal(t, int64(3000), *total)

	missing, err := r.PlanEvents("201608", "4")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
