// Package resolver cross-references run plans, run logs and the alias
// table to find which DUT was measured in which run plan and channel.
package resolver

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/diamondpsi/psiweb/pkg/alias"
	"github.com/diamondpsi/psiweb/pkg/campaign"
	"github.com/sirupsen/logrus"
)

// Resolver answers DUT and run plan queries over a loaded campaign set.
// All methods are read-only and safe for concurrent use.
type Resolver struct {
	log     logrus.FieldLogger
	set     *campaign.Set
	aliases *alias.Resolver
}

// New creates a Resolver.
func New(log logrus.FieldLogger, set *campaign.Set, aliases *alias.Resolver) *Resolver {
	return &Resolver{
		log:     log.WithField("component", "resolver"),
		set:     set,
		aliases: aliases,
	}
}

// PlanChannel is a run plan and the channel a DUT was read out on.
type PlanChannel struct {
	Tag     string `json:"tag"`
	Channel int    `json:"channel"`
}

// PlanDUT is the DUT in one channel of a run plan's first run.
type PlanDUT struct {
	Channel int      `json:"channel"`
	Name    string   `json:"name"`
	Bias    *float64 `json:"bias,omitempty"`
}

// Campaigns returns all campaign ids in chronological order.
func (r *Resolver) Campaigns() []string {
	return r.set.IDs()
}

// Campaign returns a loaded campaign.
func (r *Resolver) Campaign(tc string) (*campaign.Campaign, error) {
	return r.set.Campaign(tc)
}

// scope returns campaign tc, or every campaign when tc is empty.
func (r *Resolver) scope(tc string) ([]*campaign.Campaign, error) {
	if tc != "" {
		c, err := r.set.Campaign(tc)
		if err != nil {
			return nil, err
		}

		return []*campaign.Campaign{c}, nil
	}

	ids := r.set.IDs()
	out := make([]*campaign.Campaign, 0, len(ids))

	for _, id := range ids {
		c, err := r.set.Campaign(id)
		if err != nil {
			return nil, err
		}

		out = append(out, c)
	}

	return out, nil
}

// channelDUT returns the canonical DUT of channel ch if every run of the
// plan names the same resolvable DUT there.
func (r *Resolver) channelDUT(runs []*campaign.RunRecord, ch int) (string, bool) {
	var name string

	for i, rec := range runs {
		slot, ok := rec.Slot(ch)
		if !ok {
			return "", false
		}

		canonical, ok := r.aliases.Translate(slot.Name)
		if !ok {
			return "", false
		}

		if i == 0 {
			name = canonical
		} else if canonical != name {
			return "", false
		}
	}

	return name, name != ""
}

// channelBias returns the bias of channel ch if it is identical in every
// run of the plan.
func channelBias(runs []*campaign.RunRecord, ch int) (float64, bool) {
	var bias float64

	for i, rec := range runs {
		slot, ok := rec.Slot(ch)
		if !ok || slot.Bias == nil {
			return 0, false
		}

		if i == 0 {
			bias = *slot.Bias
		} else if *slot.Bias != bias {
			return 0, false
		}
	}

	return bias, true
}

// canonical translates a queried DUT name, keeping unknown names as is.
func (r *Resolver) canonical(dut string) string {
	if name, ok := r.aliases.Translate(dut); ok {
		return name
	}

	return dut
}

// FindRunPlansForDUT returns, per campaign, the run plans and channels
// in which every run shows dut. An empty tc searches all campaigns.
// A plan matching on several channels is listed once per channel.
func (r *Resolver) FindRunPlansForDUT(dut, tc string) (map[string][]PlanChannel, error) {
	campaigns, err := r.scope(tc)
	if err != nil {
		return nil, err
	}

	dut = r.canonical(dut)
	result := make(map[string][]PlanChannel, len(campaigns))

	for _, c := range campaigns {
		var matches []PlanChannel

		for _, tag := range c.PlanTags() {
			runs, err := c.PlanRuns(tag)
			if err != nil {
				return nil, err
			}

			found := 0

			for _, ch := range runs[0].Channels() {
				if name, ok := r.channelDUT(runs, ch); ok && name == dut {
					matches = append(matches, PlanChannel{Tag: tag, Channel: ch})
					found++
				}
			}

			if found > 1 {
				r.log.WithFields(logrus.Fields{
					"campaign": c.ID,
					"plan":     tag,
					"dut":      dut,
				}).Warn("DUT found in more than one channel of a run plan")
			}
		}

		if len(matches) > 0 {
			result[c.ID] = matches
		}
	}

	return result, nil
}

// FindRunPlansByBias returns {campaign: {bias: {tag: channel}}} for the
// plans where every run shows dut at the same bias.
func (r *Resolver) FindRunPlansByBias(dut, tc string) (map[string]map[float64]map[string]int, error) {
	found, err := r.FindRunPlansForDUT(dut, tc)
	if err != nil {
		return nil, err
	}

	result := make(map[string]map[float64]map[string]int, len(found))

	for id, matches := range found {
		c, err := r.set.Campaign(id)
		if err != nil {
			return nil, err
		}

		for _, m := range matches {
			runs, err := c.PlanRuns(m.Tag)
			if err != nil {
				return nil, err
			}

			bias, ok := channelBias(runs, m.Channel)
			if !ok {
				continue
			}

			if result[id] == nil {
				result[id] = make(map[float64]map[string]int, 2)
			}

			if result[id][bias] == nil {
				result[id][bias] = make(map[string]int, 4)
			}

			result[id][bias][m.Tag] = m.Channel
		}
	}

	return result, nil
}

// CampaignsForDUT returns the campaigns with at least one run plan of dut.
func (r *Resolver) CampaignsForDUT(dut string) ([]string, error) {
	found, err := r.FindRunPlansForDUT(dut, "")
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(found))
	for id := range found {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	return ids, nil
}

// Biases returns the distinct bias voltages of channel ch over the runs
// of a plan, largest magnitude first. Equal magnitudes keep their first
// seen order. Runs without a recorded bias are skipped.
func (r *Resolver) Biases(tc, tag string, ch int) ([]float64, error) {
	runs, err := r.planRuns(tc, tag)
	if err != nil {
		return nil, err
	}

	return distinctBiases(runs, ch)
}

func distinctBiases(runs []*campaign.RunRecord, ch int) ([]float64, error) {
	seen := make(map[float64]struct{}, 4)
	biases := make([]float64, 0, 4)

	for _, rec := range runs {
		slot, ok := rec.Slot(ch)
		if !ok {
			return nil, fmt.Errorf("run %d has no channel %d", rec.Number, ch)
		}

		if slot.Bias == nil {
			continue
		}

		if _, ok := seen[*slot.Bias]; ok {
			continue
		}

		seen[*slot.Bias] = struct{}{}
		biases = append(biases, *slot.Bias)
	}

	sort.SliceStable(biases, func(i, j int) bool {
		return abs(biases[i]) > abs(biases[j])
	})

	return biases, nil
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}

	return v
}

// Position returns where channel ch sat in the beam: front/back with two
// DUTs, front/middle/back with three, otherwise the zero-based slot
// index.
func (r *Resolver) Position(tc, tag string, ch int) (string, error) {
	runs, err := r.planRuns(tc, tag)
	if err != nil {
		return "", err
	}

	return position(runs[0].Channels(), ch)
}

func position(channels []int, ch int) (string, error) {
	idx := -1

	for i, c := range channels {
		if c == ch {
			idx = i

			break
		}
	}

	if idx < 0 {
		return "", fmt.Errorf("channel %d not present", ch)
	}

	switch len(channels) {
	case 2:
		return []string{"front", "back"}[idx], nil
	case 3:
		return []string{"front", "middle", "back"}[idx], nil
	default:
		return strconv.Itoa(idx), nil
	}
}

// Duration returns the end of the last run minus the start of the first.
// A negative difference is taken as a wrap over midnight and 24h are
// added.
func (r *Resolver) Duration(tc string, runs []int) (time.Duration, error) {
	if len(runs) == 0 {
		return 0, fmt.Errorf("no runs")
	}

	c, err := r.set.Campaign(tc)
	if err != nil {
		return 0, err
	}

	first, err := c.Run(runs[0])
	if err != nil {
		return 0, err
	}

	last, err := c.Run(runs[len(runs)-1])
	if err != nil {
		return 0, err
	}

	return span(first, last)
}

// PlanDuration returns the duration of a run plan.
func (r *Resolver) PlanDuration(tc, tag string) (time.Duration, error) {
	runs, err := r.planRuns(tc, tag)
	if err != nil {
		return 0, err
	}

	return span(runs[0], runs[len(runs)-1])
}

// RunDuration returns the duration of a single run.
func (r *Resolver) RunDuration(tc string, run int) (time.Duration, error) {
	return r.Duration(tc, []int{run})
}

func span(first, last *campaign.RunRecord) (time.Duration, error) {
	if first.Start.IsZero() {
		return 0, fmt.Errorf("run %d has no start time", first.Number)
	}

	if last.End.IsZero() {
		return 0, fmt.Errorf("run %d has no end time", last.Number)
	}

	d := last.End.Sub(first.Start)
	if d < 0 {
		d += 24 * time.Hour
	}

	return d, nil
}

// AllDUTs returns the sorted canonical names of the DUTs that appear
// consistently in one channel of some run plan. Empty slots and names
// without alias are left out. An empty tc searches all campaigns.
func (r *Resolver) AllDUTs(tc string) ([]string, error) {
	campaigns, err := r.scope(tc)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, 32)

	for _, c := range campaigns {
		for _, tag := range c.PlanTags() {
			runs, err := c.PlanRuns(tag)
			if err != nil {
				return nil, err
			}

			for _, ch := range runs[0].Channels() {
				name, ok := r.channelDUT(runs, ch)
				if !ok || alias.IsNone(name) || alias.IsUnknown(name) {
					continue
				}

				seen[name] = struct{}{}
			}
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}

	sort.Strings(names)

	return names, nil
}

// UnknownAliases translates the slot names of every recorded run and
// returns the sorted raw names without alias entry. Runs are read from
// the run logs directly, so plans referencing missing runs do not hide
// any name. An empty tc searches all campaigns.
func (r *Resolver) UnknownAliases(tc string) ([]string, error) {
	campaigns, err := r.scope(tc)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, 8)

	for _, c := range campaigns {
		for _, n := range c.RunNumbers() {
			for _, s := range c.Runs[n].Slots {
				if s.Name == "" || alias.IsNone(s.Name) {
					continue
				}

				if _, ok := r.aliases.Translate(s.Name); ok {
					continue
				}

				seen[s.Name] = struct{}{}
			}
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}

	sort.Strings(names)

	return names, nil
}

// PlanDUTs returns the translated DUT of every channel of the plan's
// first run.
func (r *Resolver) PlanDUTs(tc, tag string) ([]PlanDUT, error) {
	runs, err := r.planRuns(tc, tag)
	if err != nil {
		return nil, err
	}

	first := runs[0]
	duts := make([]PlanDUT, 0, len(first.Slots))

	for _, ch := range first.Channels() {
		slot, _ := first.Slot(ch)
		name, _ := r.aliases.Translate(slot.Name)

		duts = append(duts, PlanDUT{Channel: ch, Name: name, Bias: slot.Bias})
	}

	return duts, nil
}

func (r *Resolver) planRuns(tc, tag string) ([]*campaign.RunRecord, error) {
	c, err := r.set.Campaign(tc)
	if err != nil {
		return nil, err
	}

	return c.PlanRuns(tag)
}
