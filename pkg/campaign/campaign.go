// Package campaign holds the beam test campaigns: run logs, run plans
// and the loaders building them from the input files.
package campaign

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrCampaignNotFound is returned for an unknown campaign id.
	ErrCampaignNotFound = errors.New("campaign not found")

	// ErrPlanNotFound is returned for an unknown run plan tag.
	ErrPlanNotFound = errors.New("run plan not found")

	// ErrRunNotFound is returned when a run is missing from the run log.
	ErrRunNotFound = errors.New("run not found")
)

// TimeLayout is the timestamp format of the run logs (UTC).
const TimeLayout = "2006-01-02T15:04:05Z"

// Slot is one DUT readout position of a run.
type Slot struct {
	Channel    int
	Name       string
	Bias       *float64
	Attenuator string
}

// RunRecord is a single run of the run log.
type RunRecord struct {
	Number       int
	Slots        []Slot
	Start        time.Time
	End          time.Time
	Type         string
	Comment      string
	Events       *int64
	Rates        map[int]float64
	MeasuredFlux *float64
	MaskFile     string
	Pulser       string
	FS11         string
	FS13         string
}

// Channels returns the sorted channel numbers of the run.
func (r *RunRecord) Channels() []int {
	chs := make([]int, 0, len(r.Slots))
	for _, s := range r.Slots {
		chs = append(chs, s.Channel)
	}

	sort.Ints(chs)

	return chs
}

// Slot returns the slot of channel ch.
func (r *RunRecord) Slot(ch int) (Slot, bool) {
	for _, s := range r.Slots {
		if s.Channel == ch {
			return s, true
		}
	}

	return Slot{}, false
}

// Rate returns the rate counter for<i>.
func (r *RunRecord) Rate(i int) (float64, bool) {
	v, ok := r.Rates[i]

	return v, ok
}

// DisplayType returns the run type with underscores as spaces.
func (r *RunRecord) DisplayType() string {
	return strings.ReplaceAll(r.Type, "_", " ")
}

// RunPlan is an ordered group of runs within one campaign.
type RunPlan struct {
	Campaign    string
	Tag         string
	Runs        []int
	Type        string
	Attenuators map[string]string
	Digitiser   string
	Amplifiers  []string
}

// IsMain reports whether the plan is a main plan ("NN") rather than a
// sub plan ("NN.M").
func (p *RunPlan) IsMain() bool {
	if p.Tag == "" {
		return false
	}

	for _, c := range p.Tag {
		if c < '0' || c > '9' {
			return false
		}
	}

	return true
}

// Name returns the display name, e.g. "Run Plan 2.1".
func (p *RunPlan) Name() string {
	return "Run Plan " + strings.TrimLeft(p.Tag, "0")
}

// DirName returns the directory name of the plan, e.g. "RP-2-1".
func (p *RunPlan) DirName() string {
	return "RP-" + strings.ReplaceAll(strings.TrimLeft(p.Tag, "0"), ".", "-")
}

// DisplayType returns the plan type with underscores as spaces.
func (p *RunPlan) DisplayType() string {
	return strings.ReplaceAll(p.Type, "_", " ")
}

// Attenuator returns the attenuator setting of the DUT or pulser line of
// channel ch. Pulser keys are "pulser<ch>", or "pulser" for campaigns
// that used a single pulser attenuator.
func (p *RunPlan) Attenuator(ch int, pulser bool) (string, bool) {
	if p.Attenuators == nil {
		return "", false
	}

	key := "dia" + strconv.Itoa(ch)

	if pulser {
		key = "pulser"
		if _, ok := p.Attenuators["pulser1"]; ok {
			key += strconv.Itoa(ch)
		}
	}

	v, ok := p.Attenuators[key]

	return v, ok
}

// Campaign is one beam test campaign. It is immutable once loaded.
type Campaign struct {
	ID    string
	Runs  map[int]*RunRecord
	Plans map[string]*RunPlan
}

// Run returns run number n.
func (c *Campaign) Run(n int) (*RunRecord, error) {
	rec, ok := c.Runs[n]
	if !ok {
		return nil, fmt.Errorf("%w: campaign %s run %d", ErrRunNotFound, c.ID, n)
	}

	return rec, nil
}

// Plan returns the run plan with the given tag.
func (c *Campaign) Plan(tag string) (*RunPlan, error) {
	p, ok := c.Plans[tag]
	if !ok {
		return nil, fmt.Errorf("%w: campaign %s plan %q", ErrPlanNotFound, c.ID, tag)
	}

	return p, nil
}

// PlanRuns returns the run records of a plan in plan order.
func (c *Campaign) PlanRuns(tag string) ([]*RunRecord, error) {
	p, err := c.Plan(tag)
	if err != nil {
		return nil, err
	}

	recs := make([]*RunRecord, 0, len(p.Runs))

	for _, n := range p.Runs {
		rec, err := c.Run(n)
		if err != nil {
			return nil, fmt.Errorf("plan %s: %w", tag, err)
		}

		recs = append(recs, rec)
	}

	if len(recs) == 0 {
		return nil, fmt.Errorf("campaign %s plan %s has no runs", c.ID, tag)
	}

	return recs, nil
}

// PlanTags returns the plan tags in numeric order ("2" < "2.1" < "10").
func (c *Campaign) PlanTags() []string {
	tags := make([]string, 0, len(c.Plans))
	for tag := range c.Plans {
		tags = append(tags, tag)
	}

	SortTags(tags)

	return tags
}

// RunNumbers returns the sorted run numbers of the run log.
func (c *Campaign) RunNumbers() []int {
	nums := make([]int, 0, len(c.Runs))
	for n := range c.Runs {
		nums = append(nums, n)
	}

	sort.Ints(nums)

	return nums
}

// SortTags sorts run plan tags numerically by main and sub plan number.
func SortTags(tags []string) {
	sort.SliceStable(tags, func(i, j int) bool {
		mi, si := tagKey(tags[i])
		mj, sj := tagKey(tags[j])

		if mi != mj {
			return mi < mj
		}

		if si != sj {
			return si < sj
		}

		return tags[i] < tags[j]
	})
}

func tagKey(tag string) (int, int) {
	mainPart, subPart, _ := strings.Cut(tag, ".")

	m, err := strconv.Atoi(mainPart)
	if err != nil {
		m = -1
	}

	s, err := strconv.Atoi(subPart)
	if err != nil {
		s = -1
	}

	return m, s
}

// Set is the immutable collection of all loaded campaigns.
type Set struct {
	campaigns map[string]*Campaign
}

// NewSet creates a Set from the given campaigns.
func NewSet(campaigns ...*Campaign) *Set {
	s := &Set{campaigns: make(map[string]*Campaign, len(campaigns))}
	for _, c := range campaigns {
		s.campaigns[c.ID] = c
	}

	return s
}

// Campaign returns the campaign with the given id.
func (s *Set) Campaign(tc string) (*Campaign, error) {
	c, ok := s.campaigns[tc]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrCampaignNotFound, tc)
	}

	return c, nil
}

// IDs returns the campaign ids in chronological order.
func (s *Set) IDs() []string {
	ids := make([]string, 0, len(s.campaigns))
	for id := range s.campaigns {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	return ids
}

// Issue is a data inconsistency found by Check.
type Issue struct {
	Campaign string `json:"campaign"`
	Plan     string `json:"plan,omitempty"`
	Run      int    `json:"run,omitempty"`
	Message  string `json:"message"`
}

func (i Issue) String() string {
	if i.Plan != "" {
		return fmt.Sprintf("%s plan %s: %s", i.Campaign, i.Plan, i.Message)
	}

	return fmt.Sprintf("%s run %d: %s", i.Campaign, i.Run, i.Message)
}

// Check reports run plans referencing runs missing from the run log,
// empty plans and runs without usable timestamps.
func (s *Set) Check() []Issue {
	var issues []Issue

	for _, tc := range s.IDs() {
		c := s.campaigns[tc]

		for _, tag := range c.PlanTags() {
			p := c.Plans[tag]
			if len(p.Runs) == 0 {
				issues = append(issues, Issue{Campaign: tc, Plan: tag, Message: "no runs"})
			}

			for _, n := range p.Runs {
				if _, ok := c.Runs[n]; !ok {
					issues = append(issues, Issue{
						Campaign: tc,
						Plan:     tag,
						Message:  fmt.Sprintf("run %d missing from run log", n),
					})
				}
			}
		}

		for _, n := range c.RunNumbers() {
			rec := c.Runs[n]
			if rec.Start.IsZero() || rec.End.IsZero() {
				issues = append(issues, Issue{Campaign: tc, Run: n, Message: "missing start or end time"})
			}
		}
	}

	return issues
}
