package resolver

import (
	"time"

	"github.com/diamondpsi/psiweb/pkg/campaign"
	"github.com/diamondpsi/psiweb/pkg/metrics"
	"github.com/sirupsen/logrus"
)

// PlanSummary holds the aggregate fields of one DUT in one run plan.
type PlanSummary struct {
	Campaign      string        `json:"campaign"`
	Tag           string        `json:"tag"`
	Channel       int           `json:"channel"`
	Runs          []int         `json:"runs"`
	RunsString    string        `json:"runs_string"`
	Biases        []float64     `json:"biases"`
	BiasString    string        `json:"bias_string"`
	Events        *int64        `json:"events,omitempty"`
	Start         time.Time     `json:"start"`
	Duration      time.Duration `json:"duration"`
	DurationKnown bool          `json:"duration_known"`
}

// Summary aggregates the runs of plan tag for channel ch. Events stay
// nil unless every run has a count.
func (r *Resolver) Summary(tc, tag string, ch int) (*PlanSummary, error) {
	c, err := r.set.Campaign(tc)
	if err != nil {
		return nil, err
	}

	plan, err := c.Plan(tag)
	if err != nil {
		return nil, err
	}

	runs, err := c.PlanRuns(tag)
	if err != nil {
		return nil, err
	}

	biases, err := distinctBiases(runs, ch)
	if err != nil {
		return nil, err
	}

	s := &PlanSummary{
		Campaign:   tc,
		Tag:        tag,
		Channel:    ch,
		Runs:       append([]int(nil), plan.Runs...),
		RunsString: metrics.RunsString(plan.Runs),
		Biases:     biases,
		BiasString: metrics.BiasString(biases),
		Events:     totalEvents(runs),
		Start:      runs[0].Start,
	}

	if d, err := span(runs[0], runs[len(runs)-1]); err == nil {
		s.Duration = d
		s.DurationKnown = true
	} else {
		r.log.WithError(err).WithFields(logrus.Fields{
			"campaign": tc,
			"plan":     tag,
		}).Debug("Plan duration unavailable")
	}

	return s, nil
}

func totalEvents(runs []*campaign.RunRecord) *int64 {
	var total int64

	for _, rec := range runs {
		if rec.Events == nil {
			return nil
		}

		total += *rec.Events
	}

	return &total
}

// PlanEvents returns the total event count of a plan, nil unless every
// run has a count.
func (r *Resolver) PlanEvents(tc, tag string) (*int64, error) {
	runs, err := r.planRuns(tc, tag)
	if err != nil {
		return nil, err
	}

	return totalEvents(runs), nil
}
