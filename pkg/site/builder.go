// Package site derives the overview, run plan and run tables of the
// website from the loaded campaigns and writes them as JSON and
// markdown files.
package site

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/diamondpsi/psiweb/pkg/alias"
	"github.com/diamondpsi/psiweb/pkg/campaign"
	"github.com/diamondpsi/psiweb/pkg/dut"
	"github.com/diamondpsi/psiweb/pkg/fitres"
	"github.com/diamondpsi/psiweb/pkg/metrics"
	"github.com/diamondpsi/psiweb/pkg/resolver"
	"github.com/sirupsen/logrus"
)

const (
	// StartLayout formats run start times.
	StartLayout = "2006-01-02 15:04"

	// firstCorrectedCampaign is the first campaign with reliable
	// attenuator records.
	firstCorrectedCampaign = "201505"
)

// Deps are the collaborators of a Builder.
type Deps struct {
	Resolver *resolver.Resolver
	DUTs     *dut.Registry
	Metrics  *metrics.Engine
	Fits     *fitres.Loader
	// FirstFitCampaign is the oldest campaign with fit results.
	FirstFitCampaign string
	// Location is the time zone run start times are shown in.
	Location *time.Location
}

// Builder derives the site tables.
type Builder struct {
	log      logrus.FieldLogger
	res      *resolver.Resolver
	duts     *dut.Registry
	metrics  *metrics.Engine
	fits     *fitres.Loader
	firstFit string
	loc      *time.Location
}

// NewBuilder creates a Builder.
func NewBuilder(log logrus.FieldLogger, deps Deps) *Builder {
	loc := deps.Location
	if loc == nil {
		loc = time.UTC
	}

	return &Builder{
		log:      log.WithField("component", "site"),
		res:      deps.Resolver,
		duts:     deps.DUTs,
		metrics:  deps.Metrics,
		fits:     deps.Fits,
		firstFit: deps.FirstFitCampaign,
		loc:      loc,
	}
}

// Build derives every table of the site.
func (b *Builder) Build(ctx context.Context) (*Site, error) {
	names, err := b.res.AllDUTs("")
	if err != nil {
		return nil, fmt.Errorf("collecting duts: %w", err)
	}

	s := &Site{
		log:   b.log,
		Index: &Index{DUTs: make([]*IndexDUT, 0, len(names))},
	}

	for _, tc := range b.res.Campaigns() {
		cp, err := b.campaignPlans(tc)
		if err != nil {
			return nil, fmt.Errorf("campaign %s: %w", tc, err)
		}

		s.Campaigns = append(s.Campaigns, cp)
	}

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		entry, err := b.indexEntry(name)
		if err != nil {
			return nil, fmt.Errorf("dut %s: %w", name, err)
		}

		s.Index.DUTs = append(s.Index.DUTs, entry)

		found, err := b.res.FindRunPlansForDUT(name, "")
		if err != nil {
			return nil, fmt.Errorf("dut %s: %w", name, err)
		}

		for _, tc := range entry.Campaigns {
			plans, lists, err := b.dutPlans(ctx, name, tc, found[tc])
			if err != nil {
				return nil, fmt.Errorf("dut %s campaign %s: %w", name, tc, err)
			}

			s.DUTPlans = append(s.DUTPlans, plans)
			s.RunLists = append(s.RunLists, lists...)
		}
	}

	b.log.WithFields(logrus.Fields{
		"duts":      len(s.Index.DUTs),
		"campaigns": len(s.Campaigns),
		"plans":     len(s.RunLists),
	}).Info("Built site tables")

	return s, nil
}

func (b *Builder) indexEntry(name string) (*IndexDUT, error) {
	tcs, err := b.res.CampaignsForDUT(name)
	if err != nil {
		return nil, err
	}

	d := b.duts.Lookup(name)

	irr := make([]string, 0, len(d.Irradiations))
	for _, v := range d.IrradiationList() {
		irr = append(irr, metrics.IrradiationString(v))
	}

	entry := &IndexDUT{
		Name:         name,
		Manufacturer: d.Manufacturer,
		Thickness:    dut.Unknown,
		Size:         sizeString(d.Size),
		Types:        d.TypeList(tcs),
		Irradiations: irr,
		Campaigns:    tcs,
	}

	if d.Thickness != nil {
		entry.Thickness = strconv.Itoa(*d.Thickness)
	}

	return entry, nil
}

func sizeString(size []float64) string {
	if len(size) == 0 {
		return dut.Unknown
	}

	parts := make([]string, len(size))
	for i, v := range size {
		parts[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}

	return strings.Join(parts, "x")
}

func (b *Builder) campaignPlans(tc string) (*CampaignPlans, error) {
	c, err := b.res.Campaign(tc)
	if err != nil {
		return nil, err
	}

	cp := &CampaignPlans{
		Campaign: tc,
		Label:    campaign.Label(tc, false),
		Plans:    make([]*CampaignPlanRow, 0, len(c.Plans)),
	}

	for _, tag := range c.PlanTags() {
		plan := c.Plans[tag]

		duts, err := b.res.PlanDUTs(tc, tag)
		if err != nil {
			return nil, err
		}

		events, err := b.res.PlanEvents(tc, tag)
		if err != nil {
			return nil, err
		}

		pixel := false
		dutType := dut.DefaultType

		if len(duts) > 0 {
			first := b.duts.Lookup(duts[0].Name)
			pixel = first.IsPixel(tc)
			dutType = first.Type(tc)
		}

		row := &CampaignPlanRow{
			Tag:       tag,
			Main:      plan.IsMain(),
			SubPlan:   strings.TrimLeft(tag, "0"),
			Digitiser: Digitiser(plan, pixel),
			Amplifier: Amplifier(plan, pixel),
			DUTType:   dutType,
			Type:      plan.DisplayType(),
			Runs:      metrics.RunsString(plan.Runs),
			Events:    metrics.EventsString(events),
			DUTs:      make([]*CampaignDUT, 0, len(duts)),
		}

		channels := make(map[string]int, len(duts))
		for _, d := range duts {
			channels[d.Name]++
		}

		for _, d := range duts {
			cd := &CampaignDUT{Channel: d.Channel, Name: d.Name, Bias: metrics.Unavailable}

			if biases, err := b.res.Biases(tc, tag, d.Channel); err == nil {
				cd.Bias = metrics.BiasString(biases)
			}

			if !alias.IsUnknown(d.Name) && !alias.IsNone(d.Name) {
				cd.Dir = runListDir(d.Name, tc, plan, d.Channel, channels[d.Name] > 1)
			}

			row.DUTs = append(row.DUTs, cd)
		}

		cp.Plans = append(cp.Plans, row)
	}

	return cp, nil
}

func dirName(name string) string {
	return strings.ReplaceAll(name, "/", "_")
}

// runListDir is the directory of a DUT's run list in a plan. A DUT read
// out on several channels of one plan gets a directory per channel.
func runListDir(name, tc string, plan *campaign.RunPlan, ch int, multi bool) string {
	dir := plan.DirName()
	if multi {
		dir = fmt.Sprintf("%s-ch%d", dir, ch)
	}

	return path.Join("duts", dirName(name), tc, dir)
}

// Digitiser returns the plan's digitiser: the recorded one, PSI46 for
// pixel DUTs, DRS4 otherwise.
func Digitiser(plan *campaign.RunPlan, pixel bool) string {
	switch {
	case plan.Digitiser != "":
		return plan.Digitiser
	case pixel:
		return "PSI46"
	default:
		return "DRS4"
	}
}

// Amplifier returns the plan's amplifier board.
func Amplifier(plan *campaign.RunPlan, pixel bool) string {
	if pixel {
		return "PSI46"
	}

	amps := make([]string, 0, len(plan.Amplifiers))
	for _, a := range plan.Amplifiers {
		if a != "" {
			amps = append(amps, a)
		}
	}

	if len(amps) == 0 {
		return "OSU1"
	}

	if strings.Contains(amps[0], "OSU2") {
		return "OSU2"
	}

	return strings.Join(amps, ", ")
}

// Attenuator returns the DUT or pulser attenuator of channel ch: "-" for
// pixel DUTs and "?" when unrecorded.
func Attenuator(plan *campaign.RunPlan, ch int, pulser, pixel bool) string {
	if pixel {
		return "-"
	}

	if v, ok := plan.Attenuator(ch, pulser); ok && v != "" {
		return v
	}

	return metrics.Unavailable
}

func (b *Builder) dutPlans(
	ctx context.Context,
	name, tc string,
	matches []resolver.PlanChannel,
) (*DUTPlans, []*RunList, error) {
	c, err := b.res.Campaign(tc)
	if err != nil {
		return nil, nil, err
	}

	d := b.duts.Lookup(name)

	irr, ok := d.Irradiation(tc)
	if !ok {
		b.log.WithFields(logrus.Fields{
			"dut":      name,
			"campaign": tc,
		}).Warn("No irradiation recorded")
	}

	dp := &DUTPlans{
		DUT:         name,
		Campaign:    tc,
		Label:       campaign.Label(tc, false),
		Type:        d.Type(tc),
		Pulser:      d.Pulser(tc),
		Irradiation: metrics.IrradiationString(irr),
		Plans:       make([]*DUTPlanRow, 0, len(matches)),
	}

	lists := make([]*RunList, 0, len(matches))
	pixel := d.IsPixel(tc)

	channels := make(map[string]int, len(matches))
	for _, m := range matches {
		channels[m.Tag]++
	}

	for _, m := range matches {
		plan, err := c.Plan(m.Tag)
		if err != nil {
			return nil, nil, err
		}

		row, err := b.dutPlanRow(ctx, c, plan, m.Channel, pixel)
		if err != nil {
			return nil, nil, fmt.Errorf("plan %s: %w", m.Tag, err)
		}

		row.Dir = runListDir(name, tc, plan, m.Channel, channels[m.Tag] > 1)
		dp.Plans = append(dp.Plans, row)

		list, err := b.runList(ctx, c, plan, m.Channel)
		if err != nil {
			return nil, nil, fmt.Errorf("plan %s: %w", m.Tag, err)
		}

		list.DUT = name
		list.Dir = row.Dir
		lists = append(lists, list)
	}

	return dp, lists, nil
}

func (b *Builder) dutPlanRow(
	ctx context.Context,
	c *campaign.Campaign,
	plan *campaign.RunPlan,
	ch int,
	pixel bool,
) (*DUTPlanRow, error) {
	tc := c.ID

	summary, err := b.res.Summary(tc, plan.Tag, ch)
	if err != nil {
		return nil, err
	}

	pos, err := b.res.Position(tc, plan.Tag, ch)
	if err != nil {
		return nil, err
	}

	row := &DUTPlanRow{
		Tag:              plan.Tag,
		Channel:          ch,
		Position:         pos,
		Digitiser:        Digitiser(plan, pixel),
		Amplifier:        Amplifier(plan, pixel),
		Attenuator:       Attenuator(plan, ch, false, pixel),
		PulserAttenuator: Attenuator(plan, ch, true, pixel),
		Bias:             summary.BiasString,
		Runs:             summary.RunsString,
		Flux:             b.fluxRange(ctx, c, plan.Runs),
		Signal:           metrics.Unavailable,
		Pulser:           metrics.Unavailable,
		CorrectedSignal:  metrics.Unavailable,
		CorrectedPulser:  metrics.Unavailable,
		Noise:            metrics.Unavailable,
		Events:           metrics.EventsString(summary.Events),
		Start:            b.startString(summary.Start),
		Duration:         metrics.Unavailable,
	}

	if summary.DurationKnown {
		row.Duration = metrics.DurationString(summary.Duration)
	}

	if campaign.Before(tc, b.firstFit) {
		return row, nil
	}

	signal := b.fitMean(ctx, fitres.KindPH, tc, plan.Runs, ch, fitres.ParSignal)
	pulser := b.fitMean(ctx, fitres.KindPulser, tc, plan.Runs, ch, fitres.ParPulser)
	noise := b.fitMean(ctx, fitres.KindPedestal, tc, plan.Runs, ch, fitres.ParNoise)

	row.Signal = metrics.FitString(signal)
	row.Pulser = metrics.FitString(pulser)
	row.Noise = metrics.FitString(noise)

	if !campaign.Before(tc, firstCorrectedCampaign) {
		row.CorrectedSignal = b.corrected(signal, row.Attenuator)
		row.CorrectedPulser = b.corrected(pulser, row.PulserAttenuator)
	}

	return row, nil
}

func (b *Builder) fitMean(
	ctx context.Context,
	kind fitres.Kind,
	tc string,
	runs []int,
	ch, par int,
) *metrics.Value {
	v, err := b.fits.Mean(ctx, kind, tc, runs, ch, par)
	if err != nil {
		b.log.WithError(err).WithFields(logrus.Fields{
			"campaign": tc,
			"kind":     kind,
		}).Warn("Could not average fits")

		return nil
	}

	return v
}

func (b *Builder) corrected(v *metrics.Value, att string) string {
	raw := metrics.Value{}
	if v != nil {
		raw = *v
	}

	c, err := metrics.AttenuationCorrection(raw, att)
	if err != nil {
		b.log.WithError(err).Warn("Invalid attenuator")

		return metrics.Unavailable
	}

	if c.Status == metrics.Applied && v == nil {
		return metrics.Unavailable
	}

	return c.String()
}

func (b *Builder) fluxRange(ctx context.Context, c *campaign.Campaign, runs []int) string {
	lo, hi := 0.0, 0.0

	for i, n := range runs {
		rec, err := c.Run(n)
		if err != nil {
			return metrics.Unavailable
		}

		f, err := b.metrics.FluxValue(ctx, rec)
		if err != nil {
			b.log.WithError(err).WithField("campaign", c.ID).Debug("Flux unavailable")

			return metrics.Unavailable
		}

		if i == 0 || f < lo {
			lo = f
		}

		if i == 0 || f > hi {
			hi = f
		}
	}

	if len(runs) == 0 {
		return metrics.Unavailable
	}

	return fmt.Sprintf("%.0f ... %.0f", lo, hi)
}

func (b *Builder) startString(t time.Time) string {
	if t.IsZero() {
		return metrics.Unavailable
	}

	return t.In(b.loc).Format(StartLayout)
}

func (b *Builder) runList(
	ctx context.Context,
	c *campaign.Campaign,
	plan *campaign.RunPlan,
	ch int,
) (*RunList, error) {
	list := &RunList{
		Campaign: c.ID,
		Plan:     plan.Tag,
		Channel:  ch,
		Runs:     make([]*RunRow, 0, len(plan.Runs)),
	}

	withFits := !campaign.Before(c.ID, b.firstFit)

	for _, n := range plan.Runs {
		rec, err := c.Run(n)
		if err != nil {
			return nil, err
		}

		row := &RunRow{
			Run:      n,
			Type:     rec.DisplayType(),
			Bias:     metrics.Unavailable,
			Flux:     metrics.Unavailable,
			Events:   metrics.EventsString(rec.Events),
			Start:    b.startString(rec.Start),
			Duration: metrics.Unavailable,
			Comment:  rec.Comment,
		}

		if slot, ok := rec.Slot(ch); ok && slot.Bias != nil {
			row.Bias = metrics.BiasString([]float64{*slot.Bias})
		}

		if flux, err := b.metrics.Flux(ctx, rec); err == nil {
			row.Flux = strings.TrimSpace(flux)
		}

		if d, err := b.res.RunDuration(c.ID, n); err == nil {
			row.Duration = metrics.DurationString(d)
		}

		if withFits {
			b.fillRunFits(ctx, row, c.ID, n, ch)
		}

		list.Runs = append(list.Runs, row)
	}

	return list, nil
}

func (b *Builder) fillRunFits(ctx context.Context, row *RunRow, tc string, run, ch int) {
	load := func(kind fitres.Kind) *fitres.Result {
		res, err := b.fits.Load(ctx, kind, tc, run, ch)
		if err != nil {
			b.log.WithError(err).WithField("run", run).Warn("Invalid fit file")

			return fitres.Empty()
		}

		return res
	}

	if v, ok := load(fitres.KindPH).Value(fitres.ParSignal); ok {
		row.PulseHeight = v.String()
	}

	if v, ok := load(fitres.KindPulser).Value(fitres.ParPulser); ok {
		row.Pulser = v.String()
	}

	ped := load(fitres.KindPedestal).WithFormat("%.2f")
	row.Noise = ped.ParameterString(fitres.ParNoise)
	row.Pedestal = ped.ParameterString(fitres.ParPedestal)
}
