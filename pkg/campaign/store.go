package campaign

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/diamondpsi/psiweb/pkg/config"
	"github.com/diamondpsi/psiweb/pkg/storage"
	"github.com/sirupsen/logrus"
)

// Store loads run logs and run plans through a storage.Reader.
type Store struct {
	log          logrus.FieldLogger
	reader       storage.Reader
	runPlansFile string
	runLogsDir   string
}

// NewStore creates a Store using the file layout of cfg.
func NewStore(
	log logrus.FieldLogger,
	reader storage.Reader,
	cfg *config.DataConfig,
) *Store {
	return &Store{
		log:          log.WithField("component", "campaign-store"),
		reader:       reader,
		runPlansFile: cfg.RunPlansFile,
		runLogsDir:   cfg.RunLogsDir,
	}
}

// LoadRunLog loads the run log of campaign tc. A missing run log yields
// an empty map so that campaigns not yet synced still load.
func (s *Store) LoadRunLog(ctx context.Context, tc string) (map[int]*RunRecord, error) {
	name := path.Join(s.runLogsDir, tc+".json")

	data, err := s.reader.ReadFile(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("reading run log: %w", err)
	}

	if data == nil {
		s.log.WithField("campaign", tc).Debug("No run log found")

		return map[int]*RunRecord{}, nil
	}

	doc, err := validate(runLogSchema, data)
	if err != nil {
		return nil, fmt.Errorf("run log %s: %w", name, err)
	}

	return decodeRunLog(s.log.WithField("campaign", tc), tc, doc)
}

// LoadRunPlans loads the run plan definitions of all campaigns. The run
// plan file is required.
func (s *Store) LoadRunPlans(ctx context.Context) (map[string]map[string]*RunPlan, error) {
	data, err := s.reader.ReadFile(ctx, s.runPlansFile)
	if err != nil {
		return nil, fmt.Errorf("reading run plans: %w", err)
	}

	if data == nil {
		return nil, fmt.Errorf(
			"run plan file %q not found in %s", s.runPlansFile, s.reader.Location(),
		)
	}

	doc, err := validate(runPlansSchema, data)
	if err != nil {
		return nil, fmt.Errorf("run plans %s: %w", s.runPlansFile, err)
	}

	return decodeRunPlans(doc)
}

// Load loads every campaign that has run plans or a run log, skipping
// the excluded ids.
func (s *Store) Load(ctx context.Context, exclude []string) (*Set, error) {
	plans, err := s.LoadRunPlans(ctx)
	if err != nil {
		return nil, err
	}

	ids, err := s.campaignIDs(ctx, plans)
	if err != nil {
		return nil, err
	}

	skip := make(map[string]struct{}, len(exclude))
	for _, tc := range exclude {
		skip[tc] = struct{}{}
	}

	campaigns := make([]*Campaign, 0, len(ids))

	for _, tc := range ids {
		if _, ok := skip[tc]; ok {
			continue
		}

		if _, err := ParseID(tc); err != nil {
			s.log.WithField("campaign", tc).Warn("Skipping campaign with invalid id")

			continue
		}

		runs, err := s.LoadRunLog(ctx, tc)
		if err != nil {
			return nil, err
		}

		c := &Campaign{ID: tc, Runs: runs, Plans: plans[tc]}
		if c.Plans == nil {
			c.Plans = map[string]*RunPlan{}
		}

		s.log.WithFields(logrus.Fields{
			"campaign": tc,
			"runs":     len(c.Runs),
			"plans":    len(c.Plans),
		}).Debug("Loaded campaign")

		campaigns = append(campaigns, c)
	}

	s.log.WithField("campaigns", len(campaigns)).Info("Loaded campaigns")

	return NewSet(campaigns...), nil
}

func (s *Store) campaignIDs(
	ctx context.Context, plans map[string]map[string]*RunPlan,
) ([]string, error) {
	seen := make(map[string]struct{}, len(plans))
	for tc := range plans {
		seen[tc] = struct{}{}
	}

	names, err := s.reader.List(ctx, s.runLogsDir)
	if err != nil {
		return nil, fmt.Errorf("listing run logs: %w", err)
	}

	for _, name := range names {
		if tc, ok := strings.CutSuffix(name, ".json"); ok {
			seen[tc] = struct{}{}
		}
	}

	ids := make([]string, 0, len(seen))
	for tc := range seen {
		ids = append(ids, tc)
	}

	sort.Strings(ids)

	return ids, nil
}
