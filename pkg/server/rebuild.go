package server

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// runRebuilds replaces the served site tables at every activation of
// sched until the server stops or ctx is cancelled. A failed rebuild
// keeps the previous tables.
func (s *server) runRebuilds(ctx context.Context, sched cron.Schedule) {
	for {
		now := time.Now()
		next := sched.Next(now)

		s.log.WithField("next", next.Format(time.RFC3339)).Debug("Scheduled site rebuild")

		timer := time.NewTimer(next.Sub(now))

		select {
		case <-s.done:
			timer.Stop()

			return
		case <-ctx.Done():
			timer.Stop()

			return
		case <-timer.C:
		}

		s.rebuildOnce(ctx)
	}
}

func (s *server) rebuildOnce(ctx context.Context) {
	start := time.Now()

	st, err := s.rebuild(ctx)
	if err != nil {
		s.log.WithError(err).Warn("Site rebuild failed, keeping previous tables")

		return
	}

	s.site.Store(st)

	s.log.WithFields(logrus.Fields{
		"campaigns": len(st.Campaigns),
		"duration":  time.Since(start).Round(time.Millisecond),
	}).Info("Rebuilt site")
}
