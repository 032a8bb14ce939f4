// Package server serves a built site directory and its run plan tables
// over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/diamondpsi/psiweb/pkg/config"
	"github.com/diamondpsi/psiweb/pkg/site"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const shutdownTimeout = 10 * time.Second

// Server exposes the HTTP server lifecycle.
type Server interface {
	Start(ctx context.Context) error
	Stop() error
}

// Compile-time interface check.
var _ Server = (*server)(nil)

// BuildFunc rebuilds the site tables from the current input data.
type BuildFunc func(ctx context.Context) (*site.Site, error)

type server struct {
	log        logrus.FieldLogger
	cfg        *config.ServerConfig
	site       atomic.Pointer[site.Site]
	rebuild    BuildFunc
	files      *localFileServer
	httpServer *http.Server
	wg         sync.WaitGroup
	done       chan struct{}
	stopOnce   sync.Once
}

// NewServer creates a server for the derived tables st and the files
// written to siteDir. When cfg.RebuildSchedule is set, rebuild is called
// on that schedule and its result replaces the served tables.
func NewServer(
	log logrus.FieldLogger,
	cfg *config.ServerConfig,
	st *site.Site,
	siteDir string,
	rebuild BuildFunc,
) Server {
	log = log.WithField("component", "server")

	s := &server{
		log:     log,
		cfg:     cfg,
		rebuild: rebuild,
		files:   newLocalFileServer(log, siteDir),
		done:    make(chan struct{}),
	}

	s.site.Store(st)

	return s
}

// current returns the site tables being served.
func (s *server) current() *site.Site {
	return s.site.Load()
}

// Start binds the listener and serves requests in the background.
// Nothing is left running when it returns an error.
func (s *server) Start(ctx context.Context) error {
	var sched cron.Schedule

	if s.cfg.RebuildSchedule != "" && s.rebuild != nil {
		parsed, err := config.ParseSchedule(s.cfg.RebuildSchedule)
		if err != nil {
			return fmt.Errorf("parsing rebuild schedule: %w", err)
		}

		sched = parsed
	}

	// Bind synchronously so port conflicts fail the command.
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Listen, err)
	}

	s.httpServer = &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.buildRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		s.log.WithField("listen", ln.Addr().String()).Info("Server starting")

		if err := s.httpServer.Serve(ln); err != nil &&
			!errors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Error("HTTP server error")
		}
	}()

	if sched != nil {
		s.wg.Add(1)

		go func() {
			defer s.wg.Done()

			s.runRebuilds(ctx, sched)
		}()
	}

	return nil
}

// Stop gracefully shuts down the HTTP server. It is safe to call more
// than once.
func (s *server) Stop() error {
	s.stopOnce.Do(func() { close(s.done) })

	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(
			context.Background(), shutdownTimeout,
		)
		defer cancel()

		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.log.WithError(err).Warn("HTTP server shutdown error")
		}
	}

	s.wg.Wait()

	s.log.Info("Server stopped")

	return nil
}
