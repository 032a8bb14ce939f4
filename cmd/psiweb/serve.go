package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/diamondpsi/psiweb/pkg/server"
	"github.com/diamondpsi/psiweb/pkg/site"
	"github.com/spf13/cobra"
)

var (
	serveListen string
	serveWrite  bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the site directory and JSON API",
	Long: `Build the site tables in memory and serve them under /api/v1 together
with the files of the site directory under /site. With
server.rebuild_schedule set the tables are rebuilt periodically.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveListen, "listen", "",
		"listen address (overrides server.listen)")
	serveCmd.Flags().BoolVar(&serveWrite, "write", false,
		"write the site directory on every (re)build")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if serveListen != "" {
		cfg.Server.Listen = serveListen
	}

	// Set up context with signal handling.
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	build := func(ctx context.Context) (*site.Site, error) {
		in, err := loadInputs(ctx, cfg)
		if err != nil {
			return nil, err
		}

		st, err := in.builder().Build(ctx)
		if err != nil {
			return nil, fmt.Errorf("building site: %w", err)
		}

		if serveWrite {
			if _, err := st.Write(cfg.Site.OutputDir, cfg.Site.Owner); err != nil {
				return nil, fmt.Errorf("writing site: %w", err)
			}
		}

		return st, nil
	}

	st, err := build(ctx)
	if err != nil {
		return err
	}

	srv := server.NewServer(log, &cfg.Server, st, cfg.Site.OutputDir, build)

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}

	// Wait for shutdown signal.
	sig := <-sigCh
	log.WithField("signal", sig).Info("Shutting down server")
	cancel()

	if err := srv.Stop(); err != nil {
		return fmt.Errorf("stopping server: %w", err)
	}

	return nil
}
