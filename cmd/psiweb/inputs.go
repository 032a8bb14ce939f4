package main

import (
	"context"
	"fmt"

	"github.com/diamondpsi/psiweb/pkg/alias"
	"github.com/diamondpsi/psiweb/pkg/campaign"
	"github.com/diamondpsi/psiweb/pkg/config"
	"github.com/diamondpsi/psiweb/pkg/dut"
	"github.com/diamondpsi/psiweb/pkg/fitres"
	"github.com/diamondpsi/psiweb/pkg/metrics"
	"github.com/diamondpsi/psiweb/pkg/resolver"
	"github.com/diamondpsi/psiweb/pkg/site"
	"github.com/diamondpsi/psiweb/pkg/storage"
)

// inputs are the loaded campaign data shared by the commands.
type inputs struct {
	cfg      *config.Config
	reader   storage.Reader
	aliases  *alias.Resolver
	set      *campaign.Set
	duts     *dut.Registry
	resolver *resolver.Resolver
}

// loadConfig loads and validates the configuration files.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFiles...)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// loadInputs reads the alias table, run plans, run logs and DUT metadata.
func loadInputs(ctx context.Context, cfg *config.Config) (*inputs, error) {
	reader, err := storage.NewReader(&cfg.Data)
	if err != nil {
		return nil, fmt.Errorf("creating storage reader: %w", err)
	}

	log.WithField("source", reader.Location()).Info("Loading campaign data")

	aliases, err := alias.Load(ctx, reader, cfg.Data.AliasesFile, log)
	if err != nil {
		return nil, err
	}

	set, err := campaign.NewStore(log, reader, &cfg.Data).
		Load(ctx, cfg.Data.ExcludeCampaigns)
	if err != nil {
		return nil, fmt.Errorf("loading campaigns: %w", err)
	}

	duts, err := dut.Load(ctx, reader, cfg.Data.DUTInfoFile, aliases, log)
	if err != nil {
		return nil, err
	}

	return &inputs{
		cfg:      cfg,
		reader:   reader,
		aliases:  aliases,
		set:      set,
		duts:     duts,
		resolver: resolver.New(log, set, aliases),
	}, nil
}

// builder wires the derived metric engines into a site builder.
func (in *inputs) builder() *site.Builder {
	return site.NewBuilder(log, site.Deps{
		Resolver: in.resolver,
		DUTs:     in.duts,
		Metrics:  metrics.NewEngine(log, in.reader, in.cfg.Data.MasksDir),
		Fits: fitres.NewLoader(
			log, in.reader, in.cfg.Data.FitsDir, in.cfg.Fits.Templates,
		),
		FirstFitCampaign: in.cfg.Fits.FirstCampaign,
		Location:         in.cfg.Site.Location(),
	})
}
