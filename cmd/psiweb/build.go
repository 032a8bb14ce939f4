package main

import (
	"fmt"

	"github.com/diamondpsi/psiweb/pkg/site"
	"github.com/spf13/cobra"
)

var (
	buildOutputDir string
	buildClean     bool
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the results site",
	Long: `Load the campaign data, derive the run plan and run tables and write
them as JSON and markdown files to the site directory.`,
	RunE: runBuild,
}

func init() {
	rootCmd.AddCommand(buildCmd)
	buildCmd.Flags().StringVar(&buildOutputDir, "output", "",
		"site directory (overrides site.output_dir)")
	buildCmd.Flags().BoolVar(&buildClean, "clean", false,
		"remove the site directory before writing")
}

func runBuild(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if buildOutputDir != "" {
		cfg.Site.OutputDir = buildOutputDir
	}

	ctx := cmd.Context()

	in, err := loadInputs(ctx, cfg)
	if err != nil {
		return err
	}

	st, err := in.builder().Build(ctx)
	if err != nil {
		return fmt.Errorf("building site: %w", err)
	}

	if buildClean {
		if err := site.Clean(cfg.Site.OutputDir); err != nil {
			return fmt.Errorf("cleaning site directory: %w", err)
		}
	}

	if _, err := st.Write(cfg.Site.OutputDir, cfg.Site.Owner); err != nil {
		return fmt.Errorf("writing site: %w", err)
	}

	if unknown := in.aliases.Unknown(); len(unknown) > 0 {
		log.WithField("names", unknown).Warn("Site contains detectors without alias")
	}

	return nil
}
