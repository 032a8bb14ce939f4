package main

import (
	"fmt"

	"github.com/diamondpsi/psiweb/pkg/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const redacted = "<redacted>"

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration as YAML",
	RunE:  runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFiles...)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	redactSecrets(cfg)

	out, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	_, err = cmd.OutOrStdout().Write(out)

	return err
}

// redactSecrets masks credentials before the config is printed.
func redactSecrets(cfg *config.Config) {
	if cfg.Data.S3.SecretAccessKey != "" {
		cfg.Data.S3.SecretAccessKey = redacted
	}

	if s3 := cfg.Site.Upload.S3; s3 != nil && s3.SecretAccessKey != "" {
		s3.SecretAccessKey = redacted
	}
}
