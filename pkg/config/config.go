package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata" // campaign times are displayed in a configurable zone

	"github.com/spf13/viper"
)

const (
	// DefaultLogLevel is the default logging level.
	DefaultLogLevel = "info"

	// DefaultDataSource is the default input backend.
	DefaultDataSource = "local"

	// DefaultDataDir is the default local input directory.
	DefaultDataDir = "./data"

	// DefaultRunPlansFile is the default run plan definition file.
	DefaultRunPlansFile = "run_plans.json"

	// DefaultAliasesFile is the default diamond alias table.
	DefaultAliasesFile = "DiamondAliases.ini"

	// DefaultDUTInfoFile is the default per-DUT metadata file.
	DefaultDUTInfoFile = "dia_info.json"

	// DefaultRunLogsDir is the directory holding one run log per campaign.
	DefaultRunLogsDir = "run_logs"

	// DefaultMasksDir is the directory holding the mask files.
	DefaultMasksDir = "masks"

	// DefaultFitsDir is the directory holding the per-run fit results.
	DefaultFitsDir = "fits"

	// DefaultFirstFitCampaign is the first campaign with fit results.
	DefaultFirstFitCampaign = "201508"

	// DefaultSiteDir is the default output directory of the site builder.
	DefaultSiteDir = "./site"

	// DefaultTimezone is used to display run start times.
	DefaultTimezone = "Europe/Zurich"

	// envPrefix is prepended to every environment override.
	envPrefix = "PSIWEB"
)

// Default fit file templates. {tc}, {run} and {ch} are substituted.
const (
	DefaultPHTemplate             = "Ph_fit/{tc}_{run}_{ch}_10000_eventwise_b2.json"
	DefaultPedestalTemplate       = "Pedestal/{tc}_{run}_{ch}_ab2_fwhm_AllCuts.json"
	DefaultPulserTemplate         = "Pulser/HistoFit_{tc}_{run}_{ch}_ped_corr_BeamOn.json"
	DefaultPulserPedestalTemplate = "Pedestal/{tc}_{run}_{ch}_ac2_fwhm_PulserBeamOn.json"
)

// Config is the root configuration for psiweb.
type Config struct {
	Global GlobalConfig `yaml:"global" mapstructure:"global"`
	Data   DataConfig   `yaml:"data" mapstructure:"data"`
	Fits   FitsConfig   `yaml:"fits" mapstructure:"fits"`
	Site   SiteConfig   `yaml:"site" mapstructure:"site"`
	Server ServerConfig `yaml:"server" mapstructure:"server"`
}

// GlobalConfig contains global application settings.
type GlobalConfig struct {
	LogLevel string `yaml:"log_level" mapstructure:"log_level"`
}

// DataConfig describes where the campaign input files live. File and
// directory names are relative to the selected backend root.
type DataConfig struct {
	Source           string            `yaml:"source" mapstructure:"source"`
	Local            LocalSourceConfig `yaml:"local,omitempty" mapstructure:"local"`
	S3               S3SourceConfig    `yaml:"s3,omitempty" mapstructure:"s3"`
	RunPlansFile     string            `yaml:"run_plans_file" mapstructure:"run_plans_file"`
	AliasesFile      string            `yaml:"aliases_file" mapstructure:"aliases_file"`
	DUTInfoFile      string            `yaml:"dut_info_file" mapstructure:"dut_info_file"`
	RunLogsDir       string            `yaml:"run_logs_dir" mapstructure:"run_logs_dir"`
	MasksDir         string            `yaml:"masks_dir" mapstructure:"masks_dir"`
	FitsDir          string            `yaml:"fits_dir" mapstructure:"fits_dir"`
	ExcludeCampaigns []string          `yaml:"exclude_campaigns,omitempty" mapstructure:"exclude_campaigns"`
}

// LocalSourceConfig reads the input files from a local directory.
type LocalSourceConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// S3SourceConfig reads the input files from an S3 bucket prefix.
type S3SourceConfig struct {
	EndpointURL     string `yaml:"endpoint_url,omitempty" mapstructure:"endpoint_url"`
	Region          string `yaml:"region,omitempty" mapstructure:"region"`
	Bucket          string `yaml:"bucket" mapstructure:"bucket"`
	Prefix          string `yaml:"prefix,omitempty" mapstructure:"prefix"`
	AccessKeyID     string `yaml:"access_key_id,omitempty" mapstructure:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty" mapstructure:"secret_access_key"`
	ForcePathStyle  bool   `yaml:"force_path_style" mapstructure:"force_path_style"`
}

// FitsConfig controls where per-run fit results are looked up.
type FitsConfig struct {
	// FirstCampaign is the oldest campaign for which fits were produced.
	// Older campaigns display "?" instead of fit derived values.
	FirstCampaign string       `yaml:"first_campaign" mapstructure:"first_campaign"`
	Templates     FitTemplates `yaml:"templates" mapstructure:"templates"`
}

// FitTemplates holds the file name template per fit kind.
type FitTemplates struct {
	PH             string `yaml:"ph" mapstructure:"ph"`
	Pedestal       string `yaml:"pedestal" mapstructure:"pedestal"`
	Pulser         string `yaml:"pulser" mapstructure:"pulser"`
	PulserPedestal string `yaml:"pulser_pedestal" mapstructure:"pulser_pedestal"`
}

// SiteConfig contains settings for the generated site directory.
type SiteConfig struct {
	OutputDir string           `yaml:"output_dir" mapstructure:"output_dir"`
	Owner     string           `yaml:"owner,omitempty" mapstructure:"owner"`
	Timezone  string           `yaml:"timezone" mapstructure:"timezone"`
	Upload    SiteUploadConfig `yaml:"upload,omitempty" mapstructure:"upload"`
}

// SiteUploadConfig configures publishing of the site directory.
type SiteUploadConfig struct {
	S3 *S3UploadConfig `yaml:"s3,omitempty" mapstructure:"s3"`
}

// S3UploadConfig contains S3 settings for uploading the site directory.
type S3UploadConfig struct {
	Enabled         bool   `yaml:"enabled" mapstructure:"enabled"`
	EndpointURL     string `yaml:"endpoint_url,omitempty" mapstructure:"endpoint_url"`
	Region          string `yaml:"region,omitempty" mapstructure:"region"`
	Bucket          string `yaml:"bucket" mapstructure:"bucket"`
	Prefix          string `yaml:"prefix,omitempty" mapstructure:"prefix"`
	AccessKeyID     string `yaml:"access_key_id,omitempty" mapstructure:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty" mapstructure:"secret_access_key"`
	ForcePathStyle  bool   `yaml:"force_path_style" mapstructure:"force_path_style"`
	StorageClass    string `yaml:"storage_class,omitempty" mapstructure:"storage_class"`
	ACL             string `yaml:"acl,omitempty" mapstructure:"acl"`
}

// Load reads and merges the configuration files in order. Later files
// override earlier ones and PSIWEB_* environment variables override
// both (e.g. PSIWEB_DATA_LOCAL_DIR for data.local.dir).
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	for i, path := range paths {
		data, err := os.ReadFile(path) //nolint:gosec // path from CLI flag
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		if i == 0 {
			err = v.ReadConfig(bytes.NewReader(data))
		} else {
			err = v.MergeConfig(bytes.NewReader(data))
		}

		if err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

// setDefaults registers every leaf key so that environment overrides
// apply even when the key is absent from all config files.
func setDefaults(v *viper.Viper) {
	v.SetDefault("global.log_level", DefaultLogLevel)

	v.SetDefault("data.source", DefaultDataSource)
	v.SetDefault("data.local.dir", DefaultDataDir)
	v.SetDefault("data.s3.endpoint_url", "")
	v.SetDefault("data.s3.region", "")
	v.SetDefault("data.s3.bucket", "")
	v.SetDefault("data.s3.prefix", "")
	v.SetDefault("data.s3.access_key_id", "")
	v.SetDefault("data.s3.secret_access_key", "")
	v.SetDefault("data.s3.force_path_style", false)
	v.SetDefault("data.run_plans_file", DefaultRunPlansFile)
	v.SetDefault("data.aliases_file", DefaultAliasesFile)
	v.SetDefault("data.dut_info_file", DefaultDUTInfoFile)
	v.SetDefault("data.run_logs_dir", DefaultRunLogsDir)
	v.SetDefault("data.masks_dir", DefaultMasksDir)
	v.SetDefault("data.fits_dir", DefaultFitsDir)
	v.SetDefault("data.exclude_campaigns", []string{})

	v.SetDefault("fits.first_campaign", DefaultFirstFitCampaign)
	v.SetDefault("fits.templates.ph", DefaultPHTemplate)
	v.SetDefault("fits.templates.pedestal", DefaultPedestalTemplate)
	v.SetDefault("fits.templates.pulser", DefaultPulserTemplate)
	v.SetDefault("fits.templates.pulser_pedestal", DefaultPulserPedestalTemplate)

	v.SetDefault("site.output_dir", DefaultSiteDir)
	v.SetDefault("site.owner", "")
	v.SetDefault("site.timezone", DefaultTimezone)

	v.SetDefault("server.listen", DefaultListen)
	v.SetDefault("server.cors_origins", []string{})
	v.SetDefault("server.rate_limit.enabled", false)
	v.SetDefault("server.rate_limit.requests_per_minute", DefaultRequestsPerMinute)
	v.SetDefault("server.rebuild_schedule", "")
}

// applyDefaults sets default values for options that decode to empty
// values, e.g. when a file sets a key to "".
func (c *Config) applyDefaults() {
	if c.Global.LogLevel == "" {
		c.Global.LogLevel = DefaultLogLevel
	}

	if c.Data.Source == "" {
		c.Data.Source = DefaultDataSource
	}

	if c.Data.RunPlansFile == "" {
		c.Data.RunPlansFile = DefaultRunPlansFile
	}

	if c.Data.AliasesFile == "" {
		c.Data.AliasesFile = DefaultAliasesFile
	}

	if c.Data.DUTInfoFile == "" {
		c.Data.DUTInfoFile = DefaultDUTInfoFile
	}

	if c.Data.RunLogsDir == "" {
		c.Data.RunLogsDir = DefaultRunLogsDir
	}

	if c.Data.MasksDir == "" {
		c.Data.MasksDir = DefaultMasksDir
	}

	if c.Data.FitsDir == "" {
		c.Data.FitsDir = DefaultFitsDir
	}

	if c.Fits.FirstCampaign == "" {
		c.Fits.FirstCampaign = DefaultFirstFitCampaign
	}

	if c.Fits.Templates.PH == "" {
		c.Fits.Templates.PH = DefaultPHTemplate
	}

	if c.Fits.Templates.Pedestal == "" {
		c.Fits.Templates.Pedestal = DefaultPedestalTemplate
	}

	if c.Fits.Templates.Pulser == "" {
		c.Fits.Templates.Pulser = DefaultPulserTemplate
	}

	if c.Fits.Templates.PulserPedestal == "" {
		c.Fits.Templates.PulserPedestal = DefaultPulserPedestalTemplate
	}

	if c.Site.OutputDir == "" {
		c.Site.OutputDir = DefaultSiteDir
	}

	if c.Site.Timezone == "" {
		c.Site.Timezone = DefaultTimezone
	}

	c.Server.applyDefaults()
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if err := c.Data.Validate(); err != nil {
		return fmt.Errorf("data: %w", err)
	}

	if _, err := time.Parse("200601", c.Fits.FirstCampaign); err != nil {
		return fmt.Errorf(
			"fits.first_campaign %q is not a YYYYMM campaign", c.Fits.FirstCampaign,
		)
	}

	if _, err := time.LoadLocation(c.Site.Timezone); err != nil {
		return fmt.Errorf("site.timezone %q: %w", c.Site.Timezone, err)
	}

	if s3 := c.Site.Upload.S3; s3 != nil && s3.Enabled && s3.Bucket == "" {
		return fmt.Errorf("site.upload.s3.bucket is required when upload is enabled")
	}

	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}

	return nil
}

// Validate checks the input backend selection.
func (d *DataConfig) Validate() error {
	switch d.Source {
	case "local":
		if d.Local.Dir == "" {
			return fmt.Errorf("local.dir is required for source \"local\"")
		}

		info, err := os.Stat(d.Local.Dir)
		if err != nil {
			return fmt.Errorf("local.dir %q does not exist", d.Local.Dir)
		}

		if !info.IsDir() {
			return fmt.Errorf("local.dir %q is not a directory", d.Local.Dir)
		}
	case "s3":
		if d.S3.Bucket == "" {
			return fmt.Errorf("s3.bucket is required for source \"s3\"")
		}
	default:
		return fmt.Errorf("unknown source %q (use \"local\" or \"s3\")", d.Source)
	}

	return nil
}

// Location returns the display timezone, falling back to UTC.
func (s *SiteConfig) Location() *time.Location {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}

	return loc
}
