package config

import (
	"fmt"

	"github.com/robfig/cron/v3"
)

const (
	// DefaultListen is the default HTTP listen address.
	DefaultListen = ":8080"

	// DefaultRequestsPerMinute is the default per-IP request budget.
	DefaultRequestsPerMinute = 600
)

// ServerConfig contains HTTP server settings for serving the site.
type ServerConfig struct {
	Listen      string          `yaml:"listen" mapstructure:"listen"`
	CORSOrigins []string        `yaml:"cors_origins,omitempty" mapstructure:"cors_origins"`
	RateLimit   RateLimitConfig `yaml:"rate_limit,omitempty" mapstructure:"rate_limit"`

	// RebuildSchedule is a 5-field cron expression or descriptor such as
	// "@every 15m". Empty disables periodic rebuilds.
	RebuildSchedule string `yaml:"rebuild_schedule,omitempty" mapstructure:"rebuild_schedule"`
}

// RateLimitConfig configures per-IP rate limiting.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled" mapstructure:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
}

func (s *ServerConfig) applyDefaults() {
	if s.Listen == "" {
		s.Listen = DefaultListen
	}

	if s.RateLimit.RequestsPerMinute == 0 {
		s.RateLimit.RequestsPerMinute = DefaultRequestsPerMinute
	}
}

// Validate checks the server settings.
func (s *ServerConfig) Validate() error {
	if s.Listen == "" {
		return fmt.Errorf("listen address is required")
	}

	if s.RateLimit.Enabled && s.RateLimit.RequestsPerMinute < 0 {
		return fmt.Errorf(
			"rate_limit.requests_per_minute must be positive, got %d",
			s.RateLimit.RequestsPerMinute,
		)
	}

	if s.RebuildSchedule != "" {
		if _, err := ParseSchedule(s.RebuildSchedule); err != nil {
			return fmt.Errorf("rebuild_schedule %q: %w", s.RebuildSchedule, err)
		}
	}

	return nil
}

// ParseSchedule parses a standard 5-field cron expression or an
// "@every"/"@hourly" style descriptor.
func ParseSchedule(spec string) (cron.Schedule, error) {
	parser := cron.NewParser(
		cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
	)

	return parser.Parse(spec)
}
