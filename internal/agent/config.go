package agent

import (
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/ethpandaops/rollstat/internal/clamp"
	"github.com/ethpandaops/rollstat/internal/export"
	httpexport "github.com/ethpandaops/rollstat/internal/export/http"
	"github.com/ethpandaops/rollstat/internal/interval"
	"github.com/ethpandaops/rollstat/internal/loadgen"
	"github.com/ethpandaops/rollstat/internal/report"
)

// Config is the top-level configuration for the rollstat agent.
type Config struct {
	// LogLevel sets the logging verbosity (debug, info, warn, error).
	LogLevel string `yaml:"log_level"`

	// Intervals are the rolling windows every statistic is kept over.
	// Defaults to second, 10_seconds, minute and 5_minutes.
	Intervals []interval.Config `yaml:"intervals"`

	// DurationProfile overrides the duration clamp profile.
	DurationProfile *ProfileConfig `yaml:"duration_profile"`

	// Report configures periodic reporting.
	Report report.Config `yaml:"report"`

	// Health configures the Prometheus health metrics server.
	Health export.HealthConfig `yaml:"health"`

	// Exporters configures report destinations.
	Exporters ExportersConfig `yaml:"exporters"`

	// Loadgen configures the synthetic workload.
	Loadgen loadgen.Config `yaml:"loadgen"`
}

// ExportersConfig groups the exporter configurations.
type ExportersConfig struct {
	ClickHouse export.ClickHouseConfig `yaml:"clickhouse"`
	HTTP       httpexport.Config       `yaml:"http"`
	OTLP       export.OTLPConfig       `yaml:"otlp"`
}

// ProfileConfig is the YAML form of a clamp profile.
type ProfileConfig struct {
	Segments          []clamp.Segment `yaml:"segments"`
	Min               int64           `yaml:"min"`
	Max               int64           `yaml:"max"`
	MaxDistinctValues int64           `yaml:"max_distinct_values"`
}

// Profile builds the clamp profile. It is not validated.
func (p *ProfileConfig) Profile() *clamp.Profile {
	return clamp.NewProfile(p.Segments, p.Min, p.Max, p.MaxDistinctValues)
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		LogLevel:  "info",
		Intervals: interval.DefaultConfigs(),
		Report:    report.DefaultConfig(),
		Health: export.HealthConfig{
			Addr: ":9090",
		},
		Exporters: ExportersConfig{
			HTTP: httpexport.DefaultConfig(),
		},
	}
}

// LoadConfig reads and parses a YAML configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	cfg := DefaultConfig()

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for required fields and consistency,
// filling defaults for unset optional fields.
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}

	if len(c.Intervals) == 0 {
		return errors.New("at least one interval is required")
	}

	seen := make(map[string]struct{}, len(c.Intervals))

	for _, iv := range c.Intervals {
		if iv.Name == "" {
			return errors.New("intervals: name is required")
		}

		if _, ok := seen[iv.Name]; ok {
			return fmt.Errorf("intervals: duplicate name %q", iv.Name)
		}

		seen[iv.Name] = struct{}{}

		if iv.Duration < interval.MinDuration {
			return fmt.Errorf("intervals: %q duration must be >= %s", iv.Name, interval.MinDuration)
		}
	}

	if c.DurationProfile != nil {
		if err := c.DurationProfile.Profile().Validate(); err != nil {
			return fmt.Errorf("duration_profile: %w", err)
		}
	}

	c.Report.ApplyDefaults()

	if err := c.Report.Validate(); err != nil {
		return err
	}

	c.Exporters.ClickHouse.ApplyDefaults()

	if err := c.Exporters.ClickHouse.Validate(); err != nil {
		return fmt.Errorf("exporters.clickhouse: %w", err)
	}

	c.Exporters.HTTP.ApplyDefaults()

	if err := c.Exporters.HTTP.Validate(); err != nil {
		return fmt.Errorf("exporters.http: %w", err)
	}

	// HTTP exports wait for their batch to be sent.
	if c.Exporters.HTTP.Enabled && c.Exporters.HTTP.BatchTimeout >= c.Report.ExportTimeout {
		return fmt.Errorf(
			"exporters.http: batch_timeout %s must be below report.export_timeout %s",
			c.Exporters.HTTP.BatchTimeout, c.Report.ExportTimeout,
		)
	}

	if err := c.Exporters.OTLP.Validate(); err != nil {
		return fmt.Errorf("exporters.otlp: %w", err)
	}

	c.Loadgen.ApplyDefaults()

	if err := c.Loadgen.Validate(); err != nil {
		return err
	}

	return nil
}
