package report

import (
	"errors"
	"time"
)

// Config configures periodic reporting.
type Config struct {
	// Interval is the distance between reports. Reports are aligned to
	// wall-clock multiples of Interval.
	// Defaults to 10s.
	Interval time.Duration `yaml:"interval"`

	// Instance identifies this process in exported rows.
	Instance string `yaml:"instance"`

	// SignificantDigits rounds logged values.
	// Defaults to 3.
	SignificantDigits int `yaml:"significant_digits"`

	// ExportTimeout bounds each exporter's Export call.
	// Defaults to 10s.
	ExportTimeout time.Duration `yaml:"export_timeout"`
}

// DefaultConfig returns a Config with defaults filled in.
func DefaultConfig() Config {
	return Config{
		Interval:          10 * time.Second,
		SignificantDigits: 3,
		ExportTimeout:     10 * time.Second,
	}
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	d := DefaultConfig()

	if c.Interval <= 0 {
		c.Interval = d.Interval
	}

	if c.SignificantDigits <= 0 {
		c.SignificantDigits = d.SignificantDigits
	}

	if c.ExportTimeout <= 0 {
		c.ExportTimeout = d.ExportTimeout
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Interval < time.Millisecond {
		return errors.New("report.interval must be >= 1ms")
	}

	if c.SignificantDigits > 18 {
		return errors.New("report.significant_digits must be <= 18")
	}

	return nil
}
