package http

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

const (
	defaultBatchSize     = 512
	defaultBatchTimeout  = 5 * time.Second
	defaultExportTimeout = 30 * time.Second
	defaultMaxQueueSize  = 8192
	defaultWorkers       = 1
)

// Config configures the NDJSON stats exporter.
type Config struct {
	// Enabled enables the HTTP exporter.
	Enabled bool `yaml:"enabled"`

	// Address is the URL rows are POSTed to.
	Address string `yaml:"address"`

	// Headers are additional HTTP headers to include in requests.
	Headers map[string]string `yaml:"headers"`

	// Compression is one of none, gzip, zstd, zlib, snappy.
	// Defaults to gzip.
	Compression string `yaml:"compression"`

	// BatchSize is the maximum number of rows per request.
	BatchSize int `yaml:"batch_size"`

	// BatchTimeout is the maximum time rows wait before being sent.
	BatchTimeout time.Duration `yaml:"batch_timeout"`

	// ExportTimeout bounds a single request.
	ExportTimeout time.Duration `yaml:"export_timeout"`

	// MaxQueueSize is the number of rows buffered before new rows are
	// dropped.
	MaxQueueSize int `yaml:"max_queue_size"`

	// Workers is the number of concurrent senders.
	Workers int `yaml:"workers"`

	// KeepAlive enables HTTP keep-alive connections.
	// Defaults to true.
	KeepAlive *bool `yaml:"keep_alive"`
}

// DefaultConfig returns a disabled Config with defaults filled in.
func DefaultConfig() Config {
	cfg := Config{}
	cfg.ApplyDefaults()

	return cfg
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.Compression == "" {
		c.Compression = CompressionGzip
	}

	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}

	if c.BatchTimeout <= 0 {
		c.BatchTimeout = defaultBatchTimeout
	}

	if c.ExportTimeout <= 0 {
		c.ExportTimeout = defaultExportTimeout
	}

	if c.MaxQueueSize <= 0 {
		c.MaxQueueSize = defaultMaxQueueSize
	}

	if c.Workers <= 0 {
		c.Workers = defaultWorkers
	}

	if c.KeepAlive == nil {
		keepAlive := true
		c.KeepAlive = &keepAlive
	}
}

// Validate reports every problem with an enabled configuration.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}

	var errs []error

	if c.Address == "" {
		errs = append(errs, errors.New("http address is required when enabled"))
	} else if u, err := url.Parse(c.Address); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("http address %q is not an absolute URL", c.Address))
	}

	if c.BatchSize <= 0 {
		errs = append(errs, errors.New("batch_size must be greater than 0"))
	}

	if c.MaxQueueSize <= 0 {
		errs = append(errs, errors.New("max_queue_size must be greater than 0"))
	}

	if c.BatchSize > c.MaxQueueSize {
		errs = append(errs, errors.New("batch_size cannot be greater than max_queue_size"))
	}

	if c.Workers <= 0 {
		errs = append(errs, errors.New("workers must be greater than 0"))
	}

	switch c.Compression {
	case "", CompressionNone, CompressionGzip, CompressionZstd,
		CompressionZlib, CompressionSnappy:
	default:
		errs = append(errs, fmt.Errorf("invalid compression type: %s", c.Compression))
	}

	return errors.Join(errs...)
}

// IsKeepAlive returns whether HTTP keep-alive is enabled.
func (c *Config) IsKeepAlive() bool {
	return c.KeepAlive == nil || *c.KeepAlive
}
