package export

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/sirupsen/logrus"
)

// StatsTable is the table created by the embedded migrations.
const StatsTable = "interval_stats"

// ClickHouseConfig configures the ClickHouse writer.
type ClickHouseConfig struct {
	// Enabled enables the ClickHouse exporter.
	Enabled bool `yaml:"enabled"`

	// Endpoint is the ClickHouse native protocol address.
	Endpoint string `yaml:"endpoint"`

	// Database is the target database name.
	// Defaults to "default".
	Database string `yaml:"database"`

	// Username for ClickHouse authentication.
	Username string `yaml:"username"`

	// Password for ClickHouse authentication.
	Password string `yaml:"password"`

	// Migrate applies the embedded schema migrations on start.
	// Defaults to true.
	Migrate *bool `yaml:"migrate"`

	// DialTimeout bounds connection establishment.
	// Defaults to 10s.
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

// ApplyDefaults applies default values to unset fields.
func (c *ClickHouseConfig) ApplyDefaults() {
	if c.Database == "" {
		c.Database = "default"
	}

	if c.Migrate == nil {
		migrate := true
		c.Migrate = &migrate
	}

	if c.DialTimeout <= 0 {
		c.DialTimeout = 10 * time.Second
	}
}

// Validate validates the configuration.
func (c *ClickHouseConfig) Validate() error {
	if !c.Enabled {
		return nil
	}

	if c.Endpoint == "" {
		return errors.New("clickhouse endpoint is required when enabled")
	}

	return nil
}

// ShouldMigrate reports whether migrations run on start.
func (c *ClickHouseConfig) ShouldMigrate() bool {
	return c.Migrate == nil || *c.Migrate
}

// DSN returns a clickhouse:// connection string for the configuration.
func (c *ClickHouseConfig) DSN() string {
	u := url.URL{
		Scheme: "clickhouse",
		Host:   c.Endpoint,
		Path:   "/" + c.Database,
	}

	if c.Username != "" {
		u.User = url.UserPassword(c.Username, c.Password)
	}

	return u.String()
}

// ClickHouseWriter manages the ClickHouse connection.
type ClickHouseWriter struct {
	log  logrus.FieldLogger
	cfg  ClickHouseConfig
	conn clickhouse.Conn
}

// NewClickHouseWriter creates a new ClickHouse writer.
func NewClickHouseWriter(
	log logrus.FieldLogger,
	cfg ClickHouseConfig,
) *ClickHouseWriter {
	cfg.ApplyDefaults()

	return &ClickHouseWriter{
		log: log.WithField("component", "clickhouse"),
		cfg: cfg,
	}
}

// Start opens the ClickHouse connection.
func (w *ClickHouseWriter) Start(ctx context.Context) error {
	opts := &clickhouse.Options{
		Addr: []string{w.cfg.Endpoint},
		Auth: clickhouse.Auth{
			Database: w.cfg.Database,
			Username: w.cfg.Username,
			Password: w.cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
		DialTimeout:  w.cfg.DialTimeout,
		MaxOpenConns: 2,
		MaxIdleConns: 1,
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return fmt.Errorf("opening ClickHouse connection: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()

		return fmt.Errorf("pinging ClickHouse: %w", err)
	}

	w.conn = conn

	w.log.WithField("endpoint", w.cfg.Endpoint).
		Info("ClickHouse writer connected")

	return nil
}

// Conn returns the underlying ClickHouse connection.
func (w *ClickHouseWriter) Conn() clickhouse.Conn {
	return w.conn
}

// Config returns the writer configuration.
func (w *ClickHouseWriter) Config() ClickHouseConfig {
	return w.cfg
}

// Stop closes the ClickHouse connection.
func (w *ClickHouseWriter) Stop() error {
	if w.conn != nil {
		return w.conn.Close()
	}

	return nil
}

// ClickHouseExporter writes report rows to the interval stats table.
type ClickHouseExporter struct {
	log    logrus.FieldLogger
	writer *ClickHouseWriter
	health *HealthMetrics
}

var _ Exporter = (*ClickHouseExporter)(nil)

// NewClickHouseExporter creates a ClickHouse exporter. health may be nil.
func NewClickHouseExporter(
	log logrus.FieldLogger,
	writer *ClickHouseWriter,
	health *HealthMetrics,
) *ClickHouseExporter {
	return &ClickHouseExporter{
		log:    log.WithField("exporter", "clickhouse"),
		writer: writer,
		health: health,
	}
}

// Name returns the exporter identifier.
func (e *ClickHouseExporter) Name() string {
	return "clickhouse"
}

// Start connects the underlying writer.
func (e *ClickHouseExporter) Start(ctx context.Context) error {
	if err := e.writer.Start(ctx); err != nil {
		return err
	}

	if e.health != nil {
		e.health.ClickHouseConnected.Set(1)
	}

	return nil
}

// Stop closes the underlying writer.
func (e *ClickHouseExporter) Stop(_ context.Context) error {
	if e.health != nil {
		e.health.ClickHouseConnected.Set(0)
	}

	return e.writer.Stop()
}

// Export inserts rows in a single batch.
func (e *ClickHouseExporter) Export(ctx context.Context, rows []StatRow) error {
	if len(rows) == 0 {
		return nil
	}

	conn := e.writer.Conn()
	if conn == nil {
		return errors.New("clickhouse writer not started")
	}

	cfg := e.writer.Config()

	query := fmt.Sprintf(`INSERT INTO %s.%s (
		updated_date_time, report_start, instance,
		kind, name, interval, unit, interval_ms,
		min, max, avg, samples, skipped, dropped, total,
		p50_us, p90_us, p99_us
	)`, cfg.Database, StatsTable)

	batch, err := conn.PrepareBatch(ctx, query)
	if err != nil {
		return fmt.Errorf("preparing %s batch: %w", StatsTable, err)
	}

	for _, r := range rows {
		if err := batch.Append(
			r.UpdatedAt, r.ReportStart, r.Instance,
			string(r.Kind), r.Name, r.Interval, r.Unit, r.IntervalMs,
			r.Min, r.Max, r.Avg, r.Samples, r.Skipped, r.Dropped, r.Total,
			r.P50Micros, r.P90Micros, r.P99Micros,
		); err != nil {
			_ = batch.Abort()

			return fmt.Errorf("appending %s row: %w", StatsTable, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("sending %s batch: %w", StatsTable, err)
	}

	e.log.WithField("rows", len(rows)).Debug("Wrote interval stats")

	return nil
}
