package export

import (
	"context"
	"time"
)

// Kind identifies what a StatRow was derived from.
type Kind string

const (
	// KindCounter rows describe event throughput per interval.
	KindCounter Kind = "counter"
	// KindDuration rows describe completed operations per interval plus
	// the duration distribution of those operations.
	KindDuration Kind = "duration"
)

// StatRow is one (name, interval) statistic as written by exporters.
type StatRow struct {
	UpdatedAt   time.Time
	ReportStart time.Time
	Instance    string

	Kind       Kind
	Name       string
	Interval   string
	Unit       string
	IntervalMs int64

	Min     int64
	Max     int64
	Avg     float64
	Samples int64
	Skipped int64
	Dropped int64

	// Total is the recorded total of a counter or the observation count
	// of a duration.
	Total int64

	// Duration percentiles in microseconds. Zero for counters.
	P50Micros int64
	P90Micros int64
	P99Micros int64
}

// Exporter writes report rows to a destination.
type Exporter interface {
	// Name returns the exporter's identifier for logging and metrics.
	Name() string
	// Start initializes the exporter.
	Start(ctx context.Context) error
	// Export writes one report's rows.
	Export(ctx context.Context, rows []StatRow) error
	// Stop shuts down the exporter, flushing what it can.
	Stop(ctx context.Context) error
}
