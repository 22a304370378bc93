// Package report periodically snapshots a perf.Tracker, logs the result,
// publishes it as Prometheus gauges and hands it to exporters.
package report

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/rollstat/internal/clamp"
	"github.com/ethpandaops/rollstat/internal/clock"
	"github.com/ethpandaops/rollstat/internal/export"
	httpexport "github.com/ethpandaops/rollstat/internal/export/http"
	"github.com/ethpandaops/rollstat/internal/perf"
)

// Source produces snapshots to report.
type Source interface {
	Snapshot() perf.Snapshot
	Clock() clock.Clock
}

// Report is one produced report, as served on /stats.
type Report struct {
	Boundary uint64                `json:"boundary"`
	Start    time.Time             `json:"start"`
	Rejected int64                 `json:"rejected"`
	Rows     []*httpexport.RowJSON `json:"rows"`
}

// Reporter produces a report on every wall-clock boundary.
type Reporter struct {
	log       logrus.FieldLogger
	cfg       Config
	source    Source
	wall      clock.WallClock
	health    *export.HealthMetrics
	exporters []export.Exporter

	// Serializes reports; the wall clock may fire concurrently.
	mu      sync.Mutex
	started []export.Exporter

	// Valid between Start and Stop.
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Reporter. health may be nil.
func New(
	log logrus.FieldLogger,
	cfg Config,
	source Source,
	wall clock.WallClock,
	health *export.HealthMetrics,
	exporters ...export.Exporter,
) *Reporter {
	cfg.ApplyDefaults()

	return &Reporter{
		log:       log.WithField("component", "reporter"),
		cfg:       cfg,
		source:    source,
		wall:      wall,
		health:    health,
		exporters: exporters,
	}
}

// Start starts every exporter and begins reporting on boundaries. If an
// exporter fails to start, those already started are stopped. Exporters
// run until Stop, even when ctx is cancelled first.
func (r *Reporter) Start(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(ctx)

	exportCtx := context.WithoutCancel(ctx)

	for _, e := range r.exporters {
		if err := e.Start(exportCtx); err != nil {
			r.stopExporters(ctx)

			return fmt.Errorf("starting %s exporter: %w", e.Name(), err)
		}

		r.started = append(r.started, e)

		r.log.WithField("exporter", e.Name()).Info("Exporter started")
	}

	r.wall.OnBoundary(func(boundary uint64, start time.Time) {
		r.Report(r.ctx, boundary, start)
	})

	if err := r.wall.Start(ctx); err != nil {
		r.stopExporters(ctx)

		return fmt.Errorf("starting wall clock: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"interval":  r.cfg.Interval,
		"exporters": len(r.exporters),
	}).Info("Reporter started")

	return nil
}

// Stop stops the wall clock, produces a final report and stops every
// exporter.
func (r *Reporter) Stop(ctx context.Context) error {
	if err := r.wall.Stop(); err != nil {
		r.log.WithError(err).Warn("Error stopping wall clock")
	}

	if r.cancel != nil {
		r.cancel()
	}

	current := r.wall.Current()
	r.Report(ctx, current, r.wall.BoundaryStart(current))

	r.stopExporters(ctx)

	return nil
}

func (r *Reporter) stopExporters(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.started {
		if err := e.Stop(ctx); err != nil {
			r.log.WithError(err).WithField("exporter", e.Name()).
				Warn("Error stopping exporter")
		}
	}

	r.started = nil
}

// Report snapshots the source and publishes the result. Exporter errors
// are logged and counted, never returned.
func (r *Reporter) Report(ctx context.Context, boundary uint64, start time.Time) Report {
	r.mu.Lock()
	defer r.mu.Unlock()

	began := time.Now()

	snap := r.source.Snapshot()
	rows := Rows(snap, RowMeta{
		Instance:       r.cfg.Instance,
		ReportStart:    start,
		UpdatedAt:      began,
		TicksPerSecond: r.source.Clock().TicksPerSecond(),
	})

	r.logSnapshot(boundary, snap)
	r.updateHealth(snap, rows)

	rep := Report{
		Boundary: boundary,
		Start:    start,
		Rejected: snap.Rejected,
		Rows:     make([]*httpexport.RowJSON, 0, len(rows)),
	}

	for _, row := range rows {
		rep.Rows = append(rep.Rows, httpexport.NewRowJSON(row))
	}

	if r.health != nil {
		if err := r.health.SetStats(rep); err != nil {
			r.log.WithError(err).Warn("Failed to publish stats")
		}
	}

	for _, e := range r.started {
		r.export(ctx, e, rows)
	}

	if r.health != nil {
		r.health.ReportsTotal.Inc()
		r.health.ReportDuration.Observe(time.Since(began).Seconds())
	}

	return rep
}

func (r *Reporter) export(ctx context.Context, e export.Exporter, rows []export.StatRow) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.ExportTimeout)
	defer cancel()

	began := time.Now()
	err := e.Export(ctx, rows)

	if r.health != nil {
		r.health.ExportDuration.WithLabelValues(e.Name()).Observe(time.Since(began).Seconds())
	}

	if err != nil {
		r.log.WithError(err).WithField("exporter", e.Name()).Error("Export failed")

		if r.health != nil {
			r.health.ExportErrors.WithLabelValues(e.Name()).Inc()
		}

		return
	}

	if r.health != nil {
		r.health.RowsExported.WithLabelValues(e.Name()).Add(float64(len(rows)))
	}
}

func (r *Reporter) round(v int64) int64 {
	return clamp.RoundSignificant(v, r.cfg.SignificantDigits)
}

func (r *Reporter) logSnapshot(boundary uint64, snap perf.Snapshot) {
	for _, c := range snap.Counters {
		fields := logrus.Fields{
			"boundary": boundary,
			"counter":  c.Name,
			"total":    c.Total,
		}

		for _, st := range c.Intervals {
			fields[st.Interval.Name+"_min"] = r.round(st.Min)
			fields[st.Interval.Name+"_max"] = r.round(st.Max)
			fields[st.Interval.Name+"_avg"] = r.round(int64(math.Round(st.Avg)))
		}

		r.log.WithFields(fields).Info("Counter stats")
	}

	for _, d := range snap.Durations {
		r.log.WithFields(logrus.Fields{
			"boundary": boundary,
			"duration": d.Name,
			"count":    d.Count,
			"min_us":   d.MinMicros,
			"p50_us":   r.round(d.P50Micros),
			"p90_us":   r.round(d.P90Micros),
			"p99_us":   r.round(d.P99Micros),
			"max_us":   d.MaxMicros,
		}).Info("Duration stats")
	}

	if snap.Rejected > 0 {
		r.log.WithField("rejected", snap.Rejected).Warn("Recordings were rejected")
	}
}

func (r *Reporter) updateHealth(snap perf.Snapshot, rows []export.StatRow) {
	if r.health == nil {
		return
	}

	h := r.health

	for _, row := range rows {
		labels := []string{string(row.Kind), row.Name, row.Interval}

		h.IntervalMin.WithLabelValues(labels...).Set(float64(row.Min))
		h.IntervalMax.WithLabelValues(labels...).Set(float64(row.Max))
		h.IntervalAvg.WithLabelValues(labels...).Set(row.Avg)
		h.IntervalSkipped.WithLabelValues(labels...).Set(float64(row.Skipped))
		h.IntervalDropped.WithLabelValues(labels...).Set(float64(row.Dropped))
	}

	for _, c := range snap.Counters {
		h.CounterRecorded.WithLabelValues(c.Name).Set(float64(c.Total))
	}

	for _, d := range snap.Durations {
		for q, us := range map[float64]int64{
			0.5:  d.P50Micros,
			0.9:  d.P90Micros,
			0.99: d.P99Micros,
		} {
			h.DurationQuantile.
				WithLabelValues(d.Name, strconv.FormatFloat(q, 'f', -1, 64)).
				Set(float64(us) / 1e6)
		}
	}

	h.Rejected.Set(float64(snap.Rejected))
}
