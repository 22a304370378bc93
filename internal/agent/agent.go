package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/rollstat/internal/clock"
	"github.com/ethpandaops/rollstat/internal/export"
	httpexport "github.com/ethpandaops/rollstat/internal/export/http"
	"github.com/ethpandaops/rollstat/internal/interval"
	"github.com/ethpandaops/rollstat/internal/loadgen"
	"github.com/ethpandaops/rollstat/internal/migrate"
	"github.com/ethpandaops/rollstat/internal/perf"
	"github.com/ethpandaops/rollstat/internal/report"
)

// stopTimeout bounds the final report and exporter shutdown.
const stopTimeout = 30 * time.Second

// Agent is the top-level orchestrator for rollstat.
type Agent interface {
	// Start initializes all components and begins reporting.
	Start(ctx context.Context) error
	// Stop shuts down all components gracefully.
	Stop() error
	// Tracker returns the tracker hosts record into.
	Tracker() *perf.Tracker
	// HealthAddr returns the health server's listen address.
	HealthAddr() string
}

type agent struct {
	log      logrus.FieldLogger
	cfg      *Config
	health   *export.HealthMetrics
	clock    clock.Clock
	tracker  *perf.Tracker
	wall     clock.WallClock
	reporter *report.Reporter
	loadgen  *loadgen.Generator

	cancel context.CancelFunc
}

// New creates a new Agent. cfg must have been validated.
func New(log logrus.FieldLogger, cfg *Config) (Agent, error) {
	clk, err := clock.NewMonotonic()
	if err != nil {
		return nil, fmt.Errorf("creating monotonic clock: %w", err)
	}

	return newAgent(log, cfg, clk)
}

func newAgent(log logrus.FieldLogger, cfg *Config, clk clock.Clock) (*agent, error) {
	intervals, err := interval.Resolve(cfg.Intervals, clk)
	if err != nil {
		return nil, fmt.Errorf("resolving intervals: %w", err)
	}

	perfCfg := perf.Config{Intervals: intervals}
	if cfg.DurationProfile != nil {
		perfCfg.DurationProfile = cfg.DurationProfile.Profile()
	}

	tracker, err := perf.New(log, clk, perfCfg)
	if err != nil {
		return nil, fmt.Errorf("creating tracker: %w", err)
	}

	wall, err := clock.NewWallClock(log, cfg.Report.Interval)
	if err != nil {
		return nil, fmt.Errorf("creating wall clock: %w", err)
	}

	health := export.NewHealthMetrics(log, cfg.Health)

	exporters, err := buildExporters(log, cfg, health)
	if err != nil {
		return nil, err
	}

	a := &agent{
		log:      log.WithField("component", "agent"),
		cfg:      cfg,
		health:   health,
		clock:    clk,
		tracker:  tracker,
		wall:     wall,
		reporter: report.New(log, cfg.Report, tracker, wall, health, exporters...),
	}

	if cfg.Loadgen.Enabled {
		a.loadgen = loadgen.New(log, cfg.Loadgen, tracker, func(kind string) {
			health.LoadgenOperations.WithLabelValues(kind).Inc()
		})
	}

	return a, nil
}

func buildExporters(
	log logrus.FieldLogger,
	cfg *Config,
	health *export.HealthMetrics,
) ([]export.Exporter, error) {
	exporters := make([]export.Exporter, 0, 3)

	if cfg.Exporters.ClickHouse.Enabled {
		writer := export.NewClickHouseWriter(log, cfg.Exporters.ClickHouse)
		exporters = append(exporters, export.NewClickHouseExporter(log, writer, health))
	}

	if cfg.Exporters.HTTP.Enabled {
		e, err := httpexport.NewExporter(log, cfg.Exporters.HTTP)
		if err != nil {
			return nil, fmt.Errorf("creating http exporter: %w", err)
		}

		exporters = append(exporters, e)
	}

	if cfg.Exporters.OTLP.Enabled {
		exporters = append(exporters, export.NewOTLPExporter(log, cfg.Exporters.OTLP))
	}

	return exporters, nil
}

func (a *agent) Tracker() *perf.Tracker {
	return a.tracker
}

func (a *agent) HealthAddr() string {
	return a.health.Addr()
}

func (a *agent) Start(ctx context.Context) error {
	ctx, a.cancel = context.WithCancel(ctx)

	// 1. Start health metrics server.
	if err := a.health.Start(ctx); err != nil {
		return fmt.Errorf("starting health metrics: %w", err)
	}

	// 2. Apply the ClickHouse schema before the exporter writes to it.
	if ch := a.cfg.Exporters.ClickHouse; ch.Enabled && ch.ShouldMigrate() {
		if err := migrate.New(a.log, ch.DSN()).Up(ctx); err != nil {
			return fmt.Errorf("migrating clickhouse: %w", err)
		}
	}

	// 3. Start exporters and boundary-aligned reporting.
	if err := a.reporter.Start(ctx); err != nil {
		return fmt.Errorf("starting reporter: %w", err)
	}

	// 4. Start the synthetic workload.
	if a.loadgen != nil {
		a.loadgen.Start(ctx)
	}

	a.log.WithFields(logrus.Fields{
		"intervals":       len(a.tracker.Intervals()),
		"report_interval": a.cfg.Report.Interval,
		"next_boundary":   a.wall.BoundaryStart(a.wall.Current() + 1),
	}).Info("Agent fully started")

	return nil
}

func (a *agent) Stop() error {
	if a.cancel != nil {
		a.cancel()
	}

	// Stop in reverse order.
	if a.loadgen != nil {
		a.loadgen.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()

	if err := a.reporter.Stop(ctx); err != nil {
		a.log.WithError(err).Warn("Error stopping reporter")
	}

	if err := a.health.Stop(); err != nil {
		a.log.WithError(err).Warn("Error stopping health server")
	}

	a.log.Info("Agent stopped")

	return nil
}
