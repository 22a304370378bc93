package export

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// OTLPConfig configures the OTLP metric exporter.
type OTLPConfig struct {
	// Enabled enables the OTLP exporter.
	Enabled bool `yaml:"enabled"`

	// Endpoint is the gRPC OTLP endpoint (e.g. "otel-collector:4317").
	Endpoint string `yaml:"endpoint"`

	// Insecure disables TLS for the gRPC connection.
	Insecure bool `yaml:"insecure"`

	// Interval is how often metrics are pushed.
	// Defaults to 15s.
	Interval time.Duration `yaml:"interval"`
}

// Validate validates the configuration.
func (c *OTLPConfig) Validate() error {
	if c.Enabled && c.Endpoint == "" {
		return errors.New("otlp endpoint is required when enabled")
	}

	return nil
}

// OTLPExporter publishes the latest report rows as OTLP gauges.
type OTLPExporter struct {
	log      logrus.FieldLogger
	cfg      OTLPConfig
	provider *metric.MeterProvider
	reader   metric.Reader
	exporter metric.Exporter

	latest atomic.Pointer[[]StatRow]
}

var _ Exporter = (*OTLPExporter)(nil)

// NewOTLPExporter creates a new OTLP metric exporter.
func NewOTLPExporter(
	log logrus.FieldLogger,
	cfg OTLPConfig,
) *OTLPExporter {
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Second
	}

	return &OTLPExporter{
		log: log.WithField("exporter", "otlp"),
		cfg: cfg,
	}
}

// Name returns the exporter identifier.
func (e *OTLPExporter) Name() string {
	return "otlp"
}

// Start initializes the OTLP exporter, meter provider and instruments.
func (e *OTLPExporter) Start(ctx context.Context) error {
	if e.reader == nil {
		opts := []otlpmetricgrpc.Option{
			otlpmetricgrpc.WithEndpoint(e.cfg.Endpoint),
		}

		if e.cfg.Insecure {
			opts = append(opts, otlpmetricgrpc.WithInsecure())
		}

		exporter, err := otlpmetricgrpc.New(ctx, opts...)
		if err != nil {
			return fmt.Errorf("creating OTLP exporter: %w", err)
		}

		e.exporter = exporter
		e.reader = metric.NewPeriodicReader(exporter, metric.WithInterval(e.cfg.Interval))
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName("rollstat"),
		),
	)
	if err != nil {
		return fmt.Errorf("creating OTLP resource: %w", err)
	}

	e.provider = metric.NewMeterProvider(
		metric.WithResource(res),
		metric.WithReader(e.reader),
	)

	if err := e.registerInstruments(); err != nil {
		return err
	}

	e.log.WithField("endpoint", e.cfg.Endpoint).
		Info("OTLP exporter started")

	return nil
}

func (e *OTLPExporter) registerInstruments() error {
	meter := e.provider.Meter("github.com/ethpandaops/rollstat")

	minGauge, err := meter.Int64ObservableGauge("rollstat.interval.min",
		otelmetric.WithDescription("Smallest bucket value observed for the interval."))
	if err != nil {
		return fmt.Errorf("creating min gauge: %w", err)
	}

	maxGauge, err := meter.Int64ObservableGauge("rollstat.interval.max",
		otelmetric.WithDescription("Largest bucket value observed for the interval."))
	if err != nil {
		return fmt.Errorf("creating max gauge: %w", err)
	}

	avgGauge, err := meter.Float64ObservableGauge("rollstat.interval.avg",
		otelmetric.WithDescription("Mean bucket value observed for the interval."))
	if err != nil {
		return fmt.Errorf("creating avg gauge: %w", err)
	}

	_, err = meter.RegisterCallback(
		func(_ context.Context, o otelmetric.Observer) error {
			rows := e.latest.Load()
			if rows == nil {
				return nil
			}

			for _, r := range *rows {
				attrs := otelmetric.WithAttributes(
					attribute.String("kind", string(r.Kind)),
					attribute.String("name", r.Name),
					attribute.String("interval", r.Interval),
				)

				o.ObserveInt64(minGauge, r.Min, attrs)
				o.ObserveInt64(maxGauge, r.Max, attrs)
				o.ObserveFloat64(avgGauge, r.Avg, attrs)
			}

			return nil
		},
		minGauge, maxGauge, avgGauge,
	)
	if err != nil {
		return fmt.Errorf("registering callback: %w", err)
	}

	return nil
}

// Export replaces the rows observed on the next collection.
func (e *OTLPExporter) Export(_ context.Context, rows []StatRow) error {
	snapshot := make([]StatRow, len(rows))
	copy(snapshot, rows)

	e.latest.Store(&snapshot)

	return nil
}

// Stop shuts down the meter provider, which flushes and shuts down the
// exporter.
func (e *OTLPExporter) Stop(ctx context.Context) error {
	if e.provider != nil {
		if err := e.provider.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutting down OTLP provider: %w", err)
		}
	}

	return nil
}
