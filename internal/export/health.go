package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const namespace = "rollstat"

// HealthConfig configures the Prometheus health metrics server.
type HealthConfig struct {
	// Addr is the listen address for the health metrics server.
	// Defaults to ":9090".
	Addr string `yaml:"addr"`
}

// HealthMetrics exposes Prometheus metrics, liveness, profiling and the
// latest statistics snapshot.
type HealthMetrics struct {
	log      logrus.FieldLogger
	addr     string
	server   *http.Server
	listener net.Listener
	registry *prometheus.Registry

	// Interval statistics, labelled kind/name/interval.
	IntervalMin     *prometheus.GaugeVec
	IntervalMax     *prometheus.GaugeVec
	IntervalAvg     *prometheus.GaugeVec
	IntervalSkipped *prometheus.GaugeVec
	IntervalDropped *prometheus.GaugeVec

	CounterRecorded  *prometheus.GaugeVec // name
	DurationQuantile *prometheus.GaugeVec // name, quantile
	Rejected         prometheus.Gauge

	// Reporting and export.
	ReportsTotal        prometheus.Counter
	ReportDuration      prometheus.Histogram
	ExportErrors        *prometheus.CounterVec   // exporter
	RowsExported        *prometheus.CounterVec   // exporter
	ExportDuration      *prometheus.HistogramVec // exporter
	ClickHouseConnected prometheus.Gauge

	LoadgenOperations *prometheus.CounterVec // kind

	running atomic.Bool
	stats   atomic.Pointer[[]byte]
}

func intervalGauge(name, help string) *prometheus.GaugeVec {
	return prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		},
		[]string{"kind", "name", "interval"},
	)
}

// NewHealthMetrics creates a new health metrics server.
func NewHealthMetrics(
	log logrus.FieldLogger,
	cfg HealthConfig,
) *HealthMetrics {
	reg := prometheus.NewRegistry()

	h := &HealthMetrics{
		log:      log.WithField("component", "health"),
		addr:     cfg.Addr,
		registry: reg,

		IntervalMin: intervalGauge("interval_min",
			"Smallest bucket value observed for the interval."),
		IntervalMax: intervalGauge("interval_max",
			"Largest bucket value observed for the interval."),
		IntervalAvg: intervalGauge("interval_avg",
			"Mean bucket value observed for the interval."),
		IntervalSkipped: intervalGauge("interval_skipped_buckets",
			"Buckets never flushed before ring wraparound, from overload or idle gaps between records."),
		IntervalDropped: intervalGauge("interval_dropped_buckets",
			"Buckets discarded because a result queue was full."),
		CounterRecorded: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "counter_recorded",
				Help:      "Sum of every count added to the counter.",
			},
			[]string{"name"},
		),
		DurationQuantile: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "duration_seconds",
				Help:      "Clamped duration quantiles since start.",
			},
			[]string{"name", "quantile"},
		),
		Rejected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rejected_recordings",
			Help:      "Recordings refused by at least one interval.",
		}),
		ReportsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_total",
			Help:      "Total reports produced.",
		}),
		ReportDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "report_duration_seconds",
			Help:      "Time to snapshot and export one report.",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
		ExportErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "export_errors_total",
				Help:      "Total export errors by exporter.",
			},
			[]string{"exporter"},
		),
		RowsExported: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rows_exported_total",
				Help:      "Total rows handed to each exporter.",
			},
			[]string{"exporter"},
		),
		ExportDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "export_duration_seconds",
				Help:      "Time to export one report by exporter.",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"exporter"},
		),
		ClickHouseConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "clickhouse_connected",
			Help:      "Whether the ClickHouse connection is established (1=yes, 0=no).",
		}),
		LoadgenOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "loadgen_operations_total",
				Help:      "Synthetic operations issued by the load generator.",
			},
			[]string{"kind"},
		),
	}

	reg.MustRegister(
		h.IntervalMin,
		h.IntervalMax,
		h.IntervalAvg,
		h.IntervalSkipped,
		h.IntervalDropped,
		h.CounterRecorded,
		h.DurationQuantile,
		h.Rejected,
	)

	reg.MustRegister(
		h.ReportsTotal,
		h.ReportDuration,
		h.ExportErrors,
		h.RowsExported,
		h.ExportDuration,
		h.ClickHouseConnected,
		h.LoadgenOperations,
	)

	return h
}

// Registry returns the registry all metrics are registered with.
func (h *HealthMetrics) Registry() *prometheus.Registry {
	return h.registry
}

// SetStats stores v, encoded as JSON, as the body served on /stats.
func (h *HealthMetrics) SetStats(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding stats: %w", err)
	}

	h.stats.Store(&data)

	return nil
}

func (h *HealthMetrics) serveStats(w http.ResponseWriter, _ *http.Request) {
	data := h.stats.Load()
	if data == nil {
		http.Error(w, "no report yet", http.StatusServiceUnavailable)

		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(*data)
}

// Start begins serving the /metrics endpoint.
func (h *HealthMetrics) Start(_ context.Context) error {
	if h.addr == "" {
		h.addr = ":9090"
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(
		h.registry,
		promhttp.HandlerOpts{},
	))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	})
	mux.HandleFunc("/stats", h.serveStats)

	// pprof endpoints for CPU/memory profiling.
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	ln, err := net.Listen("tcp", h.addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", h.addr, err)
	}

	h.listener = ln

	h.server = &http.Server{
		Handler: mux,
	}

	h.running.Store(true)

	go func() {
		h.log.WithField("addr", ln.Addr().String()).
			Info("Health metrics server started")

		if err := h.server.Serve(ln); err != nil &&
			!errors.Is(err, http.ErrServerClosed) {
			h.log.WithError(err).
				Error("Health metrics server error")
		}

		h.running.Store(false)
	}()

	return nil
}

// Addr returns the actual listener address. Useful when started
// with ":0" to get the OS-assigned port.
func (h *HealthMetrics) Addr() string {
	if h.listener != nil {
		return h.listener.Addr().String()
	}

	return h.addr
}

// Stop gracefully shuts down the health metrics server.
func (h *HealthMetrics) Stop() error {
	if h.server == nil {
		return nil
	}

	return h.server.Close()
}
