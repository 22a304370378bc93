// Package http streams report rows as NDJSON to Vector or any other HTTP
// sink.
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	processor "github.com/ethpandaops/go-batch-processor"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/rollstat/internal/export"
	"github.com/ethpandaops/rollstat/internal/version"
)

const timeLayout = "2006-01-02 15:04:05.000"

// RowJSON is the wire form of an export.StatRow.
type RowJSON struct {
	UpdatedDateTime string  `json:"updated_date_time"`
	ReportStart     string  `json:"report_start"`
	Instance        string  `json:"instance,omitempty"`
	Kind            string  `json:"kind"`
	Name            string  `json:"name"`
	Interval        string  `json:"interval"`
	Unit            string  `json:"unit"`
	IntervalMs      int64   `json:"interval_ms"`
	Min             int64   `json:"min"`
	Max             int64   `json:"max"`
	Avg             float64 `json:"avg"`
	Samples         int64   `json:"samples"`
	Skipped         int64   `json:"skipped"`
	Dropped         int64   `json:"dropped"`
	Total           int64   `json:"total"`
	P50Us           int64   `json:"p50_us,omitempty"`
	P90Us           int64   `json:"p90_us,omitempty"`
	P99Us           int64   `json:"p99_us,omitempty"`
}

// NewRowJSON converts a row to its wire form.
func NewRowJSON(r export.StatRow) *RowJSON {
	return &RowJSON{
		UpdatedDateTime: r.UpdatedAt.UTC().Format(timeLayout),
		ReportStart:     r.ReportStart.UTC().Format(timeLayout),
		Instance:        r.Instance,
		Kind:            string(r.Kind),
		Name:            r.Name,
		Interval:        r.Interval,
		Unit:            r.Unit,
		IntervalMs:      r.IntervalMs,
		Min:             r.Min,
		Max:             r.Max,
		Avg:             r.Avg,
		Samples:         r.Samples,
		Skipped:         r.Skipped,
		Dropped:         r.Dropped,
		Total:           r.Total,
		P50Us:           r.P50Micros,
		P90Us:           r.P90Micros,
		P99Us:           r.P99Micros,
	}
}

// Sender posts batches of items as NDJSON. It implements
// processor.ItemExporter.
type Sender[T any] struct {
	cfg    Config
	client *http.Client
	codec  Codec
	log    logrus.FieldLogger
}

var _ processor.ItemExporter[RowJSON] = (*Sender[RowJSON])(nil)

// NewSender creates a Sender. cfg is defaulted and validated.
func NewSender[T any](log logrus.FieldLogger, cfg Config) (*Sender[T], error) {
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	codec, err := NewCodec(cfg.Compression)
	if err != nil {
		return nil, fmt.Errorf("creating codec: %w", err)
	}

	transport := &http.Transport{
		MaxIdleConns:        cfg.Workers * 2,
		MaxIdleConnsPerHost: cfg.Workers * 2,
		IdleConnTimeout:     90 * time.Second,
		DisableKeepAlives:   !cfg.IsKeepAlive(),
	}

	return &Sender[T]{
		cfg: cfg,
		client: &http.Client{
			Transport: transport,
			Timeout:   cfg.ExportTimeout,
		},
		codec: codec,
		log:   log.WithField("component", "http_sender"),
	}, nil
}

// ExportItems posts one batch.
func (s *Sender[T]) ExportItems(ctx context.Context, items []*T) error {
	if len(items) == 0 {
		return nil
	}

	var buf bytes.Buffer
	buf.Grow(len(items) * 256)

	enc := json.NewEncoder(&buf)

	for _, item := range items {
		if item == nil {
			continue
		}

		if err := enc.Encode(item); err != nil {
			return fmt.Errorf("encoding item: %w", err)
		}
	}

	body, err := s.codec.Encode(buf.Bytes())
	if err != nil {
		return fmt.Errorf("compressing batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.Address, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-ndjson")
	req.Header.Set("User-Agent", version.UserAgent())

	if encoding := s.codec.ContentEncoding(); encoding != "" {
		req.Header.Set("Content-Encoding", encoding)
	}

	for k, v := range s.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}

	defer resp.Body.Close()

	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	s.log.WithFields(logrus.Fields{
		"items":      len(items),
		"bytes":      buf.Len(),
		"compressed": len(body),
	}).Debug("Exported batch via HTTP")

	return nil
}

// Shutdown releases the codec.
func (s *Sender[T]) Shutdown(_ context.Context) error {
	return s.codec.Close()
}

// Exporter queues report rows on a batch processor that posts them as
// NDJSON. It implements export.Exporter.
type Exporter struct {
	log  logrus.FieldLogger
	proc *processor.BatchItemProcessor[RowJSON]
}

var _ export.Exporter = (*Exporter)(nil)

// NewExporter creates an HTTP exporter for cfg.
func NewExporter(log logrus.FieldLogger, cfg Config) (*Exporter, error) {
	sender, err := NewSender[RowJSON](log, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating sender: %w", err)
	}

	cfg = sender.cfg

	proc, err := processor.NewBatchItemProcessor[RowJSON](
		sender,
		"rollstat_http",
		log,
		processor.WithMaxQueueSize(cfg.MaxQueueSize),
		processor.WithBatchTimeout(cfg.BatchTimeout),
		processor.WithExportTimeout(cfg.ExportTimeout),
		processor.WithMaxExportBatchSize(cfg.BatchSize),
		processor.WithWorkers(cfg.Workers),
		processor.WithShippingMethod(processor.ShippingMethodSync),
	)
	if err != nil {
		return nil, fmt.Errorf("creating processor: %w", err)
	}

	return &Exporter{
		log:  log.WithField("exporter", "http"),
		proc: proc,
	}, nil
}

// Name returns the exporter identifier.
func (e *Exporter) Name() string {
	return "http"
}

// Start starts the batch processor workers.
func (e *Exporter) Start(ctx context.Context) error {
	e.proc.Start(ctx)

	return nil
}

// Export posts rows and returns once their batch has been sent. A batch
// is sent when it reaches BatchSize or BatchTimeout elapses, so ctx
// should allow at least BatchTimeout.
func (e *Exporter) Export(ctx context.Context, rows []export.StatRow) error {
	if len(rows) == 0 {
		return nil
	}

	items := make([]*RowJSON, 0, len(rows))
	for _, r := range rows {
		items = append(items, NewRowJSON(r))
	}

	if err := e.proc.Write(ctx, items); err != nil {
		return fmt.Errorf("exporting rows: %w", err)
	}

	return nil
}

// Stop shuts the processor down.
func (e *Exporter) Stop(ctx context.Context) error {
	if err := e.proc.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down processor: %w", err)
	}

	return nil
}
