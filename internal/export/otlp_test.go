package export

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestOTLPConfig_Validate(t *testing.T) {
	cfg := OTLPConfig{Enabled: true}
	assert.Error(t, cfg.Validate())

	cfg.Endpoint = "collector:4317"
	assert.NoError(t, cfg.Validate())

	assert.NoError(t, (&OTLPConfig{}).Validate())
}

func TestOTLPExporter_ObservesLatestRows(t *testing.T) {
	reader := metric.NewManualReader()

	e := NewOTLPExporter(testLog(), OTLPConfig{Enabled: true})
	e.reader = reader

	ctx := context.Background()
	require.NoError(t, e.Start(ctx))

	t.Cleanup(func() {
		_ = e.Stop(ctx)
	})

	var rm metricdata.ResourceMetrics

	// No rows exported yet.
	require.NoError(t, reader.Collect(ctx, &rm))
	assert.Empty(t, gaugePoints(rm, "rollstat.interval.max"))

	require.NoError(t, e.Export(ctx, []StatRow{
		{Kind: KindCounter, Name: "requests", Interval: "second", Min: 1, Max: 9, Avg: 4.5},
		{Kind: KindCounter, Name: "requests", Interval: "minute", Min: 60, Max: 540, Avg: 270},
	}))

	require.NoError(t, reader.Collect(ctx, &rm))

	maxPoints := gaugePoints(rm, "rollstat.interval.max")
	require.Len(t, maxPoints, 2)

	values := map[string]int64{}

	for _, p := range maxPoints {
		iv, ok := p.Attributes.Value("interval")
		require.True(t, ok)

		values[iv.AsString()] = p.Value
	}

	assert.Equal(t, map[string]int64{"second": 9, "minute": 540}, values)
}

func gaugePoints(rm metricdata.ResourceMetrics, name string) []metricdata.DataPoint[int64] {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}

			if g, ok := m.Data.(metricdata.Gauge[int64]); ok {
				return g.DataPoints
			}
		}
	}

	return nil
}
