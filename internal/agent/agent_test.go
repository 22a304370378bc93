package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/rollstat/internal/clock"
	"github.com/ethpandaops/rollstat/internal/interval"
	"github.com/ethpandaops/rollstat/internal/report"
)

func testLog() logrus.FieldLogger {
	log := logrus.New()
	log.SetLevel(logrus.WarnLevel)

	return log
}

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.Health.Addr = "127.0.0.1:0"
	cfg.Report.Interval = 50 * time.Millisecond
	cfg.Intervals = []interval.Config{
		{Name: "tenth", Duration: 100 * time.Millisecond},
	}

	return cfg
}

func TestNew_InvalidInterval(t *testing.T) {
	cfg := testConfig()
	cfg.Intervals = []interval.Config{{Name: "x"}}

	_, err := newAgent(testLog(), cfg, clock.NewManual(0, clock.MicrosPerSecond))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resolving intervals")
}

func TestNew_InvalidHTTPExporter(t *testing.T) {
	cfg := testConfig()
	cfg.Exporters.HTTP.Enabled = true

	_, err := newAgent(testLog(), cfg, clock.NewManual(0, clock.MicrosPerSecond))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "creating http exporter")
}

func TestAgent_LoadgenIsReported(t *testing.T) {
	cfg := testConfig()
	cfg.Loadgen.Enabled = true
	cfg.Loadgen.Rate = 2000
	cfg.Loadgen.MaxDuration = 5 * time.Millisecond
	require.NoError(t, cfg.Validate())

	a, err := New(testLog(), cfg)
	require.NoError(t, err)

	require.NoError(t, a.Start(context.Background()))

	// Long enough for several report boundaries and interval flushes.
	time.Sleep(600 * time.Millisecond)

	resp, err := http.Get(fmt.Sprintf("http://%s/stats", a.HealthAddr()))
	require.NoError(t, err)

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var rep report.Report
	require.NoError(t, json.Unmarshal(body, &rep))
	assert.NotEmpty(t, rep.Rows)

	require.NoError(t, a.Stop())

	c, ok := a.Tracker().Snapshot().Counter("ops")
	require.True(t, ok)
	assert.Positive(t, c.Total)
}
