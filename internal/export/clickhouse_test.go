package export

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClickHouseConfig_Defaults(t *testing.T) {
	cfg := ClickHouseConfig{Endpoint: "localhost:9000"}
	cfg.ApplyDefaults()

	assert.Equal(t, "default", cfg.Database)
	assert.Equal(t, 10*time.Second, cfg.DialTimeout)
	assert.True(t, cfg.ShouldMigrate())
}

func TestClickHouseConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ClickHouseConfig
		wantErr bool
	}{
		{name: "disabled without endpoint", cfg: ClickHouseConfig{}},
		{name: "enabled with endpoint", cfg: ClickHouseConfig{Enabled: true, Endpoint: "ch:9000"}},
		{name: "enabled without endpoint", cfg: ClickHouseConfig{Enabled: true}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestClickHouseConfig_DSN(t *testing.T) {
	cfg := ClickHouseConfig{
		Endpoint: "ch:9000",
		Database: "stats",
	}
	assert.Equal(t, "clickhouse://ch:9000/stats", cfg.DSN())

	cfg.Username = "user"
	cfg.Password = "p@ss"
	assert.Equal(t, "clickhouse://user:p%40ss@ch:9000/stats", cfg.DSN())
}

func TestClickHouseExporter_Export(t *testing.T) {
	w := NewClickHouseWriter(testLog(), ClickHouseConfig{Endpoint: "ch:9000"})
	e := NewClickHouseExporter(testLog(), w, nil)

	assert.Equal(t, "clickhouse", e.Name())

	// Nothing to write needs no connection.
	require.NoError(t, e.Export(context.Background(), nil))

	err := e.Export(context.Background(), []StatRow{{Name: "x"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not started")

	require.NoError(t, e.Stop(context.Background()))
}
