package support_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weegigs/wee-ledger-go/stores/boltdb"
	"github.com/weegigs/wee-ledger-go/support"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := support.LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "ledger.db", cfg.Store.Path)
	assert.Equal(t, 16, cfg.Store.Workers)
	assert.Equal(t, int64(boltdb.DefaultCapacity), cfg.Store.CapacityBytes)
	assert.Equal(t, 5*time.Second, cfg.Store.OpenTimeout)
	assert.Equal(t, uint64(100), cfg.Snapshots.EveryEvents)
	assert.Equal(t, time.Second, cfg.Projections.PollInterval)
	assert.Equal(t, uint32(5), cfg.Projections.BreakerFailures)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "none", cfg.Telemetry.Exporter)

	durability, err := cfg.DurabilityMode()
	require.NoError(t, err)
	assert.Equal(t, boltdb.MaxDurability, durability)
}

func TestLoadConfigLayers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.yaml")
	yaml := `
store:
  path: /var/lib/ledger/books.db
  durability: balanced
projections:
  batch_size: 250
  poll_interval: 250ms
log:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	t.Setenv("LEDGER_PROJECTIONS_BATCH_SIZE", "500")
	t.Setenv("LEDGER_HTTP_ADDR", "127.0.0.1:9090")
	t.Setenv("LEDGER_STORE_STREAM_BATCH_SIZE", "32")

	cfg, err := support.LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/ledger/books.db", cfg.Store.Path)
	assert.Equal(t, 500, cfg.Projections.BatchSize)
	assert.Equal(t, 250*time.Millisecond, cfg.Projections.PollInterval)
	assert.Equal(t, "127.0.0.1:9090", cfg.HTTP.Addr)
	assert.Equal(t, 32, cfg.Store.StreamBatchSize)
	assert.Equal(t, "debug", cfg.Log.Level)

	durability, err := cfg.DurabilityMode()
	require.NoError(t, err)
	assert.Equal(t, boltdb.Balanced, durability)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := support.LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidateJoinsProblems(t *testing.T) {
	cfg, err := support.LoadConfig("")
	require.NoError(t, err)

	cfg.Store.Path = " "
	cfg.Store.Durability = "reckless"
	cfg.Log.Format = "xml"
	cfg.Telemetry.Exporter = "otlp"

	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.path")
	assert.Contains(t, err.Error(), "store.durability")
	assert.Contains(t, err.Error(), "log.format")
	assert.Contains(t, err.Error(), "telemetry.endpoint")
}

func TestNewLogger(t *testing.T) {
	logger, err := support.NewLogger(support.LogConfig{Level: "warn", Format: "json"})
	require.NoError(t, err)
	assert.Equal(t, "warn", logger.GetLevel().String())

	_, err = support.NewLogger(support.LogConfig{Level: "loud", Format: "json"})
	assert.Error(t, err)
}
