package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/matrix-tang/ex-rs/internal/ingest/binance"
	"github.com/matrix-tang/ex-rs/pkg/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, binance.DefaultWsURL, cfg.Feed.WsURL)
	assert.Equal(t, []string{binance.StreamAllTicker}, cfg.Feed.TickerStreams)
	assert.True(t, cfg.Feed.BookTickerEnabled)
	assert.Equal(t, 10, cfg.Router.Lanes)
	assert.Equal(t, 4096, cfg.Router.QueueSize)
	assert.Equal(t, queue.OverflowDropOldest, cfg.Router.OverflowPolicy())
	assert.Equal(t, 300*time.Second, cfg.Reconcile.IndexInterval)
	assert.Equal(t, 3*time.Second, cfg.Reconcile.SeedInterval)
	assert.False(t, cfg.Mirror.Enabled)
	assert.Equal(t, "EX_ASSET:", cfg.Mirror.Redis.Prefix)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
feed:
  max_reconnects: -1
  backoff:
    min: 100ms
    max: 2s
router:
  lanes: 4
  overflow: block
  block_timeout: 20ms
reconcile:
  seed_interval: 1s
mirror:
  enabled: true
  driver: postgres
  postgres:
    host: db
    port: 6432
  redis:
    addr: localhost:6379
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, -1, cfg.Feed.MaxReconnects)
	assert.Equal(t, 100*time.Millisecond, cfg.Feed.Backoff.Min)
	assert.Equal(t, 2*time.Second, cfg.Feed.Backoff.Max)
	assert.Equal(t, 4, cfg.Router.Lanes)
	assert.Equal(t, queue.OverflowBlock, cfg.Router.OverflowPolicy())
	assert.Equal(t, 20*time.Millisecond, cfg.Router.BlockTimeout)
	assert.Equal(t, time.Second, cfg.Reconcile.SeedInterval)
	assert.Equal(t, 300*time.Second, cfg.Reconcile.IndexInterval)
	assert.Equal(t, "postgres", cfg.Mirror.Driver)
	assert.Equal(t, "db", cfg.Mirror.Postgres.Host)
	assert.Equal(t, 6432, cfg.Mirror.Postgres.Port)
	assert.Equal(t, "localhost:6379", cfg.Mirror.Redis.Addr)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("EXRS_ROUTER_LANES", "16")
	t.Setenv("EXRS_RECONCILE_INDEX_INTERVAL", "1m")

	cfg, err := Load(writeConfig(t, "router:\n  lanes: 4\n"))
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.Router.Lanes)
	assert.Equal(t, time.Minute, cfg.Reconcile.IndexInterval)
}

func TestLoadRejectsInvalid(t *testing.T) {
	testCases := []struct {
		name string
		body string
	}{
		{"zero lanes", "router:\n  lanes: 0\n"},
		{"unknown overflow", "router:\n  overflow: spill\n"},
		{"block without timeout", "router:\n  overflow: block\n  block_timeout: 0s\n"},
		{"zero seed interval", "reconcile:\n  seed_interval: 0s\n"},
		{"unknown driver", "mirror:\n  enabled: true\n  driver: mongo\n"},
		{"jitter out of range", "feed:\n  backoff:\n    jitter: 2\n"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.body))
			require.Error(t, err)
		})
	}
}

func TestLoadRejectsUnboundedBlockFromEnv(t *testing.T) {
	t.Setenv("EXRS_ROUTER_OVERFLOW", "block")
	t.Setenv("EXRS_ROUTER_BLOCK_TIMEOUT", "0s")

	_, err := Load("")
	require.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
