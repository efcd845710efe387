package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, []string{"direct://"}, cfg.Targets)
	assert.Equal(t, "nk-cache", cfg.CacheName)
	assert.Equal(t, StoreMemory, cfg.Store)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.False(t, cfg.CoalesceMisses)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PROXY_TARGETS", "https://a.test,https://b.test")
	t.Setenv("PROXY_STORE", "sqlite")
	t.Setenv("PROXY_LOG_LEVEL", "debug")
	t.Setenv("PROXY_COALESCE_MISSES", "true")
	t.Setenv("PROXY_REQUEST_TIMEOUT", "2s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"https://a.test", "https://b.test"}, cfg.Targets)
	assert.Equal(t, StoreSQLite, cfg.Store)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.True(t, cfg.CoalesceMisses)
	assert.Equal(t, 2*time.Second, cfg.RequestTimeout)
}

func TestLoadErrors(t *testing.T) {
	t.Run("parse", func(t *testing.T) {
		t.Setenv("PROXY_MAX_IDLE_CONNS", "many")
		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "parse env:")
	})

	t.Run("store", func(t *testing.T) {
		t.Setenv("PROXY_STORE", "etcd")
		_, err := Load()
		assert.ErrorContains(t, err, "unsupported store")
	})

	t.Run("timeout", func(t *testing.T) {
		t.Setenv("PROXY_SHUTDOWN_TIMEOUT", "0s")
		_, err := Load()
		assert.ErrorContains(t, err, "shutdown timeout")
	})
}
