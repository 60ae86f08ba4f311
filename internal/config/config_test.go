package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zeusync/doublezero/internal/core/observability/log"
	"github.com/zeusync/doublezero/internal/core/store"
	"github.com/zeusync/doublezero/sdk/go/client"
)

func TestLoad(t *testing.T) {
	t.Run("empty input keeps defaults", func(t *testing.T) {
		c, err := Load(strings.NewReader(""))
		require.NoError(t, err)
		require.Equal(t, Default().Server.ListenAddr, c.Server.ListenAddr)
		require.Equal(t, log.LevelInfo, c.Level())
	})

	t.Run("overrides", func(t *testing.T) {
		c, err := Load(strings.NewReader(`
log_level: debug
server:
  listen_addr: 0.0.0.0:9000
  allowed_origins: [https://app.example]
  cookie_secret: s3cret
  session_queue_size: 16
client:
  server_url: https://sync.example
  transport: websocket
  flush_interval: 250ms
storage:
  kind: ephemeral
  store: counter
  badger:
    path: /var/lib/doublezero
    gc_interval: 1m
`))
		require.NoError(t, err)

		require.Equal(t, log.LevelDebug, c.Level())
		require.Equal(t, log.LevelDebug, c.Server.LogLevel)
		require.Equal(t, "0.0.0.0:9000", c.Server.ListenAddr)
		require.Equal(t, []string{"https://app.example"}, c.Server.AllowedOrigins)
		require.Equal(t, "s3cret", c.Server.CookieSecret)
		require.Equal(t, 16, c.Server.SessionQueueSize)
		require.Equal(t, 24*time.Hour, c.Server.CookieTTL)

		require.Equal(t, "https://sync.example", c.Client.ServerURL)
		require.Equal(t, client.TransportWebSocket, c.Client.Transport)
		require.Equal(t, 250*time.Millisecond, c.Client.FlushInterval)

		kind, err := c.Storage.StoreKind()
		require.NoError(t, err)
		require.Equal(t, store.KindEphemeral, kind)
		require.Equal(t, "/var/lib/doublezero", c.Storage.Badger.Path)
		require.Equal(t, time.Minute, c.Storage.Badger.GCInterval)
		require.True(t, c.Storage.Badger.SyncWrites)

		opts := c.Storage.StoreOptions(nil)
		require.Equal(t, "counter", opts.Name)
		require.Equal(t, store.DefaultPartition, opts.Partition)
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := Load(strings.NewReader("server: [unclosed"))
		require.Error(t, err)
	})

	t.Run("unknown storage kind", func(t *testing.T) {
		c, err := Load(strings.NewReader("storage:\n  kind: s3\n"))
		require.NoError(t, err)
		_, err = c.Storage.StoreKind()
		require.ErrorIs(t, err, ErrUnknownStorageKind)
	})
}

func TestLoadFile(t *testing.T) {
	c, err := LoadFile("")
	require.NoError(t, err)
	require.Equal(t, Default().Client.ServerURL, c.Client.ServerURL)

	path := filepath.Join(t.TempDir(), "doublezero.yaml")
	require.NoError(t, os.WriteFile(path, []byte("client:\n  server_url: http://example:1\n"), 0o600))
	c, err = LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, "http://example:1", c.Client.ServerURL)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
