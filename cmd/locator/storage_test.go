package main

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stereoloc/locator/internal/config"
	"github.com/stereoloc/locator/internal/storage"
	"github.com/stereoloc/locator/internal/storage/memory"
	sqlitestorage "github.com/stereoloc/locator/internal/storage/sqlite"
	wsstorage "github.com/stereoloc/locator/internal/storage/websocket"
	"github.com/stereoloc/locator/pkg/core"
)

func TestHttpToWS(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"http://localhost:5000", "ws://localhost:5000"},
		{"https://example.com/", "wss://example.com"},
		{"ws://already", "ws://already"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, httpToWS(tt.in), tt.in)
	}
}

func TestWebsocketConfig(t *testing.T) {
	apiCfg := config.APIConfig{ServerURL: "https://frontend.example/", APIKey: "api-key"}

	got := websocketConfig(config.WebSocketConfig{}, apiCfg)
	assert.Equal(t, wsstorage.Config{URL: "wss://frontend.example" + streamPath, Secret: "api-key"}, got)

	got = websocketConfig(config.WebSocketConfig{URL: "ws://collector/stream", Secret: "s"}, apiCfg)
	assert.Equal(t, wsstorage.Config{URL: "ws://collector/stream", Secret: "s"}, got)
}

func TestNewStorageBackend(t *testing.T) {
	site := core.Site{Name: "bench", Baseline: 1}
	log := discardLogger()

	b, err := newStorageBackend(config.StorageConfig{}, site, log, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &memory.Backend{}, b)
	_, ok := b.(storage.Uploadable)
	assert.True(t, ok)

	b, err = newStorageBackend(config.StorageConfig{
		Type: "sqlite",
		SQLite: config.SQLiteConfig{
			DumpInterval: time.Hour,
			DumpPath:     filepath.Join(t.TempDir(), "fixes.db"),
		},
	}, site, log, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &sqlitestorage.Backend{}, b)
	_, ok = b.(storage.Reader)
	assert.True(t, ok)

	b, err = newStorageBackend(config.StorageConfig{Type: "websocket"}, site, log, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &wsstorage.Backend{}, b)

	_, err = newStorageBackend(config.StorageConfig{Type: "carrier-pigeon"}, site, log, zerolog.Nop())
	assert.Error(t, err)
}
