package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/rs/zerolog"

	"github.com/stereoloc/locator/internal/config"
	"github.com/stereoloc/locator/internal/storage"
	"github.com/stereoloc/locator/internal/storage/memory"
	pgstorage "github.com/stereoloc/locator/internal/storage/postgres"
	sqlitestorage "github.com/stereoloc/locator/internal/storage/sqlite"
	wsstorage "github.com/stereoloc/locator/internal/storage/websocket"
	"github.com/stereoloc/locator/pkg/core"
)

// streamPath is appended to api.serverUrl when no websocket URL is configured.
const streamPath = "/api/v1/stream"

func newStorageBackend(storageCfg config.StorageConfig, site core.Site, logger *slog.Logger, migrationLog zerolog.Logger) (storage.Backend, error) {
	switch storageCfg.Type {
	case "postgres":
		backend, err := pgstorage.New(config.GetDBConfig(), site, logger, migrationLog)
		if err != nil {
			return nil, fmt.Errorf("failed to create Postgres backend: %w", err)
		}
		logger.Info("Postgres storage backend initialized")
		return backend, nil

	case "sqlite":
		backend, err := sqlitestorage.New(sqlitestorage.Config{
			DumpInterval: storageCfg.SQLite.DumpInterval,
			DumpPath:     storageCfg.SQLite.DumpPath,
		}, site, logger, migrationLog)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite backend: %w", err)
		}
		logger.Info("SQLite storage backend initialized", "dumpPath", storageCfg.SQLite.DumpPath)
		return backend, nil

	case "websocket":
		wsCfg := websocketConfig(storageCfg.WebSocket, config.GetAPIConfig())
		logger.Info("WebSocket storage backend initialized", "url", wsCfg.URL)
		return wsstorage.New(wsCfg, site, logger), nil

	case "memory", "":
		logger.Info("Memory storage backend initialized", "outputDir", storageCfg.Memory.OutputDir)
		return memory.New(storageCfg.Memory, site, logger), nil

	default:
		return nil, fmt.Errorf("unknown storage type %q", storageCfg.Type)
	}
}

// websocketConfig falls back to the web frontend's address and key.
func websocketConfig(cfg config.WebSocketConfig, apiCfg config.APIConfig) wsstorage.Config {
	out := wsstorage.Config{URL: cfg.URL, Secret: cfg.Secret}
	if out.URL == "" && apiCfg.ServerURL != "" {
		out.URL = httpToWS(apiCfg.ServerURL) + streamPath
	}
	if out.Secret == "" {
		out.Secret = apiCfg.APIKey
	}
	return out
}

// httpToWS converts an HTTP(S) URL to a WebSocket URL.
func httpToWS(httpURL string) string {
	s := strings.TrimRight(httpURL, "/")
	s = strings.Replace(s, "https://", "wss://", 1)
	s = strings.Replace(s, "http://", "ws://", 1)
	return s
}
