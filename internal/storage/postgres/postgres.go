// Package postgres implements the storage.Backend interface on PostgreSQL/PostGIS.
// Queueing and batch writes come from the embedded GORM backend.
package postgres

import (
	"fmt"
	"log/slog"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/stereoloc/locator/internal/config"
	"github.com/stereoloc/locator/internal/database"
	gormstorage "github.com/stereoloc/locator/internal/storage/gorm"
	"github.com/stereoloc/locator/pkg/core"
)

const maxOpenConns = 10

// Backend is the GORM backend bound to a Postgres connection.
type Backend struct {
	*gormstorage.Backend
	db *gorm.DB
}

// New connects to Postgres. The schema is migrated by Init.
func New(cfg config.DBConfig, site core.Site, logger *slog.Logger, migrationLog zerolog.Logger) (*Backend, error) {
	db, err := database.GetPostgresDB(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return newWithDB(db, site, logger, migrationLog), nil
}

func newWithDB(db *gorm.DB, site core.Site, logger *slog.Logger, migrationLog zerolog.Logger) *Backend {
	return &Backend{
		Backend: gormstorage.New(gormstorage.Dependencies{
			DB:           db,
			Site:         site,
			Logger:       logger,
			MigrationLog: migrationLog,
		}),
		db: db,
	}
}

// Init validates the connection, then migrates and starts the writer.
func (b *Backend) Init() error {
	sqlDB, err := b.db.DB()
	if err != nil {
		return fmt.Errorf("failed to access sql interface: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("failed to validate connection: %w", err)
	}
	if b.db.Name() == "postgres" {
		sqlDB.SetMaxOpenConns(maxOpenConns)
	}
	return b.Backend.Init()
}

// Close flushes pending fixes and closes the connection pool.
func (b *Backend) Close() error {
	if err := b.Backend.Close(); err != nil {
		return err
	}
	sqlDB, err := b.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
