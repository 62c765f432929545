package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/stereoloc/locator/internal/config"
	"github.com/stereoloc/locator/internal/storage"
	"github.com/stereoloc/locator/pkg/core"
)

// Compile-time interface check
var _ storage.Backend = (*Backend)(nil)

func TestInitClose(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	b := newWithDB(db, core.Site{Name: "bench"}, nil, zerolog.Nop())
	require.NoError(t, b.Init())

	require.NoError(t, b.RecordFix(&core.Fix{AttemptID: "a1", Time: time.Now().UTC()}))
	got, err := b.RecentFixes(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, got, 1)

	require.NoError(t, b.Close())
	assert.Error(t, sqlDB.Ping(), "pool is closed")
}

func TestNew_Unreachable(t *testing.T) {
	_, err := New(config.DBConfig{
		Host:     "127.0.0.1",
		Port:     "1",
		Username: "nobody",
		Password: "x",
		Database: "none",
	}, core.Site{}, nil, zerolog.Nop())
	assert.Error(t, err)
}
