package database

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stereoloc/locator/internal/config"
	"github.com/stereoloc/locator/internal/model"
)

func TestPostgresDSN(t *testing.T) {
	dsn := PostgresDSN(config.DBConfig{
		Host:     "db",
		Port:     "5432",
		Username: "locator",
		Password: "secret",
		Database: "fixes",
	})
	assert.Equal(t, "host=db port=5432 user=locator password=secret dbname=fixes sslmode=disable", dsn)
}

func TestGetSqliteDB_MigrateAndDump(t *testing.T) {
	dir := t.TempDir()

	db, err := GetSqliteDB(filepath.Join(dir, "live.db"))
	require.NoError(t, err)
	require.NoError(t, Migrate(db, zerolog.Nop()))

	for _, m := range model.DatabaseModelsSQLite {
		assert.True(t, db.Migrator().HasTable(m))
	}

	site := model.Site{Name: "bench", Baseline: 1}
	require.NoError(t, db.Create(&site).Error)

	dumpPath := filepath.Join(dir, "dump.db")
	_, err = DumpMemoryDBToDisk(db, dumpPath)
	require.NoError(t, err)

	// a second dump replaces the first
	_, err = DumpMemoryDBToDisk(db, dumpPath)
	require.NoError(t, err)

	info, err := os.Stat(dumpPath)
	require.NoError(t, err)
	assert.Positive(t, info.Size())

	dumped, err := GetSqliteDB(dumpPath)
	require.NoError(t, err)
	var got model.Site
	require.NoError(t, dumped.First(&got, "name = ?", "bench").Error)
	assert.Equal(t, 1.0, got.Baseline)
}

func TestDumpMemoryDBToDisk_NoPath(t *testing.T) {
	db, err := GetSqliteDB(filepath.Join(t.TempDir(), "x.db"))
	require.NoError(t, err)

	_, err = DumpMemoryDBToDisk(db, "")
	assert.Error(t, err)
}
