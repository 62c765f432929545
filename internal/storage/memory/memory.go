// internal/storage/memory/memory.go
package memory

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/stereoloc/locator/internal/config"
	"github.com/stereoloc/locator/internal/queue"
	"github.com/stereoloc/locator/pkg/core"
)

// Backend keeps the most recent fixes in memory and exports them to JSON on Close.
type Backend struct {
	cfg    config.MemoryConfig
	site   core.Site
	fixes  *queue.Queue[core.Fix]
	logger *slog.Logger

	mu             sync.Mutex
	recorded       int
	firstFix       time.Time
	lastFix        time.Time
	lastExportPath string
	lastExport     core.UploadMetadata
}

// New creates a new memory backend. cfg.Keep bounds the history; older
// fixes are dropped first.
func New(cfg config.MemoryConfig, site core.Site, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		cfg:    cfg,
		site:   site,
		fixes:  queue.NewBounded[core.Fix](cfg.Keep),
		logger: logger,
	}
}

// Init initializes the backend
func (b *Backend) Init() error {
	return nil
}

// Close exports the kept fixes when an output directory is configured.
func (b *Backend) Close() error {
	if b.cfg.OutputDir == "" || b.fixes.Empty() {
		return nil
	}
	_, err := b.Export()
	return err
}

// RecordFix appends f to the history.
func (b *Backend) RecordFix(f *core.Fix) error {
	if f == nil {
		return errors.New("record fix: nil fix")
	}

	b.mu.Lock()
	b.recorded++
	f.ID = uint(b.recorded)
	if b.firstFix.IsZero() || f.Time.Before(b.firstFix) {
		b.firstFix = f.Time
	}
	if f.Time.After(b.lastFix) {
		b.lastFix = f.Time
	}
	b.mu.Unlock()

	if dropped := b.fixes.Push(*f); dropped > 0 {
		b.logger.Debug("Memory history full, dropped oldest fixes", "dropped", dropped, "keep", b.cfg.Keep)
	}
	return nil
}

// RecentFixes returns up to limit fixes, newest first.
func (b *Backend) RecentFixes(_ context.Context, limit int) ([]core.Fix, error) {
	return b.fixes.Newest(limit), nil
}

// Len returns the number of fixes held.
func (b *Backend) Len() int {
	return b.fixes.Len()
}

// GetExportedFilePath returns the path of the last export, empty before the first one.
func (b *Backend) GetExportedFilePath() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastExportPath
}

// GetExportMetadata describes the last export.
func (b *Backend) GetExportMetadata() core.UploadMetadata {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastExport
}
