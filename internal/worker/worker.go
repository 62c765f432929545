package worker

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/stereoloc/locator/internal/geo"
	"github.com/stereoloc/locator/internal/storage"
	"github.com/stereoloc/locator/pkg/core"
)

// FixWriter receives every persisted fix in addition to the storage backend.
type FixWriter interface {
	WriteFix(ctx context.Context, f core.Fix) error
}

// Dependencies holds all dependencies for the worker manager
type Dependencies struct {
	// Site georeferences fixes when set.
	Site *geo.Site
	// Influx is optional.
	Influx FixWriter
	Logger *slog.Logger
}

// Manager turns settled attempts into persisted fixes.
type Manager struct {
	deps    Dependencies
	backend storage.Backend

	recorded atomic.Int64
	failed   atomic.Int64
	lastFix  atomic.Int64
}

// NewManager creates a new worker manager
func NewManager(deps Dependencies, backend storage.Backend) *Manager {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Manager{
		deps:    deps,
		backend: backend,
	}
}

// GetLastDBWriteDuration returns the duration of the last DB write cycle.
// Returns 0 if the backend doesn't support this metric.
func (m *Manager) GetLastDBWriteDuration() time.Duration {
	if p, ok := m.backend.(storage.WriteStats); ok {
		return p.GetLastDBWriteDuration()
	}
	return 0
}

// QueueLen returns the backend's pending writes, 0 for synchronous backends.
func (m *Manager) QueueLen() int {
	if p, ok := m.backend.(storage.WriteStats); ok {
		return p.QueueLen()
	}
	return 0
}

// Recorded returns how many fixes were handed to the backend.
func (m *Manager) Recorded() int64 {
	return m.recorded.Load()
}

// Failed returns how many fixes the backend rejected.
func (m *Manager) Failed() int64 {
	return m.failed.Load()
}

// LastFixTime returns when the newest recorded fix was located, zero if none.
func (m *Manager) LastFixTime() time.Time {
	ns := m.lastFix.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}
