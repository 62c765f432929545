// internal/storage/storage.go
package storage

import (
	"context"
	"time"

	"github.com/stereoloc/locator/pkg/core"
)

// Backend is the interface all storage implementations must satisfy
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// RecordFix persists one located point. Implementations may queue the
	// write; f must not be modified after the call.
	RecordFix(f *core.Fix) error
}

// Reader is an optional interface for backends that can return recent fixes.
type Reader interface {
	// RecentFixes returns at most limit fixes, newest first.
	RecentFixes(ctx context.Context, limit int) ([]core.Fix, error)
}

// Uploadable is an optional interface for storage backends that produce
// files suitable for upload to the web frontend.
type Uploadable interface {
	GetExportedFilePath() string
	GetExportMetadata() core.UploadMetadata
}

// WriteStats is an optional interface for backends that write asynchronously.
type WriteStats interface {
	QueueLen() int
	GetLastDBWriteDuration() time.Duration
}

// PerformanceRecorder is an optional interface for backends that keep
// performance samples next to the fixes.
type PerformanceRecorder interface {
	RecordPerformance(p *core.Performance) error
}
