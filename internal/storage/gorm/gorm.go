// Package gormstorage implements storage.Backend on top of GORM with an
// internal write queue drained by a background goroutine. The sqlite and
// postgres backends embed it and only differ in how the DB is opened.
package gormstorage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/stereoloc/locator/internal/database"
	"github.com/stereoloc/locator/internal/geo"
	"github.com/stereoloc/locator/internal/model"
	"github.com/stereoloc/locator/internal/model/convert"
	"github.com/stereoloc/locator/internal/queue"
	"github.com/stereoloc/locator/pkg/core"
)

const (
	defaultFlushInterval = 2 * time.Second
	defaultSiteName      = "default"
)

// ErrNoDatabase is returned by Init when no DB was injected.
var ErrNoDatabase = errors.New("gorm backend: no database")

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	DB            *gorm.DB
	Site          core.Site
	Logger        *slog.Logger
	MigrationLog  zerolog.Logger
	FlushInterval time.Duration
}

// Backend implements storage.Backend using GORM with queue-based batch writes.
type Backend struct {
	deps   Dependencies
	fixes  *queue.Queue[model.Fix]
	siteID atomic.Uint64

	writeMu   sync.Mutex
	lastWrite atomic.Int64

	stopChan chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// New creates a new GORM storage backend.
func New(deps Dependencies) *Backend {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.FlushInterval <= 0 {
		deps.FlushInterval = defaultFlushInterval
	}
	if deps.Site.Name == "" {
		deps.Site.Name = defaultSiteName
	}
	return &Backend{
		deps:  deps,
		fixes: queue.New[model.Fix](),
	}
}

// Init runs schema migration, registers the site and starts the DB writer goroutine.
func (b *Backend) Init() error {
	if b.deps.DB == nil {
		return ErrNoDatabase
	}
	if err := database.Migrate(b.deps.DB, b.deps.MigrationLog); err != nil {
		return fmt.Errorf("failed to setup DB: %w", err)
	}
	if err := b.ensureSite(); err != nil {
		return err
	}

	b.stopChan = make(chan struct{})
	b.done = make(chan struct{})
	go b.writerLoop()
	return nil
}

// ensureSite gets or creates the site row and refreshes its settings.
func (b *Backend) ensureSite() error {
	s := b.deps.Site
	attrs := model.Site{
		Baseline:   s.Baseline,
		HeadingDeg: s.HeadingDeg,
	}
	if s.Georeferenced {
		attrs.Location = geo.GeoPoint(core.GeoPosition{
			Longitude: s.Longitude,
			Latitude:  s.Latitude,
			Elevation: s.Elevation,
		})
	}

	var site model.Site
	err := b.deps.DB.
		Where(model.Site{Name: s.Name}).
		Assign(attrs).
		FirstOrCreate(&site).Error
	if err != nil {
		return fmt.Errorf("failed to get or insert site %q: %w", s.Name, err)
	}

	b.siteID.Store(uint64(site.ID))
	b.deps.Logger.Info("Site registered", "site", s.Name, "siteID", site.ID)
	return nil
}

// SiteID returns the DB ID of the registered site, 0 before Init.
func (b *Backend) SiteID() uint {
	return uint(b.siteID.Load())
}

// Close stops the writer goroutine and flushes what is still queued.
func (b *Backend) Close() error {
	if b.stopChan == nil {
		return nil
	}
	b.stopOnce.Do(func() {
		close(b.stopChan)
		<-b.done
	})
	if n := b.flush(); n < 0 {
		return fmt.Errorf("final flush failed, %d fixes not written", b.fixes.Len())
	}
	return nil
}

// RecordFix queues f for the next write cycle.
func (b *Backend) RecordFix(f *core.Fix) error {
	if f == nil {
		return errors.New("record fix: nil fix")
	}
	b.fixes.Push(convert.CoreToFix(*f, b.SiteID()))
	return nil
}

// RecordPerformance writes p immediately.
func (b *Backend) RecordPerformance(p *core.Performance) error {
	if b.deps.DB == nil {
		return ErrNoDatabase
	}
	row := model.Performance{
		Time:                p.Time,
		SiteID:              b.SiteID(),
		FixQueue:            clampUint16(p.FixQueue),
		LeftObservers:       clampUint16(p.LeftObservers),
		RightObservers:      clampUint16(p.RightObservers),
		LastWriteDurationMs: float32(p.LastWriteDuration.Seconds() * 1000),
	}
	if err := b.deps.DB.Omit(clause.Associations).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to insert performance sample: %w", err)
	}
	return nil
}

// RecentFixes flushes pending writes and returns the newest fixes of the site.
func (b *Backend) RecentFixes(ctx context.Context, limit int) ([]core.Fix, error) {
	if b.deps.DB == nil {
		return nil, ErrNoDatabase
	}
	b.flush()

	var rows []model.Fix
	err := b.deps.DB.WithContext(ctx).
		Where("site_id = ?", b.SiteID()).
		Order("time desc").
		Order("id desc").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query fixes: %w", err)
	}
	return convert.FixesToCore(rows), nil
}

// QueueLen returns the number of fixes waiting for the writer.
func (b *Backend) QueueLen() int {
	return b.fixes.Len()
}

// GetLastDBWriteDuration returns the duration of the last non-empty write cycle.
func (b *Backend) GetLastDBWriteDuration() time.Duration {
	return time.Duration(b.lastWrite.Load())
}

func (b *Backend) writerLoop() {
	defer close(b.done)

	ticker := time.NewTicker(b.deps.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			b.flush()
		}
	}
}

// flush writes all queued fixes in one transaction. It returns the number
// written, or -1 if the write failed and the fixes were requeued.
func (b *Backend) flush() int {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	start := time.Now()
	n := writeQueue(b.deps.DB, b.fixes, "fixes", b.deps.Logger)
	if n > 0 {
		b.lastWrite.Store(int64(time.Since(start)))
	}
	return n
}

func writeQueue[T any](db *gorm.DB, q *queue.Queue[T], name string, log *slog.Logger) int {
	if q.Empty() {
		return 0
	}

	tx := db.Begin()
	items := q.GetAndEmpty()
	if err := tx.Omit(clause.Associations).Create(&items).Error; err != nil {
		log.Error("DB write failed", "table", name, "count", len(items), "error", err)
		tx.Rollback()
		q.Push(items...)
		return -1
	}

	if err := tx.Commit().Error; err != nil {
		log.Error("DB commit failed", "table", name, "count", len(items), "error", err)
		q.Push(items...)
		return -1
	}
	return len(items)
}

func clampUint16(n int) uint16 {
	switch {
	case n < 0:
		return 0
	case n > 65535:
		return 65535
	default:
		return uint16(n)
	}
}
