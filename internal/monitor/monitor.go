package monitor

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/stereoloc/locator/internal/rendezvous"
	"github.com/stereoloc/locator/internal/storage"
	"github.com/stereoloc/locator/pkg/core"
)

const defaultInterval = 10 * time.Second

// WriteStats is the view of the worker manager the monitor samples.
type WriteStats interface {
	QueueLen() int
	GetLastDBWriteDuration() time.Duration
	Recorded() int64
	Failed() int64
	LastFixTime() time.Time
}

// ObserverCounter reports connected observers per role.
type ObserverCounter interface {
	Counts() map[string]int
}

// PerformanceWriter exports samples to a time-series store.
type PerformanceWriter interface {
	WritePerformance(ctx context.Context, p core.Performance) error
}

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	Worker    WriteStats
	Observers ObserverCounter
	// Recorder and Influx receive a sample every Interval when set.
	Recorder storage.PerformanceRecorder
	Influx   PerformanceWriter
	// StatusFile is rewritten with the current Status every Interval when set.
	StatusFile string
	Interval   time.Duration
	Logger     *slog.Logger
}

// Status is the process part of the status endpoint.
type Status struct {
	StartedAt           time.Time      `json:"startedAt"`
	Uptime              string         `json:"uptime"`
	FixQueue            int            `json:"fixQueue"`
	LastWriteDurationMs float64        `json:"lastWriteDurationMs"`
	FixesRecorded       int64          `json:"fixesRecorded"`
	FixesFailed         int64          `json:"fixesFailed"`
	LastFixTime         time.Time      `json:"lastFixTime,omitzero"`
	Observers           map[string]int `json:"observers,omitempty"`
}

// Service manages status monitoring
type Service struct {
	deps      Dependencies
	startedAt time.Time
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	done      chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Interval <= 0 {
		deps.Interval = defaultInterval
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Service{
		deps:      deps,
		startedAt: time.Now(),
	}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// GetProgramStatus returns the current program status.
func (s *Service) GetProgramStatus() Status {
	st := Status{
		StartedAt: s.startedAt,
		Uptime:    time.Since(s.startedAt).Round(time.Second).String(),
	}
	if w := s.deps.Worker; w != nil {
		st.FixQueue = w.QueueLen()
		st.LastWriteDurationMs = float64(w.GetLastDBWriteDuration()) / float64(time.Millisecond)
		st.FixesRecorded = w.Recorded()
		st.FixesFailed = w.Failed()
		st.LastFixTime = w.LastFixTime()
	}
	if s.deps.Observers != nil {
		st.Observers = s.deps.Observers.Counts()
	}
	return st
}

// Status implements the server's status provider.
func (s *Service) Status() any {
	return s.GetProgramStatus()
}

// Sample returns a performance sample for the current moment.
func (s *Service) Sample() core.Performance {
	p := core.Performance{Time: time.Now()}
	if w := s.deps.Worker; w != nil {
		p.FixQueue = w.QueueLen()
		p.LastWriteDuration = w.GetLastDBWriteDuration()
	}
	if s.deps.Observers != nil {
		counts := s.deps.Observers.Counts()
		p.LeftObservers = counts[rendezvous.Left.String()]
		p.RightObservers = counts[rendezvous.Right.String()]
	}
	return p
}

// Start starts the status monitor goroutine
func (s *Service) Start() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.run(s.stopChan, s.done)
	return nil
}

func (s *Service) run(stop <-chan struct{}, done chan<- struct{}) {
	defer func() {
		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()
		close(done)
	}()

	logger := s.deps.Logger
	logger.Debug("Starting status monitor", "interval", s.deps.Interval)

	ticker := time.NewTicker(s.deps.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *Service) tick() {
	logger := s.deps.Logger

	if s.deps.StatusFile != "" {
		if err := s.writeStatusFile(); err != nil {
			logger.Error("Error writing status file", "path", s.deps.StatusFile, "error", err)
		}
	}

	sample := s.Sample()
	if s.deps.Recorder != nil {
		if err := s.deps.Recorder.RecordPerformance(&sample); err != nil {
			logger.Error("Error writing performance sample", "error", err)
		}
	}
	if s.deps.Influx != nil {
		if err := s.deps.Influx.WritePerformance(context.Background(), sample); err != nil {
			logger.Error("Error writing performance sample to influx", "error", err)
		}
	}
}

func (s *Service) writeStatusFile() error {
	data, err := json.MarshalIndent(s.GetProgramStatus(), "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.deps.StatusFile, append(data, '\n'), 0644)
}

// Stop stops the status monitor and waits for the goroutine to exit.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	stop, done := s.stopChan, s.done
	s.stopChan = nil
	s.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
}
