package rendezvous

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/stereoloc/locator/internal/geo"
	"github.com/stereoloc/locator/internal/logging"
	"github.com/stereoloc/locator/pkg/core"
	"github.com/stereoloc/locator/pkg/streaming"
)

// Broadcaster delivers the measurement trigger to every connected observer.
// It must not block and returns how many observers were signalled.
type Broadcaster interface {
	Broadcast(trigger string) int
}

// Config holds coordinator settings.
type Config struct {
	// Baseline used by Locate.
	Baseline float64
	// Timeout fails an open attempt after the given duration. Zero waits forever.
	Timeout time.Duration
	// VerticalTolerance is the advisory limit on the vertical angle difference in radians.
	VerticalTolerance float64
}

// Result is the outcome of a successful attempt.
type Result struct {
	core.Coordinate3D

	AbsVerticalAngleDifferenceRad float64     `json:"absVerticalAngleDifferenceRad"`
	VerticalToleranceRad          float64     `json:"verticalAngleDifferenceToleranceRad"`
	VerticalToleranceExceeded     bool        `json:"verticalAngleDifferenceExceeded"`
	LeftAngles                    core.Angles `json:"leftCameraAngles"`
	RightAngles                   core.Angles `json:"rightCameraAngles"`
	AttemptID                     string      `json:"attemptId"`
	Baseline                      float64     `json:"baseline"`

	StartedAt time.Time     `json:"-"`
	Duration  time.Duration `json:"-"`
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger used by the coordinator.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = l
	}
}

// WithResultHook registers fn to be called after every successful attempt.
// fn runs on the goroutine that completed the attempt and must not block.
func WithResultHook(fn func(*Result)) Option {
	return func(c *Coordinator) {
		c.onResult = fn
	}
}

type attempt struct {
	id       uuid.UUID
	logCtx   context.Context
	baseline float64
	started  time.Time

	pending  [2]bool
	received [2]bool
	angles   [2]core.Angles

	timer *time.Timer
	done  chan struct{}

	result *Result
	err    error
}

// Coordinator pairs one measurement per role into a single location attempt.
// At most one attempt is open at a time.
type Coordinator struct {
	cfg         Config
	broadcaster Broadcaster
	logger      *slog.Logger
	onResult    func(*Result)

	mu      sync.Mutex
	current *attempt

	attempts  metric.Int64Counter
	duration  metric.Float64Histogram
	discarded metric.Int64Counter
}

// New creates a Coordinator.
// Uses the global OTel meter for metrics (no-op if not configured).
func New(cfg Config, b Broadcaster, opts ...Option) (*Coordinator, error) {
	c := &Coordinator{
		cfg:         cfg,
		broadcaster: b,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	m := meter()

	var err error

	c.attempts, err = m.Int64Counter(
		"rendezvous.attempts",
		metric.WithDescription("Location attempts by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating attempts counter: %w", err)
	}

	c.duration, err = m.Float64Histogram(
		"rendezvous.attempt.duration",
		metric.WithDescription("Time from trigger to settlement"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating duration histogram: %w", err)
	}

	c.discarded, err = m.Int64Counter(
		"rendezvous.measurements.discarded",
		metric.WithDescription("Measurements received without a pending slot"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating discarded counter: %w", err)
	}

	return c, nil
}

// Pending is the handle of an open attempt.
type Pending struct {
	c *Coordinator
	a *attempt
}

// ID returns the attempt ID.
func (p *Pending) ID() string {
	return p.a.id.String()
}

// Done is closed once the attempt has settled.
func (p *Pending) Done() <-chan struct{} {
	return p.a.done
}

// Wait blocks until the attempt settles. If ctx ends first the attempt is
// failed with ErrAbandoned so the coordinator returns to idle.
func (p *Pending) Wait(ctx context.Context) (*Result, error) {
	select {
	case <-p.a.done:
	case <-ctx.Done():
		p.c.fail(p.a, fmt.Errorf("%w: %w", ErrAbandoned, context.Cause(ctx)))
		<-p.a.done
	}
	return p.a.result, p.a.err
}

// Begin opens a new attempt and triggers both observers. A baseline that is
// not a positive finite distance is rejected before any observer is signalled.
func (c *Coordinator) Begin(baseline float64) (*Pending, error) {
	if err := geo.ValidateBaseline(baseline); err != nil {
		c.logger.Error("Location attempt rejected", "reason", "invalid baseline", "baseline", baseline)
		c.attempts.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("outcome", "invalid_baseline")))
		return nil, err
	}

	c.mu.Lock()
	if c.current != nil {
		id := c.current.id
		c.mu.Unlock()
		c.logger.Warn("Location attempt rejected", "reason", "in progress", "openAttempt", id)
		c.attempts.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("outcome", "in_progress")))
		return nil, ErrAttemptInProgress
	}

	id := uuid.New()
	a := &attempt{
		id:       id,
		logCtx:   logging.WithAttempt(context.Background(), id.String()),
		baseline: baseline,
		started:  time.Now(),
		pending:  [2]bool{true, true},
		done:     make(chan struct{}),
	}
	if c.cfg.Timeout > 0 {
		a.timer = time.AfterFunc(c.cfg.Timeout, func() {
			c.fail(a, ErrTimeout)
		})
	}
	c.current = a
	c.mu.Unlock()

	n := 0
	if c.broadcaster != nil {
		n = c.broadcaster.Broadcast(streaming.TriggerFindMarker)
	}
	c.logger.InfoContext(a.logCtx, "Location attempt started", "baseline", baseline, "observers", n)

	return &Pending{c: c, a: a}, nil
}

// Locate runs one attempt with the configured baseline.
func (c *Coordinator) Locate(ctx context.Context) (*Result, error) {
	p, err := c.Begin(c.cfg.Baseline)
	if err != nil {
		return nil, err
	}
	return p.Wait(ctx)
}

// Submit feeds one measurement from the observer with the given role.
// An invalid payload returns an error wrapping ErrInvalidAngles and, if the
// role's slot is pending, fails the open attempt. Payloads without a pending
// slot are discarded.
func (c *Coordinator) Submit(role Role, payload []byte) error {
	if !role.Valid() {
		return fmt.Errorf("submit: %s", role)
	}
	angles, parseErr := ParseAngles(payload)

	c.mu.Lock()
	a := c.current
	if a == nil || !a.pending[role] {
		c.mu.Unlock()
		c.discarded.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("role", role.String())))
		c.logger.Debug("Measurement discarded", "role", role, "valid", parseErr == nil)
		return parseErr
	}

	a.pending[role] = false
	if parseErr != nil {
		c.settle(a, nil, &RejectedError{Role: role, Err: parseErr})
		c.mu.Unlock()
		return parseErr
	}

	a.received[role] = true
	a.angles[role] = angles
	if !a.received[Left] || !a.received[Right] {
		c.mu.Unlock()
		return nil
	}

	res, err := c.resolve(a)
	c.settle(a, res, err)
	c.mu.Unlock()

	if res != nil && c.onResult != nil {
		c.onResult(res)
	}
	return nil
}

// State returns a snapshot of the coordinator.
func (c *Coordinator) State() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil {
		return Snapshot{State: StateIdle}
	}
	s := Snapshot{
		State:     StateWaiting,
		AttemptID: c.current.id.String(),
		Since:     c.current.started,
	}
	for _, r := range Roles {
		if c.current.pending[r] {
			s.Pending = append(s.Pending, r.String())
		}
	}
	return s
}

func (c *Coordinator) resolve(a *attempt) (*Result, error) {
	left, right := a.angles[Left], a.angles[Right]

	pos, err := geo.Triangulate(left, right, a.baseline)
	if err != nil {
		return nil, err
	}

	diff := geo.VerticalDifference(left, right)
	res := &Result{
		Coordinate3D:                  pos,
		AbsVerticalAngleDifferenceRad: diff,
		VerticalToleranceRad:          c.cfg.VerticalTolerance,
		LeftAngles:                    left,
		RightAngles:                   right,
		AttemptID:                     a.id.String(),
		Baseline:                      a.baseline,
		StartedAt:                     a.started,
		Duration:                      time.Since(a.started),
	}
	if c.cfg.VerticalTolerance > 0 && diff > c.cfg.VerticalTolerance {
		res.VerticalToleranceExceeded = true
		c.logger.WarnContext(a.logCtx, "Vertical angle difference above tolerance",
			"differenceRad", diff, "toleranceRad", c.cfg.VerticalTolerance)
	}
	return res, nil
}

// fail settles a with err if it is still the open attempt.
func (c *Coordinator) fail(a *attempt, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != a {
		return
	}
	c.settle(a, nil, err)
}

// settle detaches a and publishes its outcome. Caller holds c.mu.
func (c *Coordinator) settle(a *attempt, res *Result, err error) {
	c.current = nil
	a.pending = [2]bool{}
	if a.timer != nil {
		a.timer.Stop()
	}
	a.result = res
	a.err = err
	close(a.done)

	outcome := outcomeOf(err)
	ctx := a.logCtx
	c.attempts.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	c.duration.Record(ctx, time.Since(a.started).Seconds(),
		metric.WithAttributes(attribute.String("outcome", outcome)))

	if err != nil {
		c.logger.WarnContext(ctx, "Location attempt failed", "outcome", outcome, "error", err)
		return
	}
	c.logger.InfoContext(ctx, "Location attempt settled",
		"x", res.X, "y", res.Y, "z", res.Z, "duration", res.Duration)
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrInvalidAngles):
		return "invalid"
	case errors.Is(err, geo.ErrDegenerateGeometry):
		return "degenerate"
	case errors.Is(err, geo.ErrInvalidBaseline):
		return "invalid_baseline"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrAbandoned):
		return "abandoned"
	default:
		return "error"
	}
}
