package worker

import (
	"context"
	"fmt"

	"github.com/stereoloc/locator/internal/dispatcher"
	"github.com/stereoloc/locator/internal/rendezvous"
	"github.com/stereoloc/locator/pkg/core"
)

// CommandFix carries a *rendezvous.Result to be persisted.
const CommandFix = "fix"

// fixBufferSize bounds fixes waiting for the backend.
const fixBufferSize = 1000

// RegisterHandlers registers all event handlers with the dispatcher.
func (m *Manager) RegisterHandlers(d *dispatcher.Dispatcher) {
	// Persistence is off the request path - buffered
	d.Register(CommandFix, m.handleFix, dispatcher.Buffered(fixBufferSize), dispatcher.Logged())
}

// FixFromResult builds the persisted form of a successful attempt.
func FixFromResult(r *rendezvous.Result) core.Fix {
	return core.Fix{
		AttemptID:                     r.AttemptID,
		Time:                          r.StartedAt.Add(r.Duration),
		Duration:                      r.Duration,
		Baseline:                      r.Baseline,
		Position:                      r.Coordinate3D,
		LeftAngles:                    r.LeftAngles,
		RightAngles:                   r.RightAngles,
		AbsVerticalAngleDifferenceRad: r.AbsVerticalAngleDifferenceRad,
		VerticalToleranceRad:          r.VerticalToleranceRad,
		VerticalToleranceExceeded:     r.VerticalToleranceExceeded,
	}
}

func (m *Manager) handleFix(e dispatcher.Event) (any, error) {
	res, ok := e.Payload.(*rendezvous.Result)
	if !ok || res == nil {
		return nil, fmt.Errorf("failed to log fix: unexpected payload %T", e.Payload)
	}

	fix := FixFromResult(res)
	if m.deps.Site != nil {
		geoPos := m.deps.Site.Georeference(fix.Position)
		fix.Geo = &geoPos
	}

	if err := m.backend.RecordFix(&fix); err != nil {
		m.failed.Add(1)
		return nil, fmt.Errorf("failed to record fix %s: %w", fix.AttemptID, err)
	}
	m.recorded.Add(1)
	m.lastFix.Store(fix.Time.UnixNano())

	if m.deps.Influx != nil {
		if err := m.deps.Influx.WriteFix(context.Background(), fix); err != nil {
			m.deps.Logger.Warn("Failed to write fix to influx", "attemptID", fix.AttemptID, "error", err)
		}
	}

	return fix.AttemptID, nil
}
