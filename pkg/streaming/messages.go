package streaming

import (
	"encoding/json"

	"github.com/stereoloc/locator/pkg/core"
)

// TriggerFindMarker is the text frame broadcast to every observer when a
// location attempt begins.
const TriggerFindMarker = "find-marker"

// Message type constants for the upstream streaming protocol.
const (
	TypeHello = "hello"
	TypeFix   = "fix"
	TypeBye   = "bye"
	TypeAck   = "ack"
)

// Envelope wraps all messages sent over the upstream WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// AckMessage is the upstream server's acknowledgement response.
// Fixes are acknowledged one by one with ID set to the fix's attempt ID.
type AckMessage struct {
	Type string `json:"type"` // always "ack"
	For  string `json:"for"`  // the message type being acknowledged
	ID   string `json:"id,omitempty"`
}

// HelloPayload identifies the sending site when the stream opens.
type HelloPayload struct {
	SiteName string  `json:"siteName"`
	Baseline float64 `json:"baseline"`
}

// FixPayload is the upstream representation of a located point.
type FixPayload struct {
	AttemptID                     string   `json:"attemptId"`
	Time                          int64    `json:"time"` // unix millis
	X                             float64  `json:"x"`
	Y                             float64  `json:"y"`
	Z                             float64  `json:"z"`
	Baseline                      float64  `json:"baseline"`
	AbsVerticalAngleDifferenceRad float64  `json:"absVerticalAngleDifferenceRad"`
	Longitude                     *float64 `json:"longitude,omitempty"`
	Latitude                      *float64 `json:"latitude,omitempty"`
}

// NewFixPayload flattens f for the wire.
func NewFixPayload(f core.Fix) FixPayload {
	p := FixPayload{
		AttemptID:                     f.AttemptID,
		Time:                          f.Time.UnixMilli(),
		X:                             f.Position.X,
		Y:                             f.Position.Y,
		Z:                             f.Position.Z,
		Baseline:                      f.Baseline,
		AbsVerticalAngleDifferenceRad: f.AbsVerticalAngleDifferenceRad,
	}
	if f.Geo != nil {
		lon, lat := f.Geo.Longitude, f.Geo.Latitude
		p.Longitude = &lon
		p.Latitude = &lat
	}
	return p
}
