package rendezvous

import "time"

// State names reported in a Snapshot.
const (
	StateIdle    = "idle"
	StateWaiting = "waiting"
)

// Snapshot describes the coordinator at one point in time.
type Snapshot struct {
	State     string    `json:"state"`
	AttemptID string    `json:"attemptId,omitempty"`
	Since     time.Time `json:"since,omitzero"`
	Pending   []string  `json:"pending,omitempty"`
}
