// pkg/core/fix.go
package core

import "time"

// Fix is the outcome of one successful location attempt.
type Fix struct {
	ID                            uint          `json:"id,omitempty"`
	AttemptID                     string        `json:"attemptId"`
	Time                          time.Time     `json:"time"`
	Duration                      time.Duration `json:"durationNs"`
	Baseline                      float64       `json:"baseline"`
	Position                      Coordinate3D  `json:"position"`
	LeftAngles                    Angles        `json:"leftCameraAngles"`
	RightAngles                   Angles        `json:"rightCameraAngles"`
	AbsVerticalAngleDifferenceRad float64       `json:"absVerticalAngleDifferenceRad"`
	VerticalToleranceRad          float64       `json:"verticalAngleDifferenceToleranceRad"`
	VerticalToleranceExceeded     bool          `json:"verticalAngleDifferenceExceeded"`
	Geo                           *GeoPosition  `json:"geo,omitempty"`
}

// UploadMetadata describes an exported fix archive for the web frontend.
type UploadMetadata struct {
	SiteName  string
	FixCount  int
	StartTime time.Time
	EndTime   time.Time
	Baseline  float64
}
