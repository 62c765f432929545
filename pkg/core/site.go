package core

import "time"

// Site describes the observer installation fixes are recorded for.
// Longitude, Latitude and Elevation locate the left observer when
// Georeferenced is set.
type Site struct {
	ID            uint
	Name          string
	Baseline      float64
	Georeferenced bool
	Longitude     float64
	Latitude      float64
	Elevation     float64
	HeadingDeg    float64
}

// Performance is one sample of the write pipeline.
type Performance struct {
	Time              time.Time
	FixQueue          int
	LeftObservers     int
	RightObservers    int
	LastWriteDuration time.Duration
}
