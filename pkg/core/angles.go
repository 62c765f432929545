// pkg/core/angles.go
package core

// Angles is one bearing measurement reported by an observer.
// HorizontalAngleRad is measured from the baseline towards the located point;
// VerticalAngleRad is signed, zero at the observer's horizontal plane.
type Angles struct {
	HorizontalAngleRad float64 `json:"horizontalAngleRad"`
	VerticalAngleRad   float64 `json:"verticalAngleRad"`
}

// Coordinate3D is a located point relative to the left observer, in baseline units.
type Coordinate3D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// GeoPosition is a fix projected onto the earth using the configured site origin.
type GeoPosition struct {
	Longitude float64 `json:"longitude"`
	Latitude  float64 `json:"latitude"`
	Elevation float64 `json:"elevation"`
}
