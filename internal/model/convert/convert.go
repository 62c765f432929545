// Package convert provides functions to convert between GORM models and core models
package convert

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"github.com/stereoloc/locator/internal/geo"
	"github.com/stereoloc/locator/internal/model"
	"github.com/stereoloc/locator/pkg/core"
)

// fixAngles is the JSON layout of model.Fix.Angles.
type fixAngles struct {
	Left  core.Angles `json:"left"`
	Right core.Angles `json:"right"`
}

func anglesToJSON(left, right core.Angles) datatypes.JSON {
	data, err := json.Marshal(fixAngles{Left: left, Right: right})
	if err != nil {
		return datatypes.JSON("{}")
	}
	return datatypes.JSON(data)
}

// CoreToFix converts a core.Fix to a GORM model.Fix belonging to siteID.
func CoreToFix(f core.Fix, siteID uint) model.Fix {
	m := model.Fix{
		ID:                            f.ID,
		SiteID:                        siteID,
		AttemptID:                     f.AttemptID,
		Time:                          f.Time,
		DurationMs:                    float32(f.Duration.Seconds() * 1000),
		Baseline:                      f.Baseline,
		Position:                      geo.PointFromCoordinate(f.Position),
		Angles:                        anglesToJSON(f.LeftAngles, f.RightAngles),
		AbsVerticalAngleDifferenceRad: f.AbsVerticalAngleDifferenceRad,
		VerticalToleranceRad:          f.VerticalToleranceRad,
		VerticalToleranceExceeded:     f.VerticalToleranceExceeded,
	}
	if f.Geo != nil {
		m.GeoLocation = geo.GeoPoint(*f.Geo)
	}
	return m
}

// FixToCore converts a GORM model.Fix back to a core.Fix.
// Malformed angle JSON yields zero angles.
func FixToCore(m model.Fix) core.Fix {
	var angles fixAngles
	if len(m.Angles) > 0 {
		_ = json.Unmarshal(m.Angles, &angles)
	}

	f := core.Fix{
		ID:                            m.ID,
		AttemptID:                     m.AttemptID,
		Time:                          m.Time,
		Duration:                      time.Duration(float64(m.DurationMs) * float64(time.Millisecond)),
		Baseline:                      m.Baseline,
		Position:                      geo.CoordinateFromPoint(m.Position),
		LeftAngles:                    angles.Left,
		RightAngles:                   angles.Right,
		AbsVerticalAngleDifferenceRad: m.AbsVerticalAngleDifferenceRad,
		VerticalToleranceRad:          m.VerticalToleranceRad,
		VerticalToleranceExceeded:     m.VerticalToleranceExceeded,
	}
	if c, ok := m.GeoLocation.Coordinates(); ok {
		f.Geo = &core.GeoPosition{Longitude: c.X, Latitude: c.Y, Elevation: c.Z}
	}
	return f
}

// FixesToCore converts a slice of GORM fixes, preserving order.
func FixesToCore(ms []model.Fix) []core.Fix {
	out := make([]core.Fix, 0, len(ms))
	for _, m := range ms {
		out = append(out, FixToCore(m))
	}
	return out
}
