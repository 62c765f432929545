package geo

import (
	"errors"
	"math"
	"strconv"
	"strings"

	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/wroge/wgs84"

	"github.com/stereoloc/locator/pkg/core"
)

// ErrInvalidBearing is returned when a bearing string cannot be parsed
var ErrInvalidBearing = errors.New("invalid bearing provided")

// AnglesFromString parses "horizontal,vertical" into core.Angles.
// When degrees is set both components are converted from degrees to radians.
func AnglesFromString(s string, degrees bool) (core.Angles, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return core.Angles{}, ErrInvalidBearing
	}
	h, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return core.Angles{}, ErrInvalidBearing
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return core.Angles{}, ErrInvalidBearing
	}
	if degrees {
		h, v = DegToRad(h), DegToRad(v)
	}
	return core.Angles{HorizontalAngleRad: h, VerticalAngleRad: v}, nil
}

// DegToRad converts degrees to radians.
func DegToRad(deg float64) float64 {
	return deg * (math.Pi / 180)
}

// RadToDeg converts radians to degrees.
func RadToDeg(rad float64) float64 {
	return rad / (math.Pi / 180)
}

// PointFromCoordinate builds an XYZ point in the local observer frame.
func PointFromCoordinate(c core.Coordinate3D) geom.Point {
	return geom.NewPoint(
		geom.Coordinates{
			XY:   geom.XY{X: c.X, Y: c.Y},
			Z:    c.Z,
			Type: geom.DimXYZ,
		},
	)
}

// CoordinateFromPoint is the inverse of PointFromCoordinate.
// An empty point yields the origin.
func CoordinateFromPoint(p geom.Point) core.Coordinate3D {
	c, ok := p.Coordinates()
	if !ok {
		return core.Coordinate3D{}
	}
	return core.Coordinate3D{X: c.X, Y: c.Y, Z: c.Z}
}

// Site anchors the local observer frame on the earth.
// The left observer stands at Longitude/Latitude (EPSG:4326) and the baseline
// points along HeadingRad, clockwise from true north.
type Site struct {
	Longitude  float64
	Latitude   float64
	Elevation  float64
	HeadingRad float64
}

// Georeference projects a local coordinate (baseline units taken as metres)
// through EPSG:3857 and back to longitude/latitude.
func (s Site) Georeference(c core.Coordinate3D) core.GeoPosition {
	epsg := wgs84.EPSG()
	toMercator := epsg.Transform(4326, 3857)
	fromMercator := epsg.Transform(3857, 4326)

	mx, my, _ := toMercator(s.Longitude, s.Latitude, 0)

	// +X follows the heading, +Y is a quarter turn counter-clockwise from it
	sinH, cosH := math.Sincos(s.HeadingRad)
	east := c.X*sinH - c.Y*cosH
	north := c.X*cosH + c.Y*sinH

	// web mercator stretches ground distance by 1/cos(latitude)
	k := 1 / math.Cos(DegToRad(s.Latitude))
	lon, lat, _ := fromMercator(mx+east*k, my+north*k, 0)

	return core.GeoPosition{
		Longitude: lon,
		Latitude:  lat,
		Elevation: s.Elevation + c.Z,
	}
}

// GeoPoint returns the georeferenced position as an XYZ point in EPSG:4326.
func GeoPoint(p core.GeoPosition) geom.Point {
	return geom.NewPoint(
		geom.Coordinates{
			XY:   geom.XY{X: p.Longitude, Y: p.Latitude},
			Z:    p.Elevation,
			Type: geom.DimXYZ,
		},
	)
}
