package geo

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stereoloc/locator/pkg/core"
)

func TestAnglesFromString_Radians(t *testing.T) {
	a, err := AnglesFromString("1.0471975512,0.25", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.HorizontalAngleRad != 1.0471975512 {
		t.Errorf("expected horizontal=1.0471975512, got %f", a.HorizontalAngleRad)
	}
	if a.VerticalAngleRad != 0.25 {
		t.Errorf("expected vertical=0.25, got %f", a.VerticalAngleRad)
	}
}

func TestAnglesFromString_Degrees(t *testing.T) {
	a, err := AnglesFromString(" 90 , -45 ", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assert.InDelta(t, math.Pi/2, a.HorizontalAngleRad, 1e-12)
	assert.InDelta(t, -math.Pi/4, a.VerticalAngleRad, 1e-12)
}

func TestAnglesFromString_Invalid(t *testing.T) {
	for _, in := range []string{"", "1.0", "1,2,3", "abc,1", "1,xyz"} {
		_, err := AnglesFromString(in, false)
		if !errors.Is(err, ErrInvalidBearing) {
			t.Errorf("AnglesFromString(%q): expected ErrInvalidBearing, got %v", in, err)
		}
	}
}

func TestDegRadRoundTrip(t *testing.T) {
	assert.InDelta(t, 37.5, RadToDeg(DegToRad(37.5)), 1e-12)
	assert.InDelta(t, math.Pi, DegToRad(180), 1e-15)
}

func TestPointFromCoordinate(t *testing.T) {
	c := core.Coordinate3D{X: 0.5, Y: 0.43301, Z: 0.75}
	p := PointFromCoordinate(c)

	coords, ok := p.Coordinates()
	require.True(t, ok, "expected valid coordinates")
	assert.Equal(t, 0.5, coords.X)
	assert.Equal(t, 0.43301, coords.Y)
	assert.Equal(t, 0.75, coords.Z)

	assert.Equal(t, c, CoordinateFromPoint(p))
}

func TestSiteGeoreference_AlongBaseline(t *testing.T) {
	// baseline points due east from the equator/prime meridian
	site := Site{HeadingRad: DegToRad(90)}

	pos := site.Georeference(core.Coordinate3D{X: 100})

	wantLon := RadToDeg(100.0 / 6378137.0)
	assert.InDelta(t, wantLon, pos.Longitude, 1e-7)
	assert.InDelta(t, 0, pos.Latitude, 1e-7)
}

func TestSiteGeoreference_InFront(t *testing.T) {
	site := Site{HeadingRad: DegToRad(90), Elevation: 12}

	pos := site.Georeference(core.Coordinate3D{Y: 100, Z: 3})

	wantLat := RadToDeg(100.0 / 6378137.0)
	assert.InDelta(t, 0, pos.Longitude, 1e-7)
	assert.InDelta(t, wantLat, pos.Latitude, 1e-6)
	assert.Equal(t, 15.0, pos.Elevation)
}

func TestSiteGeoreference_OriginIsSite(t *testing.T) {
	site := Site{Longitude: 13.4, Latitude: 52.5, HeadingRad: DegToRad(30)}

	pos := site.Georeference(core.Coordinate3D{})

	assert.InDelta(t, 13.4, pos.Longitude, 1e-9)
	assert.InDelta(t, 52.5, pos.Latitude, 1e-9)
}

func TestGeoPoint(t *testing.T) {
	p := GeoPoint(core.GeoPosition{Longitude: 13.4, Latitude: 52.5, Elevation: 34})
	coords, ok := p.Coordinates()
	require.True(t, ok)
	assert.Equal(t, 13.4, coords.X)
	assert.Equal(t, 52.5, coords.Y)
	assert.Equal(t, 34.0, coords.Z)
}
