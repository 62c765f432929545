package geo

import (
	"errors"
	"fmt"
	"math"

	"github.com/stereoloc/locator/pkg/core"
)

// Precision is the number of decimals a triangulated coordinate is rounded to.
const Precision = 5

// degenerateEpsilon bounds the tangent of the angle at the located point.
// Below it the two lines of sight are treated as parallel.
const degenerateEpsilon = 1e-12

// ErrDegenerateGeometry is returned when the lines of sight from both
// observers do not intersect in front of the baseline.
var ErrDegenerateGeometry = errors.New("degenerate geometry: lines of sight do not intersect")

// ErrInvalidBaseline is returned for a baseline that is not a positive finite distance.
var ErrInvalidBaseline = errors.New("baseline must be a positive finite distance")

// ValidateBaseline returns an error wrapping ErrInvalidBaseline unless
// baseline is finite and greater than zero.
func ValidateBaseline(baseline float64) error {
	if math.IsNaN(baseline) || math.IsInf(baseline, 0) || baseline <= 0 {
		return fmt.Errorf("%w: %v", ErrInvalidBaseline, baseline)
	}
	return nil
}

// LengthAC returns the distance from the left observer A to the located point C.
//
//	                 C
//	                /\
//	               /  \
//	              /    \
//	A (alpha)    /______\    B (beta)
//	           baseline c
//
// The baseline is split at the foot of the perpendicular from B onto A–C.
// The sum of both horizontal angles picks one of three branches so that the
// tangent of the angle at C is never evaluated at the right angle.
func LengthAC(alpha, beta, baseline float64) (float64, error) {
	gamma := math.Pi - alpha - beta
	d := math.Sin(alpha) * baseline
	b1 := math.Cos(alpha) * baseline

	var length float64
	switch sum := alpha + beta; {
	case sum > math.Pi/2:
		// gamma acute
		t := math.Tan(gamma)
		if math.Abs(t) < degenerateEpsilon {
			return 0, ErrDegenerateGeometry
		}
		length = b1 + d/t
	case sum < math.Pi/2:
		// gamma obtuse
		t := math.Tan(math.Pi - gamma)
		if math.Abs(t) < degenerateEpsilon {
			return 0, ErrDegenerateGeometry
		}
		length = b1 - d/t
	default:
		length = b1
	}

	if math.IsNaN(length) || math.IsInf(length, 0) {
		return 0, ErrDegenerateGeometry
	}
	return length, nil
}

// Triangulate converts one bearing pair per observer into a coordinate relative
// to the left observer: X along the baseline, Y in front of it, Z up.
// Only the left observer's vertical angle splits the radial distance.
func Triangulate(left, right core.Angles, baseline float64) (core.Coordinate3D, error) {
	if err := ValidateBaseline(baseline); err != nil {
		return core.Coordinate3D{}, err
	}
	alpha := left.HorizontalAngleRad

	ac, err := LengthAC(alpha, right.HorizontalAngleRad, baseline)
	if err != nil {
		return core.Coordinate3D{}, err
	}

	x := ac * math.Cos(alpha)
	r := ac * math.Sin(alpha)

	v := left.VerticalAngleRad
	y := r * math.Cos(v)
	z := r * math.Sin(v)

	return core.Coordinate3D{
		X: RoundTo(x, Precision),
		Y: RoundTo(y, Precision),
		Z: RoundTo(z, Precision),
	}, nil
}

// VerticalDifference returns the absolute difference between both observers'
// vertical angles. Ideally both observers see the point at the same elevation.
func VerticalDifference(left, right core.Angles) float64 {
	return math.Abs(left.VerticalAngleRad - right.VerticalAngleRad)
}

// RoundTo rounds half away from zero to the given number of decimals.
func RoundTo(v float64, decimals int) float64 {
	scale := math.Pow(10, float64(decimals))
	r := math.Round(v*scale) / scale
	if r == 0 {
		// drop negative zero
		return 0
	}
	return r
}
