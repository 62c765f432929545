package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/pflag"

	"github.com/stereoloc/locator/internal/geo"
	"github.com/stereoloc/locator/pkg/core"
)

// triangulation is printed by the triangulate command.
type triangulation struct {
	core.Coordinate3D
	AbsVerticalAngleDifferenceRad float64     `json:"absVerticalAngleDifferenceRad"`
	LeftAngles                    core.Angles `json:"leftCameraAngles"`
	RightAngles                   core.Angles `json:"rightCameraAngles"`
	Baseline                      float64     `json:"baseline"`
}

func runTriangulate(args []string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("triangulate", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	left := fs.String("left", "", `left observer bearing as "horizontal,vertical"`)
	right := fs.String("right", "", `right observer bearing as "horizontal,vertical"`)
	baseline := fs.Float64("baseline", 1, "distance between both observers")
	degrees := fs.Bool("degrees", false, "bearings are given in degrees")
	if err := fs.Parse(args); err != nil {
		return exitConfig
	}
	if *left == "" || *right == "" {
		fmt.Fprintln(stderr, "both --left and --right are required")
		return exitConfig
	}
	if err := geo.ValidateBaseline(*baseline); err != nil {
		fmt.Fprintf(stderr, "--baseline: %v\n", err)
		return exitConfig
	}

	out, err := triangulateBearings(*left, *right, *baseline, *degrees)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitError
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fmt.Fprintln(stderr, err)
		return exitError
	}
	return exitOK
}

func triangulateBearings(left, right string, baseline float64, degrees bool) (triangulation, error) {
	if err := geo.ValidateBaseline(baseline); err != nil {
		return triangulation{}, fmt.Errorf("--baseline: %w", err)
	}
	l, err := geo.AnglesFromString(left, degrees)
	if err != nil {
		return triangulation{}, fmt.Errorf("--left: %w", err)
	}
	r, err := geo.AnglesFromString(right, degrees)
	if err != nil {
		return triangulation{}, fmt.Errorf("--right: %w", err)
	}

	pos, err := geo.Triangulate(l, r, baseline)
	if err != nil {
		return triangulation{}, err
	}
	return triangulation{
		Coordinate3D:                  pos,
		AbsVerticalAngleDifferenceRad: geo.VerticalDifference(l, r),
		LeftAngles:                    l,
		RightAngles:                   r,
		Baseline:                      baseline,
	}, nil
}
