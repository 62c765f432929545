package rendezvous

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/stereoloc/locator/pkg/core"
)

type rawAngles struct {
	HorizontalAngleRad *float64 `json:"horizontalAngleRad"`
	VerticalAngleRad   *float64 `json:"verticalAngleRad"`
}

// ParseAngles decodes an observer payload. Both fields must be present and
// finite; anything else wraps ErrInvalidAngles.
func ParseAngles(payload []byte) (core.Angles, error) {
	var raw rawAngles
	if err := json.Unmarshal(payload, &raw); err != nil {
		return core.Angles{}, fmt.Errorf("%w: %v", ErrInvalidAngles, err)
	}
	if raw.HorizontalAngleRad == nil {
		return core.Angles{}, fmt.Errorf("%w: missing horizontalAngleRad", ErrInvalidAngles)
	}
	if raw.VerticalAngleRad == nil {
		return core.Angles{}, fmt.Errorf("%w: missing verticalAngleRad", ErrInvalidAngles)
	}

	h, v := *raw.HorizontalAngleRad, *raw.VerticalAngleRad
	if !finite(h) || !finite(v) {
		return core.Angles{}, fmt.Errorf("%w: non-finite value", ErrInvalidAngles)
	}
	return core.Angles{HorizontalAngleRad: h, VerticalAngleRad: v}, nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
