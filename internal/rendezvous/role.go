package rendezvous

import (
	"fmt"
	"strings"
)

// Role identifies which observer a measurement belongs to.
type Role int

const (
	Left Role = iota
	Right
)

// Roles lists both roles in slot order.
var Roles = [...]Role{Left, Right}

func (r Role) String() string {
	switch r {
	case Left:
		return "left"
	case Right:
		return "right"
	default:
		return fmt.Sprintf("Role(%d)", int(r))
	}
}

// Valid reports whether r is one of the two known roles.
func (r Role) Valid() bool {
	return r == Left || r == Right
}

// ParseRole accepts "left"/"right" and the legacy "leftCamera"/"rightCamera".
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "left", "leftcamera":
		return Left, nil
	case "right", "rightcamera":
		return Right, nil
	}
	return 0, fmt.Errorf("unknown role %q", s)
}
