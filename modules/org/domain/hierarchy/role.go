package hierarchy

import (
	"fmt"
	"strings"
)

// Role is the kind of link between an employee and a unit.
// The zero value is invalid.
type Role string

const (
	RoleMember     Role = "member"
	RoleSupervisor Role = "supervisor"
)

func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(RoleMember):
		return RoleMember, nil
	case string(RoleSupervisor):
		return RoleSupervisor, nil
	default:
		return "", fmt.Errorf("unknown assignment role %q", s)
	}
}

func (r Role) Valid() bool {
	return r == RoleMember || r == RoleSupervisor
}

// Title is the wire spelling ("Member", "Supervisor").
func (r Role) Title() string {
	switch r {
	case RoleMember:
		return "Member"
	case RoleSupervisor:
		return "Supervisor"
	default:
		return ""
	}
}

func (r Role) String() string { return string(r) }
