package access

import (
	"errors"
	"fmt"
	"strings"
)

// Role enumerates the per-competition access levels.
type Role string

const (
	// RoleOwner grants full control over a competition. Administrative
	// identities hold it on every competition.
	RoleOwner Role = "owner"
	// RoleEditor grants write access to a single competition.
	RoleEditor Role = "editor"
	// RoleNone is the implicit role of connections without a membership
	// record or without any identity at all.
	RoleNone Role = ""
)

// ErrInvalidRole indicates a membership row carried an unknown role value.
var ErrInvalidRole = errors.New("access: invalid role")

// ParseRole validates a stored role value.
func ParseRole(raw string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleOwner:
		return RoleOwner, nil
	case RoleEditor:
		return RoleEditor, nil
	case RoleNone:
		return RoleNone, nil
	default:
		return RoleNone, fmt.Errorf("%w: %q", ErrInvalidRole, raw)
	}
}

// Capability is the write-permission token attached to a connection after
// authentication. Mutation entry points require one as a parameter, so a
// caller that skipped the gate cannot construct a merging call.
type Capability struct {
	write bool
}

// Grant derives the capability for a resolved role.
func Grant(role Role) Capability {
	return Capability{write: role == RoleOwner || role == RoleEditor}
}

// CanWrite reports whether the holder may merge updates.
func (c Capability) CanWrite() bool {
	return c.write
}
