package domain

import (
	"fmt"
	"strings"
)

// Role is the privilege level attached to a connection. Roles are totally
// ordered: guest < customer < admin.
type Role int

const (
	RoleGuest Role = iota
	RoleCustomer
	RoleAdmin
)

// String returns the wire name of the role.
func (r Role) String() string {
	switch r {
	case RoleGuest:
		return "guest"
	case RoleCustomer:
		return "customer"
	case RoleAdmin:
		return "admin"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// AtLeast reports whether r meets the min privilege bar.
func (r Role) AtLeast(min Role) bool {
	return r >= min
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r >= RoleGuest && r <= RoleAdmin
}

// ParseRole converts a wire name into a Role.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "guest":
		return RoleGuest, nil
	case "customer":
		return RoleCustomer, nil
	case "admin":
		return RoleAdmin, nil
	default:
		return RoleGuest, fmt.Errorf("unknown role %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("invalid role %d", int(r))
	}
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Role) UnmarshalText(text []byte) error {
	parsed, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
