package users

import (
	"database/sql/driver"
	"fmt"
	"strings"
)

// Role is the access level of a user. The zero value is not a valid role.
type Role uint8

const (
	// RoleOwner has full access to everything.
	RoleOwner Role = iota + 1
	// RoleAdmin manages users and settings.
	RoleAdmin
	// RoleEmployee has access to day-to-day functions.
	RoleEmployee
	// RoleGuest can only view.
	RoleGuest
)

var roleNames = map[Role]string{
	RoleOwner:    "Owner",
	RoleAdmin:    "Admin",
	RoleEmployee: "Employee",
	RoleGuest:    "Guest",
}

var roleAliases = map[string]Role{
	"owner":         RoleOwner,
	"владелец":      RoleOwner,
	"admin":         RoleAdmin,
	"администратор": RoleAdmin,
	"employee":      RoleEmployee,
	"сотрудник":     RoleEmployee,
	"guest":         RoleGuest,
	"гость":         RoleGuest,
}

// Roles returns every role from most to least privileged.
func Roles() []Role {
	return []Role{RoleOwner, RoleAdmin, RoleEmployee, RoleGuest}
}

// ParseRole accepts English or Russian role names in any case.
func ParseRole(s string) (Role, error) {
	role, ok := roleAliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidRole, s)
	}
	return role, nil
}

// IsValid reports whether r is one of the defined roles.
func (r Role) IsValid() bool {
	_, ok := roleNames[r]
	return ok
}

// IsAdmin is true for Owner and Admin.
func (r Role) IsAdmin() bool {
	return r == RoleOwner || r == RoleAdmin
}

// String returns the stored name of the role.
func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return fmt.Sprintf("Role(%d)", uint8(r))
}

// MarshalText implements encoding.TextMarshaler.
func (r Role) MarshalText() ([]byte, error) {
	if !r.IsValid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidRole, uint8(r))
	}
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Role) UnmarshalText(text []byte) error {
	role, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = role
	return nil
}

// Value implements driver.Valuer.
func (r Role) Value() (driver.Value, error) {
	if !r.IsValid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidRole, uint8(r))
	}
	return r.String(), nil
}

// Scan implements sql.Scanner.
func (r *Role) Scan(src any) error {
	switch v := src.(type) {
	case string:
		return r.UnmarshalText([]byte(v))
	case []byte:
		return r.UnmarshalText(v)
	default:
		return fmt.Errorf("cannot scan %T into Role", src)
	}
}
