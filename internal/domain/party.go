package domain

import (
	"errors"
	"strconv"
	"strings"
)

// ErrInvalidParty is returned when a composite contact identifier cannot be parsed.
var ErrInvalidParty = errors.New("invalid contact identifier")

// Party is one end of a direct-message channel. Its wire form is "role_id",
// e.g. "admin_6f1c…" or "employee_12".
type Party struct {
	Role Role
	ID   string
}

// String returns the composite "role_id" form.
func (p Party) String() string { return string(p.Role) + "_" + p.ID }

// EmployeeParty builds the party for an employee id.
func EmployeeParty(id uint) Party {
	return Party{Role: RoleEmployee, ID: strconv.FormatUint(uint64(id), 10)}
}

// AdminParty builds the party for an admin id.
func AdminParty(id string) Party { return Party{Role: RoleAdmin, ID: id} }

// ParseParty parses "admin_<id>", "employee_<id>", or a bare employee number.
// Employee ids must be positive integers.
func ParseParty(s string) (Party, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Party{}, ErrInvalidParty
	}
	role, id, found := strings.Cut(s, "_")
	if !found {
		role, id = string(RoleEmployee), s
	}
	switch Role(role) {
	case RoleAdmin:
		if strings.TrimSpace(id) == "" {
			return Party{}, ErrInvalidParty
		}
		return Party{Role: RoleAdmin, ID: id}, nil
	case RoleEmployee:
		n, err := strconv.ParseUint(id, 10, 64)
		if err != nil || n == 0 {
			return Party{}, ErrInvalidParty
		}
		return Party{Role: RoleEmployee, ID: strconv.FormatUint(n, 10)}, nil
	default:
		return Party{}, ErrInvalidParty
	}
}

// EmployeeID returns the numeric id of an employee party.
func (p Party) EmployeeID() (uint, bool) {
	if p.Role != RoleEmployee {
		return 0, false
	}
	n, err := strconv.ParseUint(p.ID, 10, 64)
	if err != nil {
		return 0, false
	}
	return uint(n), true
}
