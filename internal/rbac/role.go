// Package rbac holds the role model and the authorization decision table for
// the content admin.
package rbac

import (
	"sort"
	"strings"
)

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleEditor   Role = "editor"
	RoleReviewer Role = "reviewer"
	RoleViewer   Role = "viewer"
)

var knownRoles = []Role{RoleAdmin, RoleEditor, RoleReviewer, RoleViewer}

// ParseRole accepts any casing ("ADMIN" rows predate the lowercase roles).
func ParseRole(raw string) (Role, bool) {
	candidate := Role(strings.ToLower(strings.TrimSpace(raw)))
	for _, role := range knownRoles {
		if candidate == role {
			return role, true
		}
	}
	return "", false
}

func (r Role) Valid() bool {
	_, ok := ParseRole(string(r))
	return ok
}

// RoleSet is an unordered set of recognised roles.
type RoleSet map[Role]struct{}

func NewRoleSet(roles ...Role) RoleSet {
	set := make(RoleSet, len(roles))
	for _, role := range roles {
		if parsed, ok := ParseRole(string(role)); ok {
			set[parsed] = struct{}{}
		}
	}
	return set
}

// ParseRoleSet drops blank and unrecognised entries.
func ParseRoleSet(raw []string) RoleSet {
	set := make(RoleSet, len(raw))
	for _, value := range raw {
		if role, ok := ParseRole(value); ok {
			set[role] = struct{}{}
		}
	}
	return set
}

func (s RoleSet) Has(role Role) bool {
	_, ok := s[role]
	return ok
}

func (s RoleSet) HasAny(roles ...Role) bool {
	for _, role := range roles {
		if s.Has(role) {
			return true
		}
	}
	return false
}

func (s RoleSet) Empty() bool {
	return len(s) == 0
}

// Strings returns the roles sorted for stable JSON and token payloads.
func (s RoleSet) Strings() []string {
	out := make([]string, 0, len(s))
	for role := range s {
		out = append(out, string(role))
	}
	sort.Strings(out)
	return out
}

func (s RoleSet) Roles() []Role {
	out := make([]Role, 0, len(s))
	for _, value := range s.Strings() {
		out = append(out, Role(value))
	}
	return out
}
