package authz

import (
	"errors"
	"fmt"
	"strings"
)

// Role is a named privilege category backed by one or more directory groups
type Role string

const (
	RoleAdmins    Role = "Admins"
	RolePartners  Role = "Partners"
	RoleSFRSUsers Role = "SFRSUsers"
)

// KnownRoles lists every role the application recognizes
var KnownRoles = []Role{RoleAdmins, RolePartners, RoleSFRSUsers}

// ErrDirectoryUnavailable reports that membership or ownership facts could not be fetched.
// A decision that fails with this error is undetermined, not denied.
var ErrDirectoryUnavailable = errors.New("directory unavailable")

// ConfigurationError reports a malformed or incomplete role configuration
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return "authz configuration: " + e.Reason
	}
	return fmt.Sprintf("authz configuration: %s: %s", e.Field, e.Reason)
}

// ParseRole resolves a role name. Matching ignores case.
func ParseRole(name string) (Role, error) {
	name = strings.TrimSpace(name)
	for _, role := range KnownRoles {
		if strings.EqualFold(string(role), name) {
			return role, nil
		}
	}
	return "", &ConfigurationError{Field: "role", Reason: fmt.Sprintf("unknown role %q", name)}
}

// SplitList splits a comma-separated value into trimmed, non-empty items
func SplitList(value string) []string {
	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			items = append(items, p)
		}
	}
	return items
}

// RoleGroupMapping maps each role to its ordered group identifiers.
// It is read-only once built and safe for concurrent use.
type RoleGroupMapping struct {
	groups map[Role][]string
}

// NewRoleGroupMapping builds a mapping from already split group lists.
// Group order and duplicates are normalized: first occurrence wins.
func NewRoleGroupMapping(groups map[Role][]string) *RoleGroupMapping {
	m := &RoleGroupMapping{groups: make(map[Role][]string, len(groups))}
	for role, ids := range groups {
		seen := make(map[string]struct{}, len(ids))
		list := make([]string, 0, len(ids))
		for _, id := range ids {
			id = strings.TrimSpace(id)
			if id == "" {
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			list = append(list, id)
		}
		if len(list) > 0 {
			m.groups[role] = list
		}
	}
	return m
}

// ParseRoleGroupMapping builds a mapping from comma-separated group lists keyed by role name
func ParseRoleGroupMapping(raw map[string]string) (*RoleGroupMapping, error) {
	groups := make(map[Role][]string, len(raw))
	for name, value := range raw {
		role, err := ParseRole(name)
		if err != nil {
			return nil, err
		}
		groups[role] = append(groups[role], SplitList(value)...)
	}
	return NewRoleGroupMapping(groups), nil
}

// Groups returns the group identifiers configured for a role, in configuration order.
// An unmapped role yields nil.
func (m *RoleGroupMapping) Groups(role Role) []string {
	if m == nil {
		return nil
	}
	ids := m.groups[role]
	if len(ids) == 0 {
		return nil
	}
	out := make([]string, len(ids))
	copy(out, ids)
	return out
}

// Has reports whether the role has at least one group identifier
func (m *RoleGroupMapping) Has(role Role) bool {
	return m != nil && len(m.groups[role]) > 0
}

// Covers returns a ConfigurationError when any of the roles has no group mapping
func (m *RoleGroupMapping) Covers(roles AllowedRoles) error {
	for _, role := range roles {
		if !m.Has(role) {
			return &ConfigurationError{
				Field:  "application_groups." + string(role),
				Reason: "role is declared by a policy but has no group identifiers",
			}
		}
	}
	return nil
}

// resolve returns the set of group identifiers backing the given roles
func (m *RoleGroupMapping) resolve(roles AllowedRoles) map[string]struct{} {
	union := make(map[string]struct{})
	if m == nil {
		return union
	}
	for _, role := range roles {
		for _, id := range m.groups[role] {
			union[id] = struct{}{}
		}
	}
	return union
}

// AllowedRoles is the ordered set of roles an operation accepts
type AllowedRoles []Role

// ParseAllowedRoles parses a comma-separated declared-roles string. Duplicates are dropped.
func ParseAllowedRoles(value string) (AllowedRoles, error) {
	items := SplitList(value)
	roles := make(AllowedRoles, 0, len(items))
	seen := make(map[Role]struct{}, len(items))
	for _, item := range items {
		role, err := ParseRole(item)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[role]; dup {
			continue
		}
		seen[role] = struct{}{}
		roles = append(roles, role)
	}
	return roles, nil
}

// MustParseAllowedRoles is like ParseAllowedRoles but panics on error
func MustParseAllowedRoles(value string) AllowedRoles {
	roles, err := ParseAllowedRoles(value)
	if err != nil {
		panic(err)
	}
	return roles
}

// String returns the comma-separated role names
func (a AllowedRoles) String() string {
	names := make([]string, len(a))
	for i, r := range a {
		names[i] = string(r)
	}
	return strings.Join(names, ",")
}
