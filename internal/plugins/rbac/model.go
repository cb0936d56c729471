// Package rbac implements role-based access control for Geek Console.
// Roles bundle permissions; a permission is an (action, entity, access)
// triple where access is "own" or "any". The storage encoding is the
// string "action:entity:access" (e.g. "delete:book:own"); parsing happens
// only at the persistence boundary -- the rest of the code works with the
// typed Permission struct.
//
// This is a CORE plugin -- always enabled, cannot be disabled.
package rbac

import (
	"fmt"
	"strings"
)

// Action is a CRUD verb a permission grants.
type Action string

// Valid actions. The set is closed; anything else fails parsing.
const (
	ActionCreate Action = "create"
	ActionRead   Action = "read"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Access scopes a permission to the actor's own resources or to anyone's.
type Access string

// Valid access scopes.
const (
	AccessOwn Access = "own"
	AccessAny Access = "any"
)

// Permission is one (action, entity, access) grant.
type Permission struct {
	Action Action `json:"action"`
	Entity string `json:"entity"`
	Access Access `json:"access"`
}

// String returns the storage encoding "action:entity:access".
func (p Permission) String() string {
	return fmt.Sprintf("%s:%s:%s", p.Action, p.Entity, p.Access)
}

// ParsePermission parses the "action:entity:access" storage encoding into
// a typed Permission. Unknown actions or access scopes are rejected.
func ParsePermission(s string) (Permission, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return Permission{}, fmt.Errorf("malformed permission %q: want action:entity:access", s)
	}

	action := Action(parts[0])
	switch action {
	case ActionCreate, ActionRead, ActionUpdate, ActionDelete:
	default:
		return Permission{}, fmt.Errorf("unknown action %q in permission %q", parts[0], s)
	}

	entity := parts[1]
	if entity == "" {
		return Permission{}, fmt.Errorf("empty entity in permission %q", s)
	}

	access := Access(parts[2])
	switch access {
	case AccessOwn, AccessAny:
	default:
		return Permission{}, fmt.Errorf("unknown access %q in permission %q", parts[2], s)
	}

	return Permission{Action: action, Entity: entity, Access: access}, nil
}

// Satisfies reports whether this granted permission covers the requested
// one. Action and entity must match exactly; a granted "any" access also
// covers an "own" request, since any is a superset of own.
func (p Permission) Satisfies(requested Permission) bool {
	if p.Action != requested.Action || p.Entity != requested.Entity {
		return false
	}
	return p.Access == requested.Access || p.Access == AccessAny
}

// Role is a named bundle of permissions. Users hold zero or more roles.
type Role struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Built-in role names seeded at install time.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)
