// Package access describes the access-control boundary: roles carrying
// resource-scoped privileges, and users bound to one role.
package access

import (
	"context"
	"slices"
)

// Actions understood by the reference store.
const (
	ActionFind   = "find"
	ActionInsert = "insert"
	ActionRemove = "remove"
	ActionUpdate = "update"
)

// KnownActions lists every action a role may be granted.
var KnownActions = []string{ActionFind, ActionInsert, ActionRemove, ActionUpdate}

// Resource names one collection inside a database.
type Resource struct {
	DB         string `json:"db"`
	Collection string `json:"collection"`
}

// Privilege grants actions on a resource.
type Privilege struct {
	Resource Resource `json:"resource"`
	Actions  []string `json:"actions"`
}

// Role is a named set of privileges.
type Role struct {
	Name       string      `json:"name"`
	Privileges []Privilege `json:"privileges"`
}

// Allows reports whether any privilege grants action on res.
func (r Role) Allows(res Resource, action string) bool {
	for _, p := range r.Privileges {
		if p.Resource == res && slices.Contains(p.Actions, action) {
			return true
		}
	}
	return false
}

// UserInfo is one row of a user listing.
type UserInfo struct {
	User string `json:"user"`
	DB   string `json:"db"`
	Role string `json:"role"`
}

// Admin is the provisioning surface of the access-control subsystem.
type Admin interface {
	CreateRole(ctx context.Context, role Role) error
	DropRole(ctx context.Context, name string) error
	CreateUser(ctx context.Context, username, password, role string) error
	DropUser(ctx context.Context, username string) error
	UsersInfo(ctx context.Context) ([]UserInfo, error)
}
