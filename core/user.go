package core

import (
	"context"
)

// Roles carried by roster entries. The portal owns role assignment; the chat
// subsystem only reads them (announcements are author-restricted to admins).
const (
	RoleAdmin    = "admin"
	RoleEmployee = "employee"
	RoleClient   = "client"
)

// UserCreateInput seeds a roster entry. The id is assigned by the portal's
// identity service; when empty a fresh one is generated.
type UserCreateInput struct {
	ID     ID     `json:"user_id"`
	Name   string `json:"name" validate:"required"`
	Role   string `json:"role" validate:"required,oneof=admin employee client"`
	Avatar string `json:"avatar"`
}

func (u *UserCreateInput) Validate() error {
	return validate.Struct(u)
}

type UserStore interface {

	// CreateUser inserts a roster entry.
	CreateUser(ctx context.Context, input UserCreateInput) (*User, error)

	// GetUsers returns the full roster.
	GetUsers(ctx context.Context) ([]User, error)

	// GetUserByID returns the user or nil when not found.
	GetUserByID(ctx context.Context, id ID) (*User, error)

	// CreateGroup creates a group containing the creator and the given
	// members, deduplicated. If any member does not exist it returns
	// ErrInvalidUser. A group needs at least two distinct members.
	CreateGroup(ctx context.Context, name string, creator ID, members ...ID) (ID, error)

	// GetUserGroups returns the groups the user is a member of.
	GetUserGroups(ctx context.Context, user ID) ([]Group, error)

	// GetGroupMembers returns the members of the group. An unknown group
	// yields an empty list, not an error.
	GetGroupMembers(ctx context.Context, group ID) ([]User, error)

	// IsGroupMember reports whether the user is a member of the group.
	IsGroupMember(ctx context.Context, group, user ID) (bool, error)
}
