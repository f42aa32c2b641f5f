package models

import (
	"time"

	"github.com/google/uuid"
)

// Role is a named set of permissions within one team. Every team has
// exactly one role flagged IsOwner, created together with the team. The
// owner role implicitly holds every permission scope, present and
// future, so it never needs a permission backfill when new scopes are
// introduced.
type Role struct {
	Base
	TeamID      uuid.UUID     `json:"team_id" gorm:"index"`
	Name        string        `json:"name" example:"operator"`
	Description string        `json:"description" example:"Read-only plant operator"`
	IsOwner     bool          `json:"is_owner"`
	Permissions []*Permission `gorm:"many2many:role_permissions;" json:"permissions,omitempty"`
}

// Permission is one grantable capability, identified by its scope
// string. The catalog is global and seeded by migration; team deletion
// never cascades into it.
type Permission struct {
	ID          int64  `gorm:"primary_key" json:"id"`
	Scope       string `gorm:"uniqueIndex" json:"scope" example:"team:device_data:read"`
	Title       string `json:"title" example:"Read device data"`
	Description string `json:"description"`
}

// RolePermission grants one permission to one role.
type RolePermission struct {
	RoleID       uuid.UUID `json:"role_id" gorm:"type:uuid;primary_key"`
	PermissionID int64     `json:"permission_id" gorm:"primary_key"`
}

// UserTeamRole binds a user to a role within a team. The composite
// primary key (user_id, team_id) enforces at most one role per user per
// team.
type UserTeamRole struct {
	UserID   uuid.UUID `json:"user_id" gorm:"type:uuid;primary_key"`
	TeamID   uuid.UUID `json:"team_id" gorm:"type:uuid;primary_key"`
	RoleID   uuid.UUID `json:"role_id" gorm:"type:uuid"`
	JoinedAt time.Time `json:"joined_at"`
}

type AddRole struct {
	Name          string   `json:"name" example:"operator"`
	Description   string   `json:"description"`
	PermissionIDs []int64  `json:"permission_ids"`
	Scopes        []string `json:"scopes" example:"team:device_data:read"`
}

type UpdateRole struct {
	Name          *string  `json:"name"`
	Description   *string  `json:"description"`
	PermissionIDs *[]int64 `json:"permission_ids"`
}
