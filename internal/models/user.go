package models

import (
	"github.com/google/uuid"
)

// User is an authenticated actor. Users are created lazily from the
// identity provider token on first request, and may be members of
// multiple teams.
type User struct {
	Base
	// IdpID is the subject claim from the identity provider. We key on
	// our own uuid so that a user can be re-homed to a different IDP.
	IdpID    string `json:"-" gorm:"uniqueIndex"`
	UserName string `json:"username" example:"admin"`
	Email    string `json:"email" example:"admin@example.com"`
}

// TeamMember is one row of a team member listing: the user joined with
// the role it holds in the team.
type TeamMember struct {
	UserID   uuid.UUID `json:"user_id"`
	UserName string    `json:"username"`
	Email    string    `json:"email"`
	RoleID   uuid.UUID `json:"role_id"`
	Role     string    `json:"role"`
}

// UpdateTeamMember replaces the role a member holds in a team.
type UpdateTeamMember struct {
	RoleID uuid.UUID `json:"role_id"`
}
