package models

import (
	"time"

	"github.com/google/uuid"
)

// Invitation is a pending request for a user to join a team with a
// given role. The invitee is addressed by email so that users who have
// not signed in yet can be invited.
type Invitation struct {
	Base
	Email      string     `json:"email" gorm:"index"`
	TeamID     uuid.UUID  `json:"team_id" gorm:"index"`
	RoleID     uuid.UUID  `json:"role_id"`
	InviterID  uuid.UUID  `json:"inviter_id"`
	Token      string     `json:"-" gorm:"uniqueIndex"`
	ExpiresAt  time.Time  `json:"expires_at"`
	AcceptedAt *time.Time `json:"accepted_at"`
}

type AddInvitation struct {
	Email  string    `json:"email" example:"operator@example.com"`
	RoleID uuid.UUID `json:"role_id"`
}

// AcceptInvitation carries the opaque token from the invitation mail.
type AcceptInvitation struct {
	Token string `json:"token"`
}
