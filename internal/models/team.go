package models

// Team is the tenant boundary. Devices, roles and invitations belong to
// exactly one team; users are associated through UserTeamRole.
type Team struct {
	Base
	Name        string `gorm:"uniqueIndex" json:"name" example:"plant-floor"`
	Description string `json:"description" example:"Plant floor sensors"`
	// Default marks the team auto-created for a user's first login. It
	// cannot be deleted.
	Default     bool          `json:"default"`
	Roles       []*Role       `json:"-"`
	Devices     []*Device     `json:"-"`
	Invitations []*Invitation `json:"-"`
}

type AddTeam struct {
	Name        string `json:"name" example:"plant-floor"`
	Description string `json:"description" example:"Plant floor sensors"`
}

type UpdateTeam struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}
