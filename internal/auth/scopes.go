package auth

// Permission scopes. These are the values of the scope column in the
// permission catalog; the migrations seed one catalog row per constant.
const (
	TeamProfileRead      = "team:profile:read"
	TeamProfileManage    = "team:profile:manage"
	TeamMemberRead       = "team:member:read"
	TeamMemberManage     = "team:member:manage"
	TeamMemberDelete     = "team:member:delete"
	TeamInvitationRead   = "team:invitation:read"
	TeamInvitationManage = "team:invitation:manage"
	TeamInvitationRevoke = "team:invitation:revoke"
	TeamDeviceRead       = "team:device:read"
	TeamDeviceManage     = "team:device:manage"
	TeamDeviceDelete     = "team:device:delete"
	TeamDeviceDataRead   = "team:device_data:read"
	TeamDeviceDataWrite  = "team:device_data:write"
)
