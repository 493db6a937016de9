package permissions

// Tier is the ordered permission level of a member.
type Tier int

const (
	None Tier = iota
	Verified
	Guardian
	Admin
)

func (t Tier) String() string {
	switch t {
	case Verified:
		return "verified"
	case Guardian:
		return "guardian"
	case Admin:
		return "admin"
	default:
		return "none"
	}
}

func (t Tier) AtLeast(required Tier) bool {
	return t >= required
}

type RoleConfig struct {
	VerifiedRoleID string
	GuardianRoleID string
	AdminRoleID    string
	// AllowUnverified treats every member as verified when no verified
	// role is configured.
	AllowUnverified bool
}

// Evaluate resolves the tier of a member from their role IDs. Members with
// the platform administrator permission are always Admin.
func Evaluate(memberRoles []string, isAdministrator bool, cfg RoleConfig) Tier {
	if isAdministrator {
		return Admin
	}
	if hasRole(memberRoles, cfg.AdminRoleID) {
		return Admin
	}
	if hasRole(memberRoles, cfg.GuardianRoleID) {
		return Guardian
	}
	if hasRole(memberRoles, cfg.VerifiedRoleID) {
		return Verified
	}
	if cfg.VerifiedRoleID == "" && cfg.AllowUnverified {
		return Verified
	}
	return None
}

func hasRole(roles []string, roleID string) bool {
	if roleID == "" {
		return false
	}
	for _, role := range roles {
		if role == roleID {
			return true
		}
	}
	return false
}
