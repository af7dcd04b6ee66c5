package auth

// Mode selects how the permission gate evaluates a requirement.
type Mode string

const (
	// ModeCapability allows a caller iff the operation's capability string is
	// a member of the caller's permission set.
	ModeCapability Mode = "capability"
	// ModeRole allows a caller iff the caller's role exactly equals one of the
	// operation's allowed roles. No hierarchy, no inheritance.
	ModeRole Mode = "role"
)

// Requirement names what an operation demands from the caller in each mode.
type Requirement struct {
	Capability string
	Roles      []string
}

// Gate is the single authorization chokepoint. Every directory operation
// consults it before touching the credential store.
type Gate struct {
	mode Mode
}

func NewGate(mode Mode) *Gate {
	return &Gate{mode: mode}
}

// Allowed reports whether the identity satisfies the requirement under the
// configured mode.
func (g *Gate) Allowed(identity *Identity, req Requirement) bool {
	if g.mode == ModeRole {
		for _, role := range req.Roles {
			if identity.Role == role {
				return true
			}
		}
		return false
	}

	for _, permission := range identity.Permissions {
		if permission == req.Capability {
			return true
		}
	}
	return false
}
