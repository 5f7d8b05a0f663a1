// Package route decides what happens when a path is navigated: render,
// redirect, or wait. Decisions are a pure function of the path, the session
// status, and the role.
package route

import "github.com/evcare/portal-gate/internal/domain/auth"

// Requirement classifies who may see a path.
type Requirement string

const (
	// RequirementPublic paths render for anonymous visitors; authenticated
	// users are bounced to their role home.
	RequirementPublic Requirement = "public"
	// RequirementAnyAuthenticated paths render for any authenticated user.
	RequirementAnyAuthenticated Requirement = "any_authenticated"
	// RequirementRole paths render only for one specific role.
	RequirementRole Requirement = "role"
)

// IsValid returns true if the requirement is a known valid value.
func (r Requirement) IsValid() bool {
	switch r {
	case RequirementPublic, RequirementAnyAuthenticated, RequirementRole:
		return true
	default:
		return false
	}
}

// Rule gates one path and its subtree.
type Rule struct {
	// Path is the gated path. It matches itself and, except for "/",
	// every descendant path.
	Path string
	// Requirement classifies the access level.
	Requirement Requirement
	// Role is the required role. Only meaningful when Requirement is
	// RequirementRole.
	Role auth.Role
	// Condition is an optional CEL expression over {path, authenticated,
	// role}. When present and false, the rule is treated as unsatisfied.
	Condition string
}

// Action is the kind of decision made for a navigation.
type Action string

const (
	// ActionWait means hydration has not finished; show nothing yet.
	ActionWait Action = "wait"
	// ActionRender means the path's view may be shown.
	ActionRender Action = "render"
	// ActionRedirect means navigate to Target instead.
	ActionRedirect Action = "redirect"
)

// Decision is the outcome of deciding a navigation.
type Decision struct {
	// Action is what to do.
	Action Action
	// Target is the redirect destination. Only set for ActionRedirect.
	Target string
	// RulePath is the path of the rule that resolved, or empty when the
	// fallback applied. Used for logging and metrics labels.
	RulePath string
}
