package route

import (
	"github.com/evcare/portal-gate/internal/domain/auth"
	"github.com/evcare/portal-gate/internal/domain/session"
)

// ConditionFunc evaluates a rule's optional condition for the given
// navigation. A false result treats the rule as unsatisfied. Pass nil to
// Decide when no rules carry conditions.
type ConditionFunc func(rule Rule, path string, authenticated bool, role auth.Role) bool

// Decide computes the outcome of navigating to path. It has no side effects:
// the same inputs always produce the same decision.
//
// The steps, in order:
//  1. While the session is initializing, wait.
//  2. Resolve the governing rule; an unmatched path redirects to the
//     fallback target.
//  3. An unsatisfied rule condition denies: anonymous visitors go to the
//     login path, authenticated users to their role home.
//  4. Public paths render for anonymous visitors and bounce authenticated
//     users to their role home.
//  5. Guarded paths redirect anonymous visitors to the login path; a role
//     mismatch silently redirects to the visitor's own role home.
func Decide(t *Table, path string, status session.Status, role auth.Role, cond ConditionFunc) Decision {
	if status == session.StatusInitializing {
		return Decision{Action: ActionWait}
	}

	rule, ok := t.Resolve(path)
	if !ok {
		return Decision{Action: ActionRedirect, Target: t.fallbackTarget}
	}

	authenticated := status == session.StatusAuthenticated

	if rule.Condition != "" && cond != nil && !cond(rule, path, authenticated, role) {
		return deny(t, rule, path, authenticated, role)
	}

	switch rule.Requirement {
	case RequirementPublic:
		if authenticated {
			if home := t.RoleHome(role); home != path {
				return Decision{Action: ActionRedirect, Target: home, RulePath: rule.Path}
			}
		}
		return Decision{Action: ActionRender, RulePath: rule.Path}

	case RequirementAnyAuthenticated:
		if !authenticated {
			return Decision{Action: ActionRedirect, Target: t.loginPath, RulePath: rule.Path}
		}
		return Decision{Action: ActionRender, RulePath: rule.Path}

	case RequirementRole:
		if !authenticated {
			return Decision{Action: ActionRedirect, Target: t.loginPath, RulePath: rule.Path}
		}
		if role != rule.Role {
			// Silent: the visitor lands on their own area, no error page.
			return Decision{Action: ActionRedirect, Target: t.RoleHome(role), RulePath: rule.Path}
		}
		return Decision{Action: ActionRender, RulePath: rule.Path}
	}

	// Unreachable for validated tables.
	return Decision{Action: ActionRedirect, Target: t.fallbackTarget, RulePath: rule.Path}
}

// deny is the shared outcome for an unsatisfied rule condition. Redirect
// targets that would loop back to the denied path are skipped.
func deny(t *Table, rule Rule, path string, authenticated bool, role auth.Role) Decision {
	if !authenticated {
		return Decision{Action: ActionRedirect, Target: t.loginPath, RulePath: rule.Path}
	}
	if home := t.RoleHome(role); home != path {
		return Decision{Action: ActionRedirect, Target: home, RulePath: rule.Path}
	}
	if t.fallbackTarget != path {
		return Decision{Action: ActionRedirect, Target: t.fallbackTarget, RulePath: rule.Path}
	}
	return Decision{Action: ActionRender, RulePath: rule.Path}
}
