package route

import (
	"fmt"
	"sort"
	"strings"

	"github.com/evcare/portal-gate/internal/domain/auth"
)

// DefaultLoginPath is where unauthenticated visitors of guarded paths go.
const DefaultLoginPath = "/login"

// DefaultFallbackTarget is where unmatched paths redirect.
const DefaultFallbackTarget = "/"

// Table resolves paths to rules. Exact match wins over the longest subtree
// match, which wins over the fallback. Exactly one outcome exists for any
// path, so resolution order cannot change behavior.
type Table struct {
	exact    map[string]Rule
	subtrees []Rule // sorted by descending path length

	loginPath      string
	fallbackTarget string
	roleHomes      map[auth.Role]string
}

// TableOption configures a Table.
type TableOption func(*Table)

// WithLoginPath overrides the default public path for unauthenticated redirects.
func WithLoginPath(path string) TableOption {
	return func(t *Table) {
		t.loginPath = path
	}
}

// WithFallbackTarget overrides where unmatched paths redirect.
func WithFallbackTarget(path string) TableOption {
	return func(t *Table) {
		t.fallbackTarget = path
	}
}

// WithRoleHome overrides the home path for a role.
func WithRoleHome(role auth.Role, path string) TableOption {
	return func(t *Table) {
		t.roleHomes[role] = path
	}
}

// NewTable builds a Table from the given rules.
// Duplicate rule paths and role rules without a role are rejected.
func NewTable(rules []Rule, opts ...TableOption) (*Table, error) {
	t := &Table{
		exact:          make(map[string]Rule, len(rules)),
		loginPath:      DefaultLoginPath,
		fallbackTarget: DefaultFallbackTarget,
		roleHomes: map[auth.Role]string{
			auth.RoleAdmin:    "/admin",
			auth.RoleStaff:    "/staff",
			auth.RoleCustomer: "/",
		},
	}
	for _, opt := range opts {
		opt(t)
	}

	for _, r := range rules {
		if !strings.HasPrefix(r.Path, "/") {
			return nil, fmt.Errorf("rule path %q must start with /", r.Path)
		}
		if !r.Requirement.IsValid() {
			return nil, fmt.Errorf("rule %q: unknown requirement %q", r.Path, r.Requirement)
		}
		if r.Requirement == RequirementRole && !r.Role.IsValid() {
			return nil, fmt.Errorf("rule %q: role requirement needs a valid role, got %q", r.Path, r.Role)
		}
		if _, dup := t.exact[r.Path]; dup {
			return nil, fmt.Errorf("duplicate rule path %q", r.Path)
		}
		t.exact[r.Path] = r
		t.subtrees = append(t.subtrees, r)
	}

	sort.SliceStable(t.subtrees, func(i, j int) bool {
		return len(t.subtrees[i].Path) > len(t.subtrees[j].Path)
	})

	return t, nil
}

// DefaultTable returns the portal's built-in rule set: landing and login are
// public, /admin and /staff subtrees are role-gated, everything else falls
// back to a redirect to the landing page.
func DefaultTable() *Table {
	t, err := NewTable([]Rule{
		{Path: "/", Requirement: RequirementPublic},
		{Path: DefaultLoginPath, Requirement: RequirementPublic},
		{Path: "/admin", Requirement: RequirementRole, Role: auth.RoleAdmin},
		{Path: "/staff", Requirement: RequirementRole, Role: auth.RoleStaff},
	})
	if err != nil {
		panic(err) // static rules cannot fail validation
	}
	return t
}

// Resolve returns the rule governing path. The second return is false when
// only the fallback applies.
func (t *Table) Resolve(path string) (Rule, bool) {
	if r, ok := t.exact[path]; ok {
		return r, true
	}
	for _, r := range t.subtrees {
		if r.Path == "/" {
			continue // "/" gates only itself, never the whole tree
		}
		if strings.HasPrefix(path, r.Path+"/") {
			return r, true
		}
	}
	return Rule{}, false
}

// LoginPath returns the configured public path for unauthenticated redirects.
func (t *Table) LoginPath() string {
	return t.loginPath
}

// FallbackTarget returns where unmatched paths redirect.
func (t *Table) FallbackTarget() string {
	return t.fallbackTarget
}

// RoleHome returns the home path for a role, falling back to the fallback
// target for unknown roles.
func (t *Table) RoleHome(role auth.Role) string {
	if home, ok := t.roleHomes[role]; ok {
		return home
	}
	return t.fallbackTarget
}

// Rules returns all configured rules in resolution (longest-first) order.
func (t *Table) Rules() []Rule {
	out := make([]Rule, len(t.subtrees))
	copy(out, t.subtrees)
	return out
}
