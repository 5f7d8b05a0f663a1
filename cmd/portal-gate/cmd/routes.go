package cmd

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/evcare/portal-gate/internal/config"
	"github.com/evcare/portal-gate/internal/domain/route"
)

var routesFormat string

var routesCmd = &cobra.Command{
	Use:   "routes",
	Short: "Print the effective route table",
	Long: `Print the effective route table after config merging.

Shows every rule with its access requirement, the login path, the
fallback target, and the per-role home paths. Useful for checking how a
path will be gated before starting the server.

The yaml format produces a block that can be pasted back into the
routes section of a config file.

Examples:
  portal-gate routes
  portal-gate routes --format yaml`,
	RunE: runRoutes,
}

func init() {
	routesCmd.Flags().StringVar(&routesFormat, "format", "table", "Output format (table or yaml)")
	rootCmd.AddCommand(routesCmd)
}

func runRoutes(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	table, err := buildRouteTable(cfg)
	if err != nil {
		return fmt.Errorf("failed to build route table: %w", err)
	}

	rules := table.Rules()
	sort.Slice(rules, func(i, j int) bool { return rules[i].Path < rules[j].Path })

	switch routesFormat {
	case "yaml":
		return printRoutesYAML(table, cfg, rules)
	case "table":
		return printRoutesTable(table, cfg, rules)
	default:
		return fmt.Errorf("unknown format: %s (want table or yaml)", routesFormat)
	}
}

func printRoutesTable(table *route.Table, cfg *config.Config, rules []route.Rule) error {
	fmt.Printf("Login path:      %s\n", table.LoginPath())
	fmt.Printf("Fallback target: %s\n", table.FallbackTarget())

	roles := make([]string, 0, len(cfg.Routes.RoleHomes))
	for role := range cfg.Routes.RoleHomes {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	for _, role := range roles {
		fmt.Printf("Home (%s): %s\n", role, cfg.Routes.RoleHomes[role])
	}

	fmt.Println()
	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PATH\tACCESS\tROLE\tCONDITION")
	for _, r := range rules {
		role := string(r.Role)
		if r.Requirement != route.RequirementRole {
			role = "-"
		}
		cond := r.Condition
		if cond == "" {
			cond = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Path, r.Requirement, role, cond)
	}
	return w.Flush()
}

// routesDump mirrors the routes section of the config file.
type routesDump struct {
	LoginPath      string            `yaml:"login_path"`
	FallbackTarget string            `yaml:"fallback_target"`
	RoleHomes      map[string]string `yaml:"role_homes,omitempty"`
	Rules          []ruleDump        `yaml:"rules"`
}

type ruleDump struct {
	Path      string `yaml:"path"`
	Access    string `yaml:"access"`
	Role      string `yaml:"role,omitempty"`
	Condition string `yaml:"condition,omitempty"`
}

func printRoutesYAML(table *route.Table, cfg *config.Config, rules []route.Rule) error {
	dump := routesDump{
		LoginPath:      table.LoginPath(),
		FallbackTarget: table.FallbackTarget(),
		RoleHomes:      cfg.Routes.RoleHomes,
		Rules:          make([]ruleDump, len(rules)),
	}
	for i, r := range rules {
		dump.Rules[i] = ruleDump{
			Path:      r.Path,
			Access:    string(r.Requirement),
			Role:      string(r.Role),
			Condition: r.Condition,
		}
	}

	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(map[string]routesDump{"routes": dump})
}
