package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/evcare/portal-gate/internal/config"
)

var (
	resetIncludeAudit bool
	resetForce        bool
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Remove the persisted session",
	Long: `Reset the portal gate by removing the persisted session.

By default, only the session file (and its backup) is removed. On next
start, the portal boots signed out.

For the sqlite vault the database file is removed. The redis vault is not
touched; clear it with "portal-gate session --clear" while the server can
reach redis, or flush the key directly.

Optional flags:
  --include-audit   Also remove audit log files
  --force           Skip confirmation prompt

Examples:
  # Reset the session (interactive confirmation)
  portal-gate reset

  # Reset everything without prompting
  portal-gate reset --include-audit --force`,
	RunE: runReset,
}

func init() {
	resetCmd.Flags().BoolVar(&resetIncludeAudit, "include-audit", false, "Also remove audit log files")
	resetCmd.Flags().BoolVar(&resetForce, "force", false, "Skip confirmation prompt")
	rootCmd.AddCommand(resetCmd)
}

func runReset(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfigForReset()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not load config, using defaults: %v\n", err)
	}

	type target struct {
		path string
		desc string
	}
	var targets []target

	switch cfg.Session.Vault {
	case "sqlite":
		targets = append(targets, target{cfg.Session.SQLitePath, "session database"})
	default:
		targets = append(targets, target{cfg.Session.StatePath, "session file"})
		targets = append(targets, target{cfg.Session.StatePath + ".bak", "session backup"})
	}

	if resetIncludeAudit && cfg.Audit.Dir != "" {
		targets = append(targets, target{cfg.Audit.Dir, "audit directory"})
	}

	// Check what actually exists.
	var existing []target
	for _, t := range targets {
		if _, err := os.Stat(t.path); err == nil {
			existing = append(existing, t)
		}
	}

	if len(existing) == 0 {
		fmt.Fprintln(os.Stderr, "Nothing to reset, no session files found.")
		return nil
	}

	fmt.Fprintln(os.Stderr, "The following will be removed:")
	for _, t := range existing {
		fmt.Fprintf(os.Stderr, "  - %s (%s)\n", t.path, t.desc)
	}

	// Confirm unless --force.
	if !resetForce {
		fmt.Fprint(os.Stderr, "\nProceed? [y/N] ")
		var answer string
		fmt.Scanln(&answer) //nolint:errcheck // interactive prompt, error irrelevant
		if answer != "y" && answer != "Y" {
			fmt.Fprintln(os.Stderr, "Aborted.")
			return nil
		}
	}

	var errors int
	for _, t := range existing {
		if err := os.RemoveAll(t.path); err != nil {
			fmt.Fprintf(os.Stderr, "  ERROR removing %s: %v\n", t.path, err)
			errors++
		} else {
			fmt.Fprintf(os.Stderr, "  Removed %s\n", t.path)
		}
	}

	if errors > 0 {
		return fmt.Errorf("%d file(s) could not be removed", errors)
	}

	fmt.Fprintln(os.Stderr, "\nReset complete. The portal starts signed out on next launch.")
	return nil
}

// loadConfigForReset attempts to load config to discover vault paths.
// Returns a defaulted config on error (non-fatal for reset).
func loadConfigForReset() (*config.Config, error) {
	cfg, err := config.LoadConfigRaw()
	if err != nil {
		fallback := &config.Config{}
		fallback.SetDefaults()
		return fallback, err
	}
	return cfg, nil
}
