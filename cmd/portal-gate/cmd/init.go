package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/evcare/portal-gate/internal/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter portal-gate.yaml",
	Long: `Write a starter portal-gate.yaml with all defaults spelled out.

The generated file boots the gate with the file session vault, the
fixed-table login strategy and the built-in route table. Edit it and
restart to change behavior.

Examples:
  # Write portal-gate.yaml in the current directory
  portal-gate init

  # Overwrite an existing file
  portal-gate init --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing config file")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	const path = "portal-gate.yaml"

	if _, err := os.Stat(path); err == nil && !initForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	cfg := &config.Config{}
	cfg.SetDefaults()

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to render config: %w", err)
	}

	header := []byte("# portal-gate configuration. Generated by \"portal-gate init\".\n" +
		"# Every value below is the default; delete what you do not change.\n\n")
	if err := os.WriteFile(path, append(header, data...), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	fmt.Fprintf(os.Stderr, "Wrote %s\n", path)
	return nil
}
