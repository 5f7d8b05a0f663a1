// Package cmd provides the CLI commands for the EVCare portal gate.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/evcare/portal-gate/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "portal-gate",
	Short: "EVCare Portal Gate - session and route authorization for the staff portal",
	Long: `Portal Gate fronts the EVCare staff and admin portal.

It owns the signed-in session (persisted across restarts), gates every page
path by role, verifies logins against a fixed account table or the EVCare
backend API, and keeps an audit trail of access events.

Quick start:
  1. Create a config file: portal-gate init
  2. Run: portal-gate start

Configuration:
  Config is loaded from portal-gate.yaml in the current directory,
  $HOME/.portal-gate/, or /etc/portal-gate/.

  Environment variables can override config values with the PORTAL_GATE_ prefix.
  Example: PORTAL_GATE_SERVER_HTTP_ADDR=:9090

Commands:
  init           Write a starter portal-gate.yaml
  start          Start the portal gate server
  stop           Stop the running server
  session        Show the persisted session
  routes         Print the effective route table
  reset          Remove the persisted session and start fresh
  hash-password  Generate an Argon2id hash for a fixed-table account
  version        Print version information`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./portal-gate.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
