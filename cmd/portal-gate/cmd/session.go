package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/evcare/portal-gate/internal/config"
)

var sessionClear bool

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Show the persisted session",
	Long: `Show the session persisted in the configured vault.

Prints the signed-in user and token metadata, or "anonymous" when no
session is stored. With --clear, removes the persisted session instead.

Unlike "reset", --clear goes through the vault itself, so it also works
for the redis vault.

Examples:
  # Show the current session
  portal-gate session

  # Sign the portal out
  portal-gate session --clear`,
	RunE: runSession,
}

func init() {
	sessionCmd.Flags().BoolVar(&sessionClear, "clear", false, "Remove the persisted session")
	rootCmd.AddCommand(sessionCmd)
}

func runSession(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))

	vault, closeVault, err := buildVault(cfg, logger)
	if err != nil {
		return err
	}
	if closeVault != nil {
		defer closeVault()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if sessionClear {
		if err := vault.Clear(ctx); err != nil {
			return fmt.Errorf("failed to clear session: %w", err)
		}
		fmt.Println("Session cleared.")
		return nil
	}

	stored, err := vault.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}

	if stored.Empty() {
		fmt.Printf("Vault:  %s\n", cfg.Session.Vault)
		fmt.Println("Status: anonymous")
		return nil
	}

	fmt.Printf("Vault:   %s\n", cfg.Session.Vault)
	fmt.Println("Status:  authenticated")
	if stored.Identity != nil {
		fmt.Printf("User:    %s <%s>\n", stored.Identity.Name, stored.Identity.Email)
		fmt.Printf("Role:    %s\n", stored.Identity.Role)
	}
	fmt.Printf("Token:   %s\n", truncateToken(stored.Token))
	if stored.RefreshToken != "" {
		fmt.Printf("Refresh: %s\n", truncateToken(stored.RefreshToken))
	}
	if !stored.UpdatedAt.IsZero() {
		fmt.Printf("Updated: %s\n", stored.UpdatedAt.Format(time.RFC3339))
	}
	return nil
}

// truncateToken shortens a token for display so full credentials never hit
// the terminal.
func truncateToken(token string) string {
	if len(token) <= 12 {
		return token
	}
	return token[:12] + "..."
}
