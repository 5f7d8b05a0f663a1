package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/evcare/portal-gate/internal/domain/auth"
)

var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password [password]",
	Short: "Generate an Argon2id hash for a fixed-table account",
	Long: `Generate an Argon2id hash of a password for use in config.

The output is a PHC-format string that can be used directly in the
login.accounts.password field. Plaintext passwords in config also work,
but only make sense for demo fixtures.

Example:
  portal-gate hash-password "my-secret-password"
  # Output: $argon2id$v=19$m=48128,t=1,p=1$...

Security note: The password will appear in shell history.
Consider clearing history after use or using an environment variable:
  portal-gate hash-password "$MY_PASSWORD"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, err := auth.HashPassword(args[0])
		if err != nil {
			return fmt.Errorf("failed to hash password: %w", err)
		}
		fmt.Println(hash)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(hashPasswordCmd)
}
