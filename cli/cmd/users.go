package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	suraksh "github.com/Ayush-3103-AI/Suraksh"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the vault, tier keys and seed users",
	RunE: func(cmd *cobra.Command, args []string) error {
		// Bootstrap already ran while wiring the vault; just confirm.
		vault, ok := vaultSvc.(*suraksh.Vault)
		if !ok {
			return fmt.Errorf("vault backend does not expose a registry")
		}
		fmt.Printf("Vault initialized with %d users.\n", len(vault.Registry().Users()))
		return nil
	},
}

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "List vault users and clearances",
	RunE: func(cmd *cobra.Command, args []string) error {
		vault, ok := vaultSvc.(*suraksh.Vault)
		if !ok {
			return fmt.Errorf("vault backend does not expose a registry")
		}
		for _, user := range vault.Registry().Users() {
			fmt.Printf("%-4s  clearance=%d  %s (%s)\n", user.ID, user.Clearance, user.Name, user.Org)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(usersCmd)
}
