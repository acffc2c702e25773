package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect the audit ledger",
}

var ledgerListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print every ledger entry, genesis first",
	RunE: func(cmd *cobra.Command, args []string) error {
		entries, err := vaultSvc.LedgerEntries()
		if err != nil {
			return err
		}
		for _, entry := range entries {
			payload, err := json.Marshal(entry.Data)
			if err != nil {
				return err
			}
			fmt.Printf("%4d  %s  %-12s  %s\n",
				entry.Index, entry.Timestamp.Format("2006-01-02 15:04:05"), entry.Action, payload)
		}
		return nil
	},
}

var ledgerVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Re-walk the hash chain and report the first broken link",
	RunE: func(cmd *cobra.Command, args []string) error {
		valid, detail := vaultSvc.VerifyLedger()
		if !valid {
			return fmt.Errorf("ledger verification FAILED: %s", detail)
		}
		fmt.Println("Ledger verified: chain intact.")
		return nil
	},
}

func init() {
	ledgerCmd.AddCommand(ledgerListCmd)
	ledgerCmd.AddCommand(ledgerVerifyCmd)
	rootCmd.AddCommand(ledgerCmd)
}
