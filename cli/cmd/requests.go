package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var requestReason string

var requestCmd = &cobra.Command{
	Use:   "request <artifact-id>",
	Short: "Request access to an artifact above your clearance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, err := actingUser()
		if err != nil {
			return err
		}

		requestID, err := vaultSvc.RequestAccess(userID, args[0], requestReason)
		if err != nil {
			return err
		}
		fmt.Printf("Request ID: %s\n", requestID)
		return nil
	},
}

var approveCmd = &cobra.Command{
	Use:   "approve <request-id>",
	Short: "Approve a pending access request (superuser only)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		approverID, err := actingUser()
		if err != nil {
			return err
		}
		if err = vaultSvc.ApproveRequest(args[0], approverID); err != nil {
			return err
		}
		fmt.Printf("Approved request %s\n", args[0])
		return nil
	},
}

var denyCmd = &cobra.Command{
	Use:   "deny <request-id>",
	Short: "Deny a pending access request (superuser only)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		approverID, err := actingUser()
		if err != nil {
			return err
		}
		if err = vaultSvc.DenyRequest(args[0], approverID); err != nil {
			return err
		}
		fmt.Printf("Denied request %s\n", args[0])
		return nil
	},
}

var requestsCmd = &cobra.Command{
	Use:   "requests",
	Short: "List pending access requests",
	RunE: func(cmd *cobra.Command, args []string) error {
		pending, err := vaultSvc.PendingRequests()
		if err != nil {
			return err
		}
		if len(pending) == 0 {
			fmt.Println("No pending requests.")
			return nil
		}
		for _, r := range pending {
			fmt.Printf("%s  user=%s  artifact=%s  %q  (%s)\n",
				r.ID, r.UserID, r.ArtifactID, r.Reason, r.CreatedAt.Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

func init() {
	requestCmd.Flags().StringVarP(&requestReason, "reason", "r", "", "justification for the request")

	rootCmd.AddCommand(requestCmd)
	rootCmd.AddCommand(approveCmd)
	rootCmd.AddCommand(denyCmd)
	rootCmd.AddCommand(requestsCmd)
}
