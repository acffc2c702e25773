package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var uploadClearance int

var uploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Encrypt and store a file at a clearance tier",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, err := actingUser()
		if err != nil {
			return err
		}

		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", args[0], err)
		}

		artifactID, err := vaultSvc.Upload(userID, filepath.Base(args[0]), data, uploadClearance)
		if err != nil {
			return err
		}

		fmt.Printf("Uploaded %s (%d bytes) at tier %d\n", args[0], len(data), uploadClearance)
		fmt.Printf("Artifact ID: %s\n", artifactID)
		return nil
	},
}

var getOutput string

var getCmd = &cobra.Command{
	Use:   "get <artifact-id>",
	Short: "Retrieve and decrypt an artifact",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, err := actingUser()
		if err != nil {
			return err
		}

		data, err := vaultSvc.Retrieve(userID, args[0])
		if err != nil {
			return err
		}

		if getOutput == "" || getOutput == "-" {
			_, err = os.Stdout.Write(data)
			return err
		}
		if err = os.WriteFile(getOutput, data, 0600); err != nil {
			return fmt.Errorf("failed to write %s: %w", getOutput, err)
		}
		fmt.Printf("Wrote %d bytes to %s\n", len(data), getOutput)
		return nil
	},
}

var shareCmd = &cobra.Command{
	Use:   "share <artifact-id> <receiver-id>",
	Short: "Re-encrypt an artifact for another user under fresh keys",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		senderID, err := actingUser()
		if err != nil {
			return err
		}

		newID, err := vaultSvc.Share(senderID, args[1], args[0])
		if err != nil {
			return err
		}

		fmt.Printf("Shared %s with %s\n", args[0], args[1])
		fmt.Printf("New artifact ID: %s\n", newID)
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored artifacts (metadata only)",
	RunE: func(cmd *cobra.Command, args []string) error {
		summaries, err := vaultSvc.ListArtifacts()
		if err != nil {
			return err
		}
		if len(summaries) == 0 {
			fmt.Println("No artifacts stored.")
			return nil
		}

		for _, s := range summaries {
			name := s.Filename
			if s.Type == "CLSD" {
				name = s.Title
			}
			line := fmt.Sprintf("%s  tier=%d  type=%-4s  %s", s.ID, s.Clearance, s.Type, name)
			if s.SharedFrom != "" {
				line += fmt.Sprintf("  (copy of %s, shared to %s)", s.SharedFrom, s.SharedWith)
			}
			fmt.Println(line)
		}
		return nil
	},
}

func init() {
	uploadCmd.Flags().IntVarP(&uploadClearance, "clearance", "c", 1, "clearance tier (1-3)")
	getCmd.Flags().StringVarP(&getOutput, "output", "o", "", "output file (default stdout)")

	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(shareCmd)
	rootCmd.AddCommand(listCmd)
}
