package cmd

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var clsdCmd = &cobra.Command{
	Use:   "clsd",
	Short: "Manage clearance-layered documents",
}

var (
	clsdTitle    string
	clsdSections map[string]string
)

var clsdCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a layered document from per-tier section files",
	Long: `Create a layered document. Each --section maps a tier to a text file,
e.g. --section 1=public.txt --section 3=sources.txt. Every section is
encrypted under its own tier's clearance key.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, err := actingUser()
		if err != nil {
			return err
		}
		if clsdTitle == "" {
			return fmt.Errorf("--title is required")
		}
		if len(clsdSections) == 0 {
			return fmt.Errorf("at least one --section tier=file is required")
		}

		sections := make(map[int]string, len(clsdSections))
		for tierStr, path := range clsdSections {
			var tier int
			if _, err := fmt.Sscanf(tierStr, "%d", &tier); err != nil {
				return fmt.Errorf("invalid section tier %q", tierStr)
			}
			text, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to read section file %s: %w", path, err)
			}
			sections[tier] = string(text)
		}

		documentID, err := vaultSvc.CreateCLSD(userID, clsdTitle, sections)
		if err != nil {
			return err
		}
		fmt.Printf("Document ID: %s\n", documentID)
		return nil
	},
}

var clsdGetCmd = &cobra.Command{
	Use:   "get <document-id>",
	Short: "Decrypt the sections your clearance reaches",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, err := actingUser()
		if err != nil {
			return err
		}

		doc, err := vaultSvc.RetrieveCLSD(userID, args[0])
		if err != nil {
			return err
		}

		fmt.Printf("%s (by %s, %s)\n", doc.Title, doc.CreatedBy, doc.Timestamp.Format("2006-01-02"))
		tiers := make([]int, 0, len(doc.Sections))
		for tier := range doc.Sections {
			tiers = append(tiers, tier)
		}
		sort.Ints(tiers)
		for _, tier := range tiers {
			fmt.Printf("\n--- tier %d ---\n%s\n", tier, doc.Sections[tier])
		}
		return nil
	},
}

var clsdListCmd = &cobra.Command{
	Use:   "list",
	Short: "List layered documents reachable at a clearance",
	RunE: func(cmd *cobra.Command, args []string) error {
		clearance := viper.GetInt("vault.clsd_clearance")
		if clearance == 0 {
			clearance = 4
		}
		docs, err := vaultSvc.ListCLSD(clearance)
		if err != nil {
			return err
		}
		if len(docs) == 0 {
			fmt.Println("No layered documents.")
			return nil
		}
		for _, d := range docs {
			fmt.Printf("%s  top-tier=%d  %q  (by %s)\n", d.ID, d.Clearance, d.Title, d.Uploader)
		}
		return nil
	},
}

func init() {
	clsdCreateCmd.Flags().StringVarP(&clsdTitle, "title", "t", "", "document title")
	clsdCreateCmd.Flags().StringToStringVarP(&clsdSections, "section", "s", nil, "tier=file section mapping")

	clsdListCmd.Flags().Int("clearance", 4, "clearance to filter by")
	_ = viper.BindPFlag("vault.clsd_clearance", clsdListCmd.Flags().Lookup("clearance"))

	clsdCmd.AddCommand(clsdCreateCmd)
	clsdCmd.AddCommand(clsdGetCmd)
	clsdCmd.AddCommand(clsdListCmd)
	rootCmd.AddCommand(clsdCmd)
}
