package cli

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/opsrelay/relay-core/internal/config"
	"github.com/opsrelay/relay-core/internal/connector/ldapdir"
)

var ldapCmd = &cobra.Command{
	Use:   "ldap",
	Short: "Directory maintenance operations",
}

var ldapApplyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Bulk-apply attribute updates from a CSV file",
	Long: `Read a CSV whose first column is sAMAccountName and whose remaining
columns are attribute names, then replace those attributes on each matching
user. Rows that fail are reported and skipped.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		csvPath, _ := cmd.Flags().GetString("csv")
		if csvPath == "" {
			return fmt.Errorf("--csv is required")
		}

		dir, err := ldapdir.New(&ldapdir.Config{
			URL:          cfg.LDAP.URL,
			BindDN:       cfg.LDAP.BindDN,
			BindPassword: cfg.LDAP.Password,
			BaseDN:       cfg.LDAP.BaseDN,
			StartTLS:     cfg.LDAP.StartTLS,
		})
		if err != nil {
			return err
		}
		defer dir.Close()

		f, err := os.Open(csvPath)
		if err != nil {
			return err
		}
		defer f.Close()

		color.Cyan("Applying attribute updates from %s...", csvPath)
		result, err := dir.BulkApplyCSV(ctx, f)
		if err != nil {
			color.Red("✗ Bulk apply failed: %v", err)
			return err
		}

		color.Green("✓ %d rows applied", result.Applied)
		if result.Failed > 0 {
			color.Red("✗ %d rows failed:", result.Failed)
			for _, rowErr := range result.Errors {
				color.Red("  line %d (%s): %v", rowErr.Line, rowErr.Key, rowErr.Err)
			}
			return fmt.Errorf("%d rows failed", result.Failed)
		}
		return nil
	},
}

func init() {
	ldapApplyCmd.Flags().String("csv", "", "CSV file with sAMAccountName plus attribute columns")
	ldapCmd.AddCommand(ldapApplyCmd)
}
