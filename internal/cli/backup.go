package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/opsrelay/relay-core/internal/config"
	"github.com/opsrelay/relay-core/internal/connector/azrsv"
	"github.com/opsrelay/relay-core/internal/endpoint"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Recovery Services Vault runbook operations",
}

var backupTriggerCmd = &cobra.Command{
	Use:   "trigger",
	Short: "Run an on-demand VM backup and wait for it to finish",
	RunE: func(cmd *cobra.Command, args []string) error {
		vault, err := vaultFromConfig()
		if err != nil {
			return err
		}
		defer vault.Close()

		container, _ := cmd.Flags().GetString("container")
		item, _ := cmd.Flags().GetString("item")
		retainDays, _ := cmd.Flags().GetInt("retain-days")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		color.Cyan("Triggering backup of %s...", item)
		result, err := vault.ExecuteAction(cmd.Context(), &endpoint.ActionRequest{
			ActionID: "trigger_backup",
			Parameters: map[string]any{
				"container":  container,
				"item":       item,
				"retainDays": retainDays,
			},
			DryRun: dryRun,
		})
		if err != nil {
			color.Red("✗ Backup failed: %v", err)
			return err
		}
		if !result.Success {
			color.Red("✗ %s", result.Message)
			return fmt.Errorf("backup did not succeed")
		}
		color.Green("✓ %s", result.Message)
		return nil
	},
}

var backupStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "List backup jobs in the vault",
	RunE: func(cmd *cobra.Command, args []string) error {
		vault, err := vaultFromConfig()
		if err != nil {
			return err
		}
		defer vault.Close()

		status, _ := cmd.Flags().GetString("status")
		jobs, err := vault.ListJobs(cmd.Context(), status)
		if err != nil {
			color.Red("✗ Job listing failed: %v", err)
			return err
		}

		color.Cyan("%d backup jobs", len(jobs))
		for _, job := range jobs {
			name, _ := job["name"].(string)
			props, _ := job["properties"].(map[string]any)
			jobStatus, _ := props["status"].(string)
			switch jobStatus {
			case "Completed":
				color.Green("  ✓ %s  %s", name, jobStatus)
			case "Failed":
				color.Red("  ✗ %s  %s", name, jobStatus)
			default:
				color.Yellow("  … %s  %s", name, jobStatus)
			}
		}
		return nil
	},
}

func vaultFromConfig() (*azrsv.Vault, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return azrsv.New(&azrsv.Config{
		TenantID:       cfg.RSV.TenantID,
		ClientID:       cfg.RSV.ClientID,
		ClientSecret:   cfg.RSV.ClientSecret,
		SubscriptionID: cfg.RSV.SubscriptionID,
		ResourceGroup:  cfg.RSV.ResourceGroup,
		Vault:          cfg.RSV.VaultName,
	})
}

func init() {
	backupTriggerCmd.Flags().String("container", "", "Protection container name")
	backupTriggerCmd.Flags().String("item", "", "Protected item name")
	backupTriggerCmd.Flags().Int("retain-days", 30, "Recovery point retention in days")
	backupTriggerCmd.Flags().Bool("dry-run", false, "Report what would run without triggering")
	backupStatusCmd.Flags().String("status", "", "Filter jobs by status (InProgress|Completed|Failed)")

	backupCmd.AddCommand(backupTriggerCmd)
	backupCmd.AddCommand(backupStatusCmd)
}
