package cli

import (
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/opsrelay/relay-core/internal/config"
	"github.com/opsrelay/relay-core/internal/connector/azfiles"
	"github.com/opsrelay/relay-core/internal/connector/graph"
	"github.com/opsrelay/relay-core/internal/transfer"
)

var copyCmd = &cobra.Command{
	Use:   "copy",
	Short: "Copy a SharePoint document library tree to an Azure File Share",
	Long: `Enumerate a SharePoint drive through Microsoft Graph and copy every
file to an Azure File Share, resuming from the transfer ledger when a
previous run was interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		log := newLogger()
		ctx := cmd.Context()

		if drive, _ := cmd.Flags().GetString("drive"); drive != "" {
			cfg.Graph.DriveID = drive
		}
		if root, _ := cmd.Flags().GetString("root"); root != "" {
			cfg.Graph.RootPath = root
		}
		if share, _ := cmd.Flags().GetString("share"); share != "" {
			cfg.AzFiles.Share = share
		}
		workers, _ := cmd.Flags().GetInt("workers")
		if workers <= 0 {
			workers = cfg.Transfer.Workers
		}
		resume, _ := cmd.Flags().GetBool("resume")
		destRoot, _ := cmd.Flags().GetString("dest-root")
		skipZero, _ := cmd.Flags().GetBool("skip-zero-byte")

		src, err := graph.New(&graph.Config{
			TenantID:     cfg.Graph.TenantID,
			ClientID:     cfg.Graph.ClientID,
			ClientSecret: cfg.Graph.ClientSecret,
			DriveID:      cfg.Graph.DriveID,
			RootPath:     cfg.Graph.RootPath,
		})
		if err != nil {
			return err
		}
		defer src.Close()

		dst, err := azfiles.New(&azfiles.Config{
			Account:    cfg.AzFiles.Account,
			AccountKey: cfg.AzFiles.AccountKey,
			Share:      cfg.AzFiles.Share,
			ChunkSize:  cfg.Transfer.ChunkSizeBytes,
		})
		if err != nil {
			return err
		}

		store, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer store.Close()
		if !resume && cfg.DatabaseURL != "" {
			color.Yellow("⚠ --resume not set: ledger entries from previous runs still apply")
		}

		engine := transfer.NewEngine(transfer.NewGraphSource(src), dst, store.Ledger(), transfer.Options{
			Scope:            cfg.Graph.DriveID + ":" + cfg.AzFiles.Share,
			SourceRoot:       cfg.Graph.RootPath,
			DestRoot:         destRoot,
			Workers:          workers,
			RetryAttempts:    cfg.Transfer.RetryAttempts,
			SkipZeroByte:     skipZero,
			ProgressInterval: 10 * time.Second,
		}, log)

		color.Cyan("Copying %s from drive %s to share %s...", cfg.Graph.RootPath, cfg.Graph.DriveID, cfg.AzFiles.Share)
		summary, err := engine.Run(ctx)
		if err != nil {
			color.Red("✗ Copy failed: %v", err)
			return err
		}

		color.Green("✓ Copy finished in %s", summary.Duration.Round(time.Second))
		color.Cyan("  Enumerated: %d", summary.Enumerated)
		color.Cyan("  Copied:     %d (%d bytes)", summary.Copied, summary.Bytes)
		color.Cyan("  Skipped:    %d", summary.Skipped)
		if summary.Failed > 0 {
			color.Red("  Failed:     %d", summary.Failed)
		}
		return nil
	},
}

func init() {
	copyCmd.Flags().String("drive", "", "SharePoint drive ID")
	copyCmd.Flags().String("root", "", "Source folder path in the drive")
	copyCmd.Flags().String("share", "", "Target Azure file share name")
	copyCmd.Flags().String("dest-root", "", "Prefix inside the target share")
	copyCmd.Flags().Int("workers", 0, "Concurrent copy workers")
	copyCmd.Flags().Bool("resume", false, "Resume from the transfer ledger")
	copyCmd.Flags().Bool("skip-zero-byte", false, "Skip zero-byte files")

	viper.BindPFlag("graph.drive-id", copyCmd.Flags().Lookup("drive"))
	viper.BindPFlag("azfiles.share", copyCmd.Flags().Lookup("share"))
}
