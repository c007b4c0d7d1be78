// Package cli implements the relayctl command tree.
package cli

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/opsrelay/relay-core/internal/config"
	"github.com/opsrelay/relay-core/internal/observability"
	"github.com/opsrelay/relay-core/internal/state"
)

var rootCmd = &cobra.Command{
	Use:   "relayctl",
	Short: "Operations relay for file transfer, exports, ticket sync and runbooks",
	Long: `relayctl drives the relay connectors from the command line:
SharePoint-to-Azure file copies, UKG and device-inventory exports,
monitoring-to-ticket reconciliation, DNS email-auth checks, directory
updates and backup runbooks.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute(version string) error {
	rootCmd.Version = version
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (trace|debug|info|warn|error)")
	viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.AddCommand(copyCmd)
	rootCmd.AddCommand(syncTicketsCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(dnsCmd)
	rootCmd.AddCommand(ldapCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(endpointsCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(versionCmd)
}

// newLogger builds the process logger from the resolved log level.
func newLogger() zerolog.Logger {
	return observability.InitLogger("relayctl", viper.GetString("log-level"))
}

// openStore returns the Postgres-backed state store when a database URL is
// configured, otherwise the in-memory store.
func openStore(ctx context.Context, cfg *config.Config) (state.Store, error) {
	if cfg.DatabaseURL != "" {
		return state.NewPostgresStore(ctx, cfg.DatabaseURL)
	}
	return state.NewMemoryStore(), nil
}
