package cli

import (
	"context"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/opsrelay/relay-core/internal/config"
	"github.com/opsrelay/relay-core/internal/connector/nagios"
	"github.com/opsrelay/relay-core/internal/connector/sdp"
	"github.com/opsrelay/relay-core/internal/state"
	"github.com/opsrelay/relay-core/internal/ticketsync"
)

var syncTicketsCmd = &cobra.Command{
	Use:   "sync-tickets",
	Short: "Reconcile open monitoring problems with service desk tickets",
	Long: `Run one reconcile pass: create a ticket for each new hard-state
problem, note state changes on existing tickets, and close tickets whose
alerts have recovered.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		log := newLogger()
		ctx := cmd.Context()

		profilePath, _ := cmd.Flags().GetString("profile")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		profile := ticketsync.DefaultProfile()
		if profilePath != "" {
			profile, err = ticketsync.LoadProfile(profilePath)
			if err != nil {
				return err
			}
		}

		source, err := nagios.New(&nagios.Config{
			BaseURL: cfg.Nagios.BaseURL,
			APIKey:  cfg.Nagios.APIKey,
		})
		if err != nil {
			return err
		}
		defer source.Close()

		desk, err := sdp.New(&sdp.Config{
			BaseURL:       cfg.SDP.BaseURL,
			TechnicianKey: cfg.SDP.TechnicianKey,
		})
		if err != nil {
			return err
		}
		defer desk.Close()

		var store state.Store
		if dryRun {
			store = state.NewMemoryStore()
		} else {
			store, err = openStore(ctx, cfg)
			if err != nil {
				return err
			}
		}
		defer store.Close()

		var tickets ticketsync.Ticketer = desk
		if dryRun {
			tickets = dryRunTicketer{}
		}

		syncer := ticketsync.NewSyncer(source, tickets, store.Tickets(), profile, log)
		summary, err := syncer.Run(ctx)
		if err != nil {
			color.Red("✗ Sync failed: %v", err)
			return err
		}

		color.Green("✓ Reconcile pass complete")
		color.Cyan("  Alerts:  %d", summary.Alerts)
		color.Cyan("  Created: %d", summary.Created)
		color.Cyan("  Noted:   %d", summary.Noted)
		if summary.Escalated > 0 {
			color.Cyan("  Escalated: %d", summary.Escalated)
		}
		color.Cyan("  Closed:  %d", summary.Closed)
		if summary.Errors > 0 {
			color.Red("  Errors:  %d", summary.Errors)
		}
		return nil
	},
}

// dryRunTicketer prints what a real pass would do instead of calling the
// service desk.
type dryRunTicketer struct{}

func (dryRunTicketer) CreateRequest(ctx context.Context, subject, description, priority, group string) (string, error) {
	color.Yellow("would create ticket: %q priority=%s group=%s", subject, priority, group)
	return "dry-run", nil
}

func (dryRunTicketer) AddNote(ctx context.Context, requestID, text string) error {
	color.Yellow("would add note to %s: %q", requestID, text)
	return nil
}

func (dryRunTicketer) UpdatePriority(ctx context.Context, requestID, priority string) error {
	color.Yellow("would raise priority of %s to %s", requestID, priority)
	return nil
}

func (dryRunTicketer) CloseRequest(ctx context.Context, requestID, comment string) error {
	color.Yellow("would close %s: %q", requestID, comment)
	return nil
}

func init() {
	syncTicketsCmd.Flags().String("profile", "", "YAML mapping profile for alert-to-ticket routing")
	syncTicketsCmd.Flags().Bool("dry-run", false, "Report actions without touching the service desk")
}
