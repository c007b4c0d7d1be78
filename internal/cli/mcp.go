package cli

import (
	"github.com/spf13/cobra"

	"github.com/opsrelay/relay-core/internal/config"
	"github.com/opsrelay/relay-core/internal/connector/meraki"
	"github.com/opsrelay/relay-core/internal/connector/nagios"
	"github.com/opsrelay/relay-core/internal/connector/sdp"
	"github.com/opsrelay/relay-core/internal/mcpserver"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the analytics MCP server over stdio",
	Long: `Expose network inventory, open alerts and ticket backlog as MCP
tools on stdin/stdout. Connectors without configuration are left out of
the tool set.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		log := newLogger()

		var deps mcpserver.Deps
		if cfg.Meraki.APIKey != "" && cfg.Meraki.OrgID != "" {
			dashboard, err := meraki.New(&meraki.Config{
				APIKey:        cfg.Meraki.APIKey,
				OrgID:         cfg.Meraki.OrgID,
				SNMPHost:      cfg.Meraki.SNMPHost,
				SNMPCommunity: cfg.Meraki.SNMPCommunity,
			})
			if err != nil {
				return err
			}
			defer dashboard.Close()
			deps.Network = dashboard
		}
		if cfg.Nagios.BaseURL != "" {
			monitor, err := nagios.New(&nagios.Config{
				BaseURL: cfg.Nagios.BaseURL,
				APIKey:  cfg.Nagios.APIKey,
			})
			if err != nil {
				return err
			}
			defer monitor.Close()
			deps.Alerts = monitor
		}
		if cfg.SDP.BaseURL != "" {
			desk, err := sdp.New(&sdp.Config{
				BaseURL:       cfg.SDP.BaseURL,
				TechnicianKey: cfg.SDP.TechnicianKey,
			})
			if err != nil {
				return err
			}
			defer desk.Close()
			deps.Tickets = desk
		}

		log.Info().Msg("serving MCP over stdio")
		return mcpserver.New(deps, log).ServeStdio()
	},
}
