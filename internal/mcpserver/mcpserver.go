// Package mcpserver exposes relay analytics over the Model Context
// Protocol so LLM clients can query network inventory, alerts and ticket
// backlog through stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/opsrelay/relay-core/internal/connector/meraki"
	"github.com/opsrelay/relay-core/internal/connector/nagios"
	"github.com/opsrelay/relay-core/internal/endpoint"
)

// NetworkService is the Meraki surface the tools use.
type NetworkService interface {
	ListNetworks(ctx context.Context) ([]map[string]any, error)
	ListDevices(ctx context.Context) ([]map[string]any, error)
	NetworkUsageSummary(ctx context.Context, networkID string, topN int) (*meraki.UsageSummary, error)
}

// AlertService is the monitoring surface the tools use.
type AlertService interface {
	OpenProblems(ctx context.Context) ([]*nagios.Alert, error)
}

// TicketService is the ITSM surface the tools use.
type TicketService interface {
	ListOpenRequests(ctx context.Context, limit int) ([]endpoint.Record, error)
}

// Deps carries the connector implementations behind the tools. Nil members
// disable their tools.
type Deps struct {
	Network NetworkService
	Alerts  AlertService
	Tickets TicketService
}

// Server wraps an MCP server with the analytics tool set.
type Server struct {
	mcp  *server.MCPServer
	deps Deps
	log  zerolog.Logger
}

// New builds the analytics server and registers the tools the supplied
// dependencies can answer.
func New(deps Deps, log zerolog.Logger) *Server {
	s := &Server{
		mcp:  server.NewMCPServer("relay-analytics", "1.0.0", server.WithToolCapabilities(false)),
		deps: deps,
		log:  log,
	}
	s.registerTools()
	return s
}

// ServeStdio blocks serving MCP over stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

func (s *Server) registerTools() {
	if s.deps.Network != nil {
		s.mcp.AddTool(
			mcp.NewTool("list_networks",
				mcp.WithDescription("List Meraki networks in the organization"),
			),
			s.listNetworks,
		)
		s.mcp.AddTool(
			mcp.NewTool("device_status",
				mcp.WithDescription("List Meraki devices with availability status"),
			),
			s.deviceStatus,
		)
		s.mcp.AddTool(
			mcp.NewTool("network_usage_summary",
				mcp.WithDescription("Per-network client usage totals and top clients by traffic"),
				mcp.WithString("networkId", mcp.Required(), mcp.Description("Meraki network ID")),
				mcp.WithNumber("topN", mcp.Description("How many top clients to include, default 10")),
			),
			s.networkUsageSummary,
		)
	}
	if s.deps.Alerts != nil {
		s.mcp.AddTool(
			mcp.NewTool("open_alerts",
				mcp.WithDescription("List open monitoring problems in hard state"),
			),
			s.openAlerts,
		)
	}
	if s.deps.Tickets != nil {
		s.mcp.AddTool(
			mcp.NewTool("ticket_backlog",
				mcp.WithDescription("Open service desk requests, newest first"),
				mcp.WithNumber("limit", mcp.Description("Maximum requests to return, default 100")),
			),
			s.ticketBacklog,
		)
	}
}

func (s *Server) listNetworks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	networks, err := s.deps.Network.ListNetworks(ctx)
	if err != nil {
		return s.toolError("list_networks", err), nil
	}
	return jsonResult(networks)
}

func (s *Server) deviceStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	devices, err := s.deps.Network.ListDevices(ctx)
	if err != nil {
		return s.toolError("device_status", err), nil
	}
	return jsonResult(devices)
}

func (s *Server) networkUsageSummary(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	networkID, _ := args["networkId"].(string)
	if networkID == "" {
		return mcp.NewToolResultError("networkId is required"), nil
	}
	topN := 10
	if n, ok := args["topN"].(float64); ok && n > 0 {
		topN = int(n)
	}
	summary, err := s.deps.Network.NetworkUsageSummary(ctx, networkID, topN)
	if err != nil {
		return s.toolError("network_usage_summary", err), nil
	}
	return jsonResult(summary)
}

func (s *Server) openAlerts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	alerts, err := s.deps.Alerts.OpenProblems(ctx)
	if err != nil {
		return s.toolError("open_alerts", err), nil
	}
	out := make([]map[string]any, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, map[string]any{
			"host":    a.Host,
			"service": a.Service,
			"state":   a.State,
			"output":  a.Output,
			"key":     a.DedupeKey(),
		})
	}
	return jsonResult(out)
}

func (s *Server) ticketBacklog(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	limit := 100
	if n, ok := args["limit"].(float64); ok && n > 0 {
		limit = int(n)
	}
	requests, err := s.deps.Tickets.ListOpenRequests(ctx, limit)
	if err != nil {
		return s.toolError("ticket_backlog", err), nil
	}
	return jsonResult(map[string]any{
		"openCount": len(requests),
		"requests":  requests,
	})
}

// jsonResult renders a value as a JSON text content block.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

// toolError reports a failed tool call as a tool-level error so the client
// sees the message instead of a broken transport.
func (s *Server) toolError(tool string, err error) *mcp.CallToolResult {
	s.log.Warn().Err(err).Str("tool", tool).Msg("tool call failed")
	return mcp.NewToolResultError(fmt.Sprintf("%s: %v", tool, err))
}
