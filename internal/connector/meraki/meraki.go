// Package meraki reads device, network and client inventory from the Cisco
// Meraki Dashboard API and polls device health over SNMP.
package meraki

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/opsrelay/relay-core/internal/coded"
	"github.com/opsrelay/relay-core/internal/endpoint"
	"github.com/opsrelay/relay-core/internal/httpx"
)

const defaultBaseURL = "https://api.meraki.com/api/v1"

// Config holds Dashboard API and SNMP settings.
type Config struct {
	APIKey string
	OrgID  string
	// BaseURL overrides the Dashboard endpoint (tests).
	BaseURL string
	// SNMP settings for the device poller.
	SNMPHost      string
	SNMPPort      uint16
	SNMPCommunity string
}

// Dashboard is the Meraki connector.
type Dashboard struct {
	config *Config
	client *httpx.Client
	snmp   snmpClient
}

var _ endpoint.SourceEndpoint = (*Dashboard)(nil)

// New creates the connector.
func New(cfg *Config) (*Dashboard, error) {
	if cfg.APIKey == "" || cfg.OrgID == "" {
		return nil, fmt.Errorf("apiKey and orgId are required")
	}
	return newWithTransport(cfg, nil), nil
}

func newWithTransport(cfg *Config, transport http.RoundTripper) *Dashboard {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	return &Dashboard{
		config: cfg,
		client: httpx.NewClient(&httpx.ClientConfig{
			BaseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
			// Dashboard allows 10 requests per second per org.
			RateLimit: 8,
			Headers: map[string]string{
				"X-Cisco-Meraki-API-Key": cfg.APIKey,
			},
			Transport: transport,
		}),
	}
}

// ID returns the connector template ID.
func (d *Dashboard) ID() string { return "net.meraki" }

// Close releases resources.
func (d *Dashboard) Close() error { return nil }

func (d *Dashboard) GetDescriptor() *endpoint.Descriptor {
	return &endpoint.Descriptor{
		ID:          "net.meraki",
		Family:      "net",
		Title:       "Cisco Meraki",
		Vendor:      "Cisco",
		Description: "Network, device and client inventory via the Meraki Dashboard API, device health via SNMP",
		Categories:  []string{"network", "monitoring"},
		Protocols:   []string{"REST", "SNMP"},
		DocsURL:     "https://developer.cisco.com/meraki/api-v1/",
		Fields: []*endpoint.FieldDescriptor{
			{Key: "apiKey", Label: "API Key", ValueType: "password", Required: true, Sensitive: true},
			{Key: "orgId", Label: "Organization ID", ValueType: "string", Required: true},
			{Key: "snmpHost", Label: "SNMP Host", ValueType: "string"},
			{Key: "snmpCommunity", Label: "SNMP Community", ValueType: "password", Sensitive: true},
		},
	}
}

func (d *Dashboard) GetCapabilities() *endpoint.Capabilities {
	return &endpoint.Capabilities{
		SupportsFull:     true,
		SupportsMetadata: true,
		DefaultFetchSize: 1000,
	}
}

func (d *Dashboard) ValidateConfig(ctx context.Context, config map[string]any) (*endpoint.ValidationResult, error) {
	resp, err := d.get(ctx, "/organizations/"+d.config.OrgID, nil)
	if err != nil {
		return &endpoint.ValidationResult{Valid: false, Message: fmt.Sprintf("organization probe failed: %v", err)}, nil
	}
	var org struct {
		Name string `json:"name"`
	}
	if err := resp.JSON(&org); err != nil {
		return nil, err
	}
	return &endpoint.ValidationResult{
		Valid:   true,
		Message: fmt.Sprintf("organization %s reachable", org.Name),
	}, nil
}

func classify(err error) error {
	var httpErr *httpx.HTTPError
	if errors.As(err, &httpErr) {
		return httpx.ClassifyStatus(httpErr.StatusCode, httpErr.Message)
	}
	return err
}

func (d *Dashboard) get(ctx context.Context, path string, query url.Values) (*httpx.Response, error) {
	resp, err := d.client.Get(ctx, path, query)
	if err != nil {
		return nil, classify(err)
	}
	return resp, nil
}

// getPaged follows the Dashboard cursor pagination: each page carries a
// Link header whose rel=next URL embeds the startingAfter cursor.
func (d *Dashboard) getPaged(ctx context.Context, path string, query url.Values) ([]map[string]any, error) {
	if query == nil {
		query = url.Values{}
	}
	query.Set("perPage", "1000")

	var items []map[string]any
	resp, err := d.get(ctx, path, query)
	for {
		if err != nil {
			return nil, err
		}
		var page []map[string]any
		if err := resp.JSON(&page); err != nil {
			return nil, err
		}
		items = append(items, page...)

		next := nextLink(resp.Headers.Get("Link"))
		if next == "" {
			return items, nil
		}
		resp, err = d.client.GetURL(ctx, next)
		if err != nil {
			err = classify(err)
		}
	}
}

// nextLink extracts the rel=next URL from a Link header, if any.
func nextLink(header string) string {
	for _, part := range strings.Split(header, ",") {
		section := strings.Split(part, ";")
		if len(section) < 2 {
			continue
		}
		if !strings.Contains(section[1], `rel=next`) && !strings.Contains(section[1], `rel="next"`) {
			continue
		}
		link := strings.TrimSpace(section[0])
		return strings.Trim(link, "<>")
	}
	return ""
}

// --- Source surface ---

// ListDatasets returns the readable datasets.
func (d *Dashboard) ListDatasets(ctx context.Context) ([]*endpoint.Dataset, error) {
	return []*endpoint.Dataset{
		{ID: "meraki.networks", Name: "Networks", Kind: "table", PrimaryKeys: []string{"id"}},
		{ID: "meraki.devices", Name: "Devices", Kind: "table", PrimaryKeys: []string{"serial"}},
		{ID: "meraki.clients", Name: "Network Clients", Kind: "table", PrimaryKeys: []string{"id"}},
	}, nil
}

// GetSchema returns the dataset schema.
func (d *Dashboard) GetSchema(ctx context.Context, datasetID string) (*endpoint.Schema, error) {
	switch datasetID {
	case "meraki.networks":
		return &endpoint.Schema{Fields: []*endpoint.FieldDefinition{
			{Name: "id", DataType: "STRING", Position: 0},
			{Name: "name", DataType: "STRING", Position: 1},
			{Name: "productTypes", DataType: "JSON", Position: 2},
			{Name: "timeZone", DataType: "STRING", Position: 3},
		}}, nil
	case "meraki.devices":
		return &endpoint.Schema{Fields: []*endpoint.FieldDefinition{
			{Name: "serial", DataType: "STRING", Position: 0},
			{Name: "name", DataType: "STRING", Position: 1},
			{Name: "model", DataType: "STRING", Position: 2},
			{Name: "networkId", DataType: "STRING", Position: 3},
			{Name: "status", DataType: "STRING", Position: 4},
		}}, nil
	case "meraki.clients":
		return &endpoint.Schema{Fields: []*endpoint.FieldDefinition{
			{Name: "id", DataType: "STRING", Position: 0},
			{Name: "description", DataType: "STRING", Position: 1},
			{Name: "mac", DataType: "STRING", Position: 2},
			{Name: "usage", DataType: "JSON", Position: 3},
		}}, nil
	}
	return nil, coded.Errorf(coded.CodeNotFound, false, "unknown dataset: %s", datasetID)
}

// Read streams a dataset. meraki.clients requires a networkId param.
func (d *Dashboard) Read(ctx context.Context, req *endpoint.ReadRequest) (endpoint.Iterator[endpoint.Record], error) {
	var (
		items []map[string]any
		err   error
	)
	switch req.DatasetID {
	case "meraki.networks":
		items, err = d.ListNetworks(ctx)
	case "meraki.devices":
		items, err = d.ListDevices(ctx)
	case "meraki.clients":
		networkID, _ := req.Params["networkId"].(string)
		if networkID == "" {
			return nil, coded.Errorf(coded.CodeBadPayload, false, "networkId param is required")
		}
		items, err = d.ListClients(ctx, networkID)
	default:
		return nil, coded.Errorf(coded.CodeNotFound, false, "unknown dataset: %s", req.DatasetID)
	}
	if err != nil {
		return nil, err
	}
	records := make([]endpoint.Record, 0, len(items))
	for _, item := range items {
		records = append(records, endpoint.Record(item))
	}
	if req.Limit > 0 && int64(len(records)) > req.Limit {
		records = records[:req.Limit]
	}
	return endpoint.NewSliceIterator(records), nil
}

// ListNetworks returns the organization's networks.
func (d *Dashboard) ListNetworks(ctx context.Context) ([]map[string]any, error) {
	return d.getPaged(ctx, "/organizations/"+d.config.OrgID+"/networks", nil)
}

// ListDevices returns the organization's devices with availability status.
func (d *Dashboard) ListDevices(ctx context.Context) ([]map[string]any, error) {
	devices, err := d.getPaged(ctx, "/organizations/"+d.config.OrgID+"/devices", nil)
	if err != nil {
		return nil, err
	}
	statuses, err := d.getPaged(ctx, "/organizations/"+d.config.OrgID+"/devices/availabilities", nil)
	if err != nil {
		return nil, err
	}
	bySerial := make(map[string]string, len(statuses))
	for _, s := range statuses {
		serial, _ := s["serial"].(string)
		status, _ := s["status"].(string)
		bySerial[serial] = status
	}
	for _, dev := range devices {
		serial, _ := dev["serial"].(string)
		if status, ok := bySerial[serial]; ok {
			dev["status"] = status
		}
	}
	return devices, nil
}

// ListClients returns the clients seen on a network in the default
// Dashboard lookback window.
func (d *Dashboard) ListClients(ctx context.Context, networkID string) ([]map[string]any, error) {
	return d.getPaged(ctx, "/networks/"+networkID+"/clients", nil)
}
