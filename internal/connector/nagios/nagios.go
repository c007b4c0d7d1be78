// Package nagios reads host and service status out of Nagios XI via the
// objects API. Problem rows (non-OK state, hard state type) are exposed as
// alerts keyed "{host}/{service}" for the ticket sync engine.
package nagios

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/opsrelay/relay-core/internal/coded"
	"github.com/opsrelay/relay-core/internal/endpoint"
	"github.com/opsrelay/relay-core/internal/httpx"
)

// Config holds Nagios XI connection settings.
type Config struct {
	BaseURL string // e.g. https://nagios.example.com/nagiosxi
	APIKey  string
}

// XI is the Nagios XI connector.
type XI struct {
	config *Config
	client *httpx.Client
}

var _ endpoint.SourceEndpoint = (*XI)(nil)

// New creates the connector.
func New(cfg *Config) (*XI, error) {
	if cfg.BaseURL == "" || cfg.APIKey == "" {
		return nil, fmt.Errorf("baseUrl and apiKey are required")
	}
	return newWithTransport(cfg, nil), nil
}

func newWithTransport(cfg *Config, transport http.RoundTripper) *XI {
	return &XI{
		config: cfg,
		client: httpx.NewClient(&httpx.ClientConfig{
			BaseURL:   strings.TrimSuffix(cfg.BaseURL, "/"),
			Transport: transport,
		}),
	}
}

// ID returns the connector template ID.
func (x *XI) ID() string { return "monitoring.nagiosxi" }

// Close releases resources.
func (x *XI) Close() error { return nil }

func (x *XI) GetDescriptor() *endpoint.Descriptor {
	return &endpoint.Descriptor{
		ID:          "monitoring.nagiosxi",
		Family:      "monitoring",
		Title:       "Nagios XI",
		Vendor:      "Nagios",
		Description: "Host and service status via the XI objects API",
		Categories:  []string{"monitoring", "alerting"},
		Protocols:   []string{"REST"},
		Fields: []*endpoint.FieldDescriptor{
			{Key: "baseUrl", Label: "XI URL", ValueType: "string", Required: true},
			{Key: "apiKey", Label: "API Key", ValueType: "password", Required: true, Sensitive: true},
		},
	}
}

func (x *XI) GetCapabilities() *endpoint.Capabilities {
	return &endpoint.Capabilities{SupportsFull: true, SupportsMetadata: true, DefaultFetchSize: 500}
}

func (x *XI) ValidateConfig(ctx context.Context, config map[string]any) (*endpoint.ValidationResult, error) {
	if _, err := x.get(ctx, "/api/v1/system/status", nil); err != nil {
		return &endpoint.ValidationResult{Valid: false, Message: fmt.Sprintf("XI unreachable: %v", err)}, nil
	}
	return &endpoint.ValidationResult{Valid: true, Message: "XI reachable"}, nil
}

// get adds the apikey query parameter every XI call requires.
func (x *XI) get(ctx context.Context, path string, query url.Values) (*httpx.Response, error) {
	if query == nil {
		query = url.Values{}
	}
	query.Set("apikey", x.config.APIKey)
	return x.client.Get(ctx, path, query)
}

// ListDatasets returns the readable datasets.
func (x *XI) ListDatasets(ctx context.Context) ([]*endpoint.Dataset, error) {
	return []*endpoint.Dataset{
		{ID: "nagios.hoststatus", Name: "Host Status", Kind: "table", PrimaryKeys: []string{"host_name"}},
		{ID: "nagios.servicestatus", Name: "Service Status", Kind: "table", PrimaryKeys: []string{"host_name", "service_description"}},
		{ID: "nagios.problems", Name: "Open Problems", Kind: "table", PrimaryKeys: []string{"dedupe_key"}},
	}, nil
}

// GetSchema returns the dataset schema.
func (x *XI) GetSchema(ctx context.Context, datasetID string) (*endpoint.Schema, error) {
	switch datasetID {
	case "nagios.hoststatus":
		return &endpoint.Schema{Fields: []*endpoint.FieldDefinition{
			{Name: "host_name", DataType: "STRING", Position: 0},
			{Name: "current_state", DataType: "INTEGER", Position: 1},
			{Name: "plugin_output", DataType: "STRING", Position: 2},
		}}, nil
	case "nagios.servicestatus", "nagios.problems":
		return &endpoint.Schema{Fields: []*endpoint.FieldDefinition{
			{Name: "host_name", DataType: "STRING", Position: 0},
			{Name: "service_description", DataType: "STRING", Position: 1},
			{Name: "current_state", DataType: "INTEGER", Position: 2},
			{Name: "state_type", DataType: "INTEGER", Position: 3},
			{Name: "plugin_output", DataType: "STRING", Position: 4},
		}}, nil
	}
	return nil, coded.Errorf(coded.CodeNotFound, false, "unknown dataset: %s", datasetID)
}

// Read streams a dataset.
func (x *XI) Read(ctx context.Context, req *endpoint.ReadRequest) (endpoint.Iterator[endpoint.Record], error) {
	switch req.DatasetID {
	case "nagios.hoststatus":
		records, err := x.hostStatus(ctx)
		if err != nil {
			return nil, err
		}
		return endpoint.NewSliceIterator(records), nil
	case "nagios.servicestatus":
		records, err := x.serviceStatus(ctx, nil)
		if err != nil {
			return nil, err
		}
		return endpoint.NewSliceIterator(records), nil
	case "nagios.problems":
		alerts, err := x.OpenProblems(ctx)
		if err != nil {
			return nil, err
		}
		records := make([]endpoint.Record, 0, len(alerts))
		for _, a := range alerts {
			records = append(records, endpoint.Record{
				"dedupe_key":          a.DedupeKey(),
				"host_name":           a.Host,
				"service_description": a.Service,
				"state":               a.State,
				"plugin_output":       a.Output,
			})
		}
		return endpoint.NewSliceIterator(records), nil
	}
	return nil, coded.Errorf(coded.CodeNotFound, false, "unknown dataset: %s", req.DatasetID)
}

func (x *XI) hostStatus(ctx context.Context) ([]endpoint.Record, error) {
	resp, err := x.get(ctx, "/api/v1/objects/hoststatus", nil)
	if err != nil {
		return nil, err
	}
	var result struct {
		HostStatus []map[string]any `json:"hoststatus"`
	}
	if err := resp.JSON(&result); err != nil {
		return nil, err
	}
	records := make([]endpoint.Record, 0, len(result.HostStatus))
	for _, h := range result.HostStatus {
		records = append(records, endpoint.Record(h))
	}
	return records, nil
}

func (x *XI) serviceStatus(ctx context.Context, query url.Values) ([]endpoint.Record, error) {
	resp, err := x.get(ctx, "/api/v1/objects/servicestatus", query)
	if err != nil {
		return nil, err
	}
	var result struct {
		ServiceStatus []map[string]any `json:"servicestatus"`
	}
	if err := resp.JSON(&result); err != nil {
		return nil, err
	}
	records := make([]endpoint.Record, 0, len(result.ServiceStatus))
	for _, s := range result.ServiceStatus {
		records = append(records, endpoint.Record(s))
	}
	return records, nil
}

// Alert is one open problem.
type Alert struct {
	Host    string
	Service string // empty for host problems
	State   string // "WARNING", "CRITICAL", "UNKNOWN", "DOWN", "UNREACHABLE"
	Output  string
}

// DedupeKey identifies the alert across polls.
func (a *Alert) DedupeKey() string {
	if a.Service == "" {
		return a.Host
	}
	return a.Host + "/" + a.Service
}

// OpenProblems returns current non-OK, hard-state host and service
// problems. Soft states are skipped so flapping checks do not open
// tickets.
func (x *XI) OpenProblems(ctx context.Context) ([]*Alert, error) {
	var alerts []*Alert

	hosts, err := x.hostStatus(ctx)
	if err != nil {
		return nil, err
	}
	for _, h := range hosts {
		state := asInt(h["current_state"])
		if state == 0 || asInt(h["state_type"]) != 1 {
			continue
		}
		if asInt(h["problem_acknowledged"]) == 1 {
			continue
		}
		alerts = append(alerts, &Alert{
			Host:   asString(h["host_name"]),
			State:  hostStateName(state),
			Output: asString(h["plugin_output"]),
		})
	}

	// XI can filter server-side; state_type 1 means hard. Acknowledged
	// problems are excluded so a ticket is not reopened for a known issue.
	services, err := x.serviceStatus(ctx, url.Values{
		"current_state":        {"in:1,2,3"},
		"state_type":           {"1"},
		"problem_acknowledged": {"0"},
	})
	if err != nil {
		return nil, err
	}
	for _, s := range services {
		alerts = append(alerts, &Alert{
			Host:    asString(s["host_name"]),
			Service: asString(s["service_description"]),
			State:   serviceStateName(asInt(s["current_state"])),
			Output:  asString(s["plugin_output"]),
		})
	}
	return alerts, nil
}

func hostStateName(state int) string {
	switch state {
	case 1:
		return "DOWN"
	case 2:
		return "UNREACHABLE"
	}
	return "UP"
}

func serviceStateName(state int) string {
	switch state {
	case 1:
		return "WARNING"
	case 2:
		return "CRITICAL"
	case 3:
		return "UNKNOWN"
	}
	return "OK"
}

// XI serializes numerics as strings in some versions; accept both.
func asInt(v any) int {
	switch t := v.(type) {
	case float64:
		return int(t)
	case int:
		return t
	case string:
		n, _ := strconv.Atoi(t)
		return n
	}
	return 0
}

func asString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}
