// Package github reads CI state (workflow runs, deployments) out of the
// GitHub REST API and triggers workflow dispatches and deployments.
package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/opsrelay/relay-core/internal/coded"
	"github.com/opsrelay/relay-core/internal/endpoint"
	"github.com/opsrelay/relay-core/internal/httpx"
)

const defaultBaseURL = "https://api.github.com"

// Config holds GitHub connection settings.
type Config struct {
	BaseURL string
	Token   string
	Owner   string
	Repo    string
}

// GitHub is the GitHub connector.
type GitHub struct {
	config *Config
	client *httpx.Client
	stub   *StubServer
}

var (
	_ endpoint.SourceEndpoint = (*GitHub)(nil)
	_ endpoint.ActionEndpoint = (*GitHub)(nil)
)

// New creates the connector. A baseUrl containing "stub.github" wires the
// in-process stub server so flows can run without network access.
func New(cfg *Config) (*GitHub, error) {
	if cfg.Owner == "" || cfg.Repo == "" {
		return nil, fmt.Errorf("owner and repo are required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}

	var transport http.RoundTripper
	var stub *StubServer
	if strings.Contains(strings.ToLower(cfg.BaseURL), "stub.github") {
		stub = NewStubServer(cfg.Owner, cfg.Repo)
		transport = stub.Transport()
		cfg.Token = stub.Token()
	}
	g := newWithTransport(cfg, transport)
	g.stub = stub
	return g, nil
}

func newWithTransport(cfg *Config, transport http.RoundTripper) *GitHub {
	return &GitHub{
		config: cfg,
		client: httpx.NewClient(&httpx.ClientConfig{
			BaseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
			Auth:    httpx.BearerToken{Token: cfg.Token},
			Headers: map[string]string{
				"Accept":               "application/vnd.github+json",
				"X-GitHub-Api-Version": "2022-11-28",
			},
			Transport: transport,
		}),
	}
}

// ID returns the connector template ID.
func (g *GitHub) ID() string { return "ci.github" }

// Close releases resources.
func (g *GitHub) Close() error { return nil }

func (g *GitHub) GetDescriptor() *endpoint.Descriptor {
	return &endpoint.Descriptor{
		ID:          "ci.github",
		Family:      "ci",
		Title:       "GitHub Actions",
		Vendor:      "GitHub",
		Description: "Workflow runs and deployments via the GitHub REST API",
		Categories:  []string{"ci", "source-control"},
		Protocols:   []string{"REST"},
		DocsURL:     "https://docs.github.com/en/rest",
		Fields: []*endpoint.FieldDescriptor{
			{Key: "token", Label: "Token", ValueType: "password", Required: true, Sensitive: true},
			{Key: "owner", Label: "Owner", ValueType: "string", Required: true},
			{Key: "repo", Label: "Repository", ValueType: "string", Required: true},
		},
	}
}

func (g *GitHub) GetCapabilities() *endpoint.Capabilities {
	return &endpoint.Capabilities{
		SupportsFull:     true,
		SupportsMetadata: true,
		SupportsActions:  true,
		DefaultFetchSize: 100,
	}
}

func (g *GitHub) ValidateConfig(ctx context.Context, config map[string]any) (*endpoint.ValidationResult, error) {
	resp, err := g.get(ctx, g.repoPath(""), nil)
	if err != nil {
		return &endpoint.ValidationResult{Valid: false, Message: fmt.Sprintf("repository probe failed: %v", err)}, nil
	}
	var repo struct {
		FullName      string `json:"full_name"`
		DefaultBranch string `json:"default_branch"`
	}
	if err := resp.JSON(&repo); err != nil {
		return nil, err
	}
	return &endpoint.ValidationResult{
		Valid:   true,
		Message: fmt.Sprintf("repository %s reachable", repo.FullName),
	}, nil
}

// classify maps raw HTTP failures onto the engine's error codes so callers
// can distinguish bad credentials from missing resources.
func classify(err error) error {
	var httpErr *httpx.HTTPError
	if errors.As(err, &httpErr) {
		return httpx.ClassifyStatus(httpErr.StatusCode, httpErr.Message)
	}
	return err
}

func (g *GitHub) get(ctx context.Context, path string, query url.Values) (*httpx.Response, error) {
	resp, err := g.client.Get(ctx, path, query)
	if err != nil {
		return nil, classify(err)
	}
	return resp, nil
}

func (g *GitHub) post(ctx context.Context, path string, body any) (*httpx.Response, error) {
	resp, err := g.client.Post(ctx, path, body)
	if err != nil {
		return nil, classify(err)
	}
	return resp, nil
}

func (g *GitHub) repoPath(suffix string) string {
	p := "/repos/" + g.config.Owner + "/" + g.config.Repo
	if suffix != "" {
		p += "/" + strings.TrimPrefix(suffix, "/")
	}
	return p
}

// --- Source surface ---

// ListDatasets returns the readable datasets.
func (g *GitHub) ListDatasets(ctx context.Context) ([]*endpoint.Dataset, error) {
	return []*endpoint.Dataset{
		{ID: "github.workflows", Name: "Workflows", Kind: "table", PrimaryKeys: []string{"id"}},
		{ID: "github.workflow_runs", Name: "Workflow Runs", Kind: "table", PrimaryKeys: []string{"id"}},
		{ID: "github.deployments", Name: "Deployments", Kind: "table", PrimaryKeys: []string{"id"}},
	}, nil
}

// GetSchema returns the dataset schema.
func (g *GitHub) GetSchema(ctx context.Context, datasetID string) (*endpoint.Schema, error) {
	switch datasetID {
	case "github.workflows":
		return &endpoint.Schema{Fields: []*endpoint.FieldDefinition{
			{Name: "id", DataType: "BIGINT", Position: 0},
			{Name: "name", DataType: "STRING", Position: 1},
			{Name: "path", DataType: "STRING", Position: 2},
			{Name: "state", DataType: "STRING", Position: 3},
		}}, nil
	case "github.workflow_runs":
		return &endpoint.Schema{Fields: []*endpoint.FieldDefinition{
			{Name: "id", DataType: "BIGINT", Position: 0},
			{Name: "name", DataType: "STRING", Position: 1},
			{Name: "head_branch", DataType: "STRING", Position: 2},
			{Name: "status", DataType: "STRING", Position: 3},
			{Name: "conclusion", DataType: "STRING", Position: 4},
			{Name: "created_at", DataType: "STRING", Position: 5},
		}}, nil
	case "github.deployments":
		return &endpoint.Schema{Fields: []*endpoint.FieldDefinition{
			{Name: "id", DataType: "BIGINT", Position: 0},
			{Name: "environment", DataType: "STRING", Position: 1},
			{Name: "ref", DataType: "STRING", Position: 2},
			{Name: "created_at", DataType: "STRING", Position: 3},
		}}, nil
	}
	return nil, coded.Errorf(coded.CodeNotFound, false, "unknown dataset: %s", datasetID)
}

// Read streams a dataset.
func (g *GitHub) Read(ctx context.Context, req *endpoint.ReadRequest) (endpoint.Iterator[endpoint.Record], error) {
	switch req.DatasetID {
	case "github.workflows":
		records, err := g.listKeyed(ctx, g.repoPath("actions/workflows"), "workflows", req)
		if err != nil {
			return nil, err
		}
		return endpoint.NewSliceIterator(records), nil
	case "github.workflow_runs":
		records, err := g.listKeyed(ctx, g.repoPath("actions/runs"), "workflow_runs", req)
		if err != nil {
			return nil, err
		}
		return endpoint.NewSliceIterator(records), nil
	case "github.deployments":
		records, err := g.listPlain(ctx, g.repoPath("deployments"), req)
		if err != nil {
			return nil, err
		}
		return endpoint.NewSliceIterator(records), nil
	}
	return nil, coded.Errorf(coded.CodeNotFound, false, "unknown dataset: %s", req.DatasetID)
}

// listKeyed reads a GitHub list response that nests items under a key
// ({"total_count": N, "workflow_runs": [...]}), following page numbers.
func (g *GitHub) listKeyed(ctx context.Context, path, key string, req *endpoint.ReadRequest) ([]endpoint.Record, error) {
	var records []endpoint.Record
	for page := 1; ; page++ {
		query := url.Values{"per_page": {"100"}, "page": {strconv.Itoa(page)}}
		addReadParams(query, req)

		resp, err := g.get(ctx, path, query)
		if err != nil {
			return nil, err
		}
		var body map[string]any
		if err := resp.JSON(&body); err != nil {
			return nil, err
		}
		items, _ := body[key].([]any)
		for _, item := range items {
			if m, ok := item.(map[string]any); ok {
				records = append(records, endpoint.Record(m))
			}
		}
		if len(items) < 100 || reachedLimit(records, req) {
			break
		}
	}
	return trimToLimit(records, req), nil
}

// listPlain reads a bare-array list response.
func (g *GitHub) listPlain(ctx context.Context, path string, req *endpoint.ReadRequest) ([]endpoint.Record, error) {
	var records []endpoint.Record
	for page := 1; ; page++ {
		query := url.Values{"per_page": {"100"}, "page": {strconv.Itoa(page)}}
		addReadParams(query, req)

		resp, err := g.get(ctx, path, query)
		if err != nil {
			return nil, err
		}
		var items []map[string]any
		if err := resp.JSON(&items); err != nil {
			return nil, err
		}
		for _, m := range items {
			records = append(records, endpoint.Record(m))
		}
		if len(items) < 100 || reachedLimit(records, req) {
			break
		}
	}
	return trimToLimit(records, req), nil
}

func addReadParams(query url.Values, req *endpoint.ReadRequest) {
	if req == nil {
		return
	}
	for _, key := range []string{"branch", "status", "environment"} {
		if v, ok := req.Params[key].(string); ok && v != "" {
			query.Set(key, v)
		}
	}
}

func reachedLimit(records []endpoint.Record, req *endpoint.ReadRequest) bool {
	return req != nil && req.Limit > 0 && int64(len(records)) >= req.Limit
}

func trimToLimit(records []endpoint.Record, req *endpoint.ReadRequest) []endpoint.Record {
	if req != nil && req.Limit > 0 && int64(len(records)) > req.Limit {
		return records[:req.Limit]
	}
	return records
}
