// Package ukg reads workforce data out of UKG Dimensions. Data Views and
// Hyperfinds are resolved by name, executed against a symbolic period, and
// polled to completion; report rows come back as records keyed by the Data
// View's column names.
package ukg

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/opsrelay/relay-core/internal/coded"
	"github.com/opsrelay/relay-core/internal/endpoint"
	"github.com/opsrelay/relay-core/internal/httpx"
)

const (
	defaultPollInterval = 2 * time.Second
	defaultMaxPolls     = 30
	tokenExpirySkew     = 60 * time.Second
)

// Config holds UKG Dimensions connection settings.
type Config struct {
	BaseURL      string // tenant base, e.g. https://acme.prd.mykronos.com
	AppKey       string
	ClientID     string
	ClientSecret string
	Username     string
	Password     string

	PollInterval time.Duration
	MaxPolls     int
}

// UKG is the Dimensions connector.
type UKG struct {
	config *Config
	client *httpx.Client

	tokenMu     sync.RWMutex
	accessToken string
	tokenExpiry time.Time
}

var (
	_ endpoint.SourceEndpoint = (*UKG)(nil)
	_ endpoint.ActionEndpoint = (*UKG)(nil)
)

// New creates the connector.
func New(cfg *Config) (*UKG, error) {
	if cfg.BaseURL == "" || cfg.AppKey == "" || cfg.Username == "" || cfg.Password == "" {
		return nil, fmt.Errorf("baseUrl, appKey, username and password are required")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.MaxPolls <= 0 {
		cfg.MaxPolls = defaultMaxPolls
	}
	u := &UKG{config: cfg}
	u.client = httpx.NewClient(&httpx.ClientConfig{
		BaseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		Auth:    &ukgAuth{u: u},
		Headers: map[string]string{"appkey": cfg.AppKey},
	})
	return u, nil
}

// newWithTransport is the test constructor.
func newWithTransport(cfg *Config, transport http.RoundTripper) *UKG {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Millisecond
	}
	if cfg.MaxPolls <= 0 {
		cfg.MaxPolls = defaultMaxPolls
	}
	u := &UKG{config: cfg}
	u.client = httpx.NewClient(&httpx.ClientConfig{
		BaseURL:   strings.TrimSuffix(cfg.BaseURL, "/"),
		Auth:      &ukgAuth{u: u},
		Headers:   map[string]string{"appkey": cfg.AppKey},
		Transport: transport,
	})
	return u
}

// ukgAuth injects the cached bearer token, refreshing it when stale.
type ukgAuth struct {
	u *UKG
}

func (a *ukgAuth) Apply(req *http.Request) error {
	// The token endpoint itself must not recurse.
	if strings.Contains(req.URL.Path, "authentication/access_token") {
		return nil
	}
	token, err := a.u.token(req.Context())
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

// token returns the cached access token, fetching a new one when it is
// missing or within the expiry skew. Read lock first so concurrent
// requests do not serialize on the happy path.
func (u *UKG) token(ctx context.Context) (string, error) {
	u.tokenMu.RLock()
	if u.accessToken != "" && time.Now().Before(u.tokenExpiry) {
		token := u.accessToken
		u.tokenMu.RUnlock()
		return token, nil
	}
	u.tokenMu.RUnlock()

	u.tokenMu.Lock()
	defer u.tokenMu.Unlock()
	// Another goroutine may have refreshed while we waited.
	if u.accessToken != "" && time.Now().Before(u.tokenExpiry) {
		return u.accessToken, nil
	}

	form := url.Values{
		"grant_type":    {"password"},
		"username":      {u.config.Username},
		"password":      {u.config.Password},
		"client_id":     {u.config.ClientID},
		"client_secret": {u.config.ClientSecret},
		"auth_chain":    {"OAuthLdapService"},
	}
	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	resp, err := u.client.Do(ctx, &httpx.Request{
		Method:  http.MethodPost,
		Path:    "/api/authentication/access_token",
		Body:    strings.NewReader(form.Encode()),
		Headers: map[string]string{"Content-Type": "application/x-www-form-urlencoded"},
	})
	if err != nil {
		return "", coded.Wrap(coded.CodeAuthInvalid, false, fmt.Errorf("token request: %w", err))
	}
	if err := resp.JSON(&tokenResp); err != nil {
		return "", err
	}
	if tokenResp.AccessToken == "" {
		return "", coded.Errorf(coded.CodeAuthInvalid, false, "empty access token")
	}
	u.accessToken = tokenResp.AccessToken
	if tokenResp.ExpiresIn > 0 {
		u.tokenExpiry = time.Now().Add(time.Duration(tokenResp.ExpiresIn)*time.Second - tokenExpirySkew)
	} else {
		u.tokenExpiry = time.Now().Add(10 * time.Minute)
	}
	return u.accessToken, nil
}

// ID returns the connector template ID.
func (u *UKG) ID() string { return "ukg.dimensions" }

// Close releases resources.
func (u *UKG) Close() error { return nil }

func (u *UKG) GetDescriptor() *endpoint.Descriptor {
	return &endpoint.Descriptor{
		ID:          "ukg.dimensions",
		Family:      "hcm",
		Title:       "UKG Dimensions",
		Vendor:      "UKG",
		Description: "Data View and Hyperfind reporting plus integration runs",
		Categories:  []string{"hcm", "workforce", "reporting"},
		Protocols:   []string{"REST", "OAuth2"},
		Fields: []*endpoint.FieldDescriptor{
			{Key: "baseUrl", Label: "Tenant URL", ValueType: "string", Required: true},
			{Key: "appKey", Label: "App Key", ValueType: "password", Required: true, Sensitive: true},
			{Key: "clientId", Label: "Client ID", ValueType: "string", Required: true},
			{Key: "clientSecret", Label: "Client Secret", ValueType: "password", Required: true, Sensitive: true},
			{Key: "username", Label: "Username", ValueType: "string", Required: true},
			{Key: "password", Label: "Password", ValueType: "password", Required: true, Sensitive: true},
		},
	}
}

func (u *UKG) GetCapabilities() *endpoint.Capabilities {
	return &endpoint.Capabilities{
		SupportsFull:     true,
		SupportsMetadata: true,
		SupportsActions:  true,
		DefaultFetchSize: 1000,
	}
}

func (u *UKG) ValidateConfig(ctx context.Context, config map[string]any) (*endpoint.ValidationResult, error) {
	if _, err := u.token(ctx); err != nil {
		return &endpoint.ValidationResult{Valid: false, Message: fmt.Sprintf("authentication failed: %v", err)}, nil
	}
	return &endpoint.ValidationResult{Valid: true, Message: "authenticated"}, nil
}

// --- Data View execution ---

type namedObject struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// ResolveDataView finds a Data View ID by exact name.
func (u *UKG) ResolveDataView(ctx context.Context, name string) (int64, error) {
	resp, err := u.client.Get(ctx, "/api/v1/commons/data_views", nil)
	if err != nil {
		return 0, err
	}
	var views []namedObject
	if err := resp.JSON(&views); err != nil {
		return 0, err
	}
	for _, v := range views {
		if strings.EqualFold(v.Name, name) {
			return v.ID, nil
		}
	}
	return 0, coded.Errorf(coded.CodeNotFound, false, "data view %q not found", name)
}

// ResolveHyperfind finds a public Hyperfind ID by exact name.
func (u *UKG) ResolveHyperfind(ctx context.Context, name string) (int64, error) {
	resp, err := u.client.Get(ctx, "/api/v1/commons/hyperfind/public", nil)
	if err != nil {
		return 0, err
	}
	var result struct {
		HyperfindQueries []namedObject `json:"hyperfindQueries"`
	}
	if err := resp.JSON(&result); err != nil {
		return 0, err
	}
	for _, h := range result.HyperfindQueries {
		if strings.EqualFold(h.Name, name) {
			return h.ID, nil
		}
	}
	return 0, coded.Errorf(coded.CodeNotFound, false, "hyperfind %q not found", name)
}

// DataViewRequest names what to execute.
type DataViewRequest struct {
	DataView string
	// Hyperfind scopes the employee population; empty means All Home.
	Hyperfind string
	// SymbolicPeriod like "Previous_Payperiod" or "Today".
	SymbolicPeriod string
}

// ExecuteDataView runs a Data View end to end: resolve, execute, poll,
// fetch. Rows come back keyed by the Data View's column keys.
func (u *UKG) ExecuteDataView(ctx context.Context, req *DataViewRequest) ([]endpoint.Record, error) {
	viewID, err := u.ResolveDataView(ctx, req.DataView)
	if err != nil {
		return nil, err
	}

	hyperfindID := int64(1) // All Home
	if req.Hyperfind != "" {
		hyperfindID, err = u.ResolveHyperfind(ctx, req.Hyperfind)
		if err != nil {
			return nil, err
		}
	}
	period := req.SymbolicPeriod
	if period == "" {
		period = "Today"
	}

	body := map[string]any{
		"dataViewId": viewID,
		"options": map[string]any{
			"hyperfind":      map[string]any{"id": hyperfindID},
			"symbolicPeriod": map[string]any{"qualifier": period},
		},
	}
	resp, err := u.client.Post(ctx, fmt.Sprintf("/api/v1/commons/data_views/%d/execute", viewID), body)
	if err != nil {
		return nil, err
	}
	var exec struct {
		ExecutionKey string `json:"executionKey"`
		Status       string `json:"status"`
	}
	if err := resp.JSON(&exec); err != nil {
		return nil, err
	}
	if exec.ExecutionKey == "" {
		return nil, coded.Errorf(coded.CodeBadPayload, false, "execute returned no execution key")
	}

	if err := u.waitForExecution(ctx, exec.ExecutionKey); err != nil {
		return nil, err
	}
	return u.fetchRows(ctx, exec.ExecutionKey)
}

func (u *UKG) waitForExecution(ctx context.Context, key string) error {
	for i := 0; i < u.config.MaxPolls; i++ {
		resp, err := u.client.Get(ctx, "/api/v1/commons/data_views/executions/"+key, nil)
		if err != nil {
			return err
		}
		var status struct {
			Status string `json:"status"`
		}
		if err := resp.JSON(&status); err != nil {
			return err
		}
		switch strings.ToUpper(status.Status) {
		case "COMPLETED", "SUCCESS":
			return nil
		case "FAILED", "CANCELLED":
			return coded.Errorf(coded.CodeBadPayload, false, "data view execution %s ended %s", key, status.Status)
		}
		select {
		case <-time.After(u.config.PollInterval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return coded.Errorf(coded.CodeTimeout, true, "data view execution %s not complete after %d polls", key, u.config.MaxPolls)
}

func (u *UKG) fetchRows(ctx context.Context, key string) ([]endpoint.Record, error) {
	resp, err := u.client.Get(ctx, "/api/v1/commons/data_views/executions/"+key+"/data", nil)
	if err != nil {
		return nil, err
	}
	var result struct {
		Metadata struct {
			Columns []struct {
				Key   string `json:"key"`
				Title string `json:"title"`
			} `json:"columns"`
		} `json:"metadata"`
		Data [][]any `json:"data"`
	}
	if err := resp.JSON(&result); err != nil {
		return nil, err
	}

	records := make([]endpoint.Record, 0, len(result.Data))
	for _, row := range result.Data {
		rec := make(endpoint.Record, len(result.Metadata.Columns))
		for i, col := range result.Metadata.Columns {
			if i < len(row) {
				rec[col.Key] = row[i]
			}
		}
		records = append(records, rec)
	}
	return records, nil
}
