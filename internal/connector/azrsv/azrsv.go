// Package azrsv drives Azure Recovery Services Vault backup and restore
// operations through the ARM REST API.
package azrsv

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/opsrelay/relay-core/internal/coded"
	"github.com/opsrelay/relay-core/internal/endpoint"
	"github.com/opsrelay/relay-core/internal/httpx"
)

const (
	defaultBaseURL = "https://management.azure.com"
	tokenURLFmt    = "https://login.microsoftonline.com/%s/oauth2/v2.0/token"
	armScope       = "https://management.azure.com/.default"
	apiVersion     = "2023-04-01"
)

// Config holds vault coordinates and service principal credentials.
type Config struct {
	TenantID       string
	ClientID       string
	ClientSecret   string
	SubscriptionID string
	ResourceGroup  string
	Vault          string
	// BaseURL overrides the ARM endpoint (tests).
	BaseURL string
	// PollInterval is the delay between async operation polls.
	PollInterval time.Duration
	// MaxPolls bounds async operation polling.
	MaxPolls int
}

// Vault is the Recovery Services connector.
type Vault struct {
	config *Config
	client *httpx.Client
}

var (
	_ endpoint.SourceEndpoint = (*Vault)(nil)
	_ endpoint.ActionEndpoint = (*Vault)(nil)
)

// New creates the connector with a client-credentials token source.
func New(cfg *Config) (*Vault, error) {
	if cfg.TenantID == "" || cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("tenantId, clientId and clientSecret are required")
	}
	if cfg.SubscriptionID == "" || cfg.ResourceGroup == "" || cfg.Vault == "" {
		return nil, fmt.Errorf("subscriptionId, resourceGroup and vault are required")
	}
	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     fmt.Sprintf(tokenURLFmt, cfg.TenantID),
		Scopes:       []string{armScope},
	}
	return newWithAuth(cfg, httpx.TokenSourceAuth{Source: cc.TokenSource(context.Background())}, nil), nil
}

func newWithAuth(cfg *Config, auth httpx.AuthConfig, transport http.RoundTripper) *Vault {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.MaxPolls <= 0 {
		cfg.MaxPolls = 60
	}
	return &Vault{
		config: cfg,
		client: httpx.NewClient(&httpx.ClientConfig{
			BaseURL:   strings.TrimSuffix(cfg.BaseURL, "/"),
			Auth:      auth,
			Transport: transport,
		}),
	}
}

// ID returns the connector template ID.
func (v *Vault) ID() string { return "azure.rsv" }

// Close releases resources.
func (v *Vault) Close() error { return nil }

func (v *Vault) GetDescriptor() *endpoint.Descriptor {
	return &endpoint.Descriptor{
		ID:          "azure.rsv",
		Family:      "azure",
		Title:       "Azure Recovery Services Vault",
		Vendor:      "Microsoft",
		Description: "VM backup, restore and job monitoring via the ARM Recovery Services API",
		Categories:  []string{"backup", "cloud", "microsoft"},
		Protocols:   []string{"REST", "OAuth2"},
		DocsURL:     "https://learn.microsoft.com/en-us/rest/api/backup/",
		Fields: []*endpoint.FieldDescriptor{
			{Key: "tenantId", Label: "Tenant ID", ValueType: "string", Required: true},
			{Key: "clientId", Label: "Client ID", ValueType: "string", Required: true},
			{Key: "clientSecret", Label: "Client Secret", ValueType: "password", Required: true, Sensitive: true},
			{Key: "subscriptionId", Label: "Subscription ID", ValueType: "string", Required: true},
			{Key: "resourceGroup", Label: "Resource Group", ValueType: "string", Required: true},
			{Key: "vault", Label: "Vault Name", ValueType: "string", Required: true},
		},
	}
}

func (v *Vault) GetCapabilities() *endpoint.Capabilities {
	return &endpoint.Capabilities{
		SupportsFull:     true,
		SupportsMetadata: true,
		SupportsActions:  true,
		DefaultFetchSize: 100,
	}
}

func (v *Vault) ValidateConfig(ctx context.Context, config map[string]any) (*endpoint.ValidationResult, error) {
	resp, err := v.get(ctx, v.vaultPath(""), nil)
	if err != nil {
		return &endpoint.ValidationResult{Valid: false, Message: fmt.Sprintf("vault probe failed: %v", err)}, nil
	}
	var vault struct {
		Name     string `json:"name"`
		Location string `json:"location"`
	}
	if err := resp.JSON(&vault); err != nil {
		return nil, err
	}
	return &endpoint.ValidationResult{
		Valid:   true,
		Message: fmt.Sprintf("vault %s reachable in %s", vault.Name, vault.Location),
	}, nil
}

// vaultPath builds the ARM resource path under the vault.
func (v *Vault) vaultPath(suffix string) string {
	p := fmt.Sprintf("/subscriptions/%s/resourceGroups/%s/providers/Microsoft.RecoveryServices/vaults/%s",
		v.config.SubscriptionID, v.config.ResourceGroup, v.config.Vault)
	if suffix != "" {
		p += "/" + strings.TrimPrefix(suffix, "/")
	}
	return p
}

// protectedItemPath addresses an IaaS VM protected item inside the vault.
func (v *Vault) protectedItemPath(container, item, suffix string) string {
	p := v.vaultPath(fmt.Sprintf("backupFabrics/Azure/protectionContainers/%s/protectedItems/%s", container, item))
	if suffix != "" {
		p += "/" + strings.TrimPrefix(suffix, "/")
	}
	return p
}

func classify(err error) error {
	var httpErr *httpx.HTTPError
	if errors.As(err, &httpErr) {
		return httpx.ClassifyStatus(httpErr.StatusCode, httpErr.Message)
	}
	return err
}

func (v *Vault) get(ctx context.Context, path string, query url.Values) (*httpx.Response, error) {
	if query == nil {
		query = url.Values{}
	}
	query.Set("api-version", apiVersion)
	resp, err := v.client.Get(ctx, path, query)
	if err != nil {
		return nil, classify(err)
	}
	return resp, nil
}

// post issues an ARM POST. ARM long-running operations respond 202 with an
// Azure-AsyncOperation header instead of a body.
func (v *Vault) post(ctx context.Context, path string, body any) (*httpx.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	resp, err := v.client.Do(ctx, &httpx.Request{
		Method:  http.MethodPost,
		Path:    path + "?api-version=" + apiVersion,
		Body:    reader,
		Headers: map[string]string{"Content-Type": "application/json"},
	})
	if err != nil {
		return nil, classify(err)
	}
	return resp, nil
}

// waitForOperation polls an Azure-AsyncOperation URL until it leaves
// InProgress, the poll budget runs out, or the context is cancelled.
func (v *Vault) waitForOperation(ctx context.Context, opURL string) (map[string]any, error) {
	for i := 0; i < v.config.MaxPolls; i++ {
		resp, err := v.client.GetURL(ctx, opURL)
		if err != nil {
			return nil, classify(err)
		}
		var op struct {
			Status     string         `json:"status"`
			Error      map[string]any `json:"error"`
			Properties map[string]any `json:"properties"`
		}
		if err := resp.JSON(&op); err != nil {
			return nil, err
		}
		switch op.Status {
		case "Succeeded":
			return op.Properties, nil
		case "Failed", "Cancelled":
			return nil, coded.Errorf(coded.CodeBadPayload, false, "operation %s: %v", strings.ToLower(op.Status), op.Error)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(v.config.PollInterval):
		}
	}
	return nil, coded.Errorf(coded.CodeTimeout, true, "operation still in progress after %d polls", v.config.MaxPolls)
}

// asyncOperationURL extracts the poll URL from a 202 response.
func asyncOperationURL(resp *httpx.Response) (string, error) {
	loc := resp.Headers.Get("Azure-AsyncOperation")
	if loc == "" {
		loc = resp.Headers.Get("Location")
	}
	if loc == "" {
		return "", coded.Errorf(coded.CodeBadPayload, false, "accepted response without Azure-AsyncOperation header")
	}
	return loc, nil
}
