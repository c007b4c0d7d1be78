package graph

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/opsrelay/relay-core/internal/endpoint"
	"github.com/opsrelay/relay-core/internal/httpx"
)

const (
	defaultBaseURL = "https://graph.microsoft.com/v1.0"
	tokenURLFmt    = "https://login.microsoftonline.com/%s/oauth2/v2.0/token"
	graphScope     = "https://graph.microsoft.com/.default"
)

// Config holds Graph connector configuration.
type Config struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	// DriveID selects the SharePoint document library drive.
	DriveID  string
	RootPath string
	// BaseURL overrides the Graph endpoint (tests).
	BaseURL string
}

// requiredRoles are the application permissions the connector needs for
// drive reads and the managed device inventory.
var requiredRoles = []string{"Files.Read.All", "DeviceManagementManagedDevices.Read.All"}

// Graph implements the Microsoft Graph connector: SharePoint drive items and
// the managed device inventory, authenticated with app-only client
// credentials.
type Graph struct {
	config *Config
	client *httpx.Client
	tokens oauth2.TokenSource // nil when auth is injected (tests)
}

var _ endpoint.SourceEndpoint = (*Graph)(nil)

// New creates a Graph connector with a client-credentials token source.
func New(cfg *Config) (*Graph, error) {
	if cfg.TenantID == "" || cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("tenantId, clientId and clientSecret are required")
	}
	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     fmt.Sprintf(tokenURLFmt, cfg.TenantID),
		Scopes:       []string{graphScope},
	}
	source := cc.TokenSource(context.Background())
	g := newWithAuth(cfg, httpx.TokenSourceAuth{Source: source}, nil)
	g.tokens = source
	return g, nil
}

func newWithAuth(cfg *Config, auth httpx.AuthConfig, transport http.RoundTripper) *Graph {
	base := cfg.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	if cfg.RootPath == "" {
		cfg.RootPath = "/"
	}
	clientCfg := httpx.DefaultClientConfig()
	clientCfg.BaseURL = base
	clientCfg.Auth = auth
	clientCfg.Transport = transport
	return &Graph{config: cfg, client: httpx.NewClient(clientCfg)}
}

// ID returns the connector template ID.
func (g *Graph) ID() string { return "graph.sharepoint" }

// Close releases resources.
func (g *Graph) Close() error { return nil }

// GetDescriptor returns the connector descriptor.
func (g *Graph) GetDescriptor() *endpoint.Descriptor {
	return &endpoint.Descriptor{
		ID:          "graph.sharepoint",
		Family:      "graph",
		Title:       "Microsoft Graph",
		Vendor:      "Microsoft",
		Description: "SharePoint drive items and Intune managed devices via Microsoft Graph",
		Categories:  []string{"storage", "cloud", "microsoft"},
		Protocols:   []string{"REST", "HTTPS", "OAuth2"},
		DocsURL:     "https://learn.microsoft.com/en-us/graph/api/overview",
		Fields: []*endpoint.FieldDescriptor{
			{Key: "tenantId", Label: "Tenant ID", ValueType: "string", Required: true},
			{Key: "clientId", Label: "Client ID", ValueType: "string", Required: true},
			{Key: "clientSecret", Label: "Client Secret", ValueType: "password", Required: true, Sensitive: true},
			{Key: "driveId", Label: "Drive ID", ValueType: "string", Required: false, Description: "SharePoint document library drive ID"},
			{Key: "rootPath", Label: "Root Path", ValueType: "string", Required: false, Placeholder: "/"},
		},
	}
}

// GetCapabilities returns connector capabilities.
func (g *Graph) GetCapabilities() *endpoint.Capabilities {
	return &endpoint.Capabilities{
		SupportsFull:     true,
		SupportsPreview:  true,
		SupportsMetadata: true,
		DefaultFetchSize: 200,
	}
}

// ValidateConfig audits the app token's roles, then tests drive access.
func (g *Graph) ValidateConfig(ctx context.Context, config map[string]any) (*endpoint.ValidationResult, error) {
	if g.tokens != nil {
		tok, err := g.tokens.Token()
		if err != nil {
			return &endpoint.ValidationResult{
				Valid:   false,
				Message: fmt.Sprintf("Failed to acquire token: %v", err),
			}, nil
		}
		audit, err := AuditToken(tok.AccessToken, requiredRoles)
		if err != nil {
			return &endpoint.ValidationResult{
				Valid:   false,
				Message: fmt.Sprintf("Failed to decode token: %v", err),
			}, nil
		}
		if len(audit.MissingRoles) > 0 {
			return &endpoint.ValidationResult{
				Valid:   false,
				Message: fmt.Sprintf("App %s is missing roles: %s", audit.AppID, strings.Join(audit.MissingRoles, ", ")),
			}, nil
		}
	}

	name, err := g.driveName(ctx)
	if err != nil {
		return &endpoint.ValidationResult{
			Valid:   false,
			Message: fmt.Sprintf("Failed to access drive: %v", err),
		}, nil
	}
	return &endpoint.ValidationResult{
		Valid:   true,
		Message: fmt.Sprintf("Connected to drive: %s", name),
	}, nil
}

// ListDatasets returns available Graph datasets.
func (g *Graph) ListDatasets(ctx context.Context) ([]*endpoint.Dataset, error) {
	return []*endpoint.Dataset{
		{ID: "sharepoint.file", Name: "SharePoint Files", Kind: "tree", PrimaryKeys: []string{"id"}},
		{ID: "sharepoint.folder", Name: "SharePoint Folders", Kind: "tree", PrimaryKeys: []string{"id"}},
		{ID: "graph.device", Name: "Managed Devices", Kind: "table", PrimaryKeys: []string{"id"}},
	}, nil
}

// GetSchema returns the schema for a dataset.
func (g *Graph) GetSchema(ctx context.Context, datasetID string) (*endpoint.Schema, error) {
	schema, ok := schemas[datasetID]
	if !ok {
		return nil, fmt.Errorf("unknown dataset: %s", datasetID)
	}
	return schema, nil
}

// Read reads records from a dataset.
func (g *Graph) Read(ctx context.Context, req *endpoint.ReadRequest) (endpoint.Iterator[endpoint.Record], error) {
	switch req.DatasetID {
	case "sharepoint.file":
		return g.readItems(ctx, req, false)
	case "sharepoint.folder":
		return g.readItems(ctx, req, true)
	case "graph.device":
		return g.readDevices(ctx)
	default:
		return nil, fmt.Errorf("unknown dataset: %s", req.DatasetID)
	}
}

// --- Drive operations ---

func (g *Graph) drivePath(suffix string) string {
	return "/drives/" + g.config.DriveID + suffix
}

func (g *Graph) driveName(ctx context.Context) (string, error) {
	var result struct {
		Name string `json:"name"`
	}
	resp, err := g.client.Get(ctx, g.drivePath(""), nil)
	if err != nil {
		return "", classify(err)
	}
	if err := resp.JSON(&result); err != nil {
		return "", err
	}
	return result.Name, nil
}

// listChildren lists one folder's children, following nextLink paging.
func (g *Graph) listChildren(ctx context.Context, itemPath string) ([]DriveItem, error) {
	var apiPath string
	if itemPath == "/" || itemPath == "" {
		apiPath = g.drivePath("/root/children")
	} else {
		apiPath = g.drivePath("/root:" + escapePath(itemPath) + ":/children")
	}

	var items []DriveItem
	paginator := httpx.NewODataPaginator(apiPath, nil)
	req := paginator.FirstPage()
	for req != nil {
		resp, err := g.client.Do(ctx, req)
		if err != nil {
			return nil, classify(err)
		}
		var page ListResponse
		if err := resp.JSON(&page); err != nil {
			return nil, err
		}
		items = append(items, page.Value...)
		if req, err = paginator.NextPage(ctx, resp); err != nil {
			return nil, err
		}
	}
	return items, nil
}

// EnumerateFiles walks the drive from rootPath and returns every file. The
// transfer engine feeds this slice to its worker pool.
func (g *Graph) EnumerateFiles(ctx context.Context, rootPath string) ([]FileItem, error) {
	if rootPath == "" {
		rootPath = g.config.RootPath
	}
	queue := []string{rootPath}
	var files []FileItem

	for len(queue) > 0 {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		dir := queue[0]
		queue = queue[1:]

		items, err := g.listChildren(ctx, dir)
		if err != nil {
			return nil, err
		}
		for _, item := range items {
			itemPath := joinDrivePath(dir, item.Name)
			if item.Folder != nil {
				queue = append(queue, itemPath)
				continue
			}
			if item.File != nil {
				files = append(files, FileItem{
					ID:   item.ID,
					Name: item.Name,
					Path: itemPath,
					Size: item.Size,
				})
			}
		}
	}
	return files, nil
}

// Download streams a file's content. The caller must close the reader.
func (g *Graph) Download(ctx context.Context, itemID string) (io.ReadCloser, int64, error) {
	return g.client.Stream(ctx, &httpx.Request{
		Path: g.drivePath("/items/" + itemID + "/content"),
	})
}

// --- Device inventory ---

// Devices returns the full managed device inventory.
func (g *Graph) Devices(ctx context.Context) ([]ManagedDevice, error) {
	var devices []ManagedDevice
	paginator := httpx.NewODataPaginator("/deviceManagement/managedDevices", nil)
	req := paginator.FirstPage()
	for req != nil {
		resp, err := g.client.Do(ctx, req)
		if err != nil {
			return nil, classify(err)
		}
		var page DeviceListResponse
		if err := resp.JSON(&page); err != nil {
			return nil, err
		}
		devices = append(devices, page.Value...)
		if req, err = paginator.NextPage(ctx, resp); err != nil {
			return nil, err
		}
	}
	return devices, nil
}

func (g *Graph) readDevices(ctx context.Context) (endpoint.Iterator[endpoint.Record], error) {
	devices, err := g.Devices(ctx)
	if err != nil {
		return nil, err
	}
	records := make([]endpoint.Record, 0, len(devices))
	for _, d := range devices {
		records = append(records, endpoint.Record{
			"id":              d.ID,
			"deviceName":      d.DeviceName,
			"operatingSystem": d.OperatingSystem,
			"osVersion":       d.OSVersion,
			"complianceState": d.ComplianceState,
			"userPrincipal":   d.UserPrincipal,
			"lastSyncAt":      d.LastSyncAt,
			"serialNumber":    d.SerialNumber,
			"model":           d.Model,
			"manufacturer":    d.Manufacturer,
		})
	}
	return endpoint.NewSliceIterator(records), nil
}

func (g *Graph) readItems(ctx context.Context, req *endpoint.ReadRequest, foldersOnly bool) (endpoint.Iterator[endpoint.Record], error) {
	root := g.config.RootPath
	if p, ok := req.Params["path"].(string); ok && p != "" {
		root = p
	}
	return &driveIterator{
		graph:       g,
		ctx:         ctx,
		foldersOnly: foldersOnly,
		queue:       []string{root},
		limit:       req.Limit,
	}, nil
}

// --- Helpers ---

func joinDrivePath(dir, name string) string {
	if dir == "/" || dir == "" {
		return "/" + name
	}
	return dir + "/" + name
}

func escapePath(p string) string {
	segments := strings.Split(strings.Trim(p, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return "/" + strings.Join(segments, "/")
}

func classify(err error) error {
	var httpErr *httpx.HTTPError
	if errors.As(err, &httpErr) {
		return httpx.ClassifyStatus(httpErr.StatusCode, httpErr.Message)
	}
	return err
}
