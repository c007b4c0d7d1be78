package graph

import (
	"github.com/opsrelay/relay-core/internal/endpoint"
)

// init registers the Graph factory with the global registry.
func init() {
	endpoint.DefaultRegistry().Register("graph.sharepoint", func(config map[string]any) (endpoint.Endpoint, error) {
		cfg := &Config{
			TenantID:     getString(config, "tenantId", ""),
			ClientID:     getString(config, "clientId", ""),
			ClientSecret: getString(config, "clientSecret", ""),
			DriveID:      getString(config, "driveId", ""),
			RootPath:     getString(config, "rootPath", "/"),
			BaseURL:      getString(config, "baseUrl", ""),
		}
		return New(cfg)
	})
}

// --- Config Helpers ---

func getString(m map[string]any, key, defaultVal string) string {
	if v, ok := m[key].(string); ok && v != "" {
		return v
	}
	return defaultVal
}
