package ukg

import (
	"github.com/opsrelay/relay-core/internal/endpoint"
)

// init registers the UKG Dimensions factory with the global registry.
func init() {
	endpoint.DefaultRegistry().Register("ukg.dimensions", func(config map[string]any) (endpoint.Endpoint, error) {
		cfg := &Config{
			BaseURL:      getString(config, "baseUrl", ""),
			AppKey:       getString(config, "appKey", ""),
			ClientID:     getString(config, "clientId", ""),
			ClientSecret: getString(config, "clientSecret", ""),
			Username:     getString(config, "username", ""),
			Password:     getString(config, "password", ""),
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
