package sdp

import (
	"github.com/opsrelay/relay-core/internal/endpoint"
)

// init registers the ServiceDesk Plus factory with the global registry.
func init() {
	endpoint.DefaultRegistry().Register("itsm.sdp", func(config map[string]any) (endpoint.Endpoint, error) {
		cfg := &Config{
			BaseURL:       getString(config, "baseUrl", ""),
			TechnicianKey: getString(config, "technicianKey", ""),
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
