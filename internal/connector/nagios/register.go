package nagios

import (
	"github.com/opsrelay/relay-core/internal/endpoint"
)

// init registers the Nagios XI factory with the global registry.
func init() {
	endpoint.DefaultRegistry().Register("monitoring.nagiosxi", func(config map[string]any) (endpoint.Endpoint, error) {
		cfg := &Config{
			BaseURL: getString(config, "baseUrl", ""),
			APIKey:  getString(config, "apiKey", ""),
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
