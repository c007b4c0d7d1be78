package github

import (
	"github.com/opsrelay/relay-core/internal/endpoint"
)

// init registers the GitHub factory with the global registry.
func init() {
	endpoint.DefaultRegistry().Register("ci.github", func(config map[string]any) (endpoint.Endpoint, error) {
		cfg := &Config{
			BaseURL: getString(config, "baseUrl", defaultBaseURL),
			Token:   getString(config, "token", ""),
			Owner:   getString(config, "owner", ""),
			Repo:    getString(config, "repo", ""),
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
