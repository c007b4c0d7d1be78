package azfiles

import (
	"github.com/opsrelay/relay-core/internal/endpoint"
)

// init registers the Azure File Share factory with the global registry.
func init() {
	endpoint.DefaultRegistry().Register("azure.fileshare", func(config map[string]any) (endpoint.Endpoint, error) {
		cfg := &Config{
			Account:    getString(config, "account", ""),
			AccountKey: getString(config, "accountKey", ""),
			Share:      getString(config, "share", ""),
			ChunkSize:  getInt(config, "chunkSize", DefaultChunkSize),
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

func getInt(m map[string]any, key string, defaultVal int) int {
	switch v := m[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return defaultVal
}
