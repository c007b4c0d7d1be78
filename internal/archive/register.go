package archive

import (
	"github.com/opsrelay/relay-core/internal/endpoint"
)

// init registers the archive sink factory with the global registry.
func init() {
	endpoint.DefaultRegistry().Register("archive.objectstore", func(config map[string]any) (endpoint.Endpoint, error) {
		cfg := &Config{
			EndpointURL:     getString(config, "endpointUrl", ""),
			AccessKeyID:     getString(config, "accessKeyId", ""),
			SecretAccessKey: getString(config, "secretAccessKey", ""),
			Region:          getString(config, "region", ""),
			Bucket:          getString(config, "bucket", ""),
			BasePrefix:      getString(config, "basePrefix", ""),
		}
		if v, ok := config["useSSL"].(bool); ok {
			cfg.UseSSL = v
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
