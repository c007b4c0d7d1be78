package meraki

import (
	"github.com/opsrelay/relay-core/internal/endpoint"
)

// init registers the Meraki factory with the global registry.
func init() {
	endpoint.DefaultRegistry().Register("net.meraki", func(config map[string]any) (endpoint.Endpoint, error) {
		cfg := &Config{
			APIKey:        getString(config, "apiKey", ""),
			OrgID:         getString(config, "orgId", ""),
			BaseURL:       getString(config, "baseUrl", defaultBaseURL),
			SNMPHost:      getString(config, "snmpHost", ""),
			SNMPCommunity: getString(config, "snmpCommunity", ""),
		}
		if port, ok := config["snmpPort"].(int); ok && port > 0 {
			cfg.SNMPPort = uint16(port)
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
