package ldapdir

import (
	"github.com/opsrelay/relay-core/internal/endpoint"
)

// init registers the LDAP directory factory with the global registry.
func init() {
	endpoint.DefaultRegistry().Register("directory.ldap", func(config map[string]any) (endpoint.Endpoint, error) {
		cfg := &Config{
			URL:          getString(config, "url", ""),
			BindDN:       getString(config, "bindDn", ""),
			BindPassword: getString(config, "bindPassword", ""),
			BaseDN:       getString(config, "baseDn", ""),
		}
		if v, ok := config["startTls"].(bool); ok {
			cfg.StartTLS = v
		}
		if v, ok := config["insecureSkipVerify"].(bool); ok {
			cfg.InsecureSkipVerify = v
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
