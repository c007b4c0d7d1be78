package azrsv

import (
	"github.com/opsrelay/relay-core/internal/endpoint"
)

// init registers the Recovery Services Vault factory with the global registry.
func init() {
	endpoint.DefaultRegistry().Register("azure.rsv", func(config map[string]any) (endpoint.Endpoint, error) {
		cfg := &Config{
			TenantID:       getString(config, "tenantId", ""),
			ClientID:       getString(config, "clientId", ""),
			ClientSecret:   getString(config, "clientSecret", ""),
			SubscriptionID: getString(config, "subscriptionId", ""),
			ResourceGroup:  getString(config, "resourceGroup", ""),
			Vault:          getString(config, "vault", ""),
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
