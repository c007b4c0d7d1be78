// Package config provides configuration loading for relayctl.
//
// It follows the disciplined Viper pattern: Viper stays contained in this
// package and the rest of the codebase receives explicit Config structs.
// Sources are resolved in this order: flags > env (RELAY_*) > config file >
// defaults.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config is the explicit configuration struct the rest of the codebase sees.
type Config struct {
	LogLevel    string
	DatabaseURL string

	Graph    GraphConfig
	AzFiles  AzFilesConfig
	Archive  ArchiveConfig
	UKG      UKGConfig
	Nagios   NagiosConfig
	SDP      SDPConfig
	LDAP     LDAPConfig
	Meraki   MerakiConfig
	RSV      RSVConfig
	GitHub   GitHubConfig
	Transfer TransferConfig
}

// GraphConfig holds Microsoft Graph app credentials.
type GraphConfig struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	DriveID      string
	RootPath     string
}

// AzFilesConfig holds Azure File Share credentials.
type AzFilesConfig struct {
	Account    string
	AccountKey string
	Share      string
}

// ArchiveConfig holds the object-store archive settings.
type ArchiveConfig struct {
	EndpointURL     string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	BasePrefix      string
	Region          string
	UseSSL          bool
}

// UKGConfig holds UKG Dimensions API settings.
type UKGConfig struct {
	BaseURL   string
	Username  string
	Password  string
	APIKey    string
	Hyperfind string
}

// NagiosConfig holds Nagios XI API settings.
type NagiosConfig struct {
	BaseURL string
	APIKey  string
}

// SDPConfig holds ServiceDesk Plus API settings.
type SDPConfig struct {
	BaseURL       string
	TechnicianKey string
}

// LDAPConfig holds directory connection settings.
type LDAPConfig struct {
	URL      string
	BindDN   string
	Password string
	BaseDN   string
	StartTLS bool
}

// MerakiConfig holds Meraki Dashboard and SNMP settings.
type MerakiConfig struct {
	APIKey        string
	OrgID         string
	SNMPHost      string
	SNMPCommunity string
}

// RSVConfig holds Azure Recovery Services Vault settings.
type RSVConfig struct {
	TenantID       string
	ClientID       string
	ClientSecret   string
	SubscriptionID string
	ResourceGroup  string
	VaultName      string
}

// GitHubConfig holds GitHub API settings.
type GitHubConfig struct {
	BaseURL string
	Token   string
	Owner   string
	Repo    string
}

// TransferConfig tunes the file copy engine.
type TransferConfig struct {
	Workers        int
	ChunkSizeBytes int
	RetryAttempts  int
}

// Init initializes viper with defaults and config file paths.
func Init() error {
	viper.SetConfigName("relay")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("$HOME/.relay")
	viper.AddConfigPath(".")

	viper.SetDefault("log-level", "info")
	viper.SetDefault("graph.root-path", "/")
	viper.SetDefault("archive.base-prefix", "relay")
	viper.SetDefault("archive.use-ssl", false)
	viper.SetDefault("github.base-url", "https://api.github.com")
	viper.SetDefault("meraki.snmp-community", "public")
	viper.SetDefault("transfer.workers", 8)
	viper.SetDefault("transfer.chunk-size-bytes", 4*1024*1024)
	viper.SetDefault("transfer.retry-attempts", 3)

	viper.SetEnvPrefix("RELAY")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return nil
}

// Load reads from all sources and returns the explicit Config.
func Load() (*Config, error) {
	cfg := &Config{
		LogLevel:    viper.GetString("log-level"),
		DatabaseURL: viper.GetString("database-url"),
		Graph: GraphConfig{
			TenantID:     viper.GetString("graph.tenant-id"),
			ClientID:     viper.GetString("graph.client-id"),
			ClientSecret: viper.GetString("graph.client-secret"),
			DriveID:      viper.GetString("graph.drive-id"),
			RootPath:     viper.GetString("graph.root-path"),
		},
		AzFiles: AzFilesConfig{
			Account:    viper.GetString("azfiles.account"),
			AccountKey: viper.GetString("azfiles.account-key"),
			Share:      viper.GetString("azfiles.share"),
		},
		Archive: ArchiveConfig{
			EndpointURL:     viper.GetString("archive.endpoint-url"),
			AccessKeyID:     viper.GetString("archive.access-key-id"),
			SecretAccessKey: viper.GetString("archive.secret-access-key"),
			Bucket:          viper.GetString("archive.bucket"),
			BasePrefix:      viper.GetString("archive.base-prefix"),
			Region:          viper.GetString("archive.region"),
			UseSSL:          viper.GetBool("archive.use-ssl"),
		},
		UKG: UKGConfig{
			BaseURL:   viper.GetString("ukg.base-url"),
			Username:  viper.GetString("ukg.username"),
			Password:  viper.GetString("ukg.password"),
			APIKey:    viper.GetString("ukg.api-key"),
			Hyperfind: viper.GetString("ukg.hyperfind"),
		},
		Nagios: NagiosConfig{
			BaseURL: viper.GetString("nagios.base-url"),
			APIKey:  viper.GetString("nagios.api-key"),
		},
		SDP: SDPConfig{
			BaseURL:       viper.GetString("sdp.base-url"),
			TechnicianKey: viper.GetString("sdp.technician-key"),
		},
		LDAP: LDAPConfig{
			URL:      viper.GetString("ldap.url"),
			BindDN:   viper.GetString("ldap.bind-dn"),
			Password: viper.GetString("ldap.password"),
			BaseDN:   viper.GetString("ldap.base-dn"),
			StartTLS: viper.GetBool("ldap.start-tls"),
		},
		Meraki: MerakiConfig{
			APIKey:        viper.GetString("meraki.api-key"),
			OrgID:         viper.GetString("meraki.org-id"),
			SNMPHost:      viper.GetString("meraki.snmp-host"),
			SNMPCommunity: viper.GetString("meraki.snmp-community"),
		},
		RSV: RSVConfig{
			TenantID:       viper.GetString("rsv.tenant-id"),
			ClientID:       viper.GetString("rsv.client-id"),
			ClientSecret:   viper.GetString("rsv.client-secret"),
			SubscriptionID: viper.GetString("rsv.subscription-id"),
			ResourceGroup:  viper.GetString("rsv.resource-group"),
			VaultName:      viper.GetString("rsv.vault-name"),
		},
		GitHub: GitHubConfig{
			BaseURL: viper.GetString("github.base-url"),
			Token:   viper.GetString("github.token"),
			Owner:   viper.GetString("github.owner"),
			Repo:    viper.GetString("github.repo"),
		},
		Transfer: TransferConfig{
			Workers:        viper.GetInt("transfer.workers"),
			ChunkSizeBytes: viper.GetInt("transfer.chunk-size-bytes"),
			RetryAttempts:  viper.GetInt("transfer.retry-attempts"),
		},
	}

	if cfg.Transfer.Workers <= 0 {
		cfg.Transfer.Workers = 8
	}
	if cfg.Transfer.RetryAttempts <= 0 {
		cfg.Transfer.RetryAttempts = 3
	}

	return cfg, nil
}
