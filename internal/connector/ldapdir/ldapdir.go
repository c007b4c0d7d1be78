// Package ldapdir updates Active Directory user attributes over LDAP.
// The write path is MODIFY with replace semantics only: the attribute
// ends up with exactly the supplied value, whether or not it existed.
package ldapdir

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-ldap/ldap/v3"

	"github.com/opsrelay/relay-core/internal/coded"
	"github.com/opsrelay/relay-core/internal/endpoint"
)

// Config holds directory connection settings.
type Config struct {
	URL          string // ldap:// or ldaps:// URL
	BindDN       string
	BindPassword string
	BaseDN       string
	// StartTLS upgrades a plain ldap:// connection before binding.
	StartTLS bool
	// InsecureSkipVerify disables certificate checks for lab DCs.
	InsecureSkipVerify bool
}

// conn is the slice of *ldap.Conn the connector uses; tests fake it.
type conn interface {
	Search(req *ldap.SearchRequest) (*ldap.SearchResult, error)
	Modify(req *ldap.ModifyRequest) error
	Close() error
}

// dial opens a connection, upgrades it with StartTLS when configured,
// and binds.
func dial(cfg *Config) (conn, error) {
	var opts []ldap.DialOpt
	if strings.HasPrefix(cfg.URL, "ldaps://") && cfg.InsecureSkipVerify {
		opts = append(opts, ldap.DialWithTLSConfig(tlsConfigFor(cfg)))
	}
	c, err := ldap.DialURL(cfg.URL, opts...)
	if err != nil {
		return nil, coded.Wrap(coded.CodeEndpointUnreachable, true, fmt.Errorf("dial %s: %w", cfg.URL, err))
	}
	if cfg.StartTLS && strings.HasPrefix(cfg.URL, "ldap://") {
		if err := c.StartTLS(tlsConfigFor(cfg)); err != nil {
			c.Close()
			return nil, coded.Wrap(coded.CodeEndpointUnreachable, true, fmt.Errorf("starttls %s: %w", cfg.URL, err))
		}
	}
	if err := c.Bind(cfg.BindDN, cfg.BindPassword); err != nil {
		c.Close()
		return nil, coded.Wrap(coded.CodeAuthInvalid, false, fmt.Errorf("bind as %s: %w", cfg.BindDN, err))
	}
	return c, nil
}

// tlsConfigFor builds the TLS settings for ldaps dials and StartTLS
// upgrades. ServerName comes from the URL host so certificate checks run
// against the DC being dialed.
func tlsConfigFor(cfg *Config) *tls.Config {
	host := cfg.URL
	if u, err := url.Parse(cfg.URL); err == nil && u.Hostname() != "" {
		host = u.Hostname()
	}
	return &tls.Config{ServerName: host, InsecureSkipVerify: cfg.InsecureSkipVerify}
}

// Directory is the LDAP connector.
type Directory struct {
	config *Config
	// dialFn lets tests swap the connection.
	dialFn func(cfg *Config) (conn, error)
}

var _ endpoint.ActionEndpoint = (*Directory)(nil)

// New creates the connector.
func New(cfg *Config) (*Directory, error) {
	if cfg.URL == "" || cfg.BindDN == "" || cfg.BaseDN == "" {
		return nil, fmt.Errorf("url, bindDn and baseDn are required")
	}
	return &Directory{config: cfg, dialFn: dial}, nil
}

// ID returns the connector template ID.
func (d *Directory) ID() string { return "directory.ldap" }

// Close releases resources. Connections are per-operation, nothing held.
func (d *Directory) Close() error { return nil }

func (d *Directory) GetDescriptor() *endpoint.Descriptor {
	return &endpoint.Descriptor{
		ID:          "directory.ldap",
		Family:      "directory",
		Title:       "LDAP Directory",
		Vendor:      "Microsoft",
		Description: "Active Directory attribute updates via LDAP MODIFY",
		Categories:  []string{"directory", "identity"},
		Protocols:   []string{"LDAP", "LDAPS"},
		Fields: []*endpoint.FieldDescriptor{
			{Key: "url", Label: "Directory URL", ValueType: "string", Required: true},
			{Key: "bindDn", Label: "Bind DN", ValueType: "string", Required: true},
			{Key: "bindPassword", Label: "Bind Password", ValueType: "password", Required: true, Sensitive: true},
			{Key: "baseDn", Label: "Base DN", ValueType: "string", Required: true},
			{Key: "startTls", Label: "StartTLS", ValueType: "boolean", Required: false, Description: "Upgrade ldap:// connections with StartTLS before binding"},
		},
	}
}

func (d *Directory) GetCapabilities() *endpoint.Capabilities {
	return &endpoint.Capabilities{SupportsActions: true}
}

func (d *Directory) ValidateConfig(ctx context.Context, config map[string]any) (*endpoint.ValidationResult, error) {
	c, err := d.dialFn(d.config)
	if err != nil {
		return &endpoint.ValidationResult{Valid: false, Message: fmt.Sprintf("bind failed: %v", err)}, nil
	}
	c.Close()
	return &endpoint.ValidationResult{Valid: true, Message: "bind succeeded"}, nil
}

// FindUserDN resolves a sAMAccountName to its distinguished name.
func (d *Directory) FindUserDN(ctx context.Context, sAMAccountName string) (string, error) {
	c, err := d.dialFn(d.config)
	if err != nil {
		return "", err
	}
	defer c.Close()
	return d.findUserDN(c, sAMAccountName)
}

func (d *Directory) findUserDN(c conn, sAMAccountName string) (string, error) {
	req := ldap.NewSearchRequest(
		d.config.BaseDN,
		ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 0, 0, false,
		fmt.Sprintf("(&(objectClass=user)(sAMAccountName=%s))", ldap.EscapeFilter(sAMAccountName)),
		[]string{"distinguishedName"},
		nil,
	)
	result, err := c.Search(req)
	if err != nil {
		return "", classifyLDAPError(err)
	}
	if len(result.Entries) == 0 {
		return "", coded.Errorf(coded.CodeNotFound, false, "user %q not found under %s", sAMAccountName, d.config.BaseDN)
	}
	if len(result.Entries) > 1 {
		return "", coded.Errorf(coded.CodeConflict, false, "user %q matched %d entries", sAMAccountName, len(result.Entries))
	}
	return result.Entries[0].DN, nil
}

// ReplaceAttributes replaces the given attributes on a DN. Empty values
// clear the attribute.
func (d *Directory) ReplaceAttributes(ctx context.Context, dn string, attrs map[string]string) error {
	c, err := d.dialFn(d.config)
	if err != nil {
		return err
	}
	defer c.Close()
	return replaceAttributes(c, dn, attrs)
}

func replaceAttributes(c conn, dn string, attrs map[string]string) error {
	if len(attrs) == 0 {
		return nil
	}
	req := ldap.NewModifyRequest(dn, nil)
	for name, value := range attrs {
		if value == "" {
			req.Replace(name, []string{})
		} else {
			req.Replace(name, []string{value})
		}
	}
	if err := c.Modify(req); err != nil {
		return classifyLDAPError(err)
	}
	return nil
}

// SearchUsers returns directory entries matching the filter, limited to
// the requested attributes.
func (d *Directory) SearchUsers(ctx context.Context, filter string, attributes []string) ([]endpoint.Record, error) {
	c, err := d.dialFn(d.config)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	if filter == "" {
		filter = "(objectClass=user)"
	}
	req := ldap.NewSearchRequest(
		d.config.BaseDN,
		ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 0, 0, false,
		filter, attributes, nil,
	)
	result, err := c.Search(req)
	if err != nil {
		return nil, classifyLDAPError(err)
	}

	records := make([]endpoint.Record, 0, len(result.Entries))
	for _, entry := range result.Entries {
		rec := endpoint.Record{"dn": entry.DN}
		for _, attr := range entry.Attributes {
			if len(attr.Values) == 1 {
				rec[attr.Name] = attr.Values[0]
			} else {
				rec[attr.Name] = attr.Values
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

func classifyLDAPError(err error) error {
	switch {
	case ldap.IsErrorWithCode(err, ldap.LDAPResultNoSuchObject):
		return coded.Wrap(coded.CodeNotFound, false, err)
	case ldap.IsErrorWithCode(err, ldap.LDAPResultInsufficientAccessRights):
		return coded.Wrap(coded.CodePermissionDenied, false, err)
	case ldap.IsErrorWithCode(err, ldap.LDAPResultInvalidCredentials):
		return coded.Wrap(coded.CodeAuthInvalid, false, err)
	case ldap.IsErrorWithCode(err, ldap.LDAPResultBusy), ldap.IsErrorWithCode(err, ldap.LDAPResultUnavailable):
		return coded.Wrap(coded.CodeEndpointUnreachable, true, err)
	}
	return coded.Wrap(coded.CodeBadPayload, false, err)
}
