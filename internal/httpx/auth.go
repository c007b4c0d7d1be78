package httpx

import (
	"encoding/base64"
	"net/http"

	"golang.org/x/oauth2"
)

// AuthConfig represents authentication configuration. Apply may fail when the
// strategy has to fetch credentials (token sources).
type AuthConfig interface {
	Apply(req *http.Request) error
}

// NoAuth represents no authentication.
type NoAuth struct{}

func (a NoAuth) Apply(req *http.Request) error { return nil }

// BasicAuth uses HTTP Basic Authentication.
type BasicAuth struct {
	Username string
	Password string
}

// Apply adds Basic auth header to the request.
func (a BasicAuth) Apply(req *http.Request) error {
	if a.Username == "" && a.Password == "" {
		return nil
	}
	credentials := base64.StdEncoding.EncodeToString([]byte(a.Username + ":" + a.Password))
	req.Header.Set("Authorization", "Basic "+credentials)
	return nil
}

// BearerToken uses a static Bearer token.
type BearerToken struct {
	Token string
}

// Apply adds Bearer token header to the request.
func (a BearerToken) Apply(req *http.Request) error {
	if a.Token == "" {
		return nil
	}
	req.Header.Set("Authorization", "Bearer "+a.Token)
	return nil
}

// APIKey uses API key authentication via a header.
type APIKey struct {
	Key    string
	Header string // Header name (default: X-API-Key)
}

// Apply adds API key header to the request.
func (a APIKey) Apply(req *http.Request) error {
	if a.Key == "" {
		return nil
	}
	header := a.Header
	if header == "" {
		header = "X-API-Key"
	}
	req.Header.Set(header, a.Key)
	return nil
}

// TokenSourceAuth injects bearer tokens from an oauth2.TokenSource. Used by
// the Graph, RSV and Meraki connectors with client-credential flows; the
// source caches and refreshes tokens on its own.
type TokenSourceAuth struct {
	Source oauth2.TokenSource
}

// Apply fetches a token from the source and sets the Authorization header.
func (a TokenSourceAuth) Apply(req *http.Request) error {
	if a.Source == nil {
		return nil
	}
	token, err := a.Source.Token()
	if err != nil {
		return err
	}
	token.SetAuthHeader(req)
	return nil
}
