package graph

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/opsrelay/relay-core/internal/coded"
)

// AuditToken decodes the app access token's claims without verifying the
// signature (Graph is the verifier; this is a pre-flight permission check)
// and reports which of the required application roles are missing.
func AuditToken(accessToken string, requiredRoles []string) (*TokenAudit, error) {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(accessToken, claims); err != nil {
		return nil, coded.Wrap(coded.CodeBadPayload, false, fmt.Errorf("decode access token: %w", err))
	}

	audit := &TokenAudit{}
	if appID, ok := claims["appid"].(string); ok {
		audit.AppID = appID
	}
	if tid, ok := claims["tid"].(string); ok {
		audit.TenantID = tid
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		audit.ExpiresAt = exp.UTC().Format(time.RFC3339)
	}

	if roles, ok := claims["roles"].([]any); ok {
		for _, r := range roles {
			if s, ok := r.(string); ok {
				audit.Roles = append(audit.Roles, s)
			}
		}
	}

	granted := make(map[string]bool, len(audit.Roles))
	for _, r := range audit.Roles {
		granted[r] = true
	}
	for _, want := range requiredRoles {
		if !granted[want] {
			audit.MissingRoles = append(audit.MissingRoles, want)
		}
	}

	return audit, nil
}
