package upstream

import (
	"errors"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrMissingOrgID is returned when no org identifier is configured and none
// can be derived from the bearer token. Search operations fail fast on it.
var ErrMissingOrgID = errors.New("missing org id: set VB_ORG_ID or use a token that encodes one")

// resolveOrgID returns the tenant org identifier: explicit configuration
// wins, then the token's `_`-suffix, then an unverified JWT claim.
func (c *Client) resolveOrgID(token string) (string, error) {
	if c.orgID != "" {
		return c.orgID, nil
	}
	if org := orgFromTokenSuffix(token); org != "" {
		return org, nil
	}
	if org := orgFromJWTClaims(token); org != "" {
		return org, nil
	}
	return "", ErrMissingOrgID
}

// orgFromTokenSuffix handles the platform's opaque token format, where the
// org UUID is appended after the last underscore.
func orgFromTokenSuffix(token string) string {
	idx := strings.LastIndex(token, "_")
	if idx < 0 || idx == len(token)-1 {
		return ""
	}
	suffix := token[idx+1:]
	if _, err := uuid.Parse(suffix); err != nil {
		return ""
	}
	return suffix
}

// orgFromJWTClaims handles JWT-shaped tokens. The signature is deliberately
// not verified: the token is only inspected for routing, never trusted for
// authorization, which stays with the upstream platform.
func orgFromJWTClaims(token string) string {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return ""
	}
	for _, key := range []string{"org_id", "orgId", "realm"} {
		if v, ok := claims[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
