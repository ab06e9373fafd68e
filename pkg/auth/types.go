package auth

import "strings"

// Claim names consulted when extracting the caller identity, in order
var DefaultIdentityClaims = []string{"emails", "email", "preferred_username", "name", "sub"}

// Principal is an authenticated caller
type Principal struct {
	// Identity is the stable identifier used for directory lookups and to-do ownership
	Identity string
	Subject  string
	Issuer   string
	Scopes   []string
	Claims   map[string]interface{}
}

// HasScope checks if the principal was granted a delegated scope
func (p *Principal) HasScope(scope string) bool {
	if p == nil {
		return false
	}
	for _, s := range p.Scopes {
		if strings.EqualFold(s, scope) {
			return true
		}
	}
	return false
}

// identityFromClaims returns the first non-empty value among the given claims.
// Array claims such as B2C "emails" yield their first element.
func identityFromClaims(claims map[string]interface{}, names []string) string {
	for _, name := range names {
		switch v := claims[name].(type) {
		case string:
			if v = strings.TrimSpace(v); v != "" {
				return v
			}
		case []interface{}:
			for _, item := range v {
				if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
					return strings.TrimSpace(s)
				}
			}
		}
	}
	return ""
}

// scopesFromClaims reads the space-delimited "scp" claim
func scopesFromClaims(claims map[string]interface{}) []string {
	switch v := claims["scp"].(type) {
	case string:
		return strings.Fields(v)
	case []interface{}:
		scopes := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				scopes = append(scopes, s)
			}
		}
		return scopes
	}
	return nil
}
