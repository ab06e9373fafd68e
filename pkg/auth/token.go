package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
)

var (
	// ErrMissingToken is returned when no bearer token was presented
	ErrMissingToken = errors.New("missing bearer token")

	// ErrNoIdentity is returned when a valid token carries none of the identity claims
	ErrNoIdentity = errors.New("token carries no caller identity")
)

// VerifierConfig describes the Azure AD B2C policy whose tokens the API accepts
type VerifierConfig struct {
	// Instance is the B2C login host, e.g. https://contoso.b2clogin.com
	Instance string
	// Tenant is the B2C directory domain, e.g. contoso.onmicrosoft.com
	Tenant   string
	Policy   string
	ClientID string
	// Issuer overrides the issuer expected in tokens when it differs from the discovery URL
	Issuer string
	// IdentityClaim, when set, is tried before DefaultIdentityClaims
	IdentityClaim string
}

// Authority returns the OpenID discovery base for the configured policy
func (c VerifierConfig) Authority() string {
	instance := strings.TrimSuffix(c.Instance, "/")
	return fmt.Sprintf("%s/%s/%s/v2.0/", instance, c.Tenant, c.Policy)
}

func (c VerifierConfig) identityClaims() []string {
	if c.IdentityClaim == "" {
		return DefaultIdentityClaims
	}
	return append([]string{c.IdentityClaim}, DefaultIdentityClaims...)
}

// TokenVerifier validates bearer JWTs and turns them into principals
type TokenVerifier struct {
	verifier *oidc.IDTokenVerifier
	claims   []string
}

// NewTokenVerifier discovers the policy's signing keys and builds a verifier that checks
// signature, expiry, issuer and audience (the B2C client ID)
func NewTokenVerifier(ctx context.Context, cfg VerifierConfig) (*TokenVerifier, error) {
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("azure_ad_b2c client_id is required")
	}
	if cfg.Instance == "" || cfg.Tenant == "" || cfg.Policy == "" {
		return nil, fmt.Errorf("azure_ad_b2c instance, tenant and policy are required")
	}

	if cfg.Issuer != "" {
		ctx = oidc.InsecureIssuerURLContext(ctx, cfg.Issuer)
	}

	provider, err := oidc.NewProvider(ctx, cfg.Authority())
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}

	return &TokenVerifier{
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
		claims:   cfg.identityClaims(),
	}, nil
}

// NewStaticTokenVerifier builds a verifier over a fixed key set without discovery
func NewStaticTokenVerifier(issuer string, keySet oidc.KeySet, cfg VerifierConfig) *TokenVerifier {
	return &TokenVerifier{
		verifier: oidc.NewVerifier(issuer, keySet, &oidc.Config{ClientID: cfg.ClientID}),
		claims:   cfg.identityClaims(),
	}
}

// Verify validates rawToken and extracts the caller
func (v *TokenVerifier) Verify(ctx context.Context, rawToken string) (*Principal, error) {
	if rawToken == "" {
		return nil, ErrMissingToken
	}

	token, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		return nil, fmt.Errorf("failed to verify token: %w", err)
	}

	var claims map[string]interface{}
	if err := token.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to parse claims: %w", err)
	}

	identity := identityFromClaims(claims, v.claims)
	if identity == "" {
		return nil, ErrNoIdentity
	}

	return &Principal{
		Identity: identity,
		Subject:  token.Subject,
		Issuer:   token.Issuer,
		Scopes:   scopesFromClaims(claims),
		Claims:   claims,
	}, nil
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header value
func BearerToken(header string) (string, error) {
	if header == "" {
		return "", ErrMissingToken
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", fmt.Errorf("invalid authorization header format")
	}
	return strings.TrimSpace(parts[1]), nil
}
