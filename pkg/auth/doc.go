// Package auth authenticates API callers from Azure AD B2C bearer tokens.
//
// # Overview
//
// A TokenVerifier checks a JWT against the B2C policy's published signing keys
// (signature, expiry, issuer, audience) and produces a Principal carrying the
// caller identity and the delegated scopes from the "scp" claim.
//
//	verifier, err := auth.NewTokenVerifier(ctx, auth.VerifierConfig{
//		Instance: "https://contoso.b2clogin.com",
//		Tenant:   "contoso.onmicrosoft.com",
//		Policy:   "B2C_1_signupsignin",
//		ClientID: "api-client-id",
//	})
//	principal, err := verifier.Verify(ctx, rawToken)
//
// # Identity
//
// The identity is the first non-empty claim among the configured identity
// claim and then "emails" (first element), "email", "preferred_username",
// "name" and "sub". It is what the directory is queried with and what owns
// to-do items.
package auth
