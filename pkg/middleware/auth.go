package middleware

import (
	"context"
	"net/http"

	"github.com/jds-integration/integration/pkg/auth"
	"github.com/jds-integration/integration/pkg/contextkeys"
	"github.com/jds-integration/integration/pkg/httputil"
	"github.com/jds-integration/integration/pkg/observability"
)

// Verifier turns a raw bearer token into a principal
type Verifier interface {
	Verify(ctx context.Context, rawToken string) (*auth.Principal, error)
}

// AuthMiddleware provides authentication middleware
type AuthMiddleware struct {
	verifier Verifier
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(verifier Verifier) *AuthMiddleware {
	return &AuthMiddleware{verifier: verifier}
}

// Handler wraps an HTTP handler with authentication
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := auth.BearerToken(r.Header.Get("Authorization"))
		if err != nil {
			httputil.WriteUnauthenticated(w, err.Error())
			return
		}

		principal, err := m.verifier.Verify(r.Context(), token)
		if err != nil {
			observability.FromContext(r.Context()).WithError(err).Debug("token rejected")
			httputil.WriteUnauthenticated(w, "invalid or expired token")
			return
		}

		ctx := contextkeys.WithPrincipal(r.Context(), principal)
		ctx = contextkeys.WithIdentity(ctx, principal.Identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetPrincipal extracts the authenticated principal from request context
func GetPrincipal(ctx context.Context) *auth.Principal {
	principal, ok := ctx.Value(contextkeys.PrincipalKey).(*auth.Principal)
	if !ok {
		return nil
	}
	return principal
}

// RequireScope creates middleware that checks for a delegated scope
func RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := GetPrincipal(r.Context())
			if principal == nil {
				httputil.WriteUnauthenticated(w, "authentication required")
				return
			}

			if scope != "" && !principal.HasScope(scope) {
				httputil.WriteForbidden(w, "missing required scope "+scope)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
