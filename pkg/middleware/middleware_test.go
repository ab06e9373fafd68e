package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jds-integration/integration/pkg/auth"
	"github.com/jds-integration/integration/pkg/authz"
	"github.com/jds-integration/integration/pkg/contextkeys"
	"github.com/jds-integration/integration/pkg/observability"
)

type stubVerifier struct {
	principal *auth.Principal
	err       error
	gotToken  string
}

func (s *stubVerifier) Verify(ctx context.Context, rawToken string) (*auth.Principal, error) {
	s.gotToken = rawToken
	return s.principal, s.err
}

// directoryStub answers from fixed membership and ownership tables
type directoryStub struct {
	groups  map[string][]string
	owners  map[string][]string
	err     error
	delay   time.Duration
	ownerOK int
}

func (d *directoryStub) ListGroupsOfUser(ctx context.Context, identity string) ([]string, error) {
	if d.delay > 0 {
		select {
		case <-time.After(d.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if d.err != nil {
		return nil, d.err
	}
	return d.groups[identity], nil
}

func (d *directoryStub) IsGroupOwner(ctx context.Context, identity, groupID string) (bool, error) {
	for _, g := range d.owners[identity] {
		if g == groupID {
			d.ownerOK++
			return true, nil
		}
	}
	return false, nil
}

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func withPrincipal(r *http.Request, identity string, scopes ...string) *http.Request {
	ctx := contextkeys.WithPrincipal(r.Context(), &auth.Principal{Identity: identity, Scopes: scopes})
	return r.WithContext(ctx)
}

func TestAuthMiddleware_Handler(t *testing.T) {
	t.Run("missing header", func(t *testing.T) {
		m := NewAuthMiddleware(&stubVerifier{})
		w := httptest.NewRecorder()

		m.Handler(okHandler).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.JSONEq(t, `{"statusCode":401,"errors":["missing bearer token"]}`, w.Body.String())
	})

	t.Run("malformed header", func(t *testing.T) {
		m := NewAuthMiddleware(&stubVerifier{})
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Token abc")
		w := httptest.NewRecorder()

		m.Handler(okHandler).ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("invalid token", func(t *testing.T) {
		m := NewAuthMiddleware(&stubVerifier{err: errors.New("expired")})
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer abc")
		w := httptest.NewRecorder()

		m.Handler(okHandler).ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.JSONEq(t, `{"statusCode":401,"errors":["invalid or expired token"]}`, w.Body.String())
	})

	t.Run("valid token stores principal and identity", func(t *testing.T) {
		verifier := &stubVerifier{principal: &auth.Principal{Identity: "alice@contoso.com"}}
		m := NewAuthMiddleware(verifier)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer abc.def")

		var gotPrincipal *auth.Principal
		var gotIdentity string
		m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPrincipal = GetPrincipal(r.Context())
			gotIdentity = contextkeys.GetIdentity(r.Context())
		})).ServeHTTP(httptest.NewRecorder(), req)

		assert.Equal(t, "abc.def", verifier.gotToken)
		require.NotNil(t, gotPrincipal)
		assert.Equal(t, "alice@contoso.com", gotPrincipal.Identity)
		assert.Equal(t, "alice@contoso.com", gotIdentity)
	})
}

func TestRequireScope(t *testing.T) {
	handler := RequireScope("demo.read")(okHandler)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, withPrincipal(httptest.NewRequest(http.MethodGet, "/", nil), "a", "demo.read"))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, withPrincipal(httptest.NewRequest(http.MethodGet, "/", nil), "a", "demo.write"))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func newGate(t *testing.T, dir authz.Directory, opts ...GateOption) (*GroupGate, *observability.Metrics) {
	t.Helper()
	mapping := authz.NewRoleGroupMapping(map[authz.Role][]string{
		authz.RoleAdmins:   {"g-admins"},
		authz.RolePartners: {"g-partners-1", "g-partners-2"},
	})
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	opts = append([]GateOption{WithGateMetrics(metrics)}, opts...)
	return NewGroupGate(authz.NewEvaluator(mapping, dir), mapping, opts...), metrics
}

func TestGroupGate_Outcomes(t *testing.T) {
	dir := &directoryStub{
		groups: map[string][]string{
			"member@contoso.com": {"g-partners-2"},
		},
		owners: map[string][]string{
			"owner@contoso.com": {"g-admins"},
		},
	}
	gate, metrics := newGate(t, dir)

	guard, err := gate.Require("todo.read", authz.AllowedRoles{authz.RoleAdmins, authz.RolePartners})
	require.NoError(t, err)
	handler := guard(okHandler)

	tests := []struct {
		identity string
		status   int
		body     string
	}{
		{"member@contoso.com", http.StatusOK, ""},
		{"owner@contoso.com", http.StatusOK, ""},
		{"stranger@contoso.com", http.StatusUnauthorized, `{"statusCode":401,"errors":["User does not have sufficient permission."]}`},
	}

	for _, tt := range tests {
		t.Run(tt.identity, func(t *testing.T) {
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, withPrincipal(httptest.NewRequest(http.MethodGet, "/api/todolist", nil), tt.identity))

			assert.Equal(t, tt.status, w.Code)
			if tt.body != "" {
				assert.JSONEq(t, tt.body, w.Body.String())
			}
		})
	}

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.AuthzDecisionsTotal.WithLabelValues("todo.read", observability.OutcomeAdmit, "member")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.AuthzDecisionsTotal.WithLabelValues("todo.read", observability.OutcomeAdmit, "owner")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.AuthzDecisionsTotal.WithLabelValues("todo.read", observability.OutcomeDeny, "no_matching_group")))
}

func TestGroupGate_DirectoryFailureIs503(t *testing.T) {
	dir := &directoryStub{err: fmt.Errorf("graph: %w", authz.ErrDirectoryUnavailable)}
	gate, metrics := newGate(t, dir)

	mw, err := gate.Require("todo.write", authz.AllowedRoles{authz.RoleAdmins})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	mw(okHandler).ServeHTTP(w, withPrincipal(httptest.NewRequest(http.MethodPost, "/api/todolist", nil), "alice@contoso.com"))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"statusCode":503,"errors":["Authorization could not be determined: directory unavailable."]}`, w.Body.String())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.AuthzDecisionsTotal.WithLabelValues("todo.write", observability.OutcomeUndetermined, "")))
}

func TestGroupGate_TimeoutIs503(t *testing.T) {
	dir := &directoryStub{delay: time.Second}
	gate, _ := newGate(t, dir, WithDecisionTimeout(20*time.Millisecond))

	mw, err := gate.Require("todo.read", authz.AllowedRoles{authz.RoleAdmins})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	mw(okHandler).ServeHTTP(w, withPrincipal(httptest.NewRequest(http.MethodGet, "/", nil), "alice@contoso.com"))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestGroupGate_NoPrincipalIs401(t *testing.T) {
	gate, _ := newGate(t, &directoryStub{})
	mw, err := gate.Require("todo.read", authz.AllowedRoles{authz.RoleAdmins})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	mw(okHandler).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGroupGate_EmptyAllowedRolesDenies(t *testing.T) {
	dir := &directoryStub{groups: map[string][]string{"alice@contoso.com": {"g-admins"}}}
	gate, _ := newGate(t, dir)

	mw, err := gate.Require("todo.read", nil)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	mw(okHandler).ServeHTTP(w, withPrincipal(httptest.NewRequest(http.MethodGet, "/", nil), "alice@contoso.com"))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGroupGate_RequireRejectsUnmappedRole(t *testing.T) {
	gate, _ := newGate(t, &directoryStub{})

	_, err := gate.Require("todo.read", authz.AllowedRoles{authz.RoleSFRSUsers})

	var cfgErr *authz.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "application_groups.SFRSUsers", cfgErr.Field)
}
