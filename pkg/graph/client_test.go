package graph

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jds-integration/integration/pkg/authz"
	"github.com/jds-integration/integration/pkg/observability"
)

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func group(id string) map[string]string {
	return map[string]string{"@odata.type": odataTypeGroup, "id": id}
}

func newTestClient(t *testing.T, handler http.Handler, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	opts = append([]Option{WithHTTPClient(srv.Client())}, opts...)
	client, err := NewClient(Config{BaseURL: srv.URL + "/v1.0"}, opts...)
	require.NoError(t, err)
	return client
}

func TestListGroupsOfUser_FollowsNextLinkAndSkipsNonGroups(t *testing.T) {
	var srvURL string
	mux := http.NewServeMux()
	mux.HandleFunc("/v1.0/users/alice@contoso.com/memberOf", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "id,displayName", r.URL.Query().Get("$select"))
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"@odata.nextLink": srvURL + "/v1.0/page2?$skiptoken=abc",
			"value": []interface{}{
				group("g-1"),
				map[string]string{"@odata.type": "#microsoft.graph.directoryRole", "id": "role-1"},
			},
		})
	})
	mux.HandleFunc("/v1.0/page2", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "abc", r.URL.Query().Get("$skiptoken"))
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"value": []interface{}{group("g-2")},
		})
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()
	srvURL = srv.URL

	client, err := NewClient(Config{BaseURL: srv.URL + "/v1.0"}, WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	groups, err := client.ListGroupsOfUser(context.Background(), "alice@contoso.com")

	require.NoError(t, err)
	assert.Equal(t, []string{"g-1", "g-2"}, groups)
}

func TestListGroupsOfUser_UnknownUserHasNoGroups(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{
			"error": map[string]string{"code": "Request_ResourceNotFound", "message": "missing"},
		})
	}))

	groups, err := client.ListGroupsOfUser(context.Background(), "ghost@contoso.com")

	require.NoError(t, err)
	assert.Empty(t, groups)
}

func TestListGroupsOfUser_ServerErrorIsUnavailable(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("request-id", "graph-req-1")
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"error": map[string]string{"code": "serviceNotAvailable", "message": "try later"},
		})
	}), WithMetrics(metrics))

	_, err := client.ListGroupsOfUser(context.Background(), "alice@contoso.com")

	require.Error(t, err)
	assert.ErrorIs(t, err, authz.ErrDirectoryUnavailable)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.Equal(t, "serviceNotAvailable", apiErr.Code)
	assert.Equal(t, "graph-req-1", apiErr.RequestID)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.DirectoryRequestsTotal.WithLabelValues("member_of", "error")))
}

func TestListGroupsOfUser_TransportErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	baseURL := srv.URL
	srv.Close()

	client, err := NewClient(Config{BaseURL: baseURL}, WithHTTPClient(http.DefaultClient))
	require.NoError(t, err)

	_, err = client.ListGroupsOfUser(context.Background(), "alice@contoso.com")

	assert.ErrorIs(t, err, authz.ErrDirectoryUnavailable)
}

func TestIsGroupOwner_MatchesMailOrUPNIgnoringCase(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1.0/groups/g-1/owners", r.URL.Path)
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"value": []interface{}{
				map[string]string{"id": "u-1", "mail": "", "userPrincipalName": "Bob@Contoso.com"},
				map[string]string{"id": "u-2", "mail": "carol@contoso.com"},
			},
		})
	}))

	ctx := context.Background()

	owner, err := client.IsGroupOwner(ctx, "bob@contoso.com", "g-1")
	require.NoError(t, err)
	assert.True(t, owner)

	owner, err = client.IsGroupOwner(ctx, "CAROL@contoso.com", "g-1")
	require.NoError(t, err)
	assert.True(t, owner)

	owner, err = client.IsGroupOwner(ctx, "dave@contoso.com", "g-1")
	require.NoError(t, err)
	assert.False(t, owner)
}

func TestIsGroupOwner_StopsPagingAtFirstMatch(t *testing.T) {
	var calls int32
	var srvURL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"@odata.nextLink": srvURL + "/v1.0/more",
			"value":           []interface{}{map[string]string{"id": "u-1", "mail": "bob@contoso.com"}},
		})
	}))
	defer srv.Close()
	srvURL = srv.URL

	client, err := NewClient(Config{BaseURL: srv.URL + "/v1.0"}, WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	owner, err := client.IsGroupOwner(context.Background(), "bob@contoso.com", "g-1")

	require.NoError(t, err)
	assert.True(t, owner)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestIsGroupOwner_MissingGroupIsUnavailable(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{
			"error": map[string]string{"code": "Request_ResourceNotFound", "message": "no such group"},
		})
	}))

	_, err := client.IsGroupOwner(context.Background(), "bob@contoso.com", "g-404")

	assert.ErrorIs(t, err, authz.ErrDirectoryUnavailable)
	assert.Contains(t, err.Error(), "no such group")
}

func TestIsInGroup(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"value": []interface{}{group("g-1"), group("g-2")},
		})
	}))

	in, err := client.IsInGroup(context.Background(), "alice@contoso.com", "g-2")
	require.NoError(t, err)
	assert.True(t, in)

	in, err = client.IsInGroup(context.Background(), "alice@contoso.com", "g-3")
	require.NoError(t, err)
	assert.False(t, in)
}

func TestNewClient_AcquiresAppOnlyToken(t *testing.T) {
	var tokenRequests int32
	mux := http.NewServeMux()
	mux.HandleFunc("/contoso/oauth2/v2.0/token", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&tokenRequests, 1)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		assert.Equal(t, "app-id", r.PostForm.Get("client_id"))
		assert.Equal(t, "app-secret", r.PostForm.Get("client_secret"))
		assert.Equal(t, DefaultScope, r.PostForm.Get("scope"))
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"access_token": "app-token",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("/v1.0/users/alice@contoso.com/memberOf", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer app-token", r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, map[string]interface{}{"value": []interface{}{group("g-1")}})
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	client, err := NewClient(Config{
		TenantID:     "contoso",
		ClientID:     "app-id",
		ClientSecret: "app-secret",
		Authority:    srv.URL + "/{tenant}",
		BaseURL:      srv.URL + "/v1.0",
	})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		groups, err := client.ListGroupsOfUser(context.Background(), "alice@contoso.com")
		require.NoError(t, err)
		assert.Equal(t, []string{"g-1"}, groups)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&tokenRequests))
}

func TestNewClient_TokenFailureIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/token") {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_client"})
			return
		}
		t.Errorf("unexpected directory call %s", r.URL.Path)
	}))
	defer srv.Close()

	client, err := NewClient(Config{
		TenantID:     "contoso",
		ClientID:     "app-id",
		ClientSecret: "wrong",
		Authority:    srv.URL + "/{tenant}",
		BaseURL:      srv.URL + "/v1.0",
	})
	require.NoError(t, err)

	_, err = client.IsGroupOwner(context.Background(), "bob@contoso.com", "g-1")

	assert.ErrorIs(t, err, authz.ErrDirectoryUnavailable)
}

func TestNewClient_DeadlineBoundsTokenAcquisition(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/token") {
			select {
			case <-time.After(2 * time.Second):
			case <-r.Context().Done():
			}
			return
		}
		t.Errorf("unexpected directory call %s", r.URL.Path)
	}))
	defer srv.Close()

	client, err := NewClient(Config{
		TenantID:     "contoso",
		ClientID:     "app-id",
		ClientSecret: "app-secret",
		Authority:    srv.URL + "/{tenant}",
		BaseURL:      srv.URL + "/v1.0",
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = client.ListGroupsOfUser(ctx, "alice@contoso.com")

	assert.ErrorIs(t, err, authz.ErrDirectoryUnavailable)
	assert.Less(t, time.Since(start), time.Second)
}

func TestTokenTransport_WaiterHonoursContext(t *testing.T) {
	tt := newTokenTransport(nil, nil, http.DefaultTransport)
	tt.sem <- struct{}{} // a refresh is in flight

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := tt.Token(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewClient_RequiresCredentials(t *testing.T) {
	_, err := NewClient(Config{TenantID: "contoso", ClientID: "app-id"})
	assert.EqualError(t, err, "graph client_secret is required")
}

func TestConfig_TokenURL(t *testing.T) {
	tests := []struct {
		name      string
		authority string
		want      string
	}{
		{"default", "", "https://login.microsoftonline.com/contoso/oauth2/v2.0/token"},
		{"positional placeholder", "https://login.microsoftonline.com/{0}/v2.0", "https://login.microsoftonline.com/contoso/oauth2/v2.0/token"},
		{"trailing slash", "https://login.example.com/{tenant}/", "https://login.example.com/contoso/oauth2/v2.0/token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{TenantID: "contoso", Authority: tt.authority}
			assert.Equal(t, tt.want, cfg.TokenURL())
		})
	}
}
