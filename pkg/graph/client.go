package graph

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/jds-integration/integration/pkg/authz"
	"github.com/jds-integration/integration/pkg/observability"
)

const (
	// DefaultBaseURL is the Microsoft Graph v1.0 endpoint
	DefaultBaseURL = "https://graph.microsoft.com/v1.0"

	// DefaultAuthority is the token authority template; {tenant} is replaced with the tenant ID
	DefaultAuthority = "https://login.microsoftonline.com/{tenant}"

	// DefaultScope requests the application permissions granted to the app registration
	DefaultScope = "https://graph.microsoft.com/.default"

	odataTypeGroup = "#microsoft.graph.group"
)

// Config holds the app registration used for app-only Graph access
type Config struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	Authority    string
	Scopes       []string
	BaseURL      string
	Timeout      time.Duration
}

// TokenURL returns the OAuth2 v2.0 token endpoint for the configured tenant
func (c Config) TokenURL() string {
	authority := c.Authority
	if authority == "" {
		authority = DefaultAuthority
	}
	authority = strings.ReplaceAll(authority, "{tenant}", c.TenantID)
	authority = strings.ReplaceAll(authority, "{0}", c.TenantID)
	authority = strings.TrimSuffix(authority, "/")
	authority = strings.TrimSuffix(authority, "/v2.0")
	return authority + "/oauth2/v2.0/token"
}

// Validate checks the registration fields required for the client credentials grant
func (c Config) Validate() error {
	if c.TenantID == "" {
		return fmt.Errorf("graph tenant_id is required")
	}
	if c.ClientID == "" {
		return fmt.Errorf("graph client_id is required")
	}
	if c.ClientSecret == "" {
		return fmt.Errorf("graph client_secret is required")
	}
	return nil
}

// Client is a Microsoft Graph directory that answers membership and ownership queries.
// It implements authz.Directory. Calls are never cached or retried.
type Client struct {
	rest    *resty.Client
	metrics *observability.Metrics
}

// Option configures a Client
type Option func(*options)

type options struct {
	httpClient *http.Client
	metrics    *observability.Metrics
}

// WithHTTPClient uses hc as-is instead of acquiring client credential tokens
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.httpClient = hc }
}

// WithMetrics records call counts and latency
func WithMetrics(m *observability.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// NewClient creates a Graph client. Unless WithHTTPClient is given, requests carry an
// app-only bearer token obtained with the OAuth2 client credentials grant.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	hc := o.httpClient
	if hc == nil {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}

		scopes := cfg.Scopes
		if len(scopes) == 0 {
			scopes = []string{DefaultScope}
		}

		cc := &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL(),
			Scopes:       scopes,
			AuthStyle:    oauth2.AuthStyleInParams,
		}

		transport := otelhttp.NewTransport(http.DefaultTransport)
		tokenClient := &http.Client{Transport: transport, Timeout: cfg.Timeout}
		hc = &http.Client{
			Transport: newTokenTransport(cc, tokenClient, transport),
			Timeout:   cfg.Timeout,
		}
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	rest := resty.NewWithClient(hc).
		SetBaseURL(strings.TrimSuffix(baseURL, "/")).
		SetHeader("Accept", "application/json").
		SetRetryCount(0)
	if cfg.Timeout > 0 {
		rest.SetTimeout(cfg.Timeout)
	}

	return &Client{rest: rest, metrics: o.metrics}, nil
}

// directoryObject is the subset of Graph directoryObject fields the client reads
type directoryObject struct {
	ODataType         string `json:"@odata.type"`
	ID                string `json:"id"`
	DisplayName       string `json:"displayName,omitempty"`
	Mail              string `json:"mail,omitempty"`
	UserPrincipalName string `json:"userPrincipalName,omitempty"`
}

type collectionPage struct {
	NextLink string            `json:"@odata.nextLink"`
	Value    []directoryObject `json:"value"`
}

// Group identifies a directory group the caller belongs to
type Group struct {
	ID          string
	DisplayName string
}

// ListGroupsOfUser returns the IDs of every group the identity is a direct member of.
// Directory roles and administrative units in memberOf are skipped.
func (c *Client) ListGroupsOfUser(ctx context.Context, identity string) ([]string, error) {
	groups, err := c.ListGroups(ctx, identity)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(groups))
	for i, g := range groups {
		ids[i] = g.ID
	}
	return ids, nil
}

// ListGroups returns the groups the identity is a direct member of, following every page.
// An identity unknown to the directory has no groups.
func (c *Client) ListGroups(ctx context.Context, identity string) (groups []Group, err error) {
	start := time.Now()
	defer func() { c.metrics.ObserveDirectoryRequest("member_of", time.Since(start), err) }()

	first := c.rest.R().
		SetPathParam("identity", identity).
		SetQueryParam("$select", "id,displayName")

	err = c.walk(ctx, first, "/users/{identity}/memberOf", func(obj directoryObject) bool {
		if obj.ODataType == odataTypeGroup {
			groups = append(groups, Group{ID: obj.ID, DisplayName: obj.DisplayName})
		}
		return true
	})
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return groups, nil
}

// IsGroupOwner reports whether the identity is listed as an owner of the group.
// Owners match on mail, user principal name or object ID, ignoring case. Paging
// stops at the first match.
func (c *Client) IsGroupOwner(ctx context.Context, identity, groupID string) (found bool, err error) {
	start := time.Now()
	defer func() { c.metrics.ObserveDirectoryRequest("group_owners", time.Since(start), err) }()

	first := c.rest.R().
		SetPathParam("group", groupID).
		SetQueryParam("$select", "id,mail,userPrincipalName")

	err = c.walk(ctx, first, "/groups/{group}/owners", func(obj directoryObject) bool {
		if matchesIdentity(obj, identity) {
			found = true
			return false
		}
		return true
	})
	if err != nil {
		return false, err
	}
	return found, nil
}

// IsInGroup reports whether the identity is a direct member of the group
func (c *Client) IsInGroup(ctx context.Context, identity, groupID string) (bool, error) {
	ids, err := c.ListGroupsOfUser(ctx, identity)
	if err != nil {
		return false, err
	}
	for _, id := range ids {
		if id == groupID {
			return true, nil
		}
	}
	return false, nil
}

// walk fetches path and every @odata.nextLink page after it, calling visit for each
// object until visit returns false
func (c *Client) walk(ctx context.Context, first *resty.Request, path string, visit func(directoryObject) bool) error {
	req, url := first, path
	for {
		var page collectionPage
		resp, err := req.SetContext(ctx).SetResult(&page).Get(url)
		if err != nil {
			return transportError(url, err)
		}
		if resp.IsError() {
			return newAPIError(resp)
		}

		for _, obj := range page.Value {
			if !visit(obj) {
				return nil
			}
		}

		if page.NextLink == "" {
			return nil
		}
		// nextLink is absolute and already carries the query
		req, url = c.rest.R(), page.NextLink
	}
}

func matchesIdentity(obj directoryObject, identity string) bool {
	for _, candidate := range []string{obj.Mail, obj.UserPrincipalName, obj.ID} {
		if candidate != "" && strings.EqualFold(candidate, identity) {
			return true
		}
	}
	return false
}

var _ authz.Directory = (*Client)(nil)
