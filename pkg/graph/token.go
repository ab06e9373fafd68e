package graph

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// tokenTransport authorizes each request with an app-only token. The token is fetched
// under the request's own context, so a decision deadline also bounds acquisition.
type tokenTransport struct {
	source *clientcredentials.Config
	client *http.Client // used for the token endpoint
	next   http.RoundTripper

	// sem serializes refreshes; waiters give up when their context ends
	sem   chan struct{}
	token *oauth2.Token
}

func newTokenTransport(source *clientcredentials.Config, client *http.Client, next http.RoundTripper) *tokenTransport {
	return &tokenTransport{
		source: source,
		client: client,
		next:   next,
		sem:    make(chan struct{}, 1),
	}
}

func (t *tokenTransport) Token(ctx context.Context) (*oauth2.Token, error) {
	select {
	case t.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-t.sem }()

	if t.token.Valid() {
		return t.token, nil
	}
	tok, err := t.source.Token(context.WithValue(ctx, oauth2.HTTPClient, t.client))
	if err != nil {
		return nil, fmt.Errorf("acquire graph token: %w", err)
	}
	t.token = tok
	return tok, nil
}

func (t *tokenTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	tok, err := t.Token(req.Context())
	if err != nil {
		if req.Body != nil {
			req.Body.Close()
		}
		return nil, err
	}

	authorized := req.Clone(req.Context())
	tok.SetAuthHeader(authorized)
	return t.next.RoundTrip(authorized)
}
