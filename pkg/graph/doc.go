// Package graph answers directory membership and ownership questions against Microsoft Graph.
//
// The client authenticates as the application (client credentials grant) and
// implements authz.Directory:
//
//	dir, err := graph.NewClient(graph.Config{
//		TenantID:     "contoso.onmicrosoft.com",
//		ClientID:     "…",
//		ClientSecret: "…",
//	}, graph.WithMetrics(metrics))
//
// Collection responses are followed across @odata.nextLink until exhausted.
// Every failure (transport, token acquisition, non-2xx) is an *APIError that
// matches authz.ErrDirectoryUnavailable. Nothing is cached or retried.
package graph
