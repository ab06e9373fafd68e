// Package api assembles the to-do HTTP service.
//
// Two handlers are produced. Handler serves /api/todolist behind request IDs,
// request logging, panic recovery and OpenTelemetry tracing; every matched route
// additionally passes bearer-token authentication, the operation's scope check
// and the group gate. OpsHandler serves /health, /health/live, /health/ready and
// /metrics and is meant for a separate listener.
//
//	srv, err := api.NewServer(api.Deps{
//		Logger:   logger,
//		Verifier: verifier,
//		Gate:     middleware.NewGroupGate(evaluator, mapping),
//		Store:    store,
//		Read:     api.Policy{Scope: "demo.read", Roles: read},
//		Write:    api.Policy{Scope: "demo.write", Roles: write},
//	})
//
// NewServer returns an *authz.ConfigurationError when a policy names a role
// without groups.
package api
