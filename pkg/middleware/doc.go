// Package middleware provides HTTP middleware for authentication and group-based authorization.
//
// # Middleware Components
//
// AuthMiddleware: bearer token authentication
//
//	authn := middleware.NewAuthMiddleware(verifier)
//	router.Use(authn.Handler)
//	// Verifies the JWT, stores *auth.Principal and the caller identity in the context
//
// RequireScope: delegated scope check (403 when missing)
//
//	router.Use(middleware.RequireScope("demo.read"))
//
// GroupGate: per-operation group membership or ownership check
//
//	gate := middleware.NewGroupGate(evaluator, mapping, middleware.WithGateMetrics(metrics))
//	requireRead, err := gate.Require("todo.read", authz.AllowedRoles{authz.RoleAdmins, authz.RolePartners})
//	if err != nil {
//		return err // *authz.ConfigurationError at startup
//	}
//	router.Handle("/api/todolist", requireRead(listHandler))
//
// Outcomes map to status codes:
//
//	admitted      -> next handler
//	denied        -> 401 {"statusCode":401,"errors":["User does not have sufficient permission."]}
//	undetermined  -> 503 {"statusCode":503,"errors":["Authorization could not be determined: directory unavailable."]}
//
// # Related Packages
//
//   - pkg/authz: decision logic
//   - pkg/auth: token verification
package middleware
