// Package authz decides whether a caller may perform an operation based on
// directory group membership and group ownership.
//
// # Overview
//
// Each protected operation declares the roles that may perform it. Every role
// is backed by one or more directory group identifiers, configured once at
// startup:
//
//	mapping, err := authz.ParseRoleGroupMapping(map[string]string{
//		"Admins":   "g1, g2",
//		"Partners": "g3",
//	})
//	evaluator := authz.NewEvaluator(mapping, directory)
//
//	allowed, err := evaluator.Decide(ctx, "user@contoso.com", authz.MustParseAllowedRoles("Admins"))
//
// # Evaluation
//
// A decision runs in two passes:
//
//  1. Membership: the caller's groups are fetched once and intersected with the
//     groups of all allowed roles. A non-empty intersection admits.
//  2. Ownership: only when membership did not admit, the directory is asked
//     whether the caller owns each mapped group, role by role in declaration
//     order and group by group in configuration order. The first owned group admits.
//
// An empty set of allowed roles always denies without calling the directory.
// Roles without a mapping contribute no groups.
//
// # Errors
//
// Directory failures are returned wrapped with ErrDirectoryUnavailable. They
// mean "undetermined", never "denied":
//
//	allowed, err := evaluator.Decide(ctx, identity, roles)
//	switch {
//	case errors.Is(err, authz.ErrDirectoryUnavailable):
//		// 503
//	case !allowed:
//		// 401
//	}
//
// Malformed role configuration is reported as *ConfigurationError and should
// stop the process at startup (see RoleGroupMapping.Covers).
package authz
