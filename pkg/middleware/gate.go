package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/jds-integration/integration/pkg/authz"
	"github.com/jds-integration/integration/pkg/httputil"
	"github.com/jds-integration/integration/pkg/observability"
)

// DefaultDecisionTimeout bounds the directory calls made for one request
const DefaultDecisionTimeout = 10 * time.Second

// Decider evaluates group-based access for an identity
type Decider interface {
	DecideWithReason(ctx context.Context, identity string, allowed authz.AllowedRoles) (authz.Decision, error)
}

// GroupGate admits requests whose caller belongs to, or owns, a group mapped to
// one of the operation's allowed roles
type GroupGate struct {
	decider Decider
	mapping *authz.RoleGroupMapping
	timeout time.Duration
	metrics *observability.Metrics
}

// GateOption configures a GroupGate
type GateOption func(*GroupGate)

// WithDecisionTimeout overrides DefaultDecisionTimeout
func WithDecisionTimeout(d time.Duration) GateOption {
	return func(g *GroupGate) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithGateMetrics counts every decision outcome
func WithGateMetrics(m *observability.Metrics) GateOption {
	return func(g *GroupGate) { g.metrics = m }
}

// NewGroupGate creates a gate. mapping is used to validate the roles each
// operation declares; it must be the mapping the decider evaluates with.
func NewGroupGate(decider Decider, mapping *authz.RoleGroupMapping, opts ...GateOption) *GroupGate {
	g := &GroupGate{
		decider: decider,
		mapping: mapping,
		timeout: DefaultDecisionTimeout,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Require returns middleware guarding an operation. It fails with a
// *authz.ConfigurationError when a declared role has no groups configured.
func (g *GroupGate) Require(operation string, allowed authz.AllowedRoles) (func(http.Handler) http.Handler, error) {
	if err := g.mapping.Covers(allowed); err != nil {
		return nil, err
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := GetPrincipal(r.Context())
			if principal == nil || principal.Identity == "" {
				g.metrics.RecordDecision(operation, observability.OutcomeDeny, "unauthenticated", 0)
				httputil.WriteUnauthenticated(w, "authentication required")
				return
			}

			ctx, cancel := context.WithTimeout(r.Context(), g.timeout)
			decision, err := g.decider.DecideWithReason(ctx, principal.Identity, allowed)
			cancel()

			logger := observability.FromContext(r.Context()).WithFields(map[string]interface{}{
				"operation":        operation,
				"allowed_roles":    allowed.String(),
				"reason":           string(decision.Reason),
				"ownership_checks": decision.OwnershipChecks,
			})

			switch {
			case err != nil:
				g.metrics.RecordDecision(operation, observability.OutcomeUndetermined, "", decision.OwnershipChecks)
				logger.WithError(err).Warn("authorization undetermined")
				httputil.WriteUnavailable(w)

			case !decision.Allowed:
				g.metrics.RecordDecision(operation, observability.OutcomeDeny, string(decision.Reason), decision.OwnershipChecks)
				logger.Info("authorization denied")
				httputil.WriteUnauthorized(w)

			default:
				g.metrics.RecordDecision(operation, observability.OutcomeAdmit, string(decision.Reason), decision.OwnershipChecks)
				logger.WithFields(map[string]interface{}{
					"matched_role":  string(decision.MatchedRole),
					"matched_group": decision.MatchedGroup,
				}).Debug("authorization granted")
				next.ServeHTTP(w, r)
			}
		})
	}, nil
}
