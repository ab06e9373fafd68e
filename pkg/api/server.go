package api

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/jds-integration/integration/pkg/authz"
	"github.com/jds-integration/integration/pkg/httputil"
	"github.com/jds-integration/integration/pkg/middleware"
	"github.com/jds-integration/integration/pkg/observability"
	"github.com/jds-integration/integration/pkg/todo"
)

// Operation names recorded on authorization decisions
const (
	OperationTodoRead  = "todo.read"
	OperationTodoWrite = "todo.write"
)

// Policy is the scope and role requirement for one class of operation
type Policy struct {
	Scope string
	Roles authz.AllowedRoles
}

// Deps are the collaborators the server is assembled from
type Deps struct {
	Logger   *observability.Logger
	Metrics  *observability.Metrics
	Gatherer prometheus.Gatherer
	Health   *observability.HealthChecker

	Verifier middleware.Verifier
	Gate     *middleware.GroupGate
	Store    todo.Store

	Read  Policy
	Write Policy

	MaxBodyBytes int64
}

// Server holds the public API router and the health/metrics router
type Server struct {
	router  *mux.Router
	ops     *mux.Router
	handler http.Handler
	deps    Deps
}

// NewServer builds both routers. It fails when a policy names a role that has no
// groups, so a misconfigured deployment never starts serving.
func NewServer(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("api: logger is required")
	}
	if deps.Verifier == nil || deps.Gate == nil || deps.Store == nil {
		return nil, fmt.Errorf("api: verifier, gate and store are required")
	}
	if deps.Health == nil {
		deps.Health = observability.NewHealthChecker("")
	}

	s := &Server{
		router: mux.NewRouter(),
		ops:    mux.NewRouter(),
		deps:   deps,
	}
	if err := s.setupRoutes(); err != nil {
		return nil, err
	}
	s.setupOpsRoutes()

	chain := httputil.Chain(
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(deps.Logger),
		httputil.RecoveryMiddleware(deps.Logger),
	)
	s.handler = otelhttp.NewHandler(chain(s.router), "todo-api")
	return s, nil
}

func (s *Server) guard(operation string, p Policy) (func(http.Handler) http.Handler, error) {
	gate, err := s.deps.Gate.Require(operation, p.Roles)
	if err != nil {
		return nil, err
	}
	chain := []func(http.Handler) http.Handler{}
	if p.Scope != "" {
		chain = append(chain, middleware.RequireScope(p.Scope))
	}
	chain = append(chain, gate)
	return httputil.Chain(chain...), nil
}

func (s *Server) setupRoutes() error {
	read, err := s.guard(OperationTodoRead, s.deps.Read)
	if err != nil {
		return err
	}
	write, err := s.guard(OperationTodoWrite, s.deps.Write)
	if err != nil {
		return err
	}

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteNotFound(w)
	})

	// mux runs these only for matched routes
	if s.deps.Metrics != nil {
		s.router.Use(observability.HTTPMetricsMiddleware(s.deps.Metrics))
	}
	if s.deps.MaxBodyBytes > 0 {
		s.router.Use(httputil.MaxBytesMiddleware(s.deps.MaxBodyBytes))
	}
	s.router.Use(middleware.NewAuthMiddleware(s.deps.Verifier).Handler)

	todo.NewHandlers(s.deps.Store).RegisterRoutes(s.router, read, write)
	return nil
}

func (s *Server) setupOpsRoutes() {
	observability.RegisterHealthRoutes(s.ops, s.deps.Health)
	if s.deps.Gatherer != nil {
		observability.RegisterMetricsEndpoint(s.ops, s.deps.Gatherer)
	}
}

// Handler returns the public API handler with request-scoped middleware and tracing applied
func (s *Server) Handler() http.Handler {
	return s.handler
}

// OpsHandler returns the health and metrics handler
func (s *Server) OpsHandler() http.Handler {
	return s.ops
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}
