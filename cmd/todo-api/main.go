package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/jds-integration/integration/pkg/api"
	"github.com/jds-integration/integration/pkg/auth"
	"github.com/jds-integration/integration/pkg/authz"
	"github.com/jds-integration/integration/pkg/config"
	"github.com/jds-integration/integration/pkg/graph"
	"github.com/jds-integration/integration/pkg/middleware"
	"github.com/jds-integration/integration/pkg/observability"
	"github.com/jds-integration/integration/pkg/todo"
)

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.LoadConfig()
	if err != nil {
		var cfgErr *authz.ConfigurationError
		if errors.As(err, &cfgErr) {
			logrus.WithField("field", cfgErr.Field).Fatalf("Invalid authorization configuration: %s", cfgErr.Reason)
		}
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logrus.Fatalf("Server exited: %v", err)
	}
	logrus.Info("Server stopped")
}

func run(ctx context.Context, cfg *config.Config) (err error) {
	logger := observability.NewLogger(cfg.LogLevel(), os.Stdout)
	metrics, gatherer := newMetrics(cfg)

	// released here on a startup failure; the shutdown manager owns them after that
	var release releaseStack
	defer func() {
		if err != nil {
			release.run(context.Background(), logger)
		}
	}()

	providers, err := observability.InitOTel(ctx, cfg.OTelConfig(), logger)
	if err != nil {
		return err
	}
	release.push(func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, providers, logger)
	})

	mapping, err := cfg.RoleGroupMapping()
	if err != nil {
		return err
	}
	read, write, err := cfg.AllowedRoles()
	if err != nil {
		return err
	}

	directory, err := graph.NewClient(cfg.GraphClientConfig(), graph.WithMetrics(metrics))
	if err != nil {
		return err
	}
	evaluator := authz.NewEvaluator(mapping, directory)

	verifier, err := auth.NewTokenVerifier(ctx, cfg.VerifierConfig())
	if err != nil {
		return err
	}

	health := observability.NewHealthChecker(cfg.Observability.OTelServiceVersion)
	store, closeStore, err := openStore(ctx, cfg, metrics, health)
	if err != nil {
		return err
	}
	release.push(func(context.Context) error { return closeStore() })

	srv, err := api.NewServer(api.Deps{
		Logger:   logger,
		Metrics:  metrics,
		Gatherer: gatherer,
		Health:   health,
		Verifier: verifier,
		Gate: middleware.NewGroupGate(evaluator, mapping,
			middleware.WithDecisionTimeout(cfg.Server.DirectoryTimeout),
			middleware.WithGateMetrics(metrics),
		),
		Store:        store,
		Read:         api.Policy{Scope: cfg.AzureADB2C.ScopeRead, Roles: read},
		Write:        api.Policy{Scope: cfg.AzureADB2C.ScopeWrite, Roles: write},
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
	})
	if err != nil {
		return err
	}

	apiServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      srv.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	opsServer := &http.Server{
		Addr:        net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler:     srv.OpsHandler(),
		ReadTimeout: cfg.Server.ReadTimeout,
	}

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout, apiServer, opsServer)
	release.handOff(shutdown)

	g, gctx := errgroup.WithContext(ctx)
	for _, s := range []*http.Server{apiServer, opsServer} {
		s := s
		g.Go(func() error {
			logger.WithField("addr", s.Addr).Info("HTTP server listening")
			if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutdown signal received")
		return shutdown.Shutdown(context.Background())
	})

	return g.Wait()
}

// newMetrics returns nil metrics and no gatherer when metrics are disabled.
// Every recorder accepts a nil *Metrics.
func newMetrics(cfg *config.Config) (*observability.Metrics, prometheus.Gatherer) {
	if !cfg.Observability.MetricsEnabled {
		return nil, nil
	}
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return observability.NewMetrics(registry), registry
}

func openStore(ctx context.Context, cfg *config.Config, metrics *observability.Metrics, health *observability.HealthChecker) (todo.Store, func() error, error) {
	switch cfg.Storage.Type {
	case config.StorageRedis:
		rs, err := todo.NewRedisStore(ctx, todo.RedisOptions{
			URL:        cfg.Storage.RedisURL,
			Password:   cfg.Storage.RedisPassword,
			DB:         cfg.Storage.RedisDB,
			PoolSize:   cfg.Storage.RedisPoolSize,
			MaxRetries: cfg.Storage.RedisMaxRetries,
			KeyPrefix:  cfg.Storage.KeyPrefix,
		})
		if err != nil {
			return nil, nil, err
		}
		health.AddCheck("redis", true, observability.RedisCheck(rs.Client()))
		return todo.NewInstrumentedStore(rs, config.StorageRedis, metrics), rs.Close, nil
	default:
		return todo.NewInstrumentedStore(todo.NewMemoryStore(), config.StorageMemory, metrics), func() error { return nil }, nil
	}
}
