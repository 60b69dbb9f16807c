// Package api implements app.Runner for the bridge engine server process.
package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/uptrace/bun"
	"go.uber.org/zap"

	apphttp "github.com/semilla-platform/bridge-engine/pkg/app/http"
	"github.com/semilla-platform/bridge-engine/pkg/blacklist"
	"github.com/semilla-platform/bridge-engine/pkg/breaker"
	bridgeservice "github.com/semilla-platform/bridge-engine/pkg/bridge/service"
	"github.com/semilla-platform/bridge-engine/pkg/bridgestore"
	"github.com/semilla-platform/bridge-engine/pkg/chains"
	"github.com/semilla-platform/bridge-engine/pkg/config"
	"github.com/semilla-platform/bridge-engine/pkg/evmchain"
	"github.com/semilla-platform/bridge-engine/pkg/pgutil"
	"github.com/semilla-platform/bridge-engine/pkg/security"
	securityservice "github.com/semilla-platform/bridge-engine/pkg/security/service"
)

const defaultRequestTimeout = 60

// Server holds cfg to init the bridge server.
type Server struct {
	cfg *config.Config
}

// NewServer initializes a new bridge server.
func NewServer(cfg *config.Config) *Server {
	return &Server{cfg: cfg}
}

func (s *Server) Run() error {
	if s.cfg == nil {
		return fmt.Errorf("bridge server config is nil")
	}
	cfg := s.cfg

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("setup logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting SEMILLA bridge engine",
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
	)

	db, err := pgutil.ConnectDB(&cfg.Database)
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer db.Close()
	logger.Info("Connected to database",
		zap.String("host", cfg.Database.Host),
		zap.String("database", cfg.Database.Database),
	)

	adapter, err := evmchain.New(cfg.Chain, logger)
	if err != nil {
		return fmt.Errorf("create chain adapter: %w", err)
	}
	defer adapter.Close()

	deps, err := s.buildDependencies(ctx, db, logger)
	if err != nil {
		return err
	}

	svc := bridgeservice.NewLog(bridgeservice.New(
		deps.store,
		deps.registry,
		deps.enforcer,
		deps.breaker,
		deps.monitor,
		adapter,
		cfg.Bridge,
		logger,
	), logger)

	sweeper := bridgeservice.NewSweeper(deps.store, deps.monitor, cfg.Bridge, logger)
	sweeper.Start()
	// Called explicitly after ServeAndWait returns for deterministic shutdown
	// order. Keep this defer as a safety net.
	defer sweeper.Stop()

	router := s.setupRouter(svc, deps, logger)

	err = apphttp.ServeAndWait(ctx, router, logger, &cfg.Server)

	// Stop background work before deferred DB/client closes kick in.
	sweeper.Stop()

	return err
}

// dependencies bundles the stores and engines built over the single bun
// connection.
type dependencies struct {
	store          bridgestore.Store
	chainStore     chains.Store
	registry       *chains.Registry
	enforcer       *blacklist.Enforcer
	breaker        *breaker.Breaker
	monitor        *security.Monitor
	events         security.Store
	blacklistStore blacklist.Store
}

func (s *Server) buildDependencies(ctx context.Context, db *bun.DB, logger *zap.Logger) (*dependencies, error) {
	chainStore := chains.NewStore(db)
	registry, err := chains.NewRegistry(ctx, chainStore)
	if err != nil {
		return nil, fmt.Errorf("load chain registry: %w", err)
	}
	logger.Info("Chain registry loaded", zap.Int("chains", len(registry.List())))

	blacklistStore := blacklist.NewStore(db)
	enforcer, err := blacklist.NewEnforcer(ctx, blacklistStore)
	if err != nil {
		return nil, fmt.Errorf("load blacklist: %w", err)
	}

	breakerStore := breaker.NewStore(db)
	brk, err := breaker.New(ctx, breakerStore, logger)
	if err != nil {
		return nil, fmt.Errorf("restore breaker state: %w", err)
	}
	if brk.IsOpen() {
		logger.Warn("Circuit breaker is open from a previous run")
	}

	eventStore := security.NewStore(db)
	monitor, err := security.NewMonitor(ctx, eventStore, brk, s.cfg.Security, logger)
	if err != nil {
		return nil, fmt.Errorf("start security monitor: %w", err)
	}

	return &dependencies{
		store:          bridgestore.NewStore(db),
		chainStore:     chainStore,
		registry:       registry,
		enforcer:       enforcer,
		breaker:        brk,
		monitor:        monitor,
		events:         eventStore,
		blacklistStore: blacklistStore,
	}, nil
}

func (s *Server) setupRouter(svc bridgeservice.Service, deps *dependencies, logger *zap.Logger) chi.Router {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(time.Second * defaultRequestTimeout))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	if s.cfg.Monitoring.Enabled {
		r.Handle("/metrics", promhttp.Handler())
		logger.Info("Metrics enabled", zap.String("path", "/metrics"))
	}

	// Settlement endpoints
	bridgeservice.RegisterRoutes(r, svc, logger)

	// Operator endpoints
	r.Route("/admin", func(r chi.Router) {
		securityservice.RegisterRoutes(
			r,
			deps.monitor,
			deps.events,
			deps.blacklistStore,
			deps.enforcer,
			deps.chainStore,
			deps.registry,
			deps.breaker,
			logger,
		)
	})

	return r
}
