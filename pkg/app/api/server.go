// Package api implements app.Runner for the API server process.
package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/arcstream/cctp-middleware/pkg/alerts"
	apphttp "github.com/arcstream/cctp-middleware/pkg/app/http"
	"github.com/arcstream/cctp-middleware/pkg/auth"
	"github.com/arcstream/cctp-middleware/pkg/chains"
	"github.com/arcstream/cctp-middleware/pkg/config"
	"github.com/arcstream/cctp-middleware/pkg/donations/service"
	"github.com/arcstream/cctp-middleware/pkg/donationstore"
	"github.com/arcstream/cctp-middleware/pkg/iris"
	"github.com/arcstream/cctp-middleware/pkg/names"
	"github.com/arcstream/cctp-middleware/pkg/pgutil"
	"github.com/arcstream/cctp-middleware/pkg/poller"
	reconcilerpkg "github.com/arcstream/cctp-middleware/pkg/reconciler"
	"github.com/arcstream/cctp-middleware/pkg/receipt"
	"github.com/arcstream/cctp-middleware/pkg/wallet"
)

// Server holds cfg to init the api server.
type Server struct {
	cfg *config.Config
}

// NewServer initializes new api server.
func NewServer(cfg *config.Config) *Server {
	return &Server{cfg: cfg}
}

func (s *Server) Run() error {
	if s.cfg == nil {
		return fmt.Errorf("api server config is nil")
	}
	cfg := s.cfg

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("setup logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting API server",
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
	)

	db, err := pgutil.ConnectDB(&cfg.Database)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	store := donationstore.NewStore(db)

	registry, err := s.loadRegistry(logger)
	if err != nil {
		return err
	}

	irisClient, err := iris.NewClient(&iris.Config{
		BaseURL:        cfg.Iris.BaseURL,
		RequestTimeout: cfg.Iris.RequestTimeout,
	}, iris.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("create attestation client: %w", err)
	}

	checker := receipt.NewChecker(logger)
	hub := alerts.NewHub(cfg.Alerts.SubscriberBuffer, logger)
	stream := alerts.NewStreamHandler(hub, cfg.Alerts.HeartbeatInterval, logger)

	rec := reconcilerpkg.New(store, checker, irisClient, hub, registry, cfg.Reconciliation.SweepLimit, logger)
	if cfg.Reconciliation.Interval > 0 {
		rec.StartPeriodic(cfg.Reconciliation.Interval)
	}
	defer rec.Stop()

	watcher := poller.New(store, checker, irisClient, hub, registry, cfg.Poller.Interval, cfg.Poller.MaxAttempts, logger)
	defer watcher.Stop()

	var resolver service.NameResolver
	if cfg.Chains.EnsRPCURL != "" {
		resolver = names.NewResolver(cfg.Chains.EnsRPCURL, logger)
	}

	svc := service.New(store, registry, irisClient, watcher, rec, resolver, hub, logger)

	jwtValidator := auth.NewJWTValidator(cfg.Auth.JWTSecret, cfg.Auth.Issuer)

	router := s.setupRouter(svc, hub, stream, jwtValidator, logger)

	s.startMetricsServer(ctx, logger)

	// Deferred stops run before the DB close, so background work never
	// touches a closed pool.
	return apphttp.ServeAndWait(ctx, router, logger, &cfg.Server)
}

func (s *Server) loadRegistry(logger *zap.Logger) (*chains.Registry, error) {
	if s.cfg.Chains.RegistryFile == "" {
		return chains.Default(), nil
	}

	registry, err := chains.LoadFile(s.cfg.Chains.RegistryFile)
	if err != nil {
		return nil, fmt.Errorf("load chain registry: %w", err)
	}
	logger.Info("Loaded chain registry",
		zap.String("file", s.cfg.Chains.RegistryFile),
		zap.Int("chains", len(registry.All())))
	return registry, nil
}

func (s *Server) setupRouter(
	svc *service.Service,
	hub *alerts.Hub,
	stream *alerts.StreamHandler,
	jwtValidator *auth.JWTValidator,
	logger *zap.Logger,
) chi.Router {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	service.RegisterRoutes(r, jwtValidator.Middleware, svc, hub, stream, logger)

	// Custodial wallet endpoints (if configured).
	if s.cfg.Wallet.BaseURL != "" && os.Getenv(s.cfg.Wallet.APIKeyEnv) != "" {
		walletClient, err := wallet.NewClient(&s.cfg.Wallet, logger)
		if err != nil {
			logger.Error("Failed to create wallet client", zap.Error(err))
		} else {
			registerWalletRoutes(r, walletClient, jwtValidator, logger)
			logger.Info("Custodial wallet endpoints enabled")
		}
	}

	return r
}

func (s *Server) startMetricsServer(ctx context.Context, logger *zap.Logger) {
	if !s.cfg.Monitoring.Enabled {
		return
	}

	addr := fmt.Sprintf(":%d", s.cfg.Monitoring.MetricsPort)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logger.Info("Metrics server listening", zap.String("address", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Metrics server error", zap.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()
}
