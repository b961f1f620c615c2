package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/okian/stark/internal/adapters/http/api"
	"github.com/okian/stark/internal/adapters/http/auth"
	"github.com/okian/stark/internal/adapters/http/swagger"
	"github.com/okian/stark/internal/adapters/repository"
	"github.com/okian/stark/internal/adapters/repository/memstore"
	"github.com/okian/stark/internal/adapters/repository/sqlstore"
	service "github.com/okian/stark/internal/app"
	"github.com/okian/stark/internal/config"
	"github.com/okian/stark/pkg/logger"
	"github.com/okian/stark/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout            = 10 * time.Second
	writeTimeout           = 10 * time.Second
	idleTimeout            = 60 * time.Second
	readHeaderTimeout      = 5 * time.Second
	serviceMetricsInterval = 5 * time.Second
)

func main() {
	if err := config.LoadDotenv(); err != nil {
		os.Stderr.WriteString("failed to read .env: " + err.Error() + "\n")
		os.Exit(1)
	}

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		// logger isn't configured yet
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := logger.Init(logger.WithFormat(cfg.LogFormat)); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	log := logger.Get()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	if err := run(ctx, cfg, log); err != nil {
		log.Error(ctx, "server exited", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	registerRuntimeCollectors()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}

	svc := service.New(
		service.WithStore(store),
		service.WithLogger(log.Named("service")),
		service.WithProvisionalThreshold(cfg.ProvisionalThreshold),
		service.WithAuditQueueSize(cfg.AuditQueueSize),
		service.WithAuditWorkers(cfg.AuditWorkers),
		service.WithMaxAuditLimit(cfg.MaxAuditLimit),
		service.WithShutdownTimeout(cfg.ShutdownTimeout()),
	)
	if err := svc.Start(ctx); err != nil {
		_ = store.Close()
		return fmt.Errorf("start service: %w", err)
	}
	defer svc.Stop()

	go startServiceMetricsUpdater(ctx, svc)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newMux(ctx, cfg, svc, log),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server",
			logger.String("addr", cfg.Addr),
			logger.String("db_driver", cfg.DBDriver),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	log.Info(ctx, "server stopped")
	return nil
}

// openStore connects the configured backend and makes sure the SQL schema exists.
func openStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	if cfg.DBDriver == config.DriverMemory {
		return memstore.New(), nil
	}
	store, err := sqlstore.Open(ctx, cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := store.CreateSchema(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return store, nil
}

// newMux registers the docs and business routes.
func newMux(ctx context.Context, cfg *config.Config, svc *service.Service, log logger.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	swagger.Register(ctx, mux)

	apiServer := api.NewServer(svc, svc, auth.NewVerifier(cfg.JWTSecret),
		api.WithSaveRate(cfg.SaveRatePerSecond, cfg.SaveBurst),
		api.WithLogger(log.Named("http")),
	)
	apiServer.Register(ctx, mux)
	return mux
}

// registerRuntimeCollectors adds Go runtime and process metrics to the
// service registry. Repeated calls are ignored.
func registerRuntimeCollectors() {
	reg := metrics.GetRegistry()
	_ = reg.Register(collectors.NewGoCollector())
	_ = reg.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
}

// startServiceMetricsUpdater periodically publishes the audit queue depth.
func startServiceMetricsUpdater(ctx context.Context, svc *service.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateServiceMetrics(svc)
		}
	}
}

func updateServiceMetrics(svc *service.Service) {
	stats := svc.GetStats()
	if n, ok := stats["auditQueueLength"].(int); ok {
		metrics.UpdateAuditQueueSize(n)
	}
	if n, ok := stats["auditWorkers"].(int); ok {
		metrics.UpdateAuditWorkers(n)
	}
}
