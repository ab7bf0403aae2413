// Melodeon Server
//
// Features:
// - Prometheus metrics & structured logging (zap)
// - Multi-backend song storage (S3, filesystem) with a DB-backed registry
// - Range-capable streaming and pre-signed direct delivery
// - Websocket song ingestion with metadata extraction
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/melodeon/melodeon/internal/api"
	"github.com/melodeon/melodeon/internal/auth"
	"github.com/melodeon/melodeon/internal/config"
	"github.com/melodeon/melodeon/internal/delivery"
	"github.com/melodeon/melodeon/internal/ingest"
	"github.com/melodeon/melodeon/internal/library"
	"github.com/melodeon/melodeon/internal/logging"
	"github.com/melodeon/melodeon/internal/metrics"
	"github.com/melodeon/melodeon/internal/storage"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Can't use structured logging yet
		panic("configuration error: " + err.Error())
	}

	if cfg.WorkerThreads > 0 {
		runtime.GOMAXPROCS(cfg.WorkerThreads)
	}

	// Initialize structured logging
	if err := logging.Init(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	}); err != nil {
		panic("logging init error: " + err.Error())
	}
	defer logging.Sync()

	logging.Info("Melodeon Server starting...",
		zap.String("listen", cfg.ListenAddr),
		zap.String("metrics", cfg.MetricsAddr))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize PostgreSQL
	logging.Info("connecting to PostgreSQL...")
	store, err := library.New(cfg.DatabaseURL)
	if err != nil {
		logging.Fatal("database connection failed", zap.Error(err))
	}
	defer store.Close()

	logging.Info("running migrations...")
	if err := store.Migrate(); err != nil {
		logging.Fatal("migration failed", zap.Error(err))
	}

	// Register the initial storage backend. First writer wins; an existing
	// registration under "init" is left untouched.
	created, err := store.TryRegisterBackend(ctx, "init", cfg.InitBackendConfig())
	if err != nil {
		logging.Fatal("registering init backend failed", zap.Error(err))
	}
	if created {
		logging.Info("registered init storage backend", zap.String("type", cfg.InitBackendType))
	}

	// Initialize auth and seed the admin account
	authHandler := auth.New(store, cfg.JWTSecret)
	if err := authHandler.EnsureAdmin(ctx, cfg.InitUsername, cfg.InitPassword); err != nil {
		logging.Error("failed to ensure admin user", zap.Error(err))
	}

	// Shared caches, constructed once and passed by reference
	conns := storage.NewConnCache()
	defer conns.Close()
	descriptors := delivery.NewDescriptorCache(conns)

	persister := ingest.NewCoordinator(store, conns)

	srv := api.NewServer(store, authHandler, conns, descriptors, persister, cfg.MaxIngestMessageSize)

	// Metrics server
	metricsServer := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: metrics.Handler(),
	}
	go func() {
		logging.Info("metrics server listening", zap.String("addr", cfg.MetricsAddr))
		if err := metricsServer.ListenAndServe(); err != http.ErrServerClosed {
			logging.Error("metrics server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logging.Info("shutting down...")
		cancel()
		metricsServer.Close()
	}()

	// Periodic DB connection metrics
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				store.UpdateConnectionMetrics()
			}
		}
	}()

	if err := srv.Serve(ctx, cfg.ListenAddr); err != nil {
		logging.Fatal("server error", zap.Error(err))
	}
	logging.Info("server stopped")
}
