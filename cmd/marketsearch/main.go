package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/marketsearch/internal/catalog"
	"github.com/kailas-cloud/marketsearch/internal/config"
	dbRedis "github.com/kailas-cloud/marketsearch/internal/db/redis"
	dbSqlite "github.com/kailas-cloud/marketsearch/internal/db/sqlite"
	"github.com/kailas-cloud/marketsearch/internal/engine"
	"github.com/kailas-cloud/marketsearch/internal/engine/indexsvc"
	"github.com/kailas-cloud/marketsearch/internal/engine/relational"
	"github.com/kailas-cloud/marketsearch/internal/enrich"
	"github.com/kailas-cloud/marketsearch/internal/indexer"
	logpkg "github.com/kailas-cloud/marketsearch/internal/logger"
	"github.com/kailas-cloud/marketsearch/internal/metrics"
	"github.com/kailas-cloud/marketsearch/internal/normalizer"
	"github.com/kailas-cloud/marketsearch/internal/prefs"
	searchuc "github.com/kailas-cloud/marketsearch/internal/usecase/search"
	"github.com/kailas-cloud/marketsearch/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting marketsearch",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("db_path", cfg.Database.Path),
		zap.Strings("index_addrs", cfg.IndexService.Addrs),
	)

	// Primary relational store
	relStore, err := dbSqlite.NewStore(cfg.Database.Path)
	if err != nil {
		logger.Fatal("Failed to open primary database", zap.Error(err))
	}
	defer relStore.Close()

	// Index service
	idxStore, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.IndexService.Addrs,
		Username: cfg.IndexService.Username,
		Password: cfg.IndexService.Password,
		DB:       cfg.IndexService.DB,
	})
	if err != nil {
		logger.Fatal("Failed to create index-service store", zap.Error(err))
	}
	defer idxStore.Close()

	ctx := context.Background()
	readiness := time.Duration(cfg.IndexService.ReadinessTimeout) * time.Second
	if err := idxStore.WaitForReady(ctx, readiness); err != nil {
		logger.Fatal("Index service not ready", zap.Error(err))
	}
	if err := indexsvc.EnsureIndexes(ctx, idxStore); err != nil {
		logger.Fatal("Failed to ensure indexes", zap.Error(err))
	}
	logger.Info("Connected to index service")

	// Filter pipeline: catalog over reference data, preferences in KV
	cat := catalog.New(relStore, time.Duration(cfg.Search.OptionsTTLSec)*time.Second, logger)
	prefStore := prefs.New(idxStore)
	norm := normalizer.New(cat, prefStore, logger)

	// Engines, both wrapped with metrics
	cacheTTL := time.Duration(cfg.Search.ResultCacheTTLSec) * time.Second
	idxEngine := indexsvc.New(idxStore, relStore, cacheTTL, logger)
	if expander, err := enrich.New(enrich.Config{
		APIKey:  cfg.Enrich.APIKey,
		BaseURL: cfg.Enrich.BaseURL,
		Model:   cfg.Enrich.Model,
		Timeout: time.Duration(cfg.Enrich.TimeoutSec) * time.Second,
	}, logger); err == nil {
		idxEngine.WithExpander(expander)
		logger.Info("Query expansion enabled")
	} else {
		logger.Info("Query expansion disabled", zap.Error(err))
	}

	primary := metrics.Instrument(idxEngine, engine.BackendIndexService)
	fallback := metrics.Instrument(relational.New(relStore, logger), engine.BackendRelational)

	// Caller-facing dispatch: normalization, backend selection, degrade
	svc := searchuc.New(norm, prefStore, primary, fallback, idxEngine, logger)

	// Indexer plus periodic incremental sync
	ix, err := indexer.New(relStore, idxStore, cfg.Sync.Workers, logger)
	if err != nil {
		logger.Fatal("Failed to create indexer", zap.Error(err))
	}
	defer ix.Close()

	syncCtx, stopSync := context.WithCancel(ctx)
	defer stopSync()
	go runSyncLoop(syncCtx, ix, cfg.Sync, logger)

	// HTTP surface: health and metrics only; search is consumed in-process
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.Recoverer)
	r.Use(metrics.Middleware())
	r.Get("/healthz", healthHandler(svc))
	r.Handle("/metrics", promhttp.Handler())

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")
	stopSync()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// runSyncLoop reconciles changed records on a fixed interval until the
// context is cancelled.
func runSyncLoop(ctx context.Context, ix *indexer.Indexer, cfg config.SyncConfig, logger *zap.Logger) {
	interval := time.Duration(cfg.IntervalSec) * time.Second
	window := time.Duration(cfg.WindowMin) * time.Minute

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := ix.SyncWithDatabase(ctx, window); err != nil {
				logger.Error("Incremental sync failed", zap.Error(err))
			}
		}
	}
}

// healthHandler reports both backends; overall status is degraded unless
// the primary backend is healthy.
func healthHandler(svc *searchuc.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		backends := svc.HealthCheck(ctx)

		status := "ok"
		code := http.StatusOK
		if len(backends) == 0 || !backends[0].Healthy {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":   status,
			"version":  version.Version,
			"backends": backends,
		})
	}
}
