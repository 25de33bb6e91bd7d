package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/tmoretti/wfm-data/internal/api"
	"github.com/tmoretti/wfm-data/internal/cache"
	"github.com/tmoretti/wfm-data/internal/config"
	"github.com/tmoretti/wfm-data/internal/database"
	"github.com/tmoretti/wfm-data/internal/ingest"
	"github.com/tmoretti/wfm-data/internal/metrics"
	"github.com/tmoretti/wfm-data/internal/model"
	"github.com/tmoretti/wfm-data/internal/queue"
	"github.com/tmoretti/wfm-data/internal/ratelimit"
	"github.com/tmoretti/wfm-data/internal/reconcile"
	"github.com/tmoretti/wfm-data/internal/registry"
	"github.com/tmoretti/wfm-data/internal/storage"
	"github.com/tmoretti/wfm-data/internal/version"
	"github.com/tmoretti/wfm-data/internal/writer"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	configPath := flag.String("config", "configs/tracker.yaml", "path to config file")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	logger.Info("starting tracker",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"api_url", cfg.API.BaseURL,
		"ingest_interval", cfg.Ingest.Interval,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	logger.Info("connecting to database",
		"host", cfg.Database.Postgres.Host,
		"port", cfg.Database.Postgres.Port,
		"database", cfg.Database.Postgres.Name,
	)
	pool, err := database.Connect(ctx, cfg.Database.Postgres)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	store := storage.NewPostgres(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		logger.Error("failed to apply schema", "error", err)
		os.Exit(1)
	}
	logger.Info("database connected")

	var priceCache *cache.Cache
	if cfg.Redis.Addr != "" {
		priceCache, err = cache.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.TTL)
		if err != nil {
			logger.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer priceCache.Close()
		logger.Info("redis connected", "addr", cfg.Redis.Addr)
	} else {
		logger.Info("redis not configured, latest-price cache disabled")
	}

	limiter := ratelimit.New(cfg.API.CallsPerSecond)
	client := api.NewClient(cfg.API.BaseURL,
		api.WithLogger(logger),
		api.WithTimeout(cfg.API.Timeout),
		api.WithRetries(cfg.API.MaxRetries, cfg.API.RetryDelay),
		api.WithLimiter(limiter),
		api.WithPlatform(cfg.API.Platform),
	)
	defer client.Close()

	reg := registry.New(registry.DefaultConfig(), client, store, logger)

	buf := queue.New[model.PricePoint](cfg.Writers.BufferSize)
	priceWriter := writer.NewPricePointWriter(writer.Config{
		BatchSize:     cfg.Writers.BatchSize,
		FlushInterval: cfg.Writers.FlushInterval,
	}, buf, store, logger)

	ingestor := ingest.New(ingest.Config{
		Concurrency:   cfg.Ingest.Concurrency,
		ItemTimeout:   cfg.Ingest.ItemTimeout,
		StaleOrderAge: cfg.Ingest.StaleOrderAge,
		Reconcile: reconcile.Config{
			RelistWindow:             cfg.Reconcile.RelistWindow,
			RelistPriceBand:          cfg.Reconcile.RelistPriceBand,
			DepletionMinObservations: cfg.Reconcile.DepletionMinObservations,
		},
	}, client, reg, store, buf, priceCache, logger)

	scheduler := ingest.NewScheduler(ingest.SchedulerConfig{
		Interval:        cfg.Ingest.Interval,
		RetentionMaxAge: cfg.Retention.MaxAge,
	}, ingestor, store, logger)

	healthServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler: newHTTPHandler(cfg.Metrics.Path, pool, reg),
	}
	go func() {
		logger.Info("starting metrics server",
			"port", cfg.Metrics.Port, "path", cfg.Metrics.Path)
		if err := healthServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()

	// Initial registry sync blocks; everything downstream needs the item set.
	if err := reg.Start(ctx); err != nil {
		logger.Error("failed to start item registry", "error", err)
		os.Exit(1)
	}
	if err := priceWriter.Start(ctx); err != nil {
		logger.Error("failed to start price writer", "error", err)
		os.Exit(1)
	}
	if err := scheduler.Start(ctx); err != nil {
		logger.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}

	logger.Info("tracker running",
		"instance_id", cfg.Instance.ID,
		"tracked_items", reg.Count(),
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Metrics.Port),
	)

	<-ctx.Done()
	logger.Info("shutting down...")

	// Reverse order: stop producing, then drain, then release shared state.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := scheduler.Stop(shutdownCtx); err != nil {
		logger.Warn("scheduler shutdown timed out", "error", err)
	}
	buf.Close()
	if err := priceWriter.Stop(shutdownCtx); err != nil {
		logger.Warn("price writer shutdown failed", "error", err)
	}
	if err := reg.Stop(shutdownCtx); err != nil {
		logger.Warn("registry shutdown timed out", "error", err)
	}
	healthServer.Shutdown(shutdownCtx)

	logger.Info("tracker stopped")
}

// newHTTPHandler serves the health check and the metrics endpoint.
func newHTTPHandler(metricsPath string, pool interface {
	Ping(context.Context) error
}, reg *registry.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle(metricsPath, metrics.Handler())

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string         `json:"status"`
			Components map[string]any `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]any),
		}

		if err := pool.Ping(ctx); err != nil {
			health.Status = "unhealthy"
			health.Components["postgres"] = map[string]string{
				"status": "disconnected",
				"error":  err.Error(),
			}
		} else {
			health.Components["postgres"] = "connected"
		}

		tracked := reg.Count()
		health.Components["item_registry"] = map[string]any{
			"tracked_items": tracked,
		}
		if tracked == 0 {
			health.Status = "degraded"
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	mux.HandleFunc("/debug/items", func(w http.ResponseWriter, r *http.Request) {
		items := reg.TrackedItems()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"count": len(items),
			"items": items,
		})
	})

	return mux
}
