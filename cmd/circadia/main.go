package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rewired-gh/circadia/internal/aggregator"
	"github.com/rewired-gh/circadia/internal/api"
	"github.com/rewired-gh/circadia/internal/config"
	"github.com/rewired-gh/circadia/internal/logger"
	"github.com/rewired-gh/circadia/internal/models"
	"github.com/rewired-gh/circadia/internal/pipeline"
	"github.com/rewired-gh/circadia/internal/session"
	"github.com/rewired-gh/circadia/internal/source"
	"github.com/rewired-gh/circadia/internal/storage"
)

var configPath = flag.String("config", "configs/config.yaml", "Path to configuration file")

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("Configuration loaded from %s", *configPath)

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Initialize profile cache
	var cache pipeline.Cache
	var db *storage.Storage
	if cfg.Storage.Enabled {
		db, err = storage.New(cfg.Storage.DBPath)
		if err != nil {
			logger.Fatal("Failed to initialize storage: %v", err)
		}
		defer func() {
			if err := db.Close(); err != nil {
				logger.Error("Failed to close storage: %v", err)
			}
		}()
		cache = db
	} else {
		logger.Debug("Profile cache disabled")
	}

	client := source.NewClient(cfg.Data.Timeout, source.ClientConfig{
		MaxRetries:     cfg.Data.MaxRetries,
		RetryDelayBase: cfg.Data.RetryDelayBase,
		MaxConcurrent:  cfg.Data.MaxConcurrentFetches,
	})
	agg := aggregator.New(aggregator.Options{
		ExpectedDays: cfg.Aggregation.ExpectedDays,
		CycleLength:  cfg.Aggregation.EstrusCycleLength,
		CycleOffset:  cfg.Aggregation.EstrusCycleOffset,
	})

	start := time.Now()
	res, err := pipeline.Build(ctx, client, cache, agg, pipeline.Specs(cfg.Data))
	if err != nil {
		logger.Fatal("Failed to load recordings: %v", err)
	}
	for _, loadErr := range res.Errors {
		logger.Error("Skipped %v", loadErr)
	}
	if len(res.Profiles) == 0 {
		logger.Fatal("No profiles available, nothing to serve")
	}
	logger.Info("Loaded %d profiles in %v (%d datasets from cache, %d failed)",
		len(res.Profiles), time.Since(start).Round(time.Millisecond), res.CacheHits, len(res.Errors))

	if db != nil {
		pruned, err := db.Prune(res.Fingerprints)
		if err != nil {
			logger.Warn("Failed to prune profile cache: %v", err)
		} else if pruned > 0 {
			logger.Debug("Pruned %d stale cached profiles", pruned)
		}
	}

	metric, _ := models.ParseMetric(cfg.View.DefaultMetric)
	sessions := session.New(res.Profiles, metric, cfg.View.Padding, cfg.Server.MaxSessions, cfg.Server.SessionIdleTimeout)

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.SetupRouter(api.NewHandler(sessions, cfg.Chart.Width, cfg.Chart.Height)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Serving %d profiles on %s", len(res.Profiles), cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed: %v", err)
			cancel()
		}
	}()

	rotateEvery := cfg.Server.SessionIdleTimeout / 2
	if rotateEvery < time.Minute {
		rotateEvery = time.Minute
	}
	ticker := time.NewTicker(rotateEvery)
	defer ticker.Stop()

	for {
		select {
		case <-sigChan:
			logger.Info("Shutdown signal received, cleaning up...")
			cancel()
		case <-ctx.Done():
			shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("Failed to shut down HTTP server: %v", err)
			}
			stop()
			logger.Info("Service stopped")
			return
		case <-ticker.C:
			if removed := sessions.Rotate(); removed > 0 {
				logger.Debug("Rotated %d view sessions (%d live)", removed, sessions.Len())
			}
		}
	}
}
