package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"climate-check/internal/config"
	"climate-check/internal/handlers"
	"climate-check/internal/repository"
	"climate-check/internal/services"
	"climate-check/internal/smhi"
	"climate-check/pkg/database"
	"climate-check/pkg/logging"
	"climate-check/pkg/metrics"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := logging.NewStructuredLogger("climate-api", "1.0.0", logging.ParseLevel(cfg.Logging.Level))

	ctx := context.Background()
	logger.Info(ctx, "[STARTUP] Starting climate check API server", logging.Fields{
		"version":      "1.0.0",
		"server_host":  cfg.Server.Host,
		"server_port":  cfg.Server.Port,
		"cache_driver": cfg.Cache.Driver,
	})

	// Initialize metrics collector
	metricsCollector := metrics.NewCollector("climate_check")

	// The server serves the cache; it never fetches from SMHI itself, so a
	// usable cache is a hard startup requirement.
	if !cfg.Cache.Enabled {
		logger.Fatal(ctx, "[STARTUP_ERROR] Server mode requires the cache", logging.Fields{},
			fmt.Errorf("CACHE_ENABLED is false"))
	}

	db, err := database.Open(&database.Config{
		Driver:          cfg.Cache.Driver,
		DSN:             cfg.Cache.DSN,
		MaxOpenConns:    cfg.Cache.MaxOpenConns,
		MaxIdleConns:    cfg.Cache.MaxIdleConns,
		ConnMaxLifetime: cfg.Cache.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Cache.ConnMaxIdleTime,
	}, logger, metricsCollector)
	if err != nil {
		logger.Fatal(ctx, "[STARTUP_ERROR] Failed to open cache", logging.Fields{}, err)
	}
	defer db.Close()

	// Initialize repository
	cacheRepo := repository.NewCacheRepository(db, logger, metricsCollector)
	if err := cacheRepo.EnsureSchema(ctx); err != nil {
		logger.Fatal(ctx, "[STARTUP_ERROR] Failed to ensure cache schema", logging.Fields{}, err)
	}

	// Initialize services
	client := smhi.NewClient(cfg.SMHI.RequestTimeout)
	client.SetBaseURL(cfg.SMHI.BaseURL)

	normalizer := services.NewNormalizer(
		time.Now().UTC(),
		cfg.Pipeline.TrailingExclusionMonths,
		cfg.Pipeline.MinStationObservations,
		logger,
		metricsCollector,
	)

	collectionService := services.NewCollectionService(client, cacheRepo, normalizer, services.CollectionConfig{
		Parameter:      cfg.SMHI.Parameter,
		Concurrency:    cfg.SMHI.Concurrency,
		RetryOnTimeout: cfg.SMHI.RetryOnTimeout,
	}, logger, metricsCollector)

	aggregationService := services.NewAggregationService(logger, metricsCollector)
	trendService := services.NewTrendService(cfg.Pipeline.MinTrendYears, logger, metricsCollector)

	// Initialize handlers
	trendHandler := handlers.NewTrendHandler(
		collectionService, aggregationService, trendService, cacheRepo, logger, metricsCollector)

	// Setup router
	router := mux.NewRouter()

	// Register routes
	trendHandler.RegisterRoutes(router)

	// Prometheus metrics endpoint
	router.Handle("/metrics", promhttp.Handler())

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info(ctx, "[SERVER_START] HTTP server listening", logging.Fields{
			"address": server.Addr,
		})

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal(ctx, "[SERVER_ERROR] Server failed", logging.Fields{}, err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info(ctx, "[SHUTDOWN] Shutting down server...", logging.Fields{})

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "[SHUTDOWN_ERROR] Server forced to shutdown", logging.Fields{}, err)
	}

	logger.Info(ctx, "[SHUTDOWN_COMPLETE] Server stopped", logging.Fields{})
}
