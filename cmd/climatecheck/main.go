package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"climate-check/internal/config"
	"climate-check/internal/models"
	"climate-check/internal/repository"
	"climate-check/internal/services"
	"climate-check/internal/smhi"
	"climate-check/pkg/database"
	"climate-check/pkg/logging"
	"climate-check/pkg/metrics"
)

const version = "1.0.0"

// minCachedStations is the threshold below which the cache is considered
// unusable and a fresh download happens even without --refresh.
const minCachedStations = 5

func main() {
	refresh := flag.Bool("refresh", false, "Download fresh data from SMHI even when the cache is populated")
	offline := flag.Bool("offline", false, "Use only the cache, never the network")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewStructuredLogger("climate-check", version, logging.ParseLevel(cfg.Logging.Level))
	metricsCollector := metrics.NewCollector("climate_check")

	ctx := logging.WithRunID(context.Background(), time.Now().UTC().Format("20060102T150405Z"))

	logger.Info(ctx, "[RUN_START] Starting climate check", logging.Fields{
		"version":   version,
		"parameter": cfg.SMHI.Parameter,
		"refresh":   *refresh,
		"offline":   *offline,
	})

	var repo repository.CacheRepository
	if cfg.Cache.Enabled {
		db, err := database.Open(&database.Config{
			Driver:          cfg.Cache.Driver,
			DSN:             cfg.Cache.DSN,
			MaxOpenConns:    cfg.Cache.MaxOpenConns,
			MaxIdleConns:    cfg.Cache.MaxIdleConns,
			ConnMaxLifetime: cfg.Cache.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.Cache.ConnMaxIdleTime,
		}, logger, metricsCollector)
		if err != nil {
			if *offline {
				logger.Fatal(ctx, "[RUN_ERROR] Cache unavailable in offline mode", logging.Fields{}, err)
			}
			logger.Warn(ctx, "[RUN_NO_CACHE] Continuing without cache", logging.Fields{
				"error": err.Error(),
			})
		} else {
			defer db.Close()
			repo = repository.NewCacheRepository(db, logger, metricsCollector)
			if err := repo.EnsureSchema(ctx); err != nil {
				if *offline {
					logger.Fatal(ctx, "[RUN_ERROR] Cache unavailable in offline mode", logging.Fields{}, err)
				}
				logger.Warn(ctx, "[RUN_NO_CACHE] Continuing without cache", logging.Fields{
					"error": err.Error(),
				})
				repo = nil
			}
		}
	}

	client := smhi.NewClient(cfg.SMHI.RequestTimeout)
	client.SetBaseURL(cfg.SMHI.BaseURL)

	normalizer := services.NewNormalizer(
		time.Now().UTC(),
		cfg.Pipeline.TrailingExclusionMonths,
		cfg.Pipeline.MinStationObservations,
		logger,
		metricsCollector,
	)

	collection := services.NewCollectionService(client, repo, normalizer, services.CollectionConfig{
		Parameter:      cfg.SMHI.Parameter,
		Concurrency:    cfg.SMHI.Concurrency,
		RetryOnTimeout: cfg.SMHI.RetryOnTimeout,
	}, logger, metricsCollector)

	aggregation := services.NewAggregationService(logger, metricsCollector)
	trendService := services.NewTrendService(cfg.Pipeline.MinTrendYears, logger, metricsCollector)

	// A populated cache substitutes for the network unless a refresh is
	// forced; a near-empty cache triggers a download like a missing one.
	useCache := false
	if repo != nil && !*refresh {
		count, err := collection.CachedStationCount(ctx)
		if err != nil {
			logger.Warn(ctx, "[RUN_CACHE_CHECK] Could not inspect cache", logging.Fields{
				"error": err.Error(),
			})
		} else if count >= minCachedStations {
			useCache = true
		}
	}

	if *offline && !useCache {
		logger.Fatal(ctx, "[RUN_ERROR] Offline mode requires a populated cache", logging.Fields{
			"minimum_stations": minCachedStations,
		}, fmt.Errorf("cache holds too few stations"))
	}

	stations, stationSeries, result, err := collectDataset(ctx, collection, useCache)
	if err != nil {
		logger.Fatal(ctx, "[RUN_ERROR] Data collection failed", logging.Fields{}, err)
	}

	printCollectionSummary(result, useCache)

	monthly := aggregation.AggregateMonthly(ctx, stationSeries)
	yearly := aggregation.YearlyMeans(ctx, monthly)

	trend, err := trendService.EstimateTrend(ctx, yearly)
	if err != nil {
		logger.Fatal(ctx, "[RUN_ERROR] Trend estimation failed", logging.Fields{
			"stations": len(stations),
			"years":    len(yearly),
		}, err)
	}

	printHeadline(trend)

	logger.Info(ctx, "[RUN_COMPLETE] Climate check completed", logging.Fields{
		"stations_used":        len(stationSeries),
		"years_used":           trend.YearsUsed,
		"baseline_year":        trend.BaselineYear,
		"degrees_per_year":     trend.DegreesPerYear,
		"total_degrees_change": trend.TotalDegreesChange,
	})
}

// collectDataset resolves the dataset from the cache or the network.
func collectDataset(ctx context.Context, collection *services.CollectionService, useCache bool) (
	[]models.Station, []models.StationSeries, *services.CollectionResult, error) {
	if useCache {
		return collection.LoadFromCache(ctx)
	}
	return collection.Collect(ctx)
}

// printHeadline prints the single-line verdict the run exists to produce.
func printHeadline(trend *models.TrendResult) {
	direction := "up"
	change := trend.TotalDegreesChange
	if change < 0 {
		direction = "down"
		change = -change
	}
	fmt.Printf("Air temperature in Sweden is %s by %.1f°C since %d (%.4f°C/year over %d years).\n",
		direction, change, trend.BaselineYear, trend.DegreesPerYear, trend.YearsUsed)
}

// printCollectionSummary prints run statistics in a human-readable block.
func printCollectionSummary(result *services.CollectionResult, fromCache bool) {
	source := "SMHI"
	if fromCache {
		source = "cache"
	}

	fmt.Println(strings.Repeat("=", 72))
	fmt.Printf("COLLECTION COMPLETE (source: %s)\n", source)
	fmt.Println(strings.Repeat("=", 72))
	fmt.Printf("Stations listed:    %d\n", result.StationsListed)
	fmt.Printf("Stations used:      %d\n", result.StationsFetched)
	fmt.Printf("Stations skipped:   %d\n", result.StationsSkipped)
	fmt.Printf("Stations empty:     %d\n", result.StationsEmpty)
	fmt.Printf("Stations excluded:  %d\n", result.StationsExcluded)
	fmt.Printf("Observations:       %d\n", result.Observations)
	fmt.Printf("Malformed records:  %d\n", result.MalformedRecords)
	fmt.Printf("Duration:           %v\n", result.Duration)

	if len(result.Errors) > 0 {
		fmt.Printf("\nSkipped stations (%d):\n", len(result.Errors))
		for i, errMsg := range result.Errors {
			if i >= 10 {
				fmt.Printf("  ... and %d more\n", len(result.Errors)-10)
				break
			}
			fmt.Printf("  - %s\n", errMsg)
		}
	}
	fmt.Println()
}
