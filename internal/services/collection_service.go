package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"climate-check/internal/models"
	"climate-check/internal/repository"
	"climate-check/pkg/logging"
	"climate-check/pkg/metrics"
)

// StationSource provides the station catalog and per-station series. The SMHI
// client implements it; tests substitute fakes.
type StationSource interface {
	GetStations(ctx context.Context, parameter int) ([]models.Station, error)
	GetMonthlySeries(ctx context.Context, parameter int, stationID string) ([]models.RawMonthlyRecord, error)
}

// CollectionConfig holds the tunables for a collection run.
type CollectionConfig struct {
	Parameter      int
	Concurrency    int
	RetryOnTimeout bool
}

// CollectionService runs the catalog → fetch → normalize stages. Fetches run
// concurrently across a bounded worker pool; each worker writes into its own
// result slot, so there is no shared mutable state between workers.
// Aggregation never starts before all fetches have resolved.
type CollectionService struct {
	source     StationSource
	repo       repository.CacheRepository // nil when caching is disabled
	normalizer *Normalizer
	config     CollectionConfig
	logger     *logging.StructuredLogger
	metrics    *metrics.Collector
}

// CollectionResult contains collection run statistics
type CollectionResult struct {
	StationsListed   int
	StationsFetched  int
	StationsSkipped  int
	StationsEmpty    int
	StationsExcluded int
	RawRecords       int
	MalformedRecords int
	Observations     int
	Duration         time.Duration
	Errors           []string
}

// NewCollectionService creates a new collection service
func NewCollectionService(
	source StationSource,
	repo repository.CacheRepository,
	normalizer *Normalizer,
	config CollectionConfig,
	logger *logging.StructuredLogger,
	metricsCollector *metrics.Collector,
) *CollectionService {
	if config.Concurrency < 1 {
		config.Concurrency = 1
	}
	return &CollectionService{
		source:     source,
		repo:       repo,
		normalizer: normalizer,
		config:     config,
		logger:     logger,
		metrics:    metricsCollector,
	}
}

// stationSlot is one worker's private result for one station.
type stationSlot struct {
	parsed []models.Observation
	series *models.StationSeries
	stats  NormalizeStats
	err    error
}

// Collect loads the catalog and fetches every station's series concurrently.
// A catalog failure is fatal and returned as is; per-station failures are
// absorbed into the result counts. When a cache repository is configured the
// collected dataset replaces the cache contents.
func (s *CollectionService) Collect(ctx context.Context) ([]models.Station, []models.StationSeries, *CollectionResult, error) {
	startTime := time.Now()
	timer := s.metrics.NewTimer(s.metrics.CollectionDuration)
	defer timer.ObserveDuration()

	s.logger.Info(ctx, "[COLLECT_START] Starting data collection", logging.Fields{
		"parameter":   s.config.Parameter,
		"concurrency": s.config.Concurrency,
	})

	stations, err := s.source.GetStations(ctx, s.config.Parameter)
	if err != nil {
		return nil, nil, nil, err
	}

	result := &CollectionResult{
		StationsListed: len(stations),
		Errors:         make([]string, 0),
	}

	s.logger.Info(ctx, "[COLLECT_CATALOG] Station catalog loaded", logging.Fields{
		"stations": len(stations),
	})

	slots := make([]stationSlot, len(stations))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < s.config.Concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				s.collectStation(ctx, stations[i], &slots[i])
			}
		}()
	}

	for i := range stations {
		select {
		case jobs <- i:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, nil, nil, err
	}

	var series []models.StationSeries
	var allParsed []models.Observation
	for i := range slots {
		slot := &slots[i]
		result.RawRecords += slot.stats.RawRecords
		result.MalformedRecords += slot.stats.Malformed

		switch {
		case slot.err != nil:
			result.StationsSkipped++
			result.Errors = append(result.Errors, slot.err.Error())
		case slot.stats.Excluded:
			result.StationsExcluded++
		case slot.series == nil || len(slot.series.Observations) == 0:
			result.StationsEmpty++
		default:
			result.StationsFetched++
			result.Observations += len(slot.series.Observations)
			series = append(series, *slot.series)
		}

		if slot.err == nil {
			allParsed = append(allParsed, slot.parsed...)
		}
	}

	if s.repo != nil {
		if err := s.repo.ReplaceDataset(ctx, stations, allParsed); err != nil {
			// A broken cache degrades future runs but not this one.
			s.logger.Error(ctx, "[COLLECT_CACHE_ERROR] Failed to update cache", logging.Fields{
				"stations": len(stations),
			}, err)
		}
	}

	result.Duration = time.Since(startTime)

	s.logger.Info(ctx, "[COLLECT_COMPLETE] Data collection completed", logging.Fields{
		"stations_listed":   result.StationsListed,
		"stations_fetched":  result.StationsFetched,
		"stations_skipped":  result.StationsSkipped,
		"stations_empty":    result.StationsEmpty,
		"stations_excluded": result.StationsExcluded,
		"raw_records":       result.RawRecords,
		"malformed_records": result.MalformedRecords,
		"observations":      result.Observations,
		"duration_seconds":  result.Duration.Seconds(),
	})

	return stations, series, result, nil
}

// LoadFromCache reassembles the dataset from the cache repository, re-applying
// the normalization policy against the current reference date.
func (s *CollectionService) LoadFromCache(ctx context.Context) ([]models.Station, []models.StationSeries, *CollectionResult, error) {
	if s.repo == nil {
		return nil, nil, nil, fmt.Errorf("no cache repository configured")
	}

	startTime := time.Now()

	stations, err := s.repo.ListStations(ctx)
	if err != nil {
		return nil, nil, nil, err
	}

	observations, err := s.repo.LoadObservations(ctx)
	if err != nil {
		return nil, nil, nil, err
	}

	// LoadObservations orders by station, so one pass splits the stream.
	byStation := make(map[string][]models.Observation, len(stations))
	for _, obs := range observations {
		byStation[obs.StationID] = append(byStation[obs.StationID], obs)
	}

	result := &CollectionResult{
		StationsListed: len(stations),
		Errors:         make([]string, 0),
	}

	var series []models.StationSeries
	for _, station := range stations {
		parsed, ok := byStation[station.ID]
		if !ok {
			result.StationsEmpty++
			continue
		}

		stationSeries, stats := s.normalizer.NormalizeObservations(ctx, station.ID, parsed)
		switch {
		case stats.Excluded:
			result.StationsExcluded++
		case stationSeries == nil || len(stationSeries.Observations) == 0:
			result.StationsEmpty++
		default:
			result.StationsFetched++
			result.Observations += len(stationSeries.Observations)
			series = append(series, *stationSeries)
		}
	}

	result.Duration = time.Since(startTime)

	s.logger.Info(ctx, "[COLLECT_CACHE] Dataset loaded from cache", logging.Fields{
		"stations_listed":   result.StationsListed,
		"stations_fetched":  result.StationsFetched,
		"stations_excluded": result.StationsExcluded,
		"observations":      result.Observations,
		"duration_seconds":  result.Duration.Seconds(),
	})

	return stations, series, result, nil
}

// CachedStationCount reports how many stations the cache currently holds.
// Returns zero when caching is disabled.
func (s *CollectionService) CachedStationCount(ctx context.Context) (int, error) {
	if s.repo == nil {
		return 0, nil
	}
	return s.repo.StationCount(ctx)
}

// collectStation fetches and normalizes one station into its private slot.
func (s *CollectionService) collectStation(ctx context.Context, station models.Station, slot *stationSlot) {
	fetchTimer := s.metrics.NewTimer(s.metrics.FetchDuration)
	s.metrics.FetchesTotal.Inc()

	records, err := s.fetchWithRetry(ctx, station.ID)
	fetchTimer.ObserveDuration()

	if err != nil {
		slot.err = err
		s.metrics.RecordFetchError("fetch_failed")
		s.logger.Warn(ctx, "[COLLECT_SKIP] Skipping station after fetch failure", logging.Fields{
			"station_id":   station.ID,
			"station_name": station.Name,
			"error":        err.Error(),
		})
		return
	}

	parsed, malformed := s.normalizer.ParseRecords(ctx, station.ID, records)
	series, stats := s.normalizer.NormalizeObservations(ctx, station.ID, parsed)
	stats.RawRecords = len(records)
	stats.Malformed = malformed

	slot.parsed = parsed
	slot.series = series
	slot.stats = stats
}

// fetchWithRetry performs one fetch with a single immediate retry on timeout.
func (s *CollectionService) fetchWithRetry(ctx context.Context, stationID string) ([]models.RawMonthlyRecord, error) {
	records, err := s.source.GetMonthlySeries(ctx, s.config.Parameter, stationID)
	if err != nil && s.config.RetryOnTimeout && isTimeout(err) && ctx.Err() == nil {
		s.metrics.FetchRetriesTotal.Inc()
		s.logger.Debug(ctx, "[COLLECT_RETRY] Retrying station fetch after timeout", logging.Fields{
			"station_id": stationID,
		})
		records, err = s.source.GetMonthlySeries(ctx, s.config.Parameter, stationID)
	}
	return records, err
}

// isTimeout reports whether err is a request timeout.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
