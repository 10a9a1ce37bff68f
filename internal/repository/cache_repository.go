package repository

import (
	"context"
	"fmt"
	"time"

	"climate-check/internal/models"
	"climate-check/pkg/database"
	"climate-check/pkg/logging"
	"climate-check/pkg/metrics"
)

// CacheRepository provides access to the on-disk observation cache. The cache
// is a read-only shortcut for the network: a populated cache substitutes for
// the catalog and series endpoints entirely, and a refresh replaces it
// wholesale. Observations are stored as parsed (pre-policy), so quality rules
// are re-applied on every load.
type CacheRepository interface {
	EnsureSchema(ctx context.Context) error
	ReplaceDataset(ctx context.Context, stations []models.Station, observations []models.Observation) error
	ListStations(ctx context.Context) ([]models.Station, error)
	LoadObservations(ctx context.Context) ([]models.Observation, error)
	StationCount(ctx context.Context) (int, error)
	HealthCheck(ctx context.Context) error
}

// observationBatchSize bounds the number of rows per insert transaction chunk.
const observationBatchSize = 1000

// cacheRepository implements CacheRepository
type cacheRepository struct {
	db      *database.DB
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewCacheRepository creates a new cache repository
func NewCacheRepository(db *database.DB, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) CacheRepository {
	return &cacheRepository{
		db:      db,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// EnsureSchema creates the cache tables if they do not exist. The DDL is kept
// to the dialect subset shared by sqlite3 and postgres.
func (r *cacheRepository) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS stations (
			station_id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			first_year INTEGER NOT NULL,
			last_year INTEGER
		)`,
		`CREATE TABLE IF NOT EXISTS observations (
			station_id TEXT NOT NULL,
			year INTEGER NOT NULL,
			month INTEGER NOT NULL,
			value_celsius DOUBLE PRECISION NOT NULL,
			quality TEXT NOT NULL,
			PRIMARY KEY (station_id, year, month)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_observations_period ON observations (year, month)`,
	}

	for _, stmt := range statements {
		if _, err := r.db.ExecContext(ctx, "ensure_schema", stmt); err != nil {
			return fmt.Errorf("failed to ensure cache schema: %w", err)
		}
	}
	return nil
}

// ReplaceDataset atomically swaps the cache contents for a freshly collected
// dataset. Replacement only happens after a successful catalog load, so a
// failed refresh never leaves the cache empty.
func (r *cacheRepository) ReplaceDataset(ctx context.Context, stations []models.Station, observations []models.Observation) error {
	timer := time.Now()

	tx, err := r.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"observations", "stations"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	stationStmt, err := tx.PrepareContext(ctx, r.db.Rebind(`
		INSERT INTO stations (station_id, name, first_year, last_year)
		VALUES (?, ?, ?, ?)
	`))
	if err != nil {
		return fmt.Errorf("failed to prepare station insert: %w", err)
	}
	defer stationStmt.Close()

	for _, station := range stations {
		if _, err := stationStmt.ExecContext(ctx,
			station.ID, station.Name, station.FirstYear, station.LastYear,
		); err != nil {
			return fmt.Errorf("failed to insert station %s: %w", station.ID, err)
		}
	}

	obsStmt, err := tx.PrepareContext(ctx, r.db.Rebind(`
		INSERT INTO observations (station_id, year, month, value_celsius, quality)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (station_id, year, month) DO UPDATE SET
			value_celsius = EXCLUDED.value_celsius,
			quality = EXCLUDED.quality
	`))
	if err != nil {
		return fmt.Errorf("failed to prepare observation insert: %w", err)
	}
	defer obsStmt.Close()

	for start := 0; start < len(observations); start += observationBatchSize {
		end := start + observationBatchSize
		if end > len(observations) {
			end = len(observations)
		}
		for _, obs := range observations[start:end] {
			if _, err := obsStmt.ExecContext(ctx,
				obs.StationID, obs.Year, obs.Month, obs.ValueCelsius, string(obs.Quality),
			); err != nil {
				return fmt.Errorf("failed to insert observation %s %d-%d: %w",
					obs.StationID, obs.Year, obs.Month, err)
			}
		}
		r.metrics.CacheBatchSize.Observe(float64(end - start))
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.logger.Info(ctx, "[CACHE_REPLACE] Cache dataset replaced", logging.Fields{
		"stations":     len(stations),
		"observations": len(observations),
		"duration_ms":  time.Since(timer).Milliseconds(),
	})

	return nil
}

// ListStations retrieves all cached stations ordered by id
func (r *cacheRepository) ListStations(ctx context.Context) ([]models.Station, error) {
	query := `
		SELECT station_id, name, first_year, last_year
		FROM stations
		ORDER BY station_id
	`

	var stations []models.Station
	if err := r.db.SelectContext(ctx, "list_stations", &stations, query); err != nil {
		return nil, fmt.Errorf("failed to list stations: %w", err)
	}
	return stations, nil
}

// LoadObservations retrieves all cached observations in chronological order
// per station.
func (r *cacheRepository) LoadObservations(ctx context.Context) ([]models.Observation, error) {
	query := `
		SELECT station_id, year, month, value_celsius, quality
		FROM observations
		ORDER BY station_id, year, month
	`

	var observations []models.Observation
	if err := r.db.SelectContext(ctx, "load_observations", &observations, query); err != nil {
		return nil, fmt.Errorf("failed to load observations: %w", err)
	}
	return observations, nil
}

// StationCount returns the number of cached stations
func (r *cacheRepository) StationCount(ctx context.Context) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, "station_count", &count, "SELECT COUNT(*) FROM stations"); err != nil {
		return 0, fmt.Errorf("failed to count stations: %w", err)
	}
	return count, nil
}

// HealthCheck performs a repository health check
func (r *cacheRepository) HealthCheck(ctx context.Context) error {
	return r.db.HealthCheck(ctx)
}
