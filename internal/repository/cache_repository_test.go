package repository

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"climate-check/internal/models"
	"climate-check/pkg/database"
	"climate-check/pkg/logging"
	"climate-check/pkg/metrics"
)

func newTestRepository(t *testing.T) CacheRepository {
	t.Helper()

	logger := logging.NewStructuredLogger("test", "test", logging.ErrorLevel)
	collector := metrics.NewCollectorWith("test", prometheus.NewRegistry())

	db, err := database.Open(&database.Config{
		Driver:       "sqlite3",
		DSN:          ":memory:",
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	}, logger, collector)
	if err != nil {
		t.Fatalf("failed to open in-memory database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	repo := NewCacheRepository(db, logger, collector)
	if err := repo.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("failed to ensure schema: %v", err)
	}
	return repo
}

func testDataset() ([]models.Station, []models.Observation) {
	lastYear := 2012
	stations := []models.Station{
		{ID: "159880", Name: "Abisko Aut", FirstYear: 1913},
		{ID: "98210", Name: "Stockholm-Observatoriekullen", FirstYear: 1756, LastYear: &lastYear},
	}
	observations := []models.Observation{
		{StationID: "159880", Year: 1913, Month: 1, ValueCelsius: -12.4, Quality: models.QualityVerified},
		{StationID: "159880", Year: 1913, Month: 2, ValueCelsius: -10.1, Quality: models.QualityVerified},
		{StationID: "98210", Year: 2011, Month: 12, ValueCelsius: 1.2, Quality: models.QualityUnverified},
	}
	return stations, observations
}

func TestReplaceDatasetRoundTrip(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	stations, observations := testDataset()
	if err := repo.ReplaceDataset(ctx, stations, observations); err != nil {
		t.Fatalf("failed to replace dataset: %v", err)
	}

	gotStations, err := repo.ListStations(ctx)
	if err != nil {
		t.Fatalf("failed to list stations: %v", err)
	}
	if len(gotStations) != 2 {
		t.Fatalf("expected 2 stations, got %d", len(gotStations))
	}
	// ListStations orders by id, so "159880" sorts before "98210".
	if gotStations[0].ID != "159880" || gotStations[0].Name != "Abisko Aut" {
		t.Errorf("unexpected first station: %+v", gotStations[0])
	}
	if gotStations[1].LastYear == nil || *gotStations[1].LastYear != 2012 {
		t.Errorf("expected LastYear 2012 for inactive station, got %+v", gotStations[1].LastYear)
	}
	if gotStations[0].LastYear != nil {
		t.Errorf("expected nil LastYear for active station, got %v", *gotStations[0].LastYear)
	}

	gotObservations, err := repo.LoadObservations(ctx)
	if err != nil {
		t.Fatalf("failed to load observations: %v", err)
	}
	if len(gotObservations) != 3 {
		t.Fatalf("expected 3 observations, got %d", len(gotObservations))
	}
	first := gotObservations[0]
	if first.StationID != "159880" || first.Year != 1913 || first.Month != 1 {
		t.Errorf("unexpected first observation: %+v", first)
	}
	if first.ValueCelsius != -12.4 || first.Quality != models.QualityVerified {
		t.Errorf("observation values did not round-trip: %+v", first)
	}
	last := gotObservations[2]
	if last.Quality != models.QualityUnverified {
		t.Errorf("expected unverified quality to round-trip, got %q", last.Quality)
	}
}

func TestReplaceDatasetOverwritesPrevious(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	stations, observations := testDataset()
	if err := repo.ReplaceDataset(ctx, stations, observations); err != nil {
		t.Fatalf("failed to seed dataset: %v", err)
	}

	replacement := []models.Station{{ID: "52350", Name: "Falsterbo", FirstYear: 1961}}
	replacementObs := []models.Observation{
		{StationID: "52350", Year: 1961, Month: 7, ValueCelsius: 17.2, Quality: models.QualityVerified},
	}
	if err := repo.ReplaceDataset(ctx, replacement, replacementObs); err != nil {
		t.Fatalf("failed to replace dataset: %v", err)
	}

	count, err := repo.StationCount(ctx)
	if err != nil {
		t.Fatalf("failed to count stations: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 station after replacement, got %d", count)
	}

	gotObservations, err := repo.LoadObservations(ctx)
	if err != nil {
		t.Fatalf("failed to load observations: %v", err)
	}
	if len(gotObservations) != 1 || gotObservations[0].StationID != "52350" {
		t.Errorf("expected only the replacement observations, got %+v", gotObservations)
	}
}

func TestStationCountEmpty(t *testing.T) {
	repo := newTestRepository(t)

	count, err := repo.StationCount(context.Background())
	if err != nil {
		t.Fatalf("failed to count stations: %v", err)
	}
	if count != 0 {
		t.Errorf("expected empty cache, got %d stations", count)
	}
}

func TestHealthCheck(t *testing.T) {
	repo := newTestRepository(t)
	if err := repo.HealthCheck(context.Background()); err != nil {
		t.Errorf("expected healthy repository: %v", err)
	}
}
