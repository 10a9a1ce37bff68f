package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"climate-check/internal/models"
)

// fakeSource serves canned catalogs and series, with optional per-station
// failures. Safe for concurrent use by the fetch pool.
type fakeSource struct {
	mu         sync.Mutex
	stations   []models.Station
	catalogErr error
	series     map[string][]models.RawMonthlyRecord
	failures   map[string][]error // errors returned before success, consumed in order
	calls      map[string]int
}

func (f *fakeSource) GetStations(ctx context.Context, parameter int) ([]models.Station, error) {
	if f.catalogErr != nil {
		return nil, f.catalogErr
	}
	return f.stations, nil
}

func (f *fakeSource) GetMonthlySeries(ctx context.Context, parameter int, stationID string) ([]models.RawMonthlyRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[stationID]++

	if pending := f.failures[stationID]; len(pending) > 0 {
		err := pending[0]
		f.failures[stationID] = pending[1:]
		return nil, err
	}
	return f.series[stationID], nil
}

// timeoutError satisfies net.Error with Timeout() == true.
type timeoutError struct{}

func (timeoutError) Error() string   { return "request timed out" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func verifiedYear(stationID string, year int) []models.RawMonthlyRecord {
	records := make([]models.RawMonthlyRecord, 0, 12)
	for month := 1; month <= 12; month++ {
		records = append(records, models.RawMonthlyRecord{
			Period:  fmt.Sprintf("%04d-%02d", year, month),
			Value:   "5.0",
			Quality: "G",
		})
	}
	return records
}

func newTestCollection(t *testing.T, source StationSource) *CollectionService {
	t.Helper()
	logger, collector := newTestDeps(t)
	normalizer := NewNormalizer(time.Date(2026, time.August, 25, 0, 0, 0, 0, time.UTC), 4, 12, logger, collector)
	return NewCollectionService(source, nil, normalizer, CollectionConfig{
		Parameter:      22,
		Concurrency:    4,
		RetryOnTimeout: true,
	}, logger, collector)
}

func TestCollect_HappyPath(t *testing.T) {
	source := &fakeSource{
		stations: []models.Station{
			{ID: "1", Name: "Abisko", FirstYear: 1913},
			{ID: "2", Name: "Falsterbo", FirstYear: 1961},
		},
		series: map[string][]models.RawMonthlyRecord{
			"1": verifiedYear("1", 2000),
			"2": verifiedYear("2", 2000),
		},
	}

	service := newTestCollection(t, source)
	stations, series, result, err := service.Collect(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(stations) != 2 {
		t.Errorf("expected 2 stations, got %d", len(stations))
	}
	if len(series) != 2 {
		t.Errorf("expected 2 series, got %d", len(series))
	}
	if result.StationsFetched != 2 || result.StationsSkipped != 0 {
		t.Errorf("unexpected result counts: %+v", result)
	}
	if result.Observations != 24 {
		t.Errorf("expected 24 observations, got %d", result.Observations)
	}
}

func TestCollect_CatalogFailureIsFatal(t *testing.T) {
	source := &fakeSource{
		catalogErr: &models.CatalogError{URL: "http://example.test", Err: errors.New("boom")},
	}

	service := newTestCollection(t, source)
	_, _, _, err := service.Collect(context.Background())
	if err == nil {
		t.Fatal("expected a catalog error")
	}

	var catalogErr *models.CatalogError
	if !errors.As(err, &catalogErr) {
		t.Fatalf("expected CatalogError, got %T: %v", err, err)
	}
}

func TestCollect_SkipsFailedStation(t *testing.T) {
	source := &fakeSource{
		stations: []models.Station{
			{ID: "1", Name: "Abisko", FirstYear: 1913},
			{ID: "2", Name: "Falsterbo", FirstYear: 1961},
			{ID: "3", Name: "Gotska Sandön", FirstYear: 1880},
		},
		series: map[string][]models.RawMonthlyRecord{
			"1": verifiedYear("1", 2000),
			"3": verifiedYear("3", 2000),
		},
		failures: map[string][]error{
			"2": {
				&models.StationFetchError{StationID: "2", Err: errors.New("connection refused")},
			},
		},
	}

	service := newTestCollection(t, source)
	_, series, result, err := service.Collect(context.Background())
	if err != nil {
		t.Fatalf("one bad station must not fail the run: %v", err)
	}

	if len(series) != 2 {
		t.Errorf("expected 2 series, got %d", len(series))
	}
	if result.StationsSkipped != 1 {
		t.Errorf("expected 1 skipped station, got %d", result.StationsSkipped)
	}
	if len(result.Errors) != 1 {
		t.Errorf("expected 1 recorded error, got %d", len(result.Errors))
	}
}

func TestCollect_RetriesOnTimeout(t *testing.T) {
	source := &fakeSource{
		stations: []models.Station{
			{ID: "1", Name: "Abisko", FirstYear: 1913},
		},
		series: map[string][]models.RawMonthlyRecord{
			"1": verifiedYear("1", 2000),
		},
		failures: map[string][]error{
			"1": {timeoutError{}},
		},
	}

	service := newTestCollection(t, source)
	_, series, result, err := service.Collect(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if source.calls["1"] != 2 {
		t.Errorf("expected 2 fetch attempts, got %d", source.calls["1"])
	}
	if len(series) != 1 || result.StationsFetched != 1 {
		t.Errorf("expected the retried station to succeed: %+v", result)
	}
}

func TestCollect_NoSecondRetry(t *testing.T) {
	source := &fakeSource{
		stations: []models.Station{
			{ID: "1", Name: "Abisko", FirstYear: 1913},
		},
		failures: map[string][]error{
			"1": {timeoutError{}, timeoutError{}},
		},
	}

	service := newTestCollection(t, source)
	_, _, result, err := service.Collect(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if source.calls["1"] != 2 {
		t.Errorf("expected exactly 2 attempts, got %d", source.calls["1"])
	}
	if result.StationsSkipped != 1 {
		t.Errorf("expected the station to be skipped after the retry, got %+v", result)
	}
}

func TestCollect_ExcludesShortSeries(t *testing.T) {
	short := verifiedYear("2", 2000)[:6]

	source := &fakeSource{
		stations: []models.Station{
			{ID: "1", Name: "Abisko", FirstYear: 1913},
			{ID: "2", Name: "Falsterbo", FirstYear: 1961},
		},
		series: map[string][]models.RawMonthlyRecord{
			"1": verifiedYear("1", 2000),
			"2": short,
		},
	}

	service := newTestCollection(t, source)
	_, series, result, err := service.Collect(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(series) != 1 {
		t.Errorf("expected 1 series, got %d", len(series))
	}
	if result.StationsExcluded != 1 {
		t.Errorf("expected 1 excluded station, got %d", result.StationsExcluded)
	}
}

func TestLoadFromCache_NoRepository(t *testing.T) {
	service := newTestCollection(t, &fakeSource{})
	if _, _, _, err := service.LoadFromCache(context.Background()); err == nil {
		t.Fatal("expected an error without a cache repository")
	}
}
