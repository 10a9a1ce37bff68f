package services

import (
	"context"
	"sort"
	"time"

	"climate-check/internal/models"
	"climate-check/pkg/logging"
	"climate-check/pkg/metrics"
)

// Normalizer turns raw per-station payloads into clean StationSeries.
// Parsing and policy are separate steps: ParseRecords converts raw records
// into typed observations (dropping malformed ones), and
// NormalizeObservations applies the quality rules. The cache stores parsed
// observations, so a cache-backed run re-applies the policy against the
// current reference date instead of trusting decisions made months ago.
//
// The reference date is injected rather than read from the process clock so
// the stage is deterministic and testable.
type Normalizer struct {
	cutoff          time.Time // first of the earliest excluded month
	minObservations int
	logger          *logging.StructuredLogger
	metrics         *metrics.Collector
}

// NormalizeStats counts what happened to one station's records.
type NormalizeStats struct {
	RawRecords      int
	Malformed       int
	Unverified      int
	TrailingDropped int
	Duplicates      int
	Kept            int
	Excluded        bool
}

// NewNormalizer creates a normalizer. trailingMonths calendar months ending
// with the reference date's month are excluded regardless of quality flags,
// because the provider's finalization lag is systemic, not per-record.
func NewNormalizer(referenceDate time.Time, trailingMonths, minObservations int, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *Normalizer {
	firstOfMonth := time.Date(referenceDate.Year(), referenceDate.Month(), 1, 0, 0, 0, 0, time.UTC)

	return &Normalizer{
		cutoff:          firstOfMonth.AddDate(0, 1-trailingMonths, 0),
		minObservations: minObservations,
		logger:          logger,
		metrics:         metricsCollector,
	}
}

// ParseRecords converts raw records into typed observations, dropping
// malformed records and counting them. No policy is applied here.
func (n *Normalizer) ParseRecords(ctx context.Context, stationID string, records []models.RawMonthlyRecord) ([]models.Observation, int) {
	observations := make([]models.Observation, 0, len(records))
	malformed := 0

	for i := range records {
		obs, err := records[i].ToObservation(stationID)
		if err != nil {
			malformed++
			n.logger.Debug(ctx, "[NORMALIZE_DROP] Dropping malformed record", logging.Fields{
				"station_id": stationID,
				"error":      err.Error(),
			})
			continue
		}
		observations = append(observations, *obs)
	}

	n.metrics.RecordsParsedTotal.Add(float64(len(records)))
	n.metrics.MalformedRecordsTotal.Add(float64(malformed))

	return observations, malformed
}

// NormalizeObservations applies the quality policy to one station's parsed
// observations: unverified values and the trailing exclusion window are
// dropped, duplicate (year, month) pairs are resolved latest-received wins,
// and the result is ordered chronologically. Returns a nil series when fewer
// than the minimum number of observations survive.
func (n *Normalizer) NormalizeObservations(ctx context.Context, stationID string, observations []models.Observation) (*models.StationSeries, NormalizeStats) {
	stats := NormalizeStats{}

	type monthKey struct {
		year  int
		month int
	}
	latest := make(map[monthKey]models.Observation)

	for _, obs := range observations {
		if obs.Quality != models.QualityVerified {
			stats.Unverified++
			continue
		}

		if !n.beforeCutoff(obs.Year, obs.Month) {
			stats.TrailingDropped++
			continue
		}

		key := monthKey{obs.Year, obs.Month}
		if _, exists := latest[key]; exists {
			stats.Duplicates++
		}
		// Latest-received wins on conflicting (year, month) pairs.
		latest[key] = obs
	}

	n.metrics.RecordDroppedObservation("unverified", stats.Unverified)
	n.metrics.RecordDroppedObservation("trailing", stats.TrailingDropped)
	n.metrics.RecordDroppedObservation("duplicate", stats.Duplicates)

	if len(latest) < n.minObservations {
		stats.Excluded = true
		n.metrics.StationsExcludedTotal.Inc()
		n.logger.Debug(ctx, "[NORMALIZE_EXCLUDE] Station series too short", logging.Fields{
			"station_id":   stationID,
			"observations": len(latest),
			"minimum":      n.minObservations,
		})
		return nil, stats
	}

	series := &models.StationSeries{
		StationID:    stationID,
		Observations: make([]models.Observation, 0, len(latest)),
	}
	for _, obs := range latest {
		series.Observations = append(series.Observations, obs)
	}
	sort.Slice(series.Observations, func(i, j int) bool {
		a, b := series.Observations[i], series.Observations[j]
		if a.Year != b.Year {
			return a.Year < b.Year
		}
		return a.Month < b.Month
	})

	stats.Kept = len(series.Observations)
	return series, stats
}

// Normalize runs parse and policy in one step for a freshly fetched payload.
func (n *Normalizer) Normalize(ctx context.Context, stationID string, records []models.RawMonthlyRecord) (*models.StationSeries, NormalizeStats) {
	observations, malformed := n.ParseRecords(ctx, stationID, records)
	series, stats := n.NormalizeObservations(ctx, stationID, observations)
	stats.RawRecords = len(records)
	stats.Malformed = malformed
	return series, stats
}

// beforeCutoff reports whether (year, month) falls before the trailing
// exclusion window.
func (n *Normalizer) beforeCutoff(year, month int) bool {
	return time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC).Before(n.cutoff)
}
