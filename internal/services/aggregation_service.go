package services

import (
	"context"
	"sort"

	"climate-check/internal/models"
	"climate-check/pkg/logging"
	"climate-check/pkg/metrics"
)

// AggregationService combines station series into a nationwide series.
type AggregationService struct {
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewAggregationService creates a new aggregation service
func NewAggregationService(logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *AggregationService {
	return &AggregationService{
		logger:  logger,
		metrics: metricsCollector,
	}
}

// AggregateMonthly groups observations by (year, month) and computes the
// unweighted arithmetic mean across all stations reporting that month. A
// point is emitted only when at least one station contributes; the result is
// ordered by (year, month) ascending.
//
// Stations are not weighted by how long they have been in the network. This
// tolerates stations entering and leaving over the decades at the cost of
// some bias, which is the documented intent of the tool.
func (s *AggregationService) AggregateMonthly(ctx context.Context, series []models.StationSeries) []models.AggregatePoint {
	type monthKey struct {
		year  int
		month int
	}
	type accumulator struct {
		sum   float64
		count int
	}

	groups := make(map[monthKey]*accumulator)
	observations := 0
	for _, stationSeries := range series {
		for _, obs := range stationSeries.Observations {
			key := monthKey{obs.Year, obs.Month}
			acc, ok := groups[key]
			if !ok {
				acc = &accumulator{}
				groups[key] = acc
			}
			acc.sum += obs.ValueCelsius
			acc.count++
			observations++
		}
	}

	points := make([]models.AggregatePoint, 0, len(groups))
	for key, acc := range groups {
		points = append(points, models.AggregatePoint{
			Year:         key.year,
			Month:        key.month,
			MeanCelsius:  acc.sum / float64(acc.count),
			StationCount: acc.count,
		})
	}

	sort.Slice(points, func(i, j int) bool {
		if points[i].Year != points[j].Year {
			return points[i].Year < points[j].Year
		}
		return points[i].Month < points[j].Month
	})

	s.logger.Info(ctx, "[AGGREGATE_COMPLETE] Monthly aggregation completed", logging.Fields{
		"stations":     len(series),
		"observations": observations,
		"points":       len(points),
	})

	return points
}

// YearlyMeans reduces monthly aggregate points to one mean per year (the mean
// of that year's available monthly means), ordered by year ascending. This
// suppresses the seasonal cycle before the trend fit.
func (s *AggregationService) YearlyMeans(ctx context.Context, points []models.AggregatePoint) []models.YearlyPoint {
	type accumulator struct {
		sum   float64
		count int
	}

	groups := make(map[int]*accumulator)
	for _, p := range points {
		acc, ok := groups[p.Year]
		if !ok {
			acc = &accumulator{}
			groups[p.Year] = acc
		}
		acc.sum += p.MeanCelsius
		acc.count++
	}

	years := make([]models.YearlyPoint, 0, len(groups))
	for year, acc := range groups {
		years = append(years, models.YearlyPoint{
			Year:        year,
			MeanCelsius: acc.sum / float64(acc.count),
			MonthCount:  acc.count,
		})
	}

	sort.Slice(years, func(i, j int) bool {
		return years[i].Year < years[j].Year
	})

	return years
}
