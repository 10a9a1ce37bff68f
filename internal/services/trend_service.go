package services

import (
	"context"

	"climate-check/internal/models"
	"climate-check/pkg/logging"
	"climate-check/pkg/metrics"
)

// TrendService fits a linear trend to the yearly aggregate series.
type TrendService struct {
	minYears int
	logger   *logging.StructuredLogger
	metrics  *metrics.Collector
}

// NewTrendService creates a new trend service
func NewTrendService(minYears int, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *TrendService {
	return &TrendService{
		minYears: minYears,
		logger:   logger,
		metrics:  metricsCollector,
	}
}

// EstimateTrend fits an ordinary least-squares line of yearly mean
// temperature against year and reports the implied total change over the
// observed span. No outlier rejection is performed: the headline number is
// the straight unweighted fit.
//
// Returns *models.InsufficientDataError when fewer than the configured
// minimum of distinct years have data.
func (s *TrendService) EstimateTrend(ctx context.Context, years []models.YearlyPoint) (*models.TrendResult, error) {
	timer := s.metrics.NewTimer(s.metrics.TrendFitDuration)
	defer timer.ObserveDuration()

	if len(years) < s.minYears {
		return nil, &models.InsufficientDataError{
			DistinctYears: len(years),
			MinYears:      s.minYears,
		}
	}

	// Closed-form univariate OLS over (year, mean) pairs.
	var sumX, sumY, sumXY, sumXX float64
	n := float64(len(years))
	firstYear := years[0].Year
	lastYear := years[0].Year
	for _, p := range years {
		x := float64(p.Year)
		y := p.MeanCelsius
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
		if p.Year < firstYear {
			firstYear = p.Year
		}
		if p.Year > lastYear {
			lastYear = p.Year
		}
	}

	denominator := n*sumXX - sumX*sumX
	if denominator == 0 {
		// All points share one year; no line to fit.
		return nil, &models.InsufficientDataError{
			DistinctYears: 1,
			MinYears:      s.minYears,
		}
	}

	slope := (n*sumXY - sumX*sumY) / denominator

	result := &models.TrendResult{
		BaselineYear:       firstYear,
		EndYear:            lastYear,
		YearsUsed:          len(years),
		DegreesPerYear:     slope,
		TotalDegreesChange: slope * float64(lastYear-firstYear),
	}

	s.logger.Info(ctx, "[TREND_COMPLETE] Trend estimated", logging.Fields{
		"baseline_year":        result.BaselineYear,
		"end_year":             result.EndYear,
		"years_used":           result.YearsUsed,
		"degrees_per_year":     result.DegreesPerYear,
		"total_degrees_change": result.TotalDegreesChange,
	})

	return result, nil
}
