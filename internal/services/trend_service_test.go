package services

import (
	"context"
	"errors"
	"math"
	"testing"

	"climate-check/internal/models"
)

func TestEstimateTrend_SyntheticLinearSeries(t *testing.T) {
	logger, collector := newTestDeps(t)
	s := NewTrendService(10, logger, collector)

	// Exact line: mean = 10 + 0.05 * (year - 1900) for 1900..2000.
	years := make([]models.YearlyPoint, 0, 101)
	for year := 1900; year <= 2000; year++ {
		years = append(years, models.YearlyPoint{
			Year:        year,
			MeanCelsius: 10 + 0.05*float64(year-1900),
			MonthCount:  12,
		})
	}

	trend, err := s.EstimateTrend(context.Background(), years)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if math.Abs(trend.DegreesPerYear-0.05) > 1e-6 {
		t.Errorf("expected slope 0.05, got %v", trend.DegreesPerYear)
	}
	if math.Abs(trend.TotalDegreesChange-5.0) > 1e-6 {
		t.Errorf("expected total change 5.0, got %v", trend.TotalDegreesChange)
	}
	if trend.BaselineYear != 1900 || trend.EndYear != 2000 {
		t.Errorf("expected span 1900..2000, got %d..%d", trend.BaselineYear, trend.EndYear)
	}
	if trend.YearsUsed != 101 {
		t.Errorf("expected 101 years used, got %d", trend.YearsUsed)
	}
}

func TestEstimateTrend_InsufficientYears(t *testing.T) {
	logger, collector := newTestDeps(t)
	s := NewTrendService(10, logger, collector)

	years := make([]models.YearlyPoint, 0, 9)
	for year := 2010; year < 2019; year++ {
		years = append(years, models.YearlyPoint{Year: year, MeanCelsius: 5.0, MonthCount: 12})
	}

	_, err := s.EstimateTrend(context.Background(), years)
	if err == nil {
		t.Fatal("expected an error for 9 years")
	}

	var insufficient *models.InsufficientDataError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientDataError, got %T: %v", err, err)
	}
	if insufficient.DistinctYears != 9 || insufficient.MinYears != 10 {
		t.Errorf("unexpected error detail: %+v", insufficient)
	}
	if insufficient.IsTransient() {
		t.Error("insufficient data must not be transient")
	}
}

func TestEstimateTrend_FlatSeries(t *testing.T) {
	logger, collector := newTestDeps(t)
	s := NewTrendService(10, logger, collector)

	years := make([]models.YearlyPoint, 0, 20)
	for year := 1990; year < 2010; year++ {
		years = append(years, models.YearlyPoint{Year: year, MeanCelsius: 7.5, MonthCount: 12})
	}

	trend, err := s.EstimateTrend(context.Background(), years)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(trend.DegreesPerYear) > 1e-9 {
		t.Errorf("expected zero slope for a flat series, got %v", trend.DegreesPerYear)
	}
	if math.Abs(trend.TotalDegreesChange) > 1e-9 {
		t.Errorf("expected zero total change, got %v", trend.TotalDegreesChange)
	}
}

// Station A reports a constant 10.0 for 1900-2000; station B joins in 1950
// rising linearly from 10.0 to 11.0. The combined slope must be positive but
// diluted below B's standalone 0.02 degrees/year.
func TestEstimateTrend_ConstantStationDilutesRisingStation(t *testing.T) {
	logger, collector := newTestDeps(t)
	aggregation := NewAggregationService(logger, collector)
	s := NewTrendService(10, logger, collector)

	constant := models.StationSeries{StationID: "A"}
	rising := models.StationSeries{StationID: "B"}
	for year := 1900; year <= 2000; year++ {
		constant.Observations = append(constant.Observations, obs("A", year, 6, 10.0, models.QualityVerified))
		if year >= 1950 {
			value := 10.0 + float64(year-1950)/50.0
			rising.Observations = append(rising.Observations, obs("B", year, 6, value, models.QualityVerified))
		}
	}

	ctx := context.Background()
	monthly := aggregation.AggregateMonthly(ctx, []models.StationSeries{constant, rising})
	yearly := aggregation.YearlyMeans(ctx, monthly)

	trend, err := s.EstimateTrend(ctx, yearly)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if trend.DegreesPerYear <= 0 {
		t.Errorf("expected a positive slope, got %v", trend.DegreesPerYear)
	}
	if trend.DegreesPerYear >= 0.02 {
		t.Errorf("expected dilution below B's standalone slope 0.02, got %v", trend.DegreesPerYear)
	}
}

// A cold station joining late should drag the unweighted yearly means down
// and show up as a negative trend, which is the accepted bias of not
// weighting stations by tenure.
func TestEstimateTrend_LateColdStationDilutesWarming(t *testing.T) {
	logger, collector := newTestDeps(t)
	aggregation := NewAggregationService(logger, collector)
	s := NewTrendService(10, logger, collector)

	warm := models.StationSeries{StationID: "south"}
	cold := models.StationSeries{StationID: "north"}
	for year := 1990; year <= 2019; year++ {
		warm.Observations = append(warm.Observations, obs("south", year, 6, 10.0, models.QualityVerified))
		if year >= 2005 {
			cold.Observations = append(cold.Observations, obs("north", year, 6, -10.0, models.QualityVerified))
		}
	}

	ctx := context.Background()
	monthly := aggregation.AggregateMonthly(ctx, []models.StationSeries{warm, cold})
	yearly := aggregation.YearlyMeans(ctx, monthly)

	trend, err := s.EstimateTrend(ctx, yearly)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if trend.DegreesPerYear >= 0 {
		t.Errorf("expected a negative slope from the late cold station, got %v", trend.DegreesPerYear)
	}
}
