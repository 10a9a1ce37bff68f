package services

import (
	"context"
	"math"
	"testing"

	"climate-check/internal/models"
)

func TestAggregateMonthly_UnweightedMean(t *testing.T) {
	logger, collector := newTestDeps(t)
	s := NewAggregationService(logger, collector)

	series := []models.StationSeries{
		{StationID: "1", Observations: []models.Observation{
			obs("1", 2000, 1, -4.0, models.QualityVerified),
			obs("1", 2000, 2, -2.0, models.QualityVerified),
		}},
		{StationID: "2", Observations: []models.Observation{
			obs("2", 2000, 1, -8.0, models.QualityVerified),
		}},
	}

	points := s.AggregateMonthly(context.Background(), series)
	if len(points) != 2 {
		t.Fatalf("expected 2 aggregate points, got %d", len(points))
	}

	jan := points[0]
	if jan.Year != 2000 || jan.Month != 1 {
		t.Fatalf("expected first point 2000-01, got %d-%02d", jan.Year, jan.Month)
	}
	if jan.MeanCelsius != -6.0 {
		t.Errorf("expected January mean -6.0, got %v", jan.MeanCelsius)
	}
	if jan.StationCount != 2 {
		t.Errorf("expected 2 stations for January, got %d", jan.StationCount)
	}

	feb := points[1]
	if feb.MeanCelsius != -2.0 || feb.StationCount != 1 {
		t.Errorf("expected February mean -2.0 from 1 station, got %v from %d", feb.MeanCelsius, feb.StationCount)
	}
}

func TestAggregateMonthly_NoFabricatedPoints(t *testing.T) {
	logger, collector := newTestDeps(t)
	s := NewAggregationService(logger, collector)

	series := []models.StationSeries{
		{StationID: "1", Observations: []models.Observation{
			obs("1", 2000, 1, 1.0, models.QualityVerified),
			obs("1", 2000, 6, 14.0, models.QualityVerified),
		}},
	}

	points := s.AggregateMonthly(context.Background(), series)
	if len(points) != 2 {
		t.Fatalf("expected exactly the 2 observed months, got %d points", len(points))
	}
	for _, p := range points {
		if p.Month != 1 && p.Month != 6 {
			t.Errorf("fabricated point for unobserved month %d-%02d", p.Year, p.Month)
		}
	}
}

func TestAggregateMonthly_PermutationInvariant(t *testing.T) {
	logger, collector := newTestDeps(t)
	s := NewAggregationService(logger, collector)

	a := models.StationSeries{StationID: "1", Observations: []models.Observation{
		obs("1", 2000, 1, -4.0, models.QualityVerified),
		obs("1", 2001, 1, -3.0, models.QualityVerified),
	}}
	b := models.StationSeries{StationID: "2", Observations: []models.Observation{
		obs("2", 2000, 1, -8.0, models.QualityVerified),
		obs("2", 2001, 1, -5.0, models.QualityVerified),
	}}
	c := models.StationSeries{StationID: "3", Observations: []models.Observation{
		obs("3", 2000, 1, 2.0, models.QualityVerified),
	}}

	forward := s.AggregateMonthly(context.Background(), []models.StationSeries{a, b, c})
	backward := s.AggregateMonthly(context.Background(), []models.StationSeries{c, b, a})

	if len(forward) != len(backward) {
		t.Fatalf("point counts differ: %d vs %d", len(forward), len(backward))
	}
	for i := range forward {
		f, g := forward[i], backward[i]
		if f.Year != g.Year || f.Month != g.Month || f.StationCount != g.StationCount {
			t.Fatalf("point %d differs: %+v vs %+v", i, f, g)
		}
		if math.Abs(f.MeanCelsius-g.MeanCelsius) > 1e-9 {
			t.Errorf("mean for %d-%02d differs: %v vs %v", f.Year, f.Month, f.MeanCelsius, g.MeanCelsius)
		}
	}
}

func TestYearlyMeans(t *testing.T) {
	logger, collector := newTestDeps(t)
	s := NewAggregationService(logger, collector)

	points := []models.AggregatePoint{
		{Year: 2000, Month: 1, MeanCelsius: -6.0, StationCount: 2},
		{Year: 2000, Month: 7, MeanCelsius: 18.0, StationCount: 2},
		{Year: 2001, Month: 1, MeanCelsius: -4.0, StationCount: 1},
	}

	years := s.YearlyMeans(context.Background(), points)
	if len(years) != 2 {
		t.Fatalf("expected 2 yearly points, got %d", len(years))
	}

	if years[0].Year != 2000 || years[0].MeanCelsius != 6.0 || years[0].MonthCount != 2 {
		t.Errorf("unexpected 2000 point: %+v", years[0])
	}
	if years[1].Year != 2001 || years[1].MeanCelsius != -4.0 || years[1].MonthCount != 1 {
		t.Errorf("unexpected 2001 point: %+v", years[1])
	}
}
