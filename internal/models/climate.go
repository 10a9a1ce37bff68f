package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Quality classifies an observation according to the provider's review state.
type Quality string

const (
	// QualityVerified marks values the provider has finalized (SMHI code "G").
	QualityVerified Quality = "verified"
	// QualityUnverified marks preliminary or suspect values (SMHI codes "Y", "R"
	// and anything unrecognized).
	QualityUnverified Quality = "unverified"
)

// Station represents one weather observation site from the SMHI catalog.
// Immutable once loaded; LastYear is nil for stations still active.
type Station struct {
	ID        string `json:"id" db:"station_id"`
	Name      string `json:"name" db:"name"`
	FirstYear int    `json:"first_year" db:"first_year"`
	LastYear  *int   `json:"last_year,omitempty" db:"last_year"`
}

// Observation is a single monthly mean air temperature for one station.
type Observation struct {
	StationID    string  `json:"station_id" db:"station_id"`
	Year         int     `json:"year" db:"year"`
	Month        int     `json:"month" db:"month"`
	ValueCelsius float64 `json:"value_celsius" db:"value_celsius"`
	Quality      Quality `json:"quality" db:"quality"`
}

// StationSeries holds one station's observations ordered by (year, month)
// ascending with no duplicate (year, month) pairs.
type StationSeries struct {
	StationID    string        `json:"station_id"`
	Observations []Observation `json:"observations"`
}

// AggregatePoint is the nationwide mean for one (year, month). A point exists
// only when at least one station reported that month.
type AggregatePoint struct {
	Year         int     `json:"year"`
	Month        int     `json:"month"`
	MeanCelsius  float64 `json:"mean_celsius"`
	StationCount int     `json:"station_count"`
}

// YearlyPoint is the mean of a year's available monthly aggregate means.
type YearlyPoint struct {
	Year        int     `json:"year"`
	MeanCelsius float64 `json:"mean_celsius"`
	MonthCount  int     `json:"month_count"`
}

// TrendResult is the fitted linear trend over the yearly aggregate series.
// BaselineYear is the earliest year that entered the fit and is the reference
// point for TotalDegreesChange. Recomputed on every run, never persisted.
type TrendResult struct {
	BaselineYear       int     `json:"baseline_year"`
	EndYear            int     `json:"end_year"`
	YearsUsed          int     `json:"years_used"`
	DegreesPerYear     float64 `json:"degrees_per_year"`
	TotalDegreesChange float64 `json:"total_degrees_change"`
}

// RawMonthlyRecord is a single row extracted from an SMHI corrected-archive
// CSV payload, before any validation. Fields are kept as strings because the
// format is loose; ToObservation is the only way across this boundary.
type RawMonthlyRecord struct {
	Period  string // representative date or month, e.g. "1860-01-31" or "1860-01"
	Value   string // temperature in degrees Celsius
	Quality string // provider quality code, e.g. "G" or "Y"
}

// ToObservation converts a raw record into a typed Observation.
// Returns a *MalformedObservationError when the record cannot be parsed;
// callers drop the record and continue.
func (r *RawMonthlyRecord) ToObservation(stationID string) (*Observation, error) {
	year, month, err := parsePeriod(r.Period)
	if err != nil {
		return nil, &MalformedObservationError{
			StationID: stationID,
			Field:     "period",
			Value:     r.Period,
			Message:   err.Error(),
		}
	}

	value, err := strconv.ParseFloat(strings.TrimSpace(r.Value), 64)
	if err != nil {
		return nil, &MalformedObservationError{
			StationID: stationID,
			Field:     "value",
			Value:     r.Value,
			Message:   "invalid temperature value",
		}
	}

	return &Observation{
		StationID:    stationID,
		Year:         year,
		Month:        month,
		ValueCelsius: value,
		Quality:      qualityFromCode(r.Quality),
	}, nil
}

// parsePeriod extracts (year, month) from the representative date column.
// SMHI writes either a full date (last day of the month) or just "YYYY-MM".
func parsePeriod(s string) (int, int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, 0, fmt.Errorf("empty period")
	}

	for _, layout := range []string{"2006-01-02", "2006-01"} {
		if t, err := time.Parse(layout, s); err == nil {
			month := int(t.Month())
			if month < 1 || month > 12 {
				return 0, 0, fmt.Errorf("month out of range: %d", month)
			}
			return t.Year(), month, nil
		}
	}
	return 0, 0, fmt.Errorf("unrecognized period format %q", s)
}

// qualityFromCode maps SMHI quality codes onto the two states the pipeline
// distinguishes. Only "G" (green, checked) counts as verified.
func qualityFromCode(code string) Quality {
	if strings.TrimSpace(code) == "G" {
		return QualityVerified
	}
	return QualityUnverified
}
