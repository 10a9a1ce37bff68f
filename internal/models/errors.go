package models

import "fmt"

// CatalogError indicates the station catalog could not be loaded.
// Fatal: without a catalog there is nothing to fetch.
type CatalogError struct {
	URL string
	Err error
}

func (e *CatalogError) Error() string {
	return fmt.Sprintf("station catalog unavailable: %s: %v", e.URL, e.Err)
}

func (e *CatalogError) Unwrap() error {
	return e.Err
}

// IsTransient returns true: a later run against a healthy endpoint may succeed.
func (e *CatalogError) IsTransient() bool {
	return true
}

// StationFetchError indicates one station's series could not be retrieved.
// Recoverable: the station is skipped and the run continues, since partial
// station coverage is normal operation.
type StationFetchError struct {
	StationID string
	Err       error
}

func (e *StationFetchError) Error() string {
	return fmt.Sprintf("failed to fetch series for station %s: %v", e.StationID, e.Err)
}

func (e *StationFetchError) Unwrap() error {
	return e.Err
}

// IsTransient returns true as fetch failures are typically temporary.
func (e *StationFetchError) IsTransient() bool {
	return true
}

// MalformedObservationError indicates a single raw record that could not be
// parsed. Recoverable: the record is dropped and parsing continues.
type MalformedObservationError struct {
	StationID string
	Field     string
	Value     string
	Message   string
}

func (e *MalformedObservationError) Error() string {
	return fmt.Sprintf("malformed observation for station %s: %s %q: %s",
		e.StationID, e.Field, e.Value, e.Message)
}

// IsTransient returns false: a malformed record stays malformed.
func (e *MalformedObservationError) IsTransient() bool {
	return false
}

// InsufficientDataError indicates the aggregated dataset spans too few
// distinct years to support a meaningful trend fit. Fatal after aggregation.
type InsufficientDataError struct {
	DistinctYears int
	MinYears      int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data for trend fit: %d distinct years, need at least %d",
		e.DistinctYears, e.MinYears)
}

// IsTransient returns false: without more source data the fit stays impossible.
func (e *InsufficientDataError) IsTransient() bool {
	return false
}
