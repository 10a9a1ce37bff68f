package smhi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"climate-check/internal/models"
)

// DefaultBaseURL is the SMHI meteorological observations open-data API.
const DefaultBaseURL = "https://opendata-download-metobs.smhi.se/api/version/1.0"

// ParameterMonthlyMeanAirTemperature is SMHI parameter 22.
const ParameterMonthlyMeanAirTemperature = 22

// Client represents a client for the SMHI metobs open-data API
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a new client with the given per-request timeout
func NewClient(timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: DefaultBaseURL,
	}
}

// NewClientWithHTTPClient creates a new client with a custom HTTP client
func NewClientWithHTTPClient(httpClient *http.Client) *Client {
	return &Client{
		httpClient: httpClient,
		baseURL:    DefaultBaseURL,
	}
}

// SetBaseURL sets the base URL for the API (useful for testing)
func (c *Client) SetBaseURL(baseURL string) {
	c.baseURL = baseURL
}

// GetStations retrieves all stations offering the given parameter, including
// historical (inactive) ones. Any failure here is a *models.CatalogError.
func (c *Client) GetStations(ctx context.Context, parameter int) ([]models.Station, error) {
	reqURL := fmt.Sprintf("%s/parameter/%d.json", c.baseURL, parameter)

	body, err := c.get(ctx, reqURL)
	if err != nil {
		return nil, &models.CatalogError{URL: reqURL, Err: err}
	}

	var catalog stationCatalog
	if err := json.Unmarshal(body, &catalog); err != nil {
		return nil, &models.CatalogError{
			URL: reqURL,
			Err: fmt.Errorf("failed to unmarshal catalog: %w", err),
		}
	}

	stations := make([]models.Station, 0, len(catalog.Station))
	for _, entry := range catalog.Station {
		stations = append(stations, entry.toStation())
	}
	return stations, nil
}

// GetMonthlySeries retrieves the full monthly series for one station from the
// corrected archive. A station without archived data yields an empty series,
// not an error; all other failures are *models.StationFetchError.
func (c *Client) GetMonthlySeries(ctx context.Context, parameter int, stationID string) ([]models.RawMonthlyRecord, error) {
	reqURL := fmt.Sprintf("%s/parameter/%d/station/%s/period/corrected-archive/data.csv",
		c.baseURL, parameter, stationID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, &models.StationFetchError{StationID: stationID, Err: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &models.StationFetchError{StationID: stationID, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		// No corrected archive for this station. Valid, just empty.
		return nil, nil
	}

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &models.StationFetchError{
			StationID: stationID,
			Err:       &APIError{StatusCode: resp.StatusCode, Message: string(msg)},
		}
	}

	return parseSeriesCSV(resp.Body), nil
}

// get performs a GET request and returns the response body
func (c *Client) get(ctx context.Context, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &APIError{StatusCode: resp.StatusCode, Message: string(msg)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return body, nil
}

// stationCatalog is the provider-defined shape of a parameter catalog.
type stationCatalog struct {
	Station []stationEntry `json:"station"`
	Summary string         `json:"summary"`
	Title   string         `json:"title"`
}

// stationEntry is one station record in the catalog. From and To are epoch
// milliseconds bounding the station's active period.
type stationEntry struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
	From   int64  `json:"from"`
	To     int64  `json:"to"`
}

func (e stationEntry) toStation() models.Station {
	station := models.Station{
		ID:        strconv.FormatInt(e.ID, 10),
		Name:      e.Name,
		FirstYear: time.UnixMilli(e.From).UTC().Year(),
	}
	if !e.Active {
		lastYear := time.UnixMilli(e.To).UTC().Year()
		station.LastYear = &lastYear
	}
	return station
}
