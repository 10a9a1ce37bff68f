package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"climate-check/internal/models"
	"climate-check/internal/repository"
	"climate-check/internal/services"
	"climate-check/pkg/logging"
	"climate-check/pkg/metrics"
)

// TrendHandler serves the collected dataset and the computed trend over HTTP.
// Everything is derived from the cache on request; the server never fetches
// from the network itself.
type TrendHandler struct {
	collection  *services.CollectionService
	aggregation *services.AggregationService
	trend       *services.TrendService
	repo        repository.CacheRepository
	logger      *logging.StructuredLogger
	metrics     *metrics.Collector
}

// NewTrendHandler creates a new trend handler
func NewTrendHandler(
	collection *services.CollectionService,
	aggregation *services.AggregationService,
	trend *services.TrendService,
	repo repository.CacheRepository,
	logger *logging.StructuredLogger,
	metricsCollector *metrics.Collector,
) *TrendHandler {
	return &TrendHandler{
		collection:  collection,
		aggregation: aggregation,
		trend:       trend,
		repo:        repo,
		logger:      logger,
		metrics:     metricsCollector,
	}
}

// RegisterRoutes registers all trend API routes
func (h *TrendHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/stations", h.GetStations).Methods(http.MethodGet)
	router.HandleFunc("/api/series", h.GetSeries).Methods(http.MethodGet)
	router.HandleFunc("/api/trend", h.GetTrend).Methods(http.MethodGet)
	router.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// StationsResponse wraps the station list
type StationsResponse struct {
	Data  []models.Station `json:"data"`
	Total int              `json:"total"`
}

// GetStations handles GET /api/stations
func (h *TrendHandler) GetStations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defer h.observe("/api/stations", time.Now())

	stations, err := h.repo.ListStations(ctx)
	if err != nil {
		h.metrics.RecordAPIError("cache_error", "/api/stations")
		h.respondError(w, r, "/api/stations", http.StatusInternalServerError, "cache_error", err)
		return
	}

	h.respondJSON(w, r, "/api/stations", http.StatusOK, StationsResponse{
		Data:  stations,
		Total: len(stations),
	})
}

// SeriesResponse wraps the aggregate series in either granularity
type SeriesResponse struct {
	Granularity string                  `json:"granularity"`
	Monthly     []models.AggregatePoint `json:"monthly,omitempty"`
	Yearly      []models.YearlyPoint    `json:"yearly,omitempty"`
	Total       int                     `json:"total"`
}

// GetSeries handles GET /api/series?granularity=monthly|yearly
func (h *TrendHandler) GetSeries(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defer h.observe("/api/series", time.Now())

	granularity := r.URL.Query().Get("granularity")
	if granularity == "" {
		granularity = "yearly"
	}
	if granularity != "monthly" && granularity != "yearly" {
		h.respondError(w, r, "/api/series", http.StatusBadRequest, "bad_request",
			errors.New("granularity must be monthly or yearly"))
		return
	}

	_, series, _, err := h.collection.LoadFromCache(ctx)
	if err != nil {
		h.metrics.RecordAPIError("cache_error", "/api/series")
		h.respondError(w, r, "/api/series", http.StatusInternalServerError, "cache_error", err)
		return
	}

	monthly := h.aggregation.AggregateMonthly(ctx, series)

	response := SeriesResponse{Granularity: granularity}
	if granularity == "monthly" {
		response.Monthly = monthly
		response.Total = len(monthly)
	} else {
		yearly := h.aggregation.YearlyMeans(ctx, monthly)
		response.Yearly = yearly
		response.Total = len(yearly)
	}

	h.respondJSON(w, r, "/api/series", http.StatusOK, response)
}

// TrendResponse wraps the trend result with context about its input
type TrendResponse struct {
	Trend        *models.TrendResult `json:"trend"`
	StationsUsed int                 `json:"stations_used"`
	YearsUsed    int                 `json:"years_used"`
}

// GetTrend handles GET /api/trend
func (h *TrendHandler) GetTrend(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defer h.observe("/api/trend", time.Now())

	_, series, _, err := h.collection.LoadFromCache(ctx)
	if err != nil {
		h.metrics.RecordAPIError("cache_error", "/api/trend")
		h.respondError(w, r, "/api/trend", http.StatusInternalServerError, "cache_error", err)
		return
	}

	monthly := h.aggregation.AggregateMonthly(ctx, series)
	yearly := h.aggregation.YearlyMeans(ctx, monthly)

	trend, err := h.trend.EstimateTrend(ctx, yearly)
	if err != nil {
		var insufficient *models.InsufficientDataError
		if errors.As(err, &insufficient) {
			h.metrics.RecordAPIError("insufficient_data", "/api/trend")
			h.respondError(w, r, "/api/trend", http.StatusUnprocessableEntity, "insufficient_data", err)
			return
		}
		h.metrics.RecordAPIError("internal_error", "/api/trend")
		h.respondError(w, r, "/api/trend", http.StatusInternalServerError, "internal_error", err)
		return
	}

	h.respondJSON(w, r, "/api/trend", http.StatusOK, TrendResponse{
		Trend:        trend,
		StationsUsed: len(series),
		YearsUsed:    trend.YearsUsed,
	})
}

// HealthCheck handles GET /health
func (h *TrendHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defer h.observe("/health", time.Now())

	if err := h.repo.HealthCheck(ctx); err != nil {
		h.respondError(w, r, "/health", http.StatusServiceUnavailable, "unhealthy", err)
		return
	}

	h.respondJSON(w, r, "/health", http.StatusOK, map[string]string{"status": "ok"})
}

// observe records the request duration for one endpoint
func (h *TrendHandler) observe(endpoint string, start time.Time) {
	h.metrics.APIRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}

// respondJSON writes a JSON response and records request metrics
func (h *TrendHandler) respondJSON(w http.ResponseWriter, r *http.Request, endpoint string, status int, payload interface{}) {
	h.metrics.RecordAPIRequest(endpoint, r.Method, strconv.Itoa(status))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error(r.Context(), "[API_ENCODE_ERROR] Failed to encode response", logging.Fields{
			"endpoint": endpoint,
		}, err)
	}
}

// respondError writes a JSON error response and records request metrics
func (h *TrendHandler) respondError(w http.ResponseWriter, r *http.Request, endpoint string, status int, errorType string, err error) {
	h.logger.Error(r.Context(), "[API_ERROR] Request failed", logging.Fields{
		"endpoint": endpoint,
		"status":   status,
	}, err)

	h.respondJSON(w, r, endpoint, status, ErrorResponse{
		Error:   errorType,
		Message: err.Error(),
		Code:    status,
	})
}
