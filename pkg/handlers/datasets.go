package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/sensorbridge/sensorbridge-engine/pkg/apperrors"
	"github.com/sensorbridge/sensorbridge-engine/pkg/database"
	"github.com/sensorbridge/sensorbridge-engine/pkg/models"
	"github.com/sensorbridge/sensorbridge-engine/pkg/repositories"
	"github.com/sensorbridge/sensorbridge-engine/pkg/services"
)

// DatasetsHandler exposes the harvested catalog and the live read path
// over HTTP.
type DatasetsHandler struct {
	q        database.Querier
	datasets repositories.DatasetRepository
	data     services.DataService
	logger   *zap.Logger
}

// NewDatasetsHandler creates a new datasets handler.
func NewDatasetsHandler(q database.Querier, datasets repositories.DatasetRepository, data services.DataService, logger *zap.Logger) *DatasetsHandler {
	return &DatasetsHandler{
		q:        q,
		datasets: datasets,
		data:     data,
		logger:   logger,
	}
}

// RegisterRoutes registers the datasets handler's routes on the given mux.
func (h *DatasetsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/datasets/{id}", h.Get)
	mux.HandleFunc("GET /api/datasets/{id}/data", h.GetData)
	mux.HandleFunc("GET /api/datasets/{id}/data/first", h.GetFirstValue)
	mux.HandleFunc("GET /api/datasets/{id}/data/last", h.GetLastValue)
}

// Get handles GET /api/datasets/{id}
// Returns the catalog row with its dimension entities.
func (h *DatasetsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.datasetID(w, r)
	if !ok {
		return
	}

	dataset, err := h.datasets.Get(r.Context(), h.q, id)
	if err != nil {
		h.writeError(w, id, "get dataset", err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, dataset); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// GetData handles GET /api/datasets/{id}/data
// Fetches observations from the remote service, optionally bounded by
// RFC 3339 start and end query parameters.
func (h *DatasetsHandler) GetData(w http.ResponseWriter, r *http.Request) {
	id, ok := h.datasetID(w, r)
	if !ok {
		return
	}

	query, err := timeQuery(r)
	if err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_time_query", err.Error()); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	values, err := h.data.GetData(r.Context(), id, query)
	if err != nil {
		h.writeError(w, id, "get data", err)
		return
	}
	if values == nil {
		values = []models.DataValue{}
	}

	if err := WriteJSON(w, http.StatusOK, values); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// GetFirstValue handles GET /api/datasets/{id}/data/first
func (h *DatasetsHandler) GetFirstValue(w http.ResponseWriter, r *http.Request) {
	h.boundaryValue(w, r, "get first value", h.data.GetFirstValue)
}

// GetLastValue handles GET /api/datasets/{id}/data/last
func (h *DatasetsHandler) GetLastValue(w http.ResponseWriter, r *http.Request) {
	h.boundaryValue(w, r, "get last value", h.data.GetLastValue)
}

func (h *DatasetsHandler) boundaryValue(w http.ResponseWriter, r *http.Request, op string, fetch func(ctx context.Context, datasetID int64) (*models.DataValue, error)) {
	id, ok := h.datasetID(w, r)
	if !ok {
		return
	}

	value, err := fetch(r.Context(), id)
	if err != nil {
		h.writeError(w, id, op, err)
		return
	}
	if value == nil {
		if err := ErrorResponse(w, http.StatusNotFound, "no_data", "Series has no observations"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, value); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

func (h *DatasetsHandler) datasetID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_dataset_id", "Dataset ID must be an integer"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return 0, false
	}
	return id, true
}

func (h *DatasetsHandler) writeError(w http.ResponseWriter, id int64, op string, err error) {
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		if err := ErrorResponse(w, http.StatusNotFound, "not_found", "Dataset not found"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
	case errors.Is(err, apperrors.ErrUnsupported):
		if err := ErrorResponse(w, http.StatusNotImplemented, "unsupported", "Operation not supported by the dataset's connector"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
	default:
		h.logger.Error("Dataset request failed",
			zap.Int64("dataset_id", id),
			zap.String("operation", op),
			zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "internal_error", "Failed to "+op); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
	}
}

// timeQuery parses optional RFC 3339 start and end query parameters.
func timeQuery(r *http.Request) (models.TimeQuery, error) {
	var query models.TimeQuery
	if raw := r.URL.Query().Get("start"); raw != "" {
		start, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return query, errors.New("start must be an RFC 3339 timestamp")
		}
		query.Start = start
	}
	if raw := r.URL.Query().Get("end"); raw != "" {
		end, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return query, errors.New("end must be an RFC 3339 timestamp")
		}
		query.End = end
	}
	return query, nil
}
