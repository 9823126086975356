package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/afroash/airmon/internal/aggregate"
	"github.com/afroash/airmon/internal/models"
	"github.com/afroash/airmon/internal/storage"
)

// Reasons reported in 400 responses, machine-readable for the device and
// dashboard clients.
const (
	reasonBadJSON    = "malformed_json"
	reasonValidation = "validation_failed"
	reasonBadQuery   = "bad_query_parameter"
)

const defaultQueryLimit = 100

// APIHandler serves the ingestion and query endpoints.
//
// Ingestion is at-least-once: the device may retry after a successful but
// unacknowledged POST, and duplicate submissions are stored as distinct rows.
// Dashboards must expect duplicates in query results and aggregates.
type APIHandler struct {
	store  storage.Store
	engine *aggregate.Engine
	stream *StreamHub
	logger zerolog.Logger
}

// NewAPIHandler creates the API handler. stream may be nil when the live
// stream is disabled.
func NewAPIHandler(store storage.Store, engine *aggregate.Engine, stream *StreamHub, logger zerolog.Logger) *APIHandler {
	return &APIHandler{
		store:  store,
		engine: engine,
		stream: stream,
		logger: logger,
	}
}

// HandleIngest accepts one reading: POST /api/readings.
// Responds 201 with the assigned row id, 400 with a machine-readable reason
// on a malformed payload (no store mutation), or 500 on storage failure.
func (api *APIHandler) HandleIngest(w http.ResponseWriter, r *http.Request) {
	var payload models.IngestPayload
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&payload); err != nil {
		api.writeError(w, http.StatusBadRequest, reasonBadJSON, err.Error())
		return
	}

	if err := payload.Validate(); err != nil {
		api.writeError(w, http.StatusBadRequest, reasonValidation, err.Error())
		return
	}

	reading := payload.ToReading(time.Now())

	stored, err := api.store.Append(reading)
	if err != nil {
		// Storage failure is per-request: previously committed rows are
		// unaffected.
		api.logger.Error().Err(err).Msg("Failed to append reading")
		api.writeError(w, http.StatusInternalServerError, "storage_failure", "")
		return
	}

	api.logger.Info().
		Int64("row_id", stored.RowID).
		Str("device_id", stored.DeviceID).
		Int("gas_raw", stored.GasRaw).
		Msg("Reading stored")

	if api.stream != nil {
		api.stream.Broadcast(stored)
	}

	api.writeJSON(w, http.StatusCreated, models.IngestResponse{RowID: stored.RowID})
}

// HandleLatest returns the most recent stored reading: GET /api/readings/latest.
func (api *APIHandler) HandleLatest(w http.ResponseWriter, r *http.Request) {
	reading, err := api.store.Latest()
	if err != nil {
		api.logger.Error().Err(err).Msg("Failed to load latest reading")
		api.writeError(w, http.StatusInternalServerError, "storage_failure", "")
		return
	}
	if reading == nil {
		api.writeError(w, http.StatusNotFound, "no_data", "store is empty")
		return
	}

	api.writeJSON(w, http.StatusOK, reading)
}

// HandleQuery returns stored readings: GET /api/readings.
// With ?limit=N it returns the N most recent rows, newest first. With
// ?start=&end= (RFC 3339) it returns rows received in the range, ascending.
func (api *APIHandler) HandleQuery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if q.Get("start") != "" || q.Get("end") != "" {
		start, err := time.Parse(time.RFC3339, q.Get("start"))
		if err != nil {
			api.writeError(w, http.StatusBadRequest, reasonBadQuery, "start must be RFC 3339")
			return
		}
		end, err := time.Parse(time.RFC3339, q.Get("end"))
		if err != nil {
			api.writeError(w, http.StatusBadRequest, reasonBadQuery, "end must be RFC 3339")
			return
		}

		readings, err := api.store.QueryRange(start, end)
		if err != nil {
			api.logger.Error().Err(err).Msg("Range query failed")
			api.writeError(w, http.StatusInternalServerError, "storage_failure", "")
			return
		}
		api.writeReadings(w, readings)
		return
	}

	limit := defaultQueryLimit
	if v := q.Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			api.writeError(w, http.StatusBadRequest, reasonBadQuery, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	readings, err := api.store.Query(limit)
	if err != nil {
		api.logger.Error().Err(err).Msg("Query failed")
		api.writeError(w, http.StatusInternalServerError, "storage_failure", "")
		return
	}
	api.writeReadings(w, readings)
}

// HandleStats computes windowed statistics: GET /api/stats.
// Window selectors: ?last=N (rows), ?window=30m (duration), or neither for
// every row. An empty window reports {"no_data":true} rather than zeroes.
func (api *APIHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var window aggregate.Window
	if v := q.Get("last"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			api.writeError(w, http.StatusBadRequest, reasonBadQuery, "last must be a positive integer")
			return
		}
		window.LastN = n
	} else if v := q.Get("window"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			api.writeError(w, http.StatusBadRequest, reasonBadQuery, "window must be a positive duration")
			return
		}
		window.Duration = d
	}

	stats, err := api.engine.Stats(window)
	if errors.Is(err, aggregate.ErrNoData) {
		api.writeJSON(w, http.StatusOK, map[string]bool{"no_data": true})
		return
	}
	if err != nil {
		api.logger.Error().Err(err).Msg("Stats query failed")
		api.writeError(w, http.StatusInternalServerError, "storage_failure", "")
		return
	}

	api.writeJSON(w, http.StatusOK, stats)
}

// HandleTruncate is the administrative full truncation: DELETE /api/readings.
// The route is bearer-token guarded; any interactive confirmation happens in
// the client, not here. Responds 200 with the removed row count (0 is valid).
func (api *APIHandler) HandleTruncate(w http.ResponseWriter, r *http.Request) {
	deleted, err := api.store.TruncateAll()
	if err != nil {
		api.logger.Error().Err(err).Msg("Truncation failed")
		api.writeError(w, http.StatusInternalServerError, "storage_failure", "")
		return
	}

	api.logger.Warn().Int64("deleted", deleted).Msg("All readings deleted by administrative request")
	api.writeJSON(w, http.StatusOK, models.TruncateResponse{Deleted: deleted})
}

// HandleStorageStats returns database statistics: GET /api/storage.
func (api *APIHandler) HandleStorageStats(w http.ResponseWriter, r *http.Request) {
	stats, err := api.store.StorageStats()
	if err != nil {
		api.logger.Error().Err(err).Msg("Failed to load storage stats")
		api.writeError(w, http.StatusInternalServerError, "storage_failure", "")
		return
	}
	api.writeJSON(w, http.StatusOK, stats)
}

// writeReadings encodes a possibly-empty result set as a JSON array, never
// null.
func (api *APIHandler) writeReadings(w http.ResponseWriter, readings []*models.StoredReading) {
	if readings == nil {
		readings = []*models.StoredReading{}
	}
	api.writeJSON(w, http.StatusOK, readings)
}

func (api *APIHandler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		api.logger.Warn().Err(err).Msg("Failed to write response")
	}
}

func (api *APIHandler) writeError(w http.ResponseWriter, status int, code, reason string) {
	api.writeJSON(w, status, models.ErrorResponse{Error: code, Reason: reason})
}
