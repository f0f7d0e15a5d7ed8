package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/xtxerr/croft/config"
	"github.com/xtxerr/croft/internal/errors"
	"github.com/xtxerr/croft/internal/model"
)

// errorResponse is the error body shape for every non-2xx response.
type errorResponse struct {
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Status line is already sent; the client sees a truncated body.
		log.Error("encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorResponse{Detail: detail})
}

// =============================================================================
// Root
// =============================================================================

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Field Insights Dashboard API",
		"version": s.cfg.Version,
		"docs":    "/docs",
	})
}

// =============================================================================
// Sensor Data
// =============================================================================

// asyncAccepted is the response for a batch routed to background processing.
type asyncAccepted struct {
	Message string `json:"message"`
	TaskID  string `json:"task_id"`
	Status  string `json:"status"`
}

func (s *Server) handleCreateSensorData(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)

	var inputs []model.ReadingInput
	if err := json.NewDecoder(r.Body).Decode(&inputs); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	result, err := s.cfg.Dispatcher.Ingest(r.Context(), inputs)
	if err != nil {
		if errors.IsValidation(err) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "Error processing sensor data: "+err.Error())
		return
	}

	if result.Async {
		writeJSON(w, http.StatusOK, asyncAccepted{
			Message: fmt.Sprintf("Processing %d readings in background", result.Queued),
			TaskID:  result.TaskID,
			Status:  "processing",
		})
		return
	}

	writeJSON(w, http.StatusOK, result.Readings)
}

func (s *Server) handleReadings(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", config.DefaultQueryLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid limit parameter")
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid offset parameter")
		return
	}

	// Out-of-range values are clamped rather than rejected; devices with
	// misconfigured page sizes still get data.
	if limit < 1 {
		limit = 1
	}
	if limit > config.MaxQueryLimit {
		limit = config.MaxQueryLimit
	}
	if offset < 0 {
		offset = 0
	}

	filter := model.ReadingFilter{
		FieldID:    r.URL.Query().Get("field_id"),
		SensorType: r.URL.Query().Get("sensor_type"),
	}

	readings, err := s.cfg.Store.Readings(r.Context(), filter, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Error fetching readings: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, readings)
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

// =============================================================================
// Analytics
// =============================================================================

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	overview, err := s.cfg.Engine.Overview(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Error fetching analytics: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, overview)
}

func (s *Server) handleFieldAnalytics(w http.ResponseWriter, r *http.Request) {
	fieldID := r.PathValue("field_id")

	fa, err := s.cfg.Engine.Field(r.Context(), fieldID)
	if err != nil {
		if errors.Is(err, errors.ErrFieldNotFound) {
			writeError(w, http.StatusNotFound, fmt.Sprintf("Field %s not found", fieldID))
			return
		}
		writeError(w, http.StatusInternalServerError, "Error fetching field analytics: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, fa)
}

func (s *Server) handleSensorTypeAnalytics(w http.ResponseWriter, r *http.Request) {
	sensorType := r.PathValue("sensor_type")

	sa, err := s.cfg.Engine.SensorType(r.Context(), sensorType)
	if err != nil {
		if errors.Is(err, errors.ErrSensorTypeNotFound) {
			writeError(w, http.StatusNotFound, fmt.Sprintf("Sensor type %s not found", sensorType))
			return
		}
		writeError(w, http.StatusInternalServerError, "Error fetching sensor analytics: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sa)
}

// =============================================================================
// Tasks
// =============================================================================

// taskResponse mirrors the task status contract: id, state and a
// human-readable message derived from the state.
type taskResponse struct {
	TaskID  string `json:"task_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (s *Server) handleTaskStatus(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("task_id")

	status, err := s.cfg.Broker.Status(r.Context(), taskID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Error checking task status: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, taskResponse{
		TaskID:  status.TaskID,
		Status:  string(status.State),
		Message: status.Describe(),
	})
}

// =============================================================================
// Data Management
// =============================================================================

// clearResponse reports how much a clear removed.
type clearResponse struct {
	Message               string    `json:"message"`
	SensorReadingsDeleted int64     `json:"sensor_readings_deleted"`
	DailyStatsDeleted     int64     `json:"daily_stats_deleted"`
	Timestamp             time.Time `json:"timestamp"`
}

func (s *Server) handleClearData(w http.ResponseWriter, r *http.Request) {
	readings, stats, err := s.cfg.Store.DeleteAll(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Error clearing data: "+err.Error())
		return
	}

	log.Warn("all data cleared",
		"sensor_readings_deleted", readings,
		"daily_stats_deleted", stats,
	)

	writeJSON(w, http.StatusOK, clearResponse{
		Message:               "All data cleared successfully",
		SensorReadingsDeleted: readings,
		DailyStatsDeleted:     stats,
		Timestamp:             time.Now().UTC(),
	})
}

// =============================================================================
// Health
// =============================================================================

// healthResponse reports the state of the backing services.
type healthResponse struct {
	Status            string    `json:"status"`
	Timestamp         time.Time `json:"timestamp"`
	DatabaseConnected bool      `json:"database_connected"`
	RedisConnected    bool      `json:"redis_connected"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbConnected := s.cfg.Store.Health(r.Context()) == nil
	redisConnected := s.cfg.Broker.Ping(r.Context()) == nil

	status := "healthy"
	if !dbConnected || !redisConnected {
		status = "unhealthy"
	}

	writeJSON(w, http.StatusOK, healthResponse{
		Status:            status,
		Timestamp:         time.Now().UTC(),
		DatabaseConnected: dbConnected,
		RedisConnected:    redisConnected,
	})
}
