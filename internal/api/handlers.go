package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/yegors/tailtrack/internal/config"
	"github.com/yegors/tailtrack/internal/tracking"
	"github.com/yegors/tailtrack/internal/websocket"
	"github.com/yegors/tailtrack/pkg/logger"
)

// Handler contains the API handlers
type Handler struct {
	tracking *tracking.Service
	config   *config.Config
	logger   *logger.Logger
	wsServer *websocket.Server
	started  time.Time
}

// NewHandler creates a new API handler
func NewHandler(trackingService *tracking.Service, cfg *config.Config, log *logger.Logger, wsServer *websocket.Server) *Handler {
	return &Handler{
		tracking: trackingService,
		config:   cfg,
		logger:   log.Named("api"),
		wsServer: wsServer,
		started:  time.Now().UTC(),
	}
}

// CreateTrackingSession opens a new tracking session for a tail number
func (h *Handler) CreateTrackingSession(w http.ResponseWriter, r *http.Request) {
	var req tracking.StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	track, err := h.tracking.Start(r.Context(), req)
	if err != nil {
		h.writeTrackingError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, track)
}

// GetTrackingSessions returns one page of tracking sessions. Unless
// refresh=false, every non-terminal session on the page is reconciled against
// the upstream provider first.
func (h *Handler) GetTrackingSessions(w http.ResponseWriter, r *http.Request) {
	filter, err := parseTrackFilter(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	refresh := !strings.EqualFold(r.URL.Query().Get("refresh"), "false")

	page, err := h.tracking.List(r.Context(), filter, refresh)
	if err != nil {
		h.writeTrackingError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, page)
}

// GetTrackingSession returns a single tracking session as stored
func (h *Handler) GetTrackingSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		http.Error(w, "Missing session ID", http.StatusBadRequest)
		return
	}

	track, err := h.tracking.Get(r.Context(), id)
	if err != nil {
		h.writeTrackingError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, track)
}

// UpdateTrackingSession runs one reconciliation pass over a session and
// returns the refreshed state
func (h *Handler) UpdateTrackingSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		http.Error(w, "Missing session ID", http.StatusBadRequest)
		return
	}

	track, err := h.tracking.Update(r.Context(), id)
	if err != nil {
		h.writeTrackingError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, track)
}

// HandleWebSocket upgrades the connection to the track-update stream
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	h.wsServer.HandleConnection(w, r)
}

// GetHealth returns the health status of the API
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":         "ok",
		"uptime_seconds": int(time.Since(h.started).Seconds()),
	}

	WriteJSON(w, http.StatusOK, response)
}

// writeTrackingError maps tracking service errors to HTTP status codes.
// Anything not recognized is treated as an upstream/provider failure.
func (h *Handler) writeTrackingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, tracking.ErrInvalidInput):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, tracking.ErrTrackNotFound):
		http.Error(w, "Tracking session not found", http.StatusNotFound)
	case errors.Is(err, tracking.ErrPlaneNotFound):
		http.Error(w, "Plane not found", http.StatusNotFound)
	case errors.Is(err, tracking.ErrNoUpstreamData):
		http.Error(w, "No upstream flight data for tail number", http.StatusNotFound)
	case errors.Is(err, tracking.ErrFlightAlreadyTracked):
		http.Error(w, "Flight is already tracked by another session", http.StatusConflict)
	case errors.Is(err, tracking.ErrStaleTrack):
		http.Error(w, "Session was modified concurrently, retry", http.StatusConflict)
	default:
		h.logger.Error("Tracking operation failed", logger.Error(err))
		http.Error(w, "Upstream provider request failed", http.StatusBadGateway)
	}
}

// parseTrackFilter builds a listing filter from query parameters.
func parseTrackFilter(r *http.Request) (tracking.TrackFilter, error) {
	q := r.URL.Query()

	filter := tracking.TrackFilter{
		TailNumber:   strings.ToUpper(strings.TrimSpace(q.Get("tail_number"))),
		SchoolID:     q.Get("school_id"),
		PlaneID:      q.Get("plane_id"),
		InstructorID: q.Get("instructor_id"),
		StudentID:    q.Get("student_id"),
		Status:       q.Get("status"),
		Search:       q.Get("search"),
	}

	if v := q.Get("page"); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil || page < 1 {
			return filter, errors.New("invalid page parameter")
		}
		filter.Page = page
	}
	if v := q.Get("page_size"); v != "" {
		size, err := strconv.Atoi(v)
		if err != nil || size < 1 {
			return filter, errors.New("invalid page_size parameter")
		}
		filter.PageSize = size
	}

	if v := q.Get("from"); v != "" {
		from, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, errors.New("invalid from parameter, expected RFC3339")
		}
		filter.From = &from
	}
	if v := q.Get("to"); v != "" {
		to, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, errors.New("invalid to parameter, expected RFC3339")
		}
		filter.To = &to
	}

	return filter, nil
}

// WriteJSON writes a JSON response
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
