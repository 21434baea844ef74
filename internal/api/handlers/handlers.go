package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/bank-forwarder/internal/api/middleware"
	"github.com/dvloznov/bank-forwarder/internal/runs"
)

// LatestRuns reports the most recent run of every stream.
type LatestRuns interface {
	Latest() map[string]*runs.Run
}

// HealthHandler reports whether the last iteration of every stream succeeded.
type HealthHandler struct {
	latest LatestRuns
	now    func() time.Time
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(latest LatestRuns) *HealthHandler {
	return &HealthHandler{latest: latest, now: time.Now}
}

type streamHealth struct {
	Status     runs.Status `json:"status"`
	ErrorClass string      `json:"error_class,omitempty"`
	FinishedAt time.Time   `json:"finished_at"`
}

// ServeHTTP handles GET /healthz. The process is healthy while it serves;
// failing streams only turn the status to "degraded".
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	latest := h.latest.Latest()

	status := "healthy"
	streams := make(map[string]streamHealth, len(latest))
	for name, run := range latest {
		streams[name] = streamHealth{Status: run.Status, ErrorClass: run.ErrorClass, FinishedAt: run.FinishedAt}
		if run.Status == runs.StatusFailed {
			status = "degraded"
		}
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":  status,
		"time":    h.now().Format(time.RFC3339),
		"streams": streams,
	})
}

// RunsHandler handles the run log endpoints.
type RunsHandler struct {
	store runs.Store
	log   zerolog.Logger
}

// NewRunsHandler creates a new runs handler.
func NewRunsHandler(store runs.Store, log zerolog.Logger) *RunsHandler {
	return &RunsHandler{
		store: store,
		log:   log,
	}
}

// ListRuns handles GET /api/runs
func (h *RunsHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// Parse query parameters
	query := r.URL.Query()
	filter := runs.Filter{
		Stream: query.Get("stream"),
		Status: runs.Status(query.Get("status")),
		Limit:  50,
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit <= 0 {
			middleware.WriteError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		filter.Limit = limit
	}

	runList, err := h.store.ListRuns(ctx, filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list runs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list runs")
		return
	}

	if runList == nil {
		runList = []*runs.Run{}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runList,
		"count": len(runList),
	})
}
