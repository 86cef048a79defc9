package handlers

import (
	"database/sql"
	"errors"
	"log"
	"net/http"
	"strconv"

	"email-automation/internal/database"

	"github.com/go-chi/chi/v5"
)

// DefaultRunListLimit caps GET /api/runs when the caller does not ask for a
// specific page size.
const DefaultRunListLimit = 50

// RunHandler handles HTTP requests for persisted run history
type RunHandler struct {
	store *database.RunStore
}

// NewRunHandler creates a new run history handler
func NewRunHandler(store *database.RunStore) *RunHandler {
	return &RunHandler{store: store}
}

// GetRuns handles GET /api/runs
func (h *RunHandler) GetRuns(w http.ResponseWriter, r *http.Request) {
	limit := DefaultRunListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = parsed
	}

	runs, err := h.store.List(limit)
	if err != nil {
		log.Printf("ERROR: Failed to list runs: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to list runs: "+err.Error())
		return
	}
	if runs == nil {
		runs = []database.Run{}
	}

	writeJSON(w, http.StatusOK, runs)
}

// GetRunByID handles GET /api/runs/{id}
func (h *RunHandler) GetRunByID(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid run ID")
		return
	}

	run, err := h.store.GetByID(id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "Run not found")
			return
		}
		log.Printf("ERROR: Failed to get run %d: %v", id, err)
		writeError(w, http.StatusInternalServerError, "Failed to get run: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, run)
}

// GetRunStats handles GET /api/runs/stats
func (h *RunHandler) GetRunStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.GetStats()
	if err != nil {
		log.Printf("ERROR: Failed to get run stats: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to get run stats: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, stats)
}
