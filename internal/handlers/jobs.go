package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"email-automation/internal/database"
	"email-automation/internal/jobs"
	"email-automation/internal/pipeline"
	"email-automation/internal/workers"

	"github.com/go-chi/chi/v5"
)

// JobHandler handles HTTP requests for background automation runs
type JobHandler struct {
	runner  *workers.Runner
	manager *jobs.Manager
}

// NewJobHandler creates a new job handler
func NewJobHandler(runner *workers.Runner, manager *jobs.Manager) *JobHandler {
	return &JobHandler{runner: runner, manager: manager}
}

// SubmitRunRequest is the body accepted by POST /api/jobs
type SubmitRunRequest struct {
	RuleIDs            []string `json:"rule_ids,omitempty"`
	UserQuery          string   `json:"user_query,omitempty"`
	DryRun             bool     `json:"dry_run"`
	ScanLimit          int      `json:"scan_limit,omitempty"`
	IncludeDetailedIDs bool     `json:"include_detailed_ids,omitempty"`

	// Source marks who asked for the run in history. Empty means "api".
	Source string `json:"source,omitempty"`
}

// SubmitRun handles POST /api/jobs
func (h *JobHandler) SubmitRun(w http.ResponseWriter, r *http.Request) {
	var req SubmitRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("ERROR: Invalid JSON in SubmitRun: %v", err)
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	if req.ScanLimit < 0 {
		writeError(w, http.StatusBadRequest, "scan_limit cannot be negative")
		return
	}

	trigger := database.TriggerAPI
	switch req.Source {
	case "", database.TriggerAPI:
	case database.TriggerCLI:
		trigger = database.TriggerCLI
	default:
		writeError(w, http.StatusBadRequest, `source must be "api" or "cli"`)
		return
	}

	taskID := h.runner.Submit(trigger, pipeline.RunOptions{
		RuleIDs:            req.RuleIDs,
		UserQuery:          req.UserQuery,
		DryRun:             req.DryRun,
		ScanLimit:          req.ScanLimit,
		IncludeDetailedIDs: req.IncludeDetailedIDs,
	})

	snap := h.manager.Status(taskID)
	if snap == nil {
		// The task retired between Submit and Status; report it anyway.
		snap = &jobs.Snapshot{ID: taskID, Name: "automation run", State: jobs.StatePending}
	}

	writeJSON(w, http.StatusAccepted, snap)
}

// GetJobs handles GET /api/jobs. Only active tasks are returned unless
// ?all=true asks for retained finished ones too.
func (h *JobHandler) GetJobs(w http.ResponseWriter, r *http.Request) {
	var snaps []jobs.Snapshot
	if r.URL.Query().Get("all") == "true" {
		snaps = h.manager.List()
	} else {
		snaps = h.manager.ListActive()
	}
	if snaps == nil {
		snaps = []jobs.Snapshot{}
	}

	writeJSON(w, http.StatusOK, snaps)
}

// GetJob handles GET /api/jobs/{id}
func (h *JobHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	snap := h.manager.Status(id)
	if snap == nil {
		writeError(w, http.StatusNotFound, "Task not found")
		return
	}

	writeJSON(w, http.StatusOK, snap)
}

// GetJobResult handles GET /api/jobs/{id}/result
func (h *JobHandler) GetJobResult(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	result, err := h.manager.Result(id)
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Task not found")
			return
		}
		// Not completed, failed, or cancelled: the result cannot be served
		// in the task's current state.
		writeError(w, http.StatusConflict, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// CancelJob handles POST /api/jobs/{id}/cancel
func (h *JobHandler) CancelJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if !h.manager.Cancel(id) {
		writeError(w, http.StatusNotFound, "Task not found or already finished")
		return
	}

	snap := h.manager.Status(id)
	if snap == nil {
		snap = &jobs.Snapshot{ID: id, State: jobs.StateCancelled}
	}

	writeJSON(w, http.StatusAccepted, snap)
}
