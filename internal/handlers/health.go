package handlers

import (
	"net/http"

	"email-automation/internal/database"
	"email-automation/internal/rules"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	db    *database.DB
	rules *rules.Store
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(db *database.DB, rules *rules.Store) *HealthHandler {
	return &HealthHandler{db: db, rules: rules}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Rules    string `json:"rules"`
	Message  string `json:"message,omitempty"`
}

// HealthCheck handles GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:   "healthy",
		Database: "ok",
		Rules:    "ok",
	}

	// Check run history database health
	if err := h.db.IsHealthy(); err != nil {
		response.Status = "unhealthy"
		response.Database = "error"
		response.Message = err.Error()

		writeJSON(w, http.StatusServiceUnavailable, response)
		return
	}

	// Check that the rule file still loads
	if _, err := h.rules.List(); err != nil {
		response.Status = "unhealthy"
		response.Rules = "error"
		response.Message = err.Error()

		writeJSON(w, http.StatusServiceUnavailable, response)
		return
	}

	writeJSON(w, http.StatusOK, response)
}
