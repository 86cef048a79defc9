package handlers

import (
	"log/slog"
	"net/http"

	"email-automation/internal/workers"
)

// AdminHandler handles administrative operations on the autopilot sweeper
type AdminHandler struct {
	sweeper *workers.Sweeper
	logger  *slog.Logger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(sweeper *workers.Sweeper, logger *slog.Logger) *AdminHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminHandler{sweeper: sweeper, logger: logger}
}

// SweeperStatusResponse represents the status of the automation sweeper
type SweeperStatusResponse struct {
	Running bool                 `json:"running"`
	Paused  bool                 `json:"paused"`
	Metrics workers.SweepMetrics `json:"metrics"`
}

// GetSweeperStatus handles GET /api/admin/sweeper/status
func (h *AdminHandler) GetSweeperStatus(w http.ResponseWriter, r *http.Request) {
	status := SweeperStatusResponse{
		Running: h.sweeper.IsRunning(),
		Paused:  h.sweeper.IsPaused(),
		Metrics: h.sweeper.Metrics(),
	}

	writeJSON(w, http.StatusOK, status)
}

// PauseSweeper handles POST /api/admin/sweeper/pause
func (h *AdminHandler) PauseSweeper(w http.ResponseWriter, r *http.Request) {
	h.sweeper.Pause()
	h.logger.Info("Sweeper paused via admin API")

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "paused",
		"message": "Automation sweeper has been paused",
	})
}

// ResumeSweeper handles POST /api/admin/sweeper/resume
func (h *AdminHandler) ResumeSweeper(w http.ResponseWriter, r *http.Request) {
	h.sweeper.Resume()
	h.logger.Info("Sweeper resumed via admin API")

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "resumed",
		"message": "Automation sweeper has been resumed",
	})
}
