package handlers

import (
	"log"
	"net/http"

	"email-automation/internal/gmail"
)

// LabelHandler handles HTTP requests for mailbox labels
type LabelHandler struct {
	resolver *gmail.LabelResolver
}

// NewLabelHandler creates a new label handler
func NewLabelHandler(resolver *gmail.LabelResolver) *LabelHandler {
	return &LabelHandler{resolver: resolver}
}

// GetLabels handles GET /api/labels
func (h *LabelHandler) GetLabels(w http.ResponseWriter, r *http.Request) {
	labels, err := h.resolver.All(r.Context())
	if err != nil {
		log.Printf("ERROR: Failed to list labels: %v", err)
		writeError(w, http.StatusBadGateway, "Failed to list labels: "+err.Error())
		return
	}
	if labels == nil {
		labels = []gmail.Label{}
	}

	writeJSON(w, http.StatusOK, labels)
}
