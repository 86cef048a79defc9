package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"email-automation/internal/rules"

	"github.com/go-chi/chi/v5"
)

// RuleHandler handles HTTP requests for automation rules
type RuleHandler struct {
	store *rules.Store
}

// NewRuleHandler creates a new rule handler
func NewRuleHandler(store *rules.Store) *RuleHandler {
	return &RuleHandler{store: store}
}

// GetRules handles GET /api/rules
func (h *RuleHandler) GetRules(w http.ResponseWriter, r *http.Request) {
	list, err := h.store.List()
	if err != nil {
		log.Printf("ERROR: Failed to list rules: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to list rules: "+err.Error())
		return
	}
	if list == nil {
		list = []*rules.Rule{}
	}

	writeJSON(w, http.StatusOK, list)
}

// CreateRule handles POST /api/rules
func (h *RuleHandler) CreateRule(w http.ResponseWriter, r *http.Request) {
	var rule rules.Rule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		log.Printf("ERROR: Invalid JSON in CreateRule: %v", err)
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	if err := h.store.Add(&rule); err != nil {
		h.writeStoreError(w, "create", rule.Name, err)
		return
	}

	writeJSON(w, http.StatusCreated, &rule)
}

// GetRule handles GET /api/rules/{id}. The path segment may be a rule id or a
// rule name.
func (h *RuleHandler) GetRule(w http.ResponseWriter, r *http.Request) {
	idOrName := chi.URLParam(r, "id")

	rule, err := h.store.Find(idOrName)
	if err != nil {
		if errors.Is(err, rules.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Rule not found")
			return
		}
		log.Printf("ERROR: Failed to get rule %s: %v", idOrName, err)
		writeError(w, http.StatusInternalServerError, "Failed to get rule: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, rule)
}

// UpdateRule handles PUT /api/rules/{id}
func (h *RuleHandler) UpdateRule(w http.ResponseWriter, r *http.Request) {
	idOrName := chi.URLParam(r, "id")

	existing, err := h.store.Find(idOrName)
	if err != nil {
		if errors.Is(err, rules.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Rule not found")
			return
		}
		log.Printf("ERROR: Failed to load rule %s: %v", idOrName, err)
		writeError(w, http.StatusInternalServerError, "Failed to load rule: "+err.Error())
		return
	}

	var rule rules.Rule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	// The stored id wins over whatever the body carries.
	rule.ID = existing.ID

	if err := h.store.Replace(&rule); err != nil {
		h.writeStoreError(w, "update", rule.Name, err)
		return
	}

	writeJSON(w, http.StatusOK, &rule)
}

// DeleteRule handles DELETE /api/rules/{id}
func (h *RuleHandler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	idOrName := chi.URLParam(r, "id")

	if err := h.store.Delete(idOrName); err != nil {
		if errors.Is(err, rules.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Rule not found")
			return
		}
		log.Printf("ERROR: Failed to delete rule %s: %v", idOrName, err)
		writeError(w, http.StatusInternalServerError, "Failed to delete rule: "+err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// EnableRule handles POST /api/rules/{id}/enable
func (h *RuleHandler) EnableRule(w http.ResponseWriter, r *http.Request) {
	h.setEnabled(w, r, true)
}

// DisableRule handles POST /api/rules/{id}/disable
func (h *RuleHandler) DisableRule(w http.ResponseWriter, r *http.Request) {
	h.setEnabled(w, r, false)
}

func (h *RuleHandler) setEnabled(w http.ResponseWriter, r *http.Request, enabled bool) {
	idOrName := chi.URLParam(r, "id")

	rule, err := h.store.SetEnabled(idOrName, enabled)
	if err != nil {
		if errors.Is(err, rules.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Rule not found")
			return
		}
		log.Printf("ERROR: Failed to toggle rule %s: %v", idOrName, err)
		writeError(w, http.StatusInternalServerError, "Failed to update rule: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, rule)
}

// writeStoreError maps rule store failures onto HTTP status codes. Validation
// failures are the caller's fault; file problems are ours.
func (h *RuleHandler) writeStoreError(w http.ResponseWriter, op, name string, err error) {
	switch {
	case errors.Is(err, rules.ErrDuplicateName):
		log.Printf("ERROR: Duplicate rule name: %s", name)
		writeError(w, http.StatusConflict, "Rule name already in use")
	case errors.Is(err, rules.ErrNotFound):
		writeError(w, http.StatusNotFound, "Rule not found")
	case errors.Is(err, rules.ErrPermanentDeleteDisabled):
		writeError(w, http.StatusBadRequest, "Permanent delete actions are disabled on this server")
	case rules.IsStoreIO(err), rules.IsStoreParse(err):
		log.Printf("ERROR: Failed to %s rule: %v", op, err)
		writeError(w, http.StatusInternalServerError, "Failed to "+op+" rule: "+err.Error())
	default:
		log.Printf("ERROR: Validation failed for rule: %v", err)
		writeError(w, http.StatusBadRequest, err.Error())
	}
}
