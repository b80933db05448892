package handlers

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tessaly/bookingd/internal/engine"
	"github.com/tessaly/bookingd/internal/storage"
)

// AutomationHandler is the server-to-server channel (partner integrations,
// voice agents). Callers authenticate with a static API key and must send an
// idempotency key: automation clients retry aggressively.
type AutomationHandler struct {
	engine *engine.Engine
	apiKey string
	logger *slog.Logger
}

func NewAutomationHandler(eng *engine.Engine, apiKey string, logger *slog.Logger) *AutomationHandler {
	return &AutomationHandler{engine: eng, apiKey: apiKey, logger: logger}
}

func (h *AutomationHandler) authorized(r *http.Request) bool {
	if h.apiKey == "" {
		return false
	}
	got := strings.TrimSpace(r.Header.Get("X-Api-Key"))
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.apiKey)) == 1
}

func (h *AutomationHandler) Book(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !h.authorized(r) {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "invalid api key"})
		return
	}

	idempotencyKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if idempotencyKey == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "Idempotency-Key header required"})
		return
	}

	var req bookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid json body"})
		return
	}
	start, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid start_time", Field: "start_time"})
		return
	}

	res, err := h.engine.Book(r.Context(), engine.BookRequest{
		OrgID:       strings.TrimSpace(req.OrgID),
		StaffID:     strings.TrimSpace(req.StaffID),
		ServiceID:   strings.TrimSpace(req.ServiceID),
		Start:       start,
		DurationMin: req.DurationMin,
		Customer: storage.CustomerInfo{
			Name:  req.CustomerName,
			Phone: req.CustomerPhone,
			Email: req.CustomerEmail,
		},
		Source:         "automation",
		IdempotencyKey: idempotencyKey,
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}

	status := http.StatusCreated
	if res.Duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, viewOf(res.Appointment))
}
