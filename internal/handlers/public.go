package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tessaly/bookingd/internal/engine"
	"github.com/tessaly/bookingd/internal/hold"
	"github.com/tessaly/bookingd/internal/storage"
)

// PublicHandler serves the customer-facing booking pages: browse slots, hold
// a slot, book it.
type PublicHandler struct {
	engine *engine.Engine
	holds  *hold.Store
	logger *slog.Logger
}

func NewPublicHandler(eng *engine.Engine, holds *hold.Store, logger *slog.Logger) *PublicHandler {
	return &PublicHandler{engine: eng, holds: holds, logger: logger}
}

type availabilityResponse struct {
	Slots       []slotView         `json:"slots"`
	Diagnostics engine.Diagnostics `json:"diagnostics"`
}

func (h *PublicHandler) Availability(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	qp := r.URL.Query()
	q := engine.AvailabilityQuery{
		OrgID:     strings.TrimSpace(qp.Get("org_id")),
		StaffID:   strings.TrimSpace(qp.Get("staff_id")),
		ServiceID: strings.TrimSpace(qp.Get("service_id")),
		FromDate:  strings.TrimSpace(qp.Get("from")),
		ToDate:    strings.TrimSpace(qp.Get("to")),
	}
	if raw := strings.TrimSpace(qp.Get("duration_minutes")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 8*60 {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid duration_minutes", Field: "duration_minutes"})
			return
		}
		q.DurationMin = n
	}

	// Absolute timestamps win over date-only bounds when both are sent.
	if raw := strings.TrimSpace(qp.Get("from_time")); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid from_time", Field: "from_time"})
			return
		}
		q.From, q.FromDate = t, ""
	}
	if raw := strings.TrimSpace(qp.Get("to_time")); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid to_time", Field: "to_time"})
			return
		}
		q.To, q.ToDate = t, ""
	}

	res, err := h.engine.Availability(r.Context(), q)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, availabilityResponse{
		Slots:       slotViewsOf(res.Slots),
		Diagnostics: res.Diagnostics,
	})
}

type bookRequest struct {
	OrgID         string `json:"org_id"`
	StaffID       string `json:"staff_id"`
	ServiceID     string `json:"service_id"`
	StartTime     string `json:"start_time"`
	DurationMin   int    `json:"duration_minutes"`
	CustomerName  string `json:"customer_name"`
	CustomerPhone string `json:"customer_phone"`
	CustomerEmail string `json:"customer_email"`
	HoldToken     string `json:"hold_token"`
}

func (h *PublicHandler) Book(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
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
		Source:         "public",
		IdempotencyKey: strings.TrimSpace(r.Header.Get("Idempotency-Key")),
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}

	// The hold served its purpose; releasing it is best-effort.
	if req.HoldToken != "" && h.holds != nil {
		if err := h.holds.Release(r.Context(), req.OrgID, req.HoldToken); err != nil {
			h.logger.Warn("hold release failed", "org_id", req.OrgID, "err", err)
		}
	}

	status := http.StatusCreated
	if res.Duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, viewOf(res.Appointment))
}

type holdRequest struct {
	OrgID     string `json:"org_id"`
	StaffID   string `json:"staff_id"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

func (h *PublicHandler) PlaceHold(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.holds == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "holds not enabled"})
		return
	}

	var req holdRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid json body"})
		return
	}
	req.OrgID = strings.TrimSpace(req.OrgID)
	if req.OrgID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "required", Field: "org_id"})
		return
	}
	start, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid start_time", Field: "start_time"})
		return
	}
	end, err := time.Parse(time.RFC3339, req.EndTime)
	if err != nil || !end.After(start) {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "end_time must be after start_time", Field: "end_time"})
		return
	}

	placed, err := h.holds.Place(r.Context(), req.OrgID, strings.TrimSpace(req.StaffID), start, end)
	if err != nil {
		h.logger.Error("place hold failed", "org_id", req.OrgID, "err", err)
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "hold store unavailable"})
		return
	}
	writeJSON(w, http.StatusCreated, placed)
}

func (h *PublicHandler) ReleaseHold(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.holds == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "holds not enabled"})
		return
	}

	var req struct {
		OrgID string `json:"org_id"`
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid json body"})
		return
	}
	if req.OrgID == "" || req.Token == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "org_id and token required"})
		return
	}
	if err := h.holds.Release(r.Context(), req.OrgID, req.Token); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "hold store unavailable"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
