package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tessaly/bookingd/internal/engine"
	"github.com/tessaly/bookingd/internal/model"
	"github.com/tessaly/bookingd/internal/storage"
)

// StaffHandler is the staff-portal channel: the day view plus moving,
// cancelling, and marking appointments.
type StaffHandler struct {
	engine   *engine.Engine
	bookings *storage.BookingRepository
	logger   *slog.Logger
}

func NewStaffHandler(eng *engine.Engine, bookings *storage.BookingRepository, logger *slog.Logger) *StaffHandler {
	return &StaffHandler{engine: eng, bookings: bookings, logger: logger}
}

func (h *StaffHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	qp := r.URL.Query()
	orgID := strings.TrimSpace(qp.Get("org_id"))
	if orgID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "required", Field: "org_id"})
		return
	}

	from := time.Now().UTC().Truncate(24 * time.Hour)
	to := from.AddDate(0, 0, 7)
	if raw := strings.TrimSpace(qp.Get("from_time")); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid from_time", Field: "from_time"})
			return
		}
		from = t
	}
	if raw := strings.TrimSpace(qp.Get("to_time")); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid to_time", Field: "to_time"})
			return
		}
		to = t
	}

	limit := 50
	if raw := strings.TrimSpace(qp.Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	appts, err := h.bookings.ListByOrg(r.Context(), orgID, from, to, limit)
	if err != nil {
		h.logger.Error("list appointments failed", "org_id", orgID, "err", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "failed to list appointments"})
		return
	}

	items := make([]appointmentView, 0, len(appts))
	for _, a := range appts {
		items = append(items, viewOf(a))
	}
	writeJSON(w, http.StatusOK, items)
}

type rescheduleRequest struct {
	OrgID         string `json:"org_id"`
	AppointmentID string `json:"appointment_id"`
	NewStartTime  string `json:"new_start_time"`
}

func (h *StaffHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req rescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid json body"})
		return
	}
	newStart, err := time.Parse(time.RFC3339, req.NewStartTime)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid new_start_time", Field: "new_start_time"})
		return
	}

	moved, err := h.engine.Reschedule(r.Context(), engine.RescheduleRequest{
		OrgID:         strings.TrimSpace(req.OrgID),
		AppointmentID: strings.TrimSpace(req.AppointmentID),
		NewStart:      newStart,
		Source:        "staff",
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(moved))
}

type cancelRequest struct {
	OrgID         string `json:"org_id"`
	AppointmentID string `json:"appointment_id"`
	Reason        string `json:"reason"`
}

func (h *StaffHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid json body"})
		return
	}

	cancelled, err := h.engine.Cancel(r.Context(), strings.TrimSpace(req.OrgID), strings.TrimSpace(req.AppointmentID), strings.TrimSpace(req.Reason))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(cancelled))
}

type statusRequest struct {
	OrgID         string `json:"org_id"`
	AppointmentID string `json:"appointment_id"`
	Status        string `json:"status"`
}

// Status marks completed or no-show outcomes. Cancellation has its own
// endpoint because it emits events and is idempotent.
func (h *StaffHandler) Status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid json body"})
		return
	}
	req.Status = strings.TrimSpace(req.Status)
	if req.Status != model.AppointmentCompleted && req.Status != model.AppointmentNoShow {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "status must be completed or no_show", Field: "status"})
		return
	}

	appt, err := h.bookings.UpdateStatus(r.Context(), strings.TrimSpace(req.OrgID), strings.TrimSpace(req.AppointmentID), req.Status)
	if err != nil {
		if storage.IsNotFound(err) {
			writeJSON(w, http.StatusNotFound, errorBody{Error: "not found"})
			return
		}
		h.logger.Error("status update failed", "appointment_id", req.AppointmentID, "err", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "failed to update status"})
		return
	}
	writeJSON(w, http.StatusOK, viewOf(appt))
}
