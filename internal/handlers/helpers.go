// Package handlers exposes the booking engine over HTTP for the three
// channels: public booking pages, the staff portal, and server-to-server
// automation clients.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/tessaly/bookingd/internal/engine"
	"github.com/tessaly/bookingd/internal/model"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

type errorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// writeEngineError maps engine sentinels onto HTTP statuses. Conflict gets
// 409 so clients know to re-fetch availability rather than retry as-is.
func writeEngineError(w http.ResponseWriter, err error) {
	var ve *engine.ValidationError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: ve.Reason, Field: ve.Field})
	case errors.Is(err, engine.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not found"})
	case errors.Is(err, engine.ErrConflict):
		writeJSON(w, http.StatusConflict, errorBody{Error: "slot no longer available"})
	case errors.Is(err, engine.ErrStoreUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "temporarily unavailable, retry later"})
	default:
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

type appointmentView struct {
	AppointmentID string `json:"appointment_id"`
	OrgID         string `json:"org_id"`
	StaffID       string `json:"staff_id,omitempty"`
	ServiceID     string `json:"service_id,omitempty"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
	Status        string `json:"status"`
	Source        string `json:"source,omitempty"`
	CancelledAt   string `json:"cancelled_at,omitempty"`
	CreatedAt     string `json:"created_at,omitempty"`
}

func viewOf(a model.Appointment) appointmentView {
	v := appointmentView{
		AppointmentID: a.ID,
		OrgID:         a.OrgID,
		StaffID:       a.StaffID,
		ServiceID:     a.ServiceID,
		StartTime:     a.StartsAt.UTC().Format(time.RFC3339),
		EndTime:       a.EndsAt.UTC().Format(time.RFC3339),
		Status:        a.Status,
		Source:        a.Source,
	}
	if a.CancelledAt != nil {
		v.CancelledAt = a.CancelledAt.UTC().Format(time.RFC3339)
	}
	if !a.CreatedAt.IsZero() {
		v.CreatedAt = a.CreatedAt.UTC().Format(time.RFC3339)
	}
	return v
}

type slotView struct {
	StartTime string  `json:"start_time"`
	EndTime   string  `json:"end_time"`
	StaffID   string  `json:"staff_id,omitempty"`
	Score     float64 `json:"score"`
}

func slotViewsOf(slots []model.Slot) []slotView {
	out := make([]slotView, 0, len(slots))
	for _, s := range slots {
		out = append(out, slotView{
			StartTime: s.Start.UTC().Format(time.RFC3339),
			EndTime:   s.End.UTC().Format(time.RFC3339),
			StaffID:   s.StaffID,
			Score:     s.Score,
		})
	}
	return out
}
