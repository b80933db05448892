package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tessaly/bookingd/internal/model"
	"github.com/tessaly/bookingd/internal/storage"
)

// AdminHandler manages the constraint sources: org rules, opening hours,
// holidays, staff, schedules, and services. Timezone is set at org creation
// and never updated here; changing it would silently move every stored
// opening-hours window.
type AdminHandler struct {
	constraints *storage.ConstraintRepository
	logger      *slog.Logger
}

func NewAdminHandler(constraints *storage.ConstraintRepository, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{constraints: constraints, logger: logger}
}

func (h *AdminHandler) writeStoreError(w http.ResponseWriter, action string, err error) {
	switch {
	case storage.IsNotFound(err):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not found"})
	case storage.IsConflict(err):
		writeJSON(w, http.StatusConflict, errorBody{Error: "conflict"})
	default:
		h.logger.Error(action+" failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

type orgRequest struct {
	Name            string `json:"name"`
	Timezone        string `json:"timezone"`
	LeadTimeMin     int    `json:"lead_time_minutes"`
	BufferBeforeMin int    `json:"buffer_before_minutes"`
	BufferAfterMin  int    `json:"buffer_after_minutes"`
	AllowOverlaps   bool   `json:"allow_overlaps"`
}

type orgView struct {
	OrgID           string `json:"org_id"`
	Name            string `json:"name"`
	Timezone        string `json:"timezone"`
	LeadTimeMin     int    `json:"lead_time_minutes"`
	BufferBeforeMin int    `json:"buffer_before_minutes"`
	BufferAfterMin  int    `json:"buffer_after_minutes"`
	AllowOverlaps   bool   `json:"allow_overlaps"`
}

func orgViewOf(o model.Organization) orgView {
	return orgView{
		OrgID:           o.ID,
		Name:            o.Name,
		Timezone:        o.Timezone,
		LeadTimeMin:     o.Rules.LeadTimeMin,
		BufferBeforeMin: o.Rules.BufferBeforeMin,
		BufferAfterMin:  o.Rules.BufferAfterMin,
		AllowOverlaps:   o.Rules.AllowOverlaps,
	}
}

func (h *AdminHandler) CreateOrganization(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req orgRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid json body"})
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Timezone = strings.TrimSpace(req.Timezone)
	if req.Name == "" || req.Timezone == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "name and timezone required"})
		return
	}
	if req.LeadTimeMin < 0 || req.BufferBeforeMin < 0 || req.BufferAfterMin < 0 {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "minutes must not be negative"})
		return
	}

	org, err := h.constraints.CreateOrganization(r.Context(), req.Name, req.Timezone, model.BookingRules{
		LeadTimeMin:     req.LeadTimeMin,
		BufferBeforeMin: req.BufferBeforeMin,
		BufferAfterMin:  req.BufferAfterMin,
		AllowOverlaps:   req.AllowOverlaps,
	})
	if err != nil {
		if storage.IsInvalidTimezone(err) {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "unknown IANA timezone", Field: "timezone"})
			return
		}
		h.writeStoreError(w, "create organization", err)
		return
	}
	writeJSON(w, http.StatusCreated, orgViewOf(org))
}

func (h *AdminHandler) GetOrganization(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	orgID := strings.TrimSpace(r.URL.Query().Get("org_id"))
	if orgID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "required", Field: "org_id"})
		return
	}
	org, err := h.constraints.GetOrganization(r.Context(), orgID)
	if err != nil {
		h.writeStoreError(w, "get organization", err)
		return
	}
	writeJSON(w, http.StatusOK, orgViewOf(org))
}

type rulesRequest struct {
	OrgID           string `json:"org_id"`
	LeadTimeMin     int    `json:"lead_time_minutes"`
	BufferBeforeMin int    `json:"buffer_before_minutes"`
	BufferAfterMin  int    `json:"buffer_after_minutes"`
	AllowOverlaps   bool   `json:"allow_overlaps"`
}

func (h *AdminHandler) UpdateBookingRules(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req rulesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid json body"})
		return
	}
	if strings.TrimSpace(req.OrgID) == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "required", Field: "org_id"})
		return
	}
	if req.LeadTimeMin < 0 || req.BufferBeforeMin < 0 || req.BufferAfterMin < 0 {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "minutes must not be negative"})
		return
	}

	err := h.constraints.UpdateBookingRules(r.Context(), req.OrgID, model.BookingRules{
		LeadTimeMin:     req.LeadTimeMin,
		BufferBeforeMin: req.BufferBeforeMin,
		BufferAfterMin:  req.BufferAfterMin,
		AllowOverlaps:   req.AllowOverlaps,
	})
	if err != nil {
		h.writeStoreError(w, "update booking rules", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type openingHoursRequest struct {
	OrgID string `json:"org_id"`
	Hours []struct {
		Weekday     int `json:"weekday"`
		OpenMinute  int `json:"open_minute"`
		CloseMinute int `json:"close_minute"`
	} `json:"hours"`
}

func (h *AdminHandler) UpsertOpeningHours(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req openingHoursRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid json body"})
		return
	}
	if strings.TrimSpace(req.OrgID) == "" || len(req.Hours) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "org_id and hours required"})
		return
	}
	for _, day := range req.Hours {
		if day.Weekday < 0 || day.Weekday > 6 {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "weekday must be 0-6", Field: "weekday"})
			return
		}
		// Minutes past local midnight; close <= open marks the day closed.
		if day.OpenMinute < 0 || day.CloseMinute < 0 || day.OpenMinute > 24*60 || day.CloseMinute > 24*60 {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "minute out of range"})
			return
		}
	}

	for _, day := range req.Hours {
		err := h.constraints.UpsertOpeningHours(r.Context(), model.OpeningHours{
			OrgID:       req.OrgID,
			Weekday:     day.Weekday,
			OpenMinute:  day.OpenMinute,
			CloseMinute: day.CloseMinute,
		})
		if err != nil {
			h.writeStoreError(w, "upsert opening hours", err)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

type holidayRequest struct {
	OrgID string `json:"org_id"`
	Date  string `json:"date"`
	Label string `json:"label"`
}

func (h *AdminHandler) Holidays(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		orgID := strings.TrimSpace(r.URL.Query().Get("org_id"))
		if orgID == "" {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "required", Field: "org_id"})
			return
		}
		holidays, err := h.constraints.ListHolidays(r.Context(), orgID)
		if err != nil {
			h.writeStoreError(w, "list holidays", err)
			return
		}
		out := make([]holidayRequest, 0, len(holidays))
		for _, hol := range holidays {
			out = append(out, holidayRequest{OrgID: hol.OrgID, Date: hol.Date, Label: hol.Label})
		}
		writeJSON(w, http.StatusOK, out)
	case http.MethodPost:
		var req holidayRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid json body"})
			return
		}
		if !validDate(req.Date) {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "date must be YYYY-MM-DD", Field: "date"})
			return
		}
		if strings.TrimSpace(req.OrgID) == "" {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "required", Field: "org_id"})
			return
		}
		err := h.constraints.AddHoliday(r.Context(), model.Holiday{OrgID: req.OrgID, Date: req.Date, Label: strings.TrimSpace(req.Label)})
		if err != nil {
			h.writeStoreError(w, "add holiday", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case http.MethodDelete:
		orgID := strings.TrimSpace(r.URL.Query().Get("org_id"))
		date := strings.TrimSpace(r.URL.Query().Get("date"))
		if orgID == "" || !validDate(date) {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "org_id and date required"})
			return
		}
		if err := h.constraints.DeleteHoliday(r.Context(), orgID, date); err != nil {
			h.writeStoreError(w, "delete holiday", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

type staffRequest struct {
	OrgID      string `json:"org_id"`
	Name       string `json:"name"`
	CalendarID string `json:"calendar_id"`
}

type staffView struct {
	StaffID    string `json:"staff_id"`
	OrgID      string `json:"org_id"`
	Name       string `json:"name"`
	IsActive   bool   `json:"is_active"`
	CalendarID string `json:"calendar_id,omitempty"`
}

func (h *AdminHandler) Staff(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		orgID := strings.TrimSpace(r.URL.Query().Get("org_id"))
		if orgID == "" {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "required", Field: "org_id"})
			return
		}
		staff, err := h.constraints.ListStaff(r.Context(), orgID)
		if err != nil {
			h.writeStoreError(w, "list staff", err)
			return
		}
		out := make([]staffView, 0, len(staff))
		for _, s := range staff {
			out = append(out, staffView{StaffID: s.ID, OrgID: s.OrgID, Name: s.Name, IsActive: s.IsActive, CalendarID: s.CalendarID})
		}
		writeJSON(w, http.StatusOK, out)
	case http.MethodPost:
		var req staffRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid json body"})
			return
		}
		req.Name = strings.TrimSpace(req.Name)
		if strings.TrimSpace(req.OrgID) == "" || req.Name == "" {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "org_id and name required"})
			return
		}
		s, err := h.constraints.CreateStaff(r.Context(), req.OrgID, req.Name, strings.TrimSpace(req.CalendarID))
		if err != nil {
			h.writeStoreError(w, "create staff", err)
			return
		}
		writeJSON(w, http.StatusCreated, staffView{StaffID: s.ID, OrgID: s.OrgID, Name: s.Name, IsActive: s.IsActive, CalendarID: s.CalendarID})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

type scheduleRequest struct {
	OrgID   string `json:"org_id"`
	StaffID string `json:"staff_id"`
	Weekday int    `json:"weekday"`
	Windows []struct {
		StartMinute int `json:"start_minute"`
		EndMinute   int `json:"end_minute"`
	} `json:"windows"`
}

// ReplaceSchedule swaps a staff member's working windows for one weekday.
// Sending an empty windows list makes the staff member unavailable that day.
func (h *AdminHandler) ReplaceSchedule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid json body"})
		return
	}
	if strings.TrimSpace(req.OrgID) == "" || strings.TrimSpace(req.StaffID) == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "org_id and staff_id required"})
		return
	}
	if req.Weekday < 0 || req.Weekday > 6 {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "weekday must be 0-6", Field: "weekday"})
		return
	}

	windows := make([]model.StaffSchedule, 0, len(req.Windows))
	for _, win := range req.Windows {
		if win.StartMinute < 0 || win.EndMinute <= win.StartMinute || win.EndMinute > 24*60 {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid window minutes"})
			return
		}
		windows = append(windows, model.StaffSchedule{
			StaffID:     req.StaffID,
			Weekday:     req.Weekday,
			StartMinute: win.StartMinute,
			EndMinute:   win.EndMinute,
		})
	}

	if err := h.constraints.ReplaceStaffSchedule(r.Context(), req.OrgID, req.StaffID, req.Weekday, windows); err != nil {
		h.writeStoreError(w, "replace staff schedule", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type serviceRequest struct {
	OrgID       string `json:"org_id"`
	Name        string `json:"name"`
	DurationMin int    `json:"duration_minutes"`
}

type serviceView struct {
	ServiceID   string `json:"service_id"`
	OrgID       string `json:"org_id"`
	Name        string `json:"name"`
	DurationMin int    `json:"duration_minutes"`
}

func (h *AdminHandler) Services(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		orgID := strings.TrimSpace(r.URL.Query().Get("org_id"))
		if orgID == "" {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "required", Field: "org_id"})
			return
		}
		services, err := h.constraints.ListServices(r.Context(), orgID)
		if err != nil {
			h.writeStoreError(w, "list services", err)
			return
		}
		out := make([]serviceView, 0, len(services))
		for _, s := range services {
			out = append(out, serviceView{ServiceID: s.ID, OrgID: s.OrgID, Name: s.Name, DurationMin: s.DurationMin})
		}
		writeJSON(w, http.StatusOK, out)
	case http.MethodPost:
		var req serviceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid json body"})
			return
		}
		req.Name = strings.TrimSpace(req.Name)
		if strings.TrimSpace(req.OrgID) == "" || req.Name == "" {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "org_id and name required"})
			return
		}
		if req.DurationMin <= 0 || req.DurationMin > 8*60 {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "duration_minutes must be 1-480", Field: "duration_minutes"})
			return
		}
		s, err := h.constraints.CreateService(r.Context(), req.OrgID, req.Name, req.DurationMin)
		if err != nil {
			h.writeStoreError(w, "create service", err)
			return
		}
		writeJSON(w, http.StatusCreated, serviceView{ServiceID: s.ID, OrgID: s.OrgID, Name: s.Name, DurationMin: s.DurationMin})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func validDate(s string) bool {
	_, err := time.Parse("2006-01-02", s)
	return err == nil
}
