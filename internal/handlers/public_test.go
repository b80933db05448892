package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/tessaly/bookingd/internal/availability"
	"github.com/tessaly/bookingd/internal/engine"
	"github.com/tessaly/bookingd/internal/model"
	"github.com/tessaly/bookingd/internal/ranking"
	"github.com/tessaly/bookingd/internal/storage"
)

type stubConstraints struct{}

func (stubConstraints) LoadConstraints(context.Context, string, string, time.Time, time.Time) (storage.ConstraintSnapshot, error) {
	hours := make(map[int]availability.DayWindow, 7)
	for d := 0; d < 7; d++ {
		hours[d] = availability.DayWindow{OpenMinute: 9 * 60, CloseMinute: 17 * 60}
	}
	return storage.ConstraintSnapshot{
		Org: model.Organization{ID: "org-1", Timezone: "UTC"},
		Constraints: availability.Constraints{
			Location:     time.UTC,
			OpeningHours: hours,
			Holidays:     map[string]string{},
		},
	}, nil
}

func (stubConstraints) ServiceDuration(context.Context, string, string) (int, error) {
	return 0, storage.ErrNotFound
}

type stubBookings struct {
	mu    sync.Mutex
	next  int
	appts map[string]model.Appointment
	byKey map[string]string
}

func newStubBookings() *stubBookings {
	return &stubBookings{appts: map[string]model.Appointment{}, byKey: map[string]string{}}
}

func (s *stubBookings) ListBookedIntervals(context.Context, string, string, time.Time, time.Time, string) ([]availability.Interval, error) {
	return nil, nil
}

func (s *stubBookings) GetAppointment(_ context.Context, _, id string) (model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appts[id]
	if !ok {
		return model.Appointment{}, storage.ErrNotFound
	}
	return a, nil
}

func (s *stubBookings) FindByIdempotencyKey(_ context.Context, orgID, key string, _ time.Time) (model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.byKey[orgID+"|"+key]; ok {
		return s.appts[id], nil
	}
	return model.Appointment{}, storage.ErrNotFound
}

func (s *stubBookings) CreateAppointment(_ context.Context, p storage.CreateAppointmentParams) (model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	a := model.Appointment{
		ID:       "appt-1",
		OrgID:    p.OrgID,
		StaffID:  p.StaffID,
		StartsAt: p.Start,
		EndsAt:   p.End,
		Status:   model.AppointmentScheduled,
		Source:   p.Source,
	}
	s.appts[a.ID] = a
	if p.IdempotencyKey != "" {
		s.byKey[p.OrgID+"|"+p.IdempotencyKey] = a.ID
	}
	return a, nil
}

func (s *stubBookings) RescheduleAppointment(context.Context, storage.RescheduleParams) (model.Appointment, error) {
	return model.Appointment{}, storage.ErrNotFound
}

func (s *stubBookings) CancelAppointment(context.Context, string, string, string) (model.Appointment, error) {
	return model.Appointment{}, storage.ErrNotFound
}

type stubRankings struct{}

func (stubRankings) LoadAggregates(context.Context, string, time.Time) (ranking.Aggregates, error) {
	return ranking.Aggregates{}, nil
}

type stubOracle struct{}

func (stubOracle) FreeBusy(context.Context, string, time.Time, time.Time) ([]availability.Interval, error) {
	return nil, nil
}

func newTestPublicHandler() *PublicHandler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	eng := engine.New(stubConstraints{}, newStubBookings(), stubRankings{}, stubOracle{}, logger, engine.Config{})
	return NewPublicHandler(eng, nil, logger)
}

func TestAvailabilityEndpoint(t *testing.T) {
	h := newTestPublicHandler()

	from := time.Now().UTC().AddDate(0, 0, 7).Format("2006-01-02")
	req := httptest.NewRequest(http.MethodGet, "/api/v1/public/availability?org_id=org-1&from="+from+"&to="+from, nil)
	rec := httptest.NewRecorder()
	h.Availability(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp availabilityResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Slots) == 0 {
		t.Fatal("expected at least one slot")
	}
}

func TestAvailabilityEndpoint_MissingOrg(t *testing.T) {
	h := newTestPublicHandler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/public/availability?from=2026-03-02&to=2026-03-02", nil)
	rec := httptest.NewRecorder()
	h.Availability(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var body errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body.Field != "org_id" {
		t.Fatalf("expected org_id field in error, got %q", body.Field)
	}
}

func TestBookEndpoint(t *testing.T) {
	h := newTestPublicHandler()

	start := time.Now().UTC().AddDate(0, 0, 7)
	start = time.Date(start.Year(), start.Month(), start.Day(), 10, 0, 0, 0, time.UTC)
	payload, _ := json.Marshal(bookRequest{
		OrgID:         "org-1",
		StartTime:     start.Format(time.RFC3339),
		CustomerName:  "Ada Lovelace",
		CustomerPhone: "+64215550199",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/public/book", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	h.Book(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var view appointmentView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if view.Status != model.AppointmentScheduled {
		t.Fatalf("unexpected status %s", view.Status)
	}
}

func TestBookEndpoint_DuplicateReturns200(t *testing.T) {
	h := newTestPublicHandler()

	start := time.Now().UTC().AddDate(0, 0, 7)
	start = time.Date(start.Year(), start.Month(), start.Day(), 10, 0, 0, 0, time.UTC)
	payload, _ := json.Marshal(bookRequest{
		OrgID:         "org-1",
		StartTime:     start.Format(time.RFC3339),
		CustomerName:  "Ada Lovelace",
		CustomerPhone: "+64215550199",
	})

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/public/book", bytes.NewReader(payload))
		req.Header.Set("Idempotency-Key", "retry-123")
		rec := httptest.NewRecorder()
		h.Book(rec, req)
		return rec
	}

	if rec := send(); rec.Code != http.StatusCreated {
		t.Fatalf("first request: expected 201, got %d", rec.Code)
	}
	if rec := send(); rec.Code != http.StatusOK {
		t.Fatalf("replay: expected 200, got %d", rec.Code)
	}
}

func TestBookEndpoint_BadJSON(t *testing.T) {
	h := newTestPublicHandler()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/public/book", bytes.NewReader([]byte("{")))
	rec := httptest.NewRecorder()
	h.Book(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	h := newTestPublicHandler()

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/public/book", nil)
	rec := httptest.NewRecorder()
	h.Book(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}
