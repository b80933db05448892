package oracle

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestFreeBusy_ParsesBusyIntervals(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/freebusy" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")

		var req freeBusyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.CalendarID != "cal-1" {
			t.Errorf("unexpected calendar id %s", req.CalendarID)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"busy":[
			{"start":"2026-03-02T10:00:00Z","end":"2026-03-02T11:00:00Z"},
			{"start":"not-a-time","end":"2026-03-02T12:00:00Z"},
			{"start":"2026-03-02T13:00:00Z","end":"2026-03-02T13:00:00Z"}
		]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret", time.Second)
	from := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	busy, err := c.FreeBusy(context.Background(), "cal-1", from, from.Add(8*time.Hour))
	if err != nil {
		t.Fatalf("FreeBusy: %v", err)
	}
	// Unparseable and empty intervals are dropped, not fatal.
	if len(busy) != 1 {
		t.Fatalf("expected 1 busy interval, got %d", len(busy))
	}
	if !busy[0].Start.Equal(time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected busy start %s", busy[0].Start)
	}
	if gotAuth != "Bearer secret" {
		t.Fatalf("expected bearer auth, got %q", gotAuth)
	}
}

func TestFreeBusy_Non200IsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second)
	if _, err := c.FreeBusy(context.Background(), "cal-1", time.Now(), time.Now().Add(time.Hour)); err == nil {
		t.Fatal("expected error on 502 response")
	}
}

func TestFreeBusy_TimeoutSurfacesAsError(t *testing.T) {
	blocked := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		<-blocked
	}))
	defer srv.Close()
	defer close(blocked)

	c := NewClient(srv.URL, "", 50*time.Millisecond)
	if _, err := c.FreeBusy(context.Background(), "cal-1", time.Now(), time.Now().Add(time.Hour)); err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestNoop_ReturnsNothing(t *testing.T) {
	busy, err := Noop{}.FreeBusy(context.Background(), "cal-1", time.Now(), time.Now().Add(time.Hour))
	if err != nil || busy != nil {
		t.Fatalf("noop oracle: got %v, %v", busy, err)
	}
}
