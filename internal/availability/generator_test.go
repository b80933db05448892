package availability

import (
	"testing"
	"time"
)

func TestGenerator_AlignsToGranularity(t *testing.T) {
	loc := time.UTC
	// Window starts off-grid at 09:07; candidates stay on 15-minute marks.
	start := time.Date(2026, 3, 2, 9, 7, 0, 0, loc)
	end := time.Date(2026, 3, 2, 10, 0, 0, 0, loc)

	gen := NewGenerator(Interval{Start: start, End: end}, 30*time.Minute, 15*time.Minute, loc)
	slots := gen.Collect()

	if len(slots) != 2 {
		t.Fatalf("expected 2 slots, got %d", len(slots))
	}
	want := time.Date(2026, 3, 2, 9, 15, 0, 0, loc)
	if !slots[0].Start.Equal(want) {
		t.Fatalf("expected first slot at 09:15, got %s", slots[0].Start)
	}
}

func TestGenerator_EmitsPerDayBatches(t *testing.T) {
	loc := time.UTC
	start := time.Date(2026, 3, 2, 0, 0, 0, 0, loc)
	end := start.AddDate(0, 0, 3)

	gen := NewGenerator(Interval{Start: start, End: end}, 30*time.Minute, 30*time.Minute, loc)
	days := 0
	for {
		batch, ok := gen.NextDay()
		if !ok {
			break
		}
		days++
		if len(batch) != 48 {
			t.Fatalf("day %d: expected 48 candidates, got %d", days, len(batch))
		}
	}
	if days != 3 {
		t.Fatalf("expected 3 day batches, got %d", days)
	}
}

func TestGenerator_SlotMustFitWindow(t *testing.T) {
	loc := time.UTC
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, loc)

	// 50-minute window, 30-minute slots on 15-minute steps: 09:00 and 09:15 fit.
	gen := NewGenerator(Interval{Start: start, End: start.Add(50 * time.Minute)}, 30*time.Minute, 15*time.Minute, loc)
	slots := gen.Collect()
	if len(slots) != 2 {
		t.Fatalf("expected 2 slots, got %d", len(slots))
	}
	last := slots[len(slots)-1]
	if last.End.After(start.Add(50 * time.Minute)) {
		t.Fatalf("slot end %s leaks past window end", last.End)
	}
}

func TestGenerator_DegenerateInputs(t *testing.T) {
	loc := time.UTC
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, loc)

	if got := NewGenerator(Interval{Start: start, End: start}, 30*time.Minute, 15*time.Minute, loc).Collect(); len(got) != 0 {
		t.Fatalf("empty window: expected no slots, got %d", len(got))
	}
	if got := NewGenerator(Interval{Start: start, End: start.Add(time.Hour)}, 0, 15*time.Minute, loc).Collect(); len(got) != 0 {
		t.Fatalf("zero duration: expected no slots, got %d", len(got))
	}
	if got := NewGenerator(Interval{Start: start, End: start.Add(time.Hour)}, 30*time.Minute, 15*time.Minute, nil).Collect(); len(got) != 0 {
		t.Fatalf("nil location: expected no slots, got %d", len(got))
	}
}

func TestGenerator_DSTFallBack(t *testing.T) {
	loc := mustLoad(t, "Pacific/Auckland")
	// NZ DST ends 2026-04-05: 03:00 NZDT becomes 02:00 NZST, a 25-hour day.
	start := time.Date(2026, 4, 5, 0, 0, 0, 0, loc)
	end := start.AddDate(0, 0, 1)

	gen := NewGenerator(Interval{Start: start, End: end}, 60*time.Minute, 60*time.Minute, loc)
	slots := gen.Collect()
	if len(slots) != 25 {
		t.Fatalf("expected 25 hourly candidates across the fall-back day, got %d", len(slots))
	}
}
