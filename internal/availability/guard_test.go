package availability

import (
	"testing"
	"time"
)

func mustLoad(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Fatalf("load location %s: %v", name, err)
	}
	return loc
}

func openAllWeek(open, close int) map[int]DayWindow {
	hours := make(map[int]DayWindow, 7)
	for d := 0; d < 7; d++ {
		hours[d] = DayWindow{OpenMinute: open, CloseMinute: close}
	}
	return hours
}

func TestFilter_AucklandMondayMorning(t *testing.T) {
	loc := mustLoad(t, "Pacific/Auckland")
	// 2026-03-02 is a Monday.
	monday9 := time.Date(2026, 3, 2, 9, 0, 0, 0, loc)

	c := Constraints{
		Location:     loc,
		OpeningHours: map[int]DayWindow{1: {OpenMinute: 9 * 60, CloseMinute: 17 * 60}},
		Holidays:     map[string]string{},
	}

	gen := NewGenerator(Interval{Start: monday9, End: monday9.Add(time.Hour)}, 30*time.Minute, 30*time.Minute, loc)
	now := monday9.Add(-48 * time.Hour)
	kept, rej := Filter(gen.Collect(), c, nil, nil, now)

	if len(kept) != 2 {
		t.Fatalf("expected 2 slots, got %d (rejections %+v)", len(kept), rej)
	}
	if !kept[0].Start.Equal(monday9) || !kept[0].End.Equal(monday9.Add(30*time.Minute)) {
		t.Fatalf("expected first slot 09:00-09:30, got %s-%s", kept[0].Start, kept[0].End)
	}
	if !kept[1].Start.Equal(monday9.Add(30*time.Minute)) || !kept[1].End.Equal(monday9.Add(time.Hour)) {
		t.Fatalf("expected second slot 09:30-10:00, got %s-%s", kept[1].Start, kept[1].End)
	}
}

func TestFilter_BufferBlocksAdjacency(t *testing.T) {
	loc := time.UTC
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, loc)

	c := Constraints{
		Location:     loc,
		OpeningHours: openAllWeek(0, 24*60),
		BufferAfter:  15 * time.Minute,
	}
	existing := []Interval{
		{Start: day.Add(10 * time.Hour), End: day.Add(10*time.Hour + 30*time.Minute)},
	}

	candidates := []Interval{
		{Start: day.Add(10*time.Hour + 30*time.Minute), End: day.Add(11 * time.Hour)},
		{Start: day.Add(10*time.Hour + 45*time.Minute), End: day.Add(11*time.Hour + 15*time.Minute)},
	}
	kept, rej := Filter(candidates, c, existing, nil, day)

	// 10:00-10:30 with 15 min after-buffer blocks through 10:45.
	if len(kept) != 1 {
		t.Fatalf("expected 1 slot, got %d", len(kept))
	}
	if !kept[0].Start.Equal(day.Add(10*time.Hour + 45*time.Minute)) {
		t.Fatalf("expected 10:45 to survive, got %s", kept[0].Start)
	}
	if rej.Booked != 1 {
		t.Fatalf("expected 1 booked rejection, got %+v", rej)
	}
}

func TestFilter_HolidayOverridesOpeningHours(t *testing.T) {
	loc := time.UTC
	day := time.Date(2026, 3, 2, 9, 0, 0, 0, loc)

	c := Constraints{
		Location:     loc,
		OpeningHours: openAllWeek(9*60, 17*60),
		Holidays:     map[string]string{"2026-03-02": "labour day"},
	}

	candidates := []Interval{
		{Start: day, End: day.Add(30 * time.Minute)},
		{Start: day.Add(30 * time.Minute), End: day.Add(time.Hour)},
	}
	kept, rej := Filter(candidates, c, nil, nil, day.Add(-24*time.Hour))
	if len(kept) != 0 {
		t.Fatalf("expected 0 slots on a holiday, got %d", len(kept))
	}
	if rej.Holiday != 2 {
		t.Fatalf("expected 2 holiday rejections, got %+v", rej)
	}
}

func TestFilter_LeadTimeBoundaryInclusive(t *testing.T) {
	loc := time.UTC
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, loc)

	c := Constraints{
		Location:     loc,
		OpeningHours: openAllWeek(0, 24*60),
		LeadTime:     60 * time.Minute,
	}

	atBoundary := Interval{Start: now.Add(time.Hour), End: now.Add(90 * time.Minute)}
	oneMinEarly := Interval{Start: now.Add(59 * time.Minute), End: now.Add(89 * time.Minute)}

	kept, rej := Filter([]Interval{oneMinEarly, atBoundary}, c, nil, nil, now)
	if len(kept) != 1 || !kept[0].Start.Equal(atBoundary.Start) {
		t.Fatalf("expected only the boundary slot, got %d kept", len(kept))
	}
	if rej.LeadTime != 1 {
		t.Fatalf("expected 1 lead-time rejection, got %+v", rej)
	}
}

func TestFilter_StaffScheduleIntersectsOpeningHours(t *testing.T) {
	loc := time.UTC
	// A Monday; org open 09:00-17:00, staff works 13:00-17:00.
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, loc)

	c := Constraints{
		Location:     loc,
		OpeningHours: map[int]DayWindow{1: {OpenMinute: 9 * 60, CloseMinute: 17 * 60}},
		StaffWindows: map[int][]DayWindow{1: {{OpenMinute: 13 * 60, CloseMinute: 17 * 60}}},
		StaffScoped:  true,
	}

	candidates := []Interval{
		{Start: day.Add(10 * time.Hour), End: day.Add(10*time.Hour + 30*time.Minute)},
		{Start: day.Add(13 * time.Hour), End: day.Add(13*time.Hour + 30*time.Minute)},
	}
	kept, _ := Filter(candidates, c, nil, nil, day)
	if len(kept) != 1 || !kept[0].Start.Equal(day.Add(13*time.Hour)) {
		t.Fatalf("expected only the 13:00 slot inside the staff window, got %d kept", len(kept))
	}
}

func TestFilter_StaffOffDayYieldsNothing(t *testing.T) {
	loc := time.UTC
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, loc) // Monday

	c := Constraints{
		Location:     loc,
		OpeningHours: map[int]DayWindow{1: {OpenMinute: 9 * 60, CloseMinute: 17 * 60}},
		StaffWindows: map[int][]DayWindow{2: {{OpenMinute: 9 * 60, CloseMinute: 17 * 60}}},
		StaffScoped:  true,
	}

	candidates := []Interval{{Start: day.Add(10 * time.Hour), End: day.Add(10*time.Hour + 30*time.Minute)}}
	kept, rej := Filter(candidates, c, nil, nil, day)
	if len(kept) != 0 {
		t.Fatalf("staff has no Monday schedule, expected 0 slots, got %d", len(kept))
	}
	if rej.OutsideHours != 1 {
		t.Fatalf("expected outside-hours rejection, got %+v", rej)
	}
}

func TestFilter_AllowOverlapsSkipsBookedCheck(t *testing.T) {
	loc := time.UTC
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, loc)

	c := Constraints{
		Location:      loc,
		OpeningHours:  openAllWeek(0, 24*60),
		AllowOverlaps: true,
	}
	existing := []Interval{{Start: day.Add(10 * time.Hour), End: day.Add(11 * time.Hour)}}
	candidates := []Interval{{Start: day.Add(10 * time.Hour), End: day.Add(10*time.Hour + 30*time.Minute)}}

	kept, _ := Filter(candidates, c, existing, nil, day)
	if len(kept) != 1 {
		t.Fatalf("allow_overlaps org should keep the overlapping slot, got %d", len(kept))
	}
}

func TestFilter_BusyIntervalsBlock(t *testing.T) {
	loc := time.UTC
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, loc)

	c := Constraints{
		Location:     loc,
		OpeningHours: openAllWeek(0, 24*60),
	}
	busy := []Interval{{Start: day.Add(10 * time.Hour), End: day.Add(11 * time.Hour)}}
	candidates := []Interval{
		{Start: day.Add(10*time.Hour + 30*time.Minute), End: day.Add(11 * time.Hour)},
		{Start: day.Add(11 * time.Hour), End: day.Add(11*time.Hour + 30*time.Minute)},
	}

	kept, rej := Filter(candidates, c, nil, busy, day)
	if len(kept) != 1 || !kept[0].Start.Equal(day.Add(11*time.Hour)) {
		t.Fatalf("expected only the 11:00 slot, got %d kept", len(kept))
	}
	if rej.Busy != 1 {
		t.Fatalf("expected 1 busy rejection, got %+v", rej)
	}
}
