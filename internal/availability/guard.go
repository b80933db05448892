package availability

import "time"

// DayWindow is a working window in minutes of the org-local day.
type DayWindow struct {
	OpenMinute  int
	CloseMinute int
}

func (w DayWindow) closed() bool {
	return w.CloseMinute <= w.OpenMinute
}

// Constraints is everything ConflictGuard needs, resolved once per request.
// Minute-of-day and weekday comparisons are org-timezone-local, never UTC.
type Constraints struct {
	Location      *time.Location
	OpeningHours  map[int]DayWindow   // weekday -> org window; missing weekday = closed
	Holidays      map[string]string   // YYYY-MM-DD (org-local) -> label
	StaffWindows  map[int][]DayWindow // weekday -> staff windows; consulted only when StaffScoped
	StaffScoped   bool
	LeadTime      time.Duration
	BufferBefore  time.Duration
	BufferAfter   time.Duration
	AllowOverlaps bool
}

// Rejections counts candidates dropped per rule, for availability diagnostics.
type Rejections struct {
	LeadTime     int
	Holiday      int
	OutsideHours int
	Booked       int
	Busy         int
}

func (r Rejections) Total() int {
	return r.LeadTime + r.Holiday + r.OutsideHours + r.Booked + r.Busy
}

// Filter applies the constraint rules to candidates in order, short-circuiting
// per candidate on the first failing rule: lead time, holiday, opening hours
// (intersected with the staff schedule when staff-scoped), buffered overlap
// with existing appointments, and external busy intervals. Survivors keep
// generation order.
//
// existing must contain only non-cancelled appointment intervals; busy comes
// from the free/busy oracle and is empty when the oracle is degraded.
func Filter(candidates []Interval, c Constraints, existing, busy []Interval, now time.Time) ([]Interval, Rejections) {
	var rej Rejections
	earliest := now.Add(c.LeadTime)

	buffered := make([]Interval, len(existing))
	for i, e := range existing {
		buffered[i] = e.Expand(c.BufferBefore, c.BufferAfter)
	}

	kept := make([]Interval, 0, len(candidates))
	for _, cand := range candidates {
		// Boundary is inclusive: a slot starting exactly at now+leadTime is bookable.
		if cand.Start.Before(earliest) {
			rej.LeadTime++
			continue
		}
		local := cand.Start.In(c.Location)
		if _, ok := c.Holidays[local.Format("2006-01-02")]; ok {
			rej.Holiday++
			continue
		}
		if !c.withinHours(cand, local) {
			rej.OutsideHours++
			continue
		}
		if !c.AllowOverlaps && overlapsAny(cand.Expand(c.BufferBefore, c.BufferAfter), buffered) {
			rej.Booked++
			continue
		}
		if overlapsAny(cand, busy) {
			rej.Busy++
			continue
		}
		kept = append(kept, cand)
	}
	return kept, rej
}

func (c Constraints) withinHours(cand Interval, local time.Time) bool {
	localEnd := cand.End.In(c.Location)
	if localEnd.Year() != local.Year() || localEnd.YearDay() != local.YearDay() {
		// Midnight-crossing candidates never fit an opening window,
		// except the exact close at 24:00.
		if !(localEnd.Hour() == 0 && localEnd.Minute() == 0 && localEnd.Second() == 0) {
			return false
		}
	}

	startMin := local.Hour()*60 + local.Minute()
	endMin := startMin + int(cand.End.Sub(cand.Start)/time.Minute)

	org, ok := c.OpeningHours[int(local.Weekday())]
	if !ok || org.closed() {
		return false
	}
	if startMin < org.OpenMinute || endMin > org.CloseMinute {
		return false
	}

	if !c.StaffScoped {
		return true
	}
	// Staff schedules are AND'd with opening hours: no row for the weekday
	// means the staff member is off that day.
	for _, w := range c.StaffWindows[int(local.Weekday())] {
		if w.closed() {
			continue
		}
		if startMin >= w.OpenMinute && endMin <= w.CloseMinute {
			return true
		}
	}
	return false
}
