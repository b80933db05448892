package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/tessaly/bookingd/internal/availability"
	"github.com/tessaly/bookingd/internal/model"
	"github.com/tessaly/bookingd/internal/ranking"
)

type AvailabilityQuery struct {
	OrgID     string
	StaffID   string
	ServiceID string

	// Either absolute timestamps or org-local dates. Date-only bounds are
	// resolved against the org timezone once constraints are loaded.
	From     time.Time
	To       time.Time
	FromDate string // YYYY-MM-DD
	ToDate   string // YYYY-MM-DD, inclusive

	DurationMin int // overrides the service duration when > 0
}

// Diagnostics explains a (possibly empty) slot list: how many candidates each
// rule rejected and whether the free/busy oracle degraded.
type Diagnostics struct {
	Candidates     int                     `json:"candidates"`
	Rejected       availability.Rejections `json:"rejected"`
	OracleDegraded bool                    `json:"oracle_degraded,omitempty"`
	Note           string                  `json:"note,omitempty"`
}

type AvailabilityResult struct {
	Slots       []model.Slot
	Diagnostics Diagnostics
}

// Availability computes the ordered bookable slots for the query window.
// Constraint and oracle reads are independent and issued concurrently; oracle
// failure degrades to "no external busy data" and never fails the request.
func (e *Engine) Availability(ctx context.Context, q AvailabilityQuery) (AvailabilityResult, error) {
	if q.OrgID == "" {
		return AvailabilityResult{}, invalidf("org_id", "required")
	}

	// A provisional window for constraint loading; date-only bounds are
	// re-resolved in the org timezone below.
	from, to := q.From, q.To
	if q.FromDate != "" || q.ToDate != "" {
		var err error
		from, to, err = provisionalDateWindow(q.FromDate, q.ToDate)
		if err != nil {
			return AvailabilityResult{}, err
		}
	}
	if !to.After(from) {
		return AvailabilityResult{}, invalidf("window", "to must be after from")
	}

	snap, err := e.constraints.LoadConstraints(ctx, q.OrgID, q.StaffID, from, to)
	if err != nil {
		return AvailabilityResult{}, e.translateStoreErr(err)
	}
	loc := snap.Constraints.Location

	if q.FromDate != "" || q.ToDate != "" {
		from, to, err = resolveDateWindow(q.FromDate, q.ToDate, loc)
		if err != nil {
			return AvailabilityResult{}, err
		}
	}
	if to.Sub(from) > time.Duration(e.cfg.MaxWindowDays)*24*time.Hour {
		return AvailabilityResult{}, invalidf("window", "longer than %d days", e.cfg.MaxWindowDays)
	}

	durationMin, err := e.resolveDuration(ctx, q)
	if err != nil {
		return AvailabilityResult{}, err
	}
	duration := time.Duration(durationMin) * time.Minute
	step := time.Duration(e.cfg.GranularityMin) * time.Minute

	// Busy-time oracle and booked-interval reads are independent; run the
	// oracle concurrently and join before filtering.
	type oracleResult struct {
		busy     []availability.Interval
		degraded bool
	}
	oracleCh := make(chan oracleResult, 1)
	go func() {
		res := oracleResult{}
		if snap.StaffCalendarID != "" {
			busy, err := e.oracle.FreeBusy(ctx, snap.StaffCalendarID, from, to)
			if err != nil {
				e.logger.Warn("free/busy oracle degraded", "org_id", q.OrgID, "err", err)
				res.degraded = true
			} else {
				res.busy = busy
			}
		}
		oracleCh <- res
	}()

	existing, err := e.bookings.ListBookedIntervals(ctx, q.OrgID, q.StaffID, from.Add(-duration), to.Add(duration), "")
	if err != nil {
		return AvailabilityResult{}, e.translateStoreErr(err)
	}
	orc := <-oracleCh

	now := e.now()
	gen := availability.NewGenerator(availability.Interval{Start: from, End: to}, duration, step, loc)
	var kept []availability.Interval
	var diag Diagnostics
	diag.OracleDegraded = orc.degraded
	for {
		batch, ok := gen.NextDay()
		if !ok {
			break
		}
		diag.Candidates += len(batch)
		dayKept, rej := availability.Filter(batch, snap.Constraints, existing, orc.busy, now)
		kept = append(kept, dayKept...)
		diag.Rejected = addRejections(diag.Rejected, rej)
	}

	slots := make([]model.Slot, len(kept))
	for i, iv := range kept {
		slots[i] = model.Slot{Start: iv.Start, End: iv.End, StaffID: q.StaffID}
	}

	slots = e.rankSlots(ctx, q.OrgID, slots, loc, now)

	if len(slots) == 0 {
		diag.Note = emptyWindowNote(diag)
	}
	return AvailabilityResult{Slots: slots, Diagnostics: diag}, nil
}

func (e *Engine) resolveDuration(ctx context.Context, q AvailabilityQuery) (int, error) {
	if q.DurationMin < 0 {
		return 0, invalidf("duration_min", "must be positive")
	}
	if q.DurationMin > 0 {
		return q.DurationMin, nil
	}
	if q.ServiceID != "" {
		mins, err := e.constraints.ServiceDuration(ctx, q.OrgID, q.ServiceID)
		if err != nil {
			return 0, e.translateStoreErr(err)
		}
		if mins <= 0 {
			return 0, invalidf("service_id", "service has no positive duration")
		}
		return mins, nil
	}
	return e.cfg.DefaultDurationMin, nil
}

// rankSlots reorders by the scoring heuristic. Ranking never removes a slot
// and an aggregates read failure only skips the reorder.
func (e *Engine) rankSlots(ctx context.Context, orgID string, slots []model.Slot, loc *time.Location, now time.Time) []model.Slot {
	if len(slots) < 2 || e.rankings == nil {
		return slots
	}
	agg, err := e.rankings.LoadAggregates(ctx, orgID, now.Add(-e.cfg.RankingWindow))
	if err != nil {
		e.logger.Warn("ranking aggregates unavailable; keeping chronological order", "org_id", orgID, "err", err)
		return slots
	}
	return ranking.Rank(slots, agg, loc, now)
}

func provisionalDateWindow(fromDate, toDate string) (time.Time, time.Time, error) {
	return resolveDateWindow(fromDate, toDate, time.UTC)
}

func resolveDateWindow(fromDate, toDate string, loc *time.Location) (time.Time, time.Time, error) {
	if fromDate == "" || toDate == "" {
		return time.Time{}, time.Time{}, invalidf("window", "from and to dates must both be set")
	}
	from, err := time.ParseInLocation("2006-01-02", fromDate, loc)
	if err != nil {
		return time.Time{}, time.Time{}, invalidf("from", "not a YYYY-MM-DD date")
	}
	toDay, err := time.ParseInLocation("2006-01-02", toDate, loc)
	if err != nil {
		return time.Time{}, time.Time{}, invalidf("to", "not a YYYY-MM-DD date")
	}
	return from, toDay.AddDate(0, 0, 1), nil
}

func addRejections(a, b availability.Rejections) availability.Rejections {
	a.LeadTime += b.LeadTime
	a.Holiday += b.Holiday
	a.OutsideHours += b.OutsideHours
	a.Booked += b.Booked
	a.Busy += b.Busy
	return a
}

func emptyWindowNote(d Diagnostics) string {
	if d.Candidates == 0 {
		return "window too short for a single slot"
	}
	r := d.Rejected
	max, note := r.OutsideHours, "outside opening hours or staff schedule"
	if r.Holiday > max {
		max, note = r.Holiday, "holiday"
	}
	if r.LeadTime > max {
		max, note = r.LeadTime, "inside the minimum lead time"
	}
	if r.Booked > max {
		max, note = r.Booked, "fully booked"
	}
	if r.Busy > max {
		note = "blocked by external calendar"
	}
	return fmt.Sprintf("no slots: most candidates %s", note)
}
