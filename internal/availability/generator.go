package availability

import "time"

// Generator enumerates fixed-duration candidate slots across a window, one
// org-local day at a time so large windows never materialize all candidates
// at once. Candidates start on granularity boundaries counted from local
// midnight; sub-granularity precision is an accepted trade-off for bounded
// candidate volume.
type Generator struct {
	windowStart time.Time
	windowEnd   time.Time
	duration    time.Duration
	step        time.Duration
	loc         *time.Location
	cursor      time.Time // start of the next day to emit, org-local
	done        bool
}

func NewGenerator(window Interval, duration, step time.Duration, loc *time.Location) *Generator {
	g := &Generator{
		windowStart: window.Start,
		windowEnd:   window.End,
		duration:    duration,
		step:        step,
		loc:         loc,
	}
	if duration <= 0 || step <= 0 || loc == nil || !window.End.After(window.Start) {
		g.done = true
		return g
	}
	local := window.Start.In(loc)
	g.cursor = time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return g
}

// NextDay returns the candidate slots for the next org-local day inside the
// window, in chronological order. The second return is false once the window
// is exhausted. Days may yield an empty batch (e.g. the window's final
// partial day too short for one slot).
func (g *Generator) NextDay() ([]Interval, bool) {
	if g.done || !g.cursor.Before(g.windowEnd) {
		g.done = true
		return nil, false
	}

	dayStart := g.cursor
	dayEnd := dayStart.AddDate(0, 0, 1)
	g.cursor = dayEnd

	var out []Interval
	for t := dayStart; t.Before(dayEnd); t = t.Add(g.step) {
		if t.Before(g.windowStart) {
			continue
		}
		end := t.Add(g.duration)
		if end.After(g.windowEnd) {
			break
		}
		out = append(out, Interval{Start: t, End: end})
	}
	return out, true
}

// Collect drains the generator. Intended for small windows and tests; the
// day-at-a-time path is what request handling uses.
func (g *Generator) Collect() []Interval {
	var all []Interval
	for {
		batch, ok := g.NextDay()
		if !ok {
			return all
		}
		all = append(all, batch...)
	}
}
