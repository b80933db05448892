// Package ranking orders surviving slots by a heuristic score. It is a pure
// function over pre-fetched aggregates: it never queries storage, never
// removes a slot, and is reproducible for identical inputs.
package ranking

import (
	"sort"
	"time"

	"github.com/tessaly/bookingd/internal/model"
)

// Aggregates are the historical inputs, fetched once per request.
type Aggregates struct {
	// StaffLoad is booked-appointment counts per staff over the trailing
	// 60-day window. Less-booked staff rank higher.
	StaffLoad map[string]int
	// HourCounts is a histogram of historical booking starts per org-local
	// hour. Busier hours rank higher as a proxy for customer preference.
	HourCounts [24]int
}

const (
	weightRecency    = 0.5
	weightStaffLoad  = 0.25
	weightPopularity = 0.25
	edgePenalty      = 0.2

	recencyHorizon = 14 * 24 * time.Hour
	earlyHour      = 8
	lateHour       = 19
)

// Rank scores and reorders slots, best first. Ties break on (start, staff id)
// so identical inputs always produce identical output.
func Rank(slots []model.Slot, agg Aggregates, loc *time.Location, now time.Time) []model.Slot {
	maxLoad := 0
	for _, n := range agg.StaffLoad {
		if n > maxLoad {
			maxLoad = n
		}
	}
	maxHour := 0
	for _, n := range agg.HourCounts {
		if n > maxHour {
			maxHour = n
		}
	}

	out := make([]model.Slot, len(slots))
	copy(out, slots)
	for i := range out {
		out[i].Score = score(out[i], agg, maxLoad, maxHour, loc, now)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].StaffID < out[j].StaffID
	})
	return out
}

func score(s model.Slot, agg Aggregates, maxLoad, maxHour int, loc *time.Location, now time.Time) float64 {
	// Sooner is better, saturating at the horizon.
	until := s.Start.Sub(now)
	if until < 0 {
		until = 0
	}
	if until > recencyHorizon {
		until = recencyHorizon
	}
	recency := 1 - float64(until)/float64(recencyHorizon)

	load := 1.0
	if maxLoad > 0 && s.StaffID != "" {
		load = 1 - float64(agg.StaffLoad[s.StaffID])/float64(maxLoad)
	}

	hour := s.Start.In(loc).Hour()
	popularity := 0.0
	if maxHour > 0 {
		popularity = float64(agg.HourCounts[hour]) / float64(maxHour)
	}

	total := weightRecency*recency + weightStaffLoad*load + weightPopularity*popularity
	if hour < earlyHour || hour >= lateHour {
		total -= edgePenalty
	}
	return total
}
