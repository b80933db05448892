package storage

import (
	"context"
	"time"

	"github.com/tessaly/bookingd/internal/db"
	"github.com/tessaly/bookingd/internal/ranking"
)

// RankingRepository reads the booking aggregates the slot ranker scores
// against. Both queries tolerate an empty history; the ranker treats zero
// counts as a uniform prior.
type RankingRepository struct {
	pool *db.Pool
}

func NewRankingRepository(pool *db.Pool) *RankingRepository {
	return &RankingRepository{pool: pool}
}

func (r *RankingRepository) LoadAggregates(ctx context.Context, orgID string, since time.Time) (ranking.Aggregates, error) {
	agg := ranking.Aggregates{StaffLoad: make(map[string]int)}

	rows, err := r.pool.Query(ctx, `
		SELECT staff_id::text, count(*)
		FROM appointments
		WHERE org_id = $1
			AND staff_id IS NOT NULL
			AND status <> 'cancelled'
			AND starts_at >= $2
		GROUP BY staff_id
	`, orgID, since)
	if err != nil {
		return ranking.Aggregates{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var staffID string
		var n int
		if err := rows.Scan(&staffID, &n); err != nil {
			return ranking.Aggregates{}, err
		}
		agg.StaffLoad[staffID] = n
	}
	if err := rows.Err(); err != nil {
		return ranking.Aggregates{}, err
	}

	// Hour-of-day histogram in the org's local clock, not UTC.
	hourRows, err := r.pool.Query(ctx, `
		SELECT EXTRACT(HOUR FROM a.starts_at AT TIME ZONE o.timezone)::int, count(*)
		FROM appointments a
		JOIN organizations o ON o.id = a.org_id
		WHERE a.org_id = $1
			AND a.status <> 'cancelled'
			AND a.starts_at >= $2
		GROUP BY 1
	`, orgID, since)
	if err != nil {
		return ranking.Aggregates{}, err
	}
	defer hourRows.Close()
	for hourRows.Next() {
		var hour, n int
		if err := hourRows.Scan(&hour, &n); err != nil {
			return ranking.Aggregates{}, err
		}
		if hour >= 0 && hour < 24 {
			agg.HourCounts[hour] = n
		}
	}
	return agg, hourRows.Err()
}
