package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/tessaly/bookingd/internal/availability"
	"github.com/tessaly/bookingd/internal/db"
	"github.com/tessaly/bookingd/internal/model"
)

// ConstraintRepository reads per-org scheduling rules. Pure reads, no side
// effects; admin mutations live at the bottom of the file.
type ConstraintRepository struct {
	pool *db.Pool
}

func NewConstraintRepository(pool *db.Pool) *ConstraintRepository {
	return &ConstraintRepository{pool: pool}
}

func (r *ConstraintRepository) GetOrganization(ctx context.Context, orgID string) (model.Organization, error) {
	var org model.Organization
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, name, timezone, lead_time_min, buffer_before_min, buffer_after_min, allow_overlaps, created_at
		FROM organizations
		WHERE id = $1
	`, orgID).Scan(
		&org.ID,
		&org.Name,
		&org.Timezone,
		&org.Rules.LeadTimeMin,
		&org.Rules.BufferBeforeMin,
		&org.Rules.BufferAfterMin,
		&org.Rules.AllowOverlaps,
		&org.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Organization{}, fmt.Errorf("organization %s: %w", orgID, ErrNotFound)
	}
	if err != nil {
		return model.Organization{}, err
	}
	return org, nil
}

// LoadConstraints resolves the org timezone once and expresses every
// subsequent minute-of-day comparison in it. Weekday boundaries and opening
// hours are timezone-local concepts, not UTC ones.
// orgLocation resolves the org's IANA timezone. Timezones are validated at
// creation, so failure here means corrupted data; falling back to UTC would
// silently shift every weekday and opening-hour computation for the org.
func orgLocation(org model.Organization) (*time.Location, error) {
	loc, err := time.LoadLocation(org.Timezone)
	if err != nil {
		return nil, fmt.Errorf("organization %s: %w: %q", org.ID, ErrInvalidTimezone, org.Timezone)
	}
	return loc, nil
}

func (r *ConstraintRepository) LoadConstraints(ctx context.Context, orgID, staffID string, from, to time.Time) (ConstraintSnapshot, error) {
	org, err := r.GetOrganization(ctx, orgID)
	if err != nil {
		return ConstraintSnapshot{}, err
	}

	loc, err := orgLocation(org)
	if err != nil {
		return ConstraintSnapshot{}, err
	}

	cons := availability.Constraints{
		Location:      loc,
		OpeningHours:  map[int]availability.DayWindow{},
		Holidays:      map[string]string{},
		LeadTime:      time.Duration(org.Rules.LeadTimeMin) * time.Minute,
		BufferBefore:  time.Duration(org.Rules.BufferBeforeMin) * time.Minute,
		BufferAfter:   time.Duration(org.Rules.BufferAfterMin) * time.Minute,
		AllowOverlaps: org.Rules.AllowOverlaps,
	}

	rows, err := r.pool.Query(ctx, `
		SELECT weekday, open_minute, close_minute
		FROM opening_hours
		WHERE org_id = $1
	`, orgID)
	if err != nil {
		return ConstraintSnapshot{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var weekday, openMin, closeMin int
		if err := rows.Scan(&weekday, &openMin, &closeMin); err != nil {
			return ConstraintSnapshot{}, err
		}
		cons.OpeningHours[weekday] = availability.DayWindow{OpenMinute: openMin, CloseMinute: closeMin}
	}
	if rows.Err() != nil {
		return ConstraintSnapshot{}, rows.Err()
	}

	// Holiday dates are org-local; pad the scan by a day on each side so UTC
	// window edges cannot miss a local date.
	holidayRows, err := r.pool.Query(ctx, `
		SELECT holiday_date::text, label
		FROM holidays
		WHERE org_id = $1
			AND holiday_date >= ($2::date - 1)
			AND holiday_date <= ($3::date + 1)
	`, orgID, from.In(loc).Format("2006-01-02"), to.In(loc).Format("2006-01-02"))
	if err != nil {
		return ConstraintSnapshot{}, err
	}
	defer holidayRows.Close()
	for holidayRows.Next() {
		var date, label string
		if err := holidayRows.Scan(&date, &label); err != nil {
			return ConstraintSnapshot{}, err
		}
		cons.Holidays[date] = label
	}
	if holidayRows.Err() != nil {
		return ConstraintSnapshot{}, holidayRows.Err()
	}

	snap := ConstraintSnapshot{Org: org, Constraints: cons}

	if staffID != "" {
		var calendarID string
		var active bool
		err := r.pool.QueryRow(ctx, `
			SELECT calendar_id, is_active
			FROM staff
			WHERE id = $1 AND org_id = $2
		`, staffID, orgID).Scan(&calendarID, &active)
		if errors.Is(err, pgx.ErrNoRows) {
			return ConstraintSnapshot{}, fmt.Errorf("staff %s: %w", staffID, ErrNotFound)
		}
		if err != nil {
			return ConstraintSnapshot{}, err
		}
		if !active {
			return ConstraintSnapshot{}, fmt.Errorf("staff %s is inactive: %w", staffID, ErrNotFound)
		}
		snap.StaffCalendarID = calendarID

		cons.StaffScoped = true
		cons.StaffWindows = map[int][]availability.DayWindow{}
		scheduleRows, err := r.pool.Query(ctx, `
			SELECT weekday, start_minute, end_minute
			FROM staff_schedules
			WHERE staff_id = $1
			ORDER BY weekday, start_minute
		`, staffID)
		if err != nil {
			return ConstraintSnapshot{}, err
		}
		defer scheduleRows.Close()
		for scheduleRows.Next() {
			var weekday, start, end int
			if err := scheduleRows.Scan(&weekday, &start, &end); err != nil {
				return ConstraintSnapshot{}, err
			}
			cons.StaffWindows[weekday] = append(cons.StaffWindows[weekday], availability.DayWindow{OpenMinute: start, CloseMinute: end})
		}
		if scheduleRows.Err() != nil {
			return ConstraintSnapshot{}, scheduleRows.Err()
		}
		snap.Constraints = cons
	}

	return snap, nil
}

func (r *ConstraintRepository) ServiceDuration(ctx context.Context, orgID, serviceID string) (int, error) {
	var mins int
	err := r.pool.QueryRow(ctx, `
		SELECT duration_min
		FROM services
		WHERE org_id = $1 AND id = $2
	`, orgID, serviceID).Scan(&mins)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("service %s: %w", serviceID, ErrNotFound)
	}
	return mins, err
}

// --- admin mutations ---

func (r *ConstraintRepository) CreateOrganization(ctx context.Context, name, timezone string, rules model.BookingRules) (model.Organization, error) {
	if _, err := time.LoadLocation(timezone); err != nil {
		return model.Organization{}, fmt.Errorf("%w: %q", ErrInvalidTimezone, timezone)
	}
	var org model.Organization
	err := r.pool.QueryRow(ctx, `
		INSERT INTO organizations (name, timezone, lead_time_min, buffer_before_min, buffer_after_min, allow_overlaps)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id::text, name, timezone, lead_time_min, buffer_before_min, buffer_after_min, allow_overlaps, created_at
	`, name, timezone, rules.LeadTimeMin, rules.BufferBeforeMin, rules.BufferAfterMin, rules.AllowOverlaps).Scan(
		&org.ID,
		&org.Name,
		&org.Timezone,
		&org.Rules.LeadTimeMin,
		&org.Rules.BufferBeforeMin,
		&org.Rules.BufferAfterMin,
		&org.Rules.AllowOverlaps,
		&org.CreatedAt,
	)
	return org, err
}

// UpdateBookingRules deliberately cannot change the timezone: cached slot
// computations and stored minute-of-day rows assume it is immutable.
func (r *ConstraintRepository) UpdateBookingRules(ctx context.Context, orgID string, rules model.BookingRules) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE organizations
		SET lead_time_min = $2,
			buffer_before_min = $3,
			buffer_after_min = $4,
			allow_overlaps = $5,
			updated_at = now()
		WHERE id = $1
	`, orgID, rules.LeadTimeMin, rules.BufferBeforeMin, rules.BufferAfterMin, rules.AllowOverlaps)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("organization %s: %w", orgID, ErrNotFound)
	}
	return nil
}

func (r *ConstraintRepository) UpsertOpeningHours(ctx context.Context, h model.OpeningHours) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO opening_hours (org_id, weekday, open_minute, close_minute)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (org_id, weekday) DO UPDATE
		SET open_minute = EXCLUDED.open_minute,
			close_minute = EXCLUDED.close_minute
	`, h.OrgID, h.Weekday, h.OpenMinute, h.CloseMinute)
	return err
}

func (r *ConstraintRepository) AddHoliday(ctx context.Context, h model.Holiday) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO holidays (org_id, holiday_date, label)
		VALUES ($1, $2, $3)
		ON CONFLICT (org_id, holiday_date) DO UPDATE SET label = EXCLUDED.label
	`, h.OrgID, h.Date, h.Label)
	return err
}

func (r *ConstraintRepository) DeleteHoliday(ctx context.Context, orgID, date string) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM holidays WHERE org_id = $1 AND holiday_date = $2
	`, orgID, date)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("holiday %s: %w", date, ErrNotFound)
	}
	return nil
}

func (r *ConstraintRepository) ListHolidays(ctx context.Context, orgID string) ([]model.Holiday, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT org_id::text, holiday_date::text, label
		FROM holidays
		WHERE org_id = $1
		ORDER BY holiday_date
	`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Holiday
	for rows.Next() {
		var h model.Holiday
		if err := rows.Scan(&h.OrgID, &h.Date, &h.Label); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (r *ConstraintRepository) CreateStaff(ctx context.Context, orgID, name, calendarID string) (model.StaffMember, error) {
	var s model.StaffMember
	err := r.pool.QueryRow(ctx, `
		INSERT INTO staff (org_id, name, calendar_id)
		VALUES ($1, $2, $3)
		RETURNING id::text, org_id::text, name, is_active, calendar_id, created_at
	`, orgID, name, calendarID).Scan(&s.ID, &s.OrgID, &s.Name, &s.IsActive, &s.CalendarID, &s.CreatedAt)
	return s, err
}

func (r *ConstraintRepository) ListStaff(ctx context.Context, orgID string) ([]model.StaffMember, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, org_id::text, name, is_active, calendar_id, created_at
		FROM staff
		WHERE org_id = $1
		ORDER BY created_at
	`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.StaffMember
	for rows.Next() {
		var s model.StaffMember
		if err := rows.Scan(&s.ID, &s.OrgID, &s.Name, &s.IsActive, &s.CalendarID, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ReplaceStaffSchedule swaps all schedule rows for one staff/weekday in a
// transaction, so readers never observe a partially updated day.
func (r *ConstraintRepository) ReplaceStaffSchedule(ctx context.Context, orgID, staffID string, weekday int, windows []model.StaffSchedule) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var exists bool
	if err := tx.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM staff WHERE id = $1 AND org_id = $2)
	`, staffID, orgID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("staff %s: %w", staffID, ErrNotFound)
	}

	if _, err := tx.Exec(ctx, `
		DELETE FROM staff_schedules WHERE staff_id = $1 AND weekday = $2
	`, staffID, weekday); err != nil {
		return err
	}
	for _, w := range windows {
		if _, err := tx.Exec(ctx, `
			INSERT INTO staff_schedules (staff_id, weekday, start_minute, end_minute)
			VALUES ($1, $2, $3, $4)
		`, staffID, weekday, w.StartMinute, w.EndMinute); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *ConstraintRepository) CreateService(ctx context.Context, orgID, name string, durationMin int) (model.Service, error) {
	var s model.Service
	err := r.pool.QueryRow(ctx, `
		INSERT INTO services (org_id, name, duration_min)
		VALUES ($1, $2, $3)
		RETURNING id::text, org_id::text, name, duration_min, created_at
	`, orgID, name, durationMin).Scan(&s.ID, &s.OrgID, &s.Name, &s.DurationMin, &s.CreatedAt)
	return s, err
}

func (r *ConstraintRepository) ListServices(ctx context.Context, orgID string) ([]model.Service, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, org_id::text, name, duration_min, created_at
		FROM services
		WHERE org_id = $1
		ORDER BY created_at
	`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Service
	for rows.Next() {
		var s model.Service
		if err := rows.Scan(&s.ID, &s.OrgID, &s.Name, &s.DurationMin, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
