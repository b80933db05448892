package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/tessaly/bookingd/internal/availability"
	"github.com/tessaly/bookingd/internal/db"
	"github.com/tessaly/bookingd/internal/model"
	"github.com/tessaly/bookingd/internal/outbox"
)

// BookingRepository owns the appointment write path. The overlap recount and
// the insert always run in the same transaction; the DB exclusion constraint
// on buffered intervals is the final backstop when two transactions race.
type BookingRepository struct {
	pool       *db.Pool
	outboxRepo *outbox.Repository
}

func NewBookingRepository(pool *db.Pool, outboxRepo *outbox.Repository) *BookingRepository {
	return &BookingRepository{pool: pool, outboxRepo: outboxRepo}
}

const appointmentColumns = `
	id::text, org_id::text, COALESCE(staff_id::text, ''), COALESCE(service_id::text, ''),
	COALESCE(customer_id::text, ''), starts_at, ends_at, status, source,
	external_event_id, COALESCE(idempotency_key, ''), cancelled_at, cancellation_reason, created_at`

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var a model.Appointment
	err := row.Scan(
		&a.ID,
		&a.OrgID,
		&a.StaffID,
		&a.ServiceID,
		&a.CustomerID,
		&a.StartsAt,
		&a.EndsAt,
		&a.Status,
		&a.Source,
		&a.ExternalEventID,
		&a.IdempotencyKey,
		&a.CancelledAt,
		&a.CancelReason,
		&a.CreatedAt,
	)
	return a, err
}

func (r *BookingRepository) GetAppointment(ctx context.Context, orgID, appointmentID string) (model.Appointment, error) {
	appt, err := scanAppointment(r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1 AND org_id = $2
	`, appointmentID, orgID))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Appointment{}, fmt.Errorf("appointment %s: %w", appointmentID, ErrNotFound)
	}
	return appt, err
}

// ListBookedIntervals returns the raw (unbuffered) intervals of non-cancelled
// appointments. staffID empty selects unassigned appointments; excludeID
// drops one appointment (used by reschedule to ignore itself).
func (r *BookingRepository) ListBookedIntervals(ctx context.Context, orgID, staffID string, from, to time.Time, excludeID string) ([]availability.Interval, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT starts_at, ends_at
		FROM appointments
		WHERE org_id = $1
			AND staff_id IS NOT DISTINCT FROM NULLIF($2, '')::uuid
			AND status <> 'cancelled'
			AND starts_at < $4
			AND ends_at > $3
			AND id::text <> $5
		ORDER BY starts_at
	`, orgID, staffID, from, to, excludeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []availability.Interval
	for rows.Next() {
		var iv availability.Interval
		if err := rows.Scan(&iv.Start, &iv.End); err != nil {
			return nil, err
		}
		out = append(out, iv)
	}
	return out, rows.Err()
}

// FindByIdempotencyKey searches a bounded recent window; the partial unique
// index on (org_id, idempotency_key) makes this a point lookup.
func (r *BookingRepository) FindByIdempotencyKey(ctx context.Context, orgID, key string, since time.Time) (model.Appointment, error) {
	appt, err := scanAppointment(r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE org_id = $1 AND idempotency_key = $2 AND created_at >= $3
	`, orgID, key, since))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Appointment{}, fmt.Errorf("idempotency key: %w", ErrNotFound)
	}
	return appt, err
}

// CreateAppointment performs the atomic booking write: lock and recount
// overlapping appointments, upsert the customer by (org, phone), insert the
// appointment with its buffered interval, and enqueue outbox events. A
// recount hit or an exclusion-constraint violation both classify as conflict.
func (r *BookingRepository) CreateAppointment(ctx context.Context, p CreateAppointmentParams) (model.Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if p.Exclusive {
		n, err := r.lockOverlapping(ctx, tx, p.OrgID, p.StaffID, p.Start, p.End, p.BufferBefore, p.BufferAfter, "")
		if err != nil {
			return model.Appointment{}, err
		}
		if n > 0 {
			return model.Appointment{}, ErrConflict
		}
	}

	var customerID string
	err = tx.QueryRow(ctx, `
		INSERT INTO customers (org_id, phone, name, email)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (org_id, phone) DO UPDATE
		SET name = EXCLUDED.name,
			email = CASE WHEN EXCLUDED.email <> '' THEN EXCLUDED.email ELSE customers.email END
		RETURNING id::text
	`, p.OrgID, p.Customer.Phone, p.Customer.Name, p.Customer.Email).Scan(&customerID)
	if err != nil {
		return model.Appointment{}, err
	}

	appt, err := scanAppointment(tx.QueryRow(ctx, `
		INSERT INTO appointments
			(org_id, staff_id, service_id, customer_id, starts_at, ends_at, status, source, idempotency_key, buffered_during, exclusive)
		VALUES
			($1, NULLIF($2, '')::uuid, NULLIF($3, '')::uuid, $4, $5, $6, 'scheduled', $7, NULLIF($8, ''),
			 tstzrange($5::timestamptz - $9::interval, $6::timestamptz + $10::interval, '[)'), $11)
		RETURNING `+appointmentColumns+`
	`, p.OrgID, p.StaffID, p.ServiceID, customerID, p.Start, p.End, p.Source, p.IdempotencyKey,
		p.BufferBefore.String(), p.BufferAfter.String(), p.Exclusive))
	if err != nil {
		return model.Appointment{}, classifyInsertErr(err)
	}

	if err := r.insertBookingEvents(ctx, tx, appt, outbox.EventAppointmentBooked); err != nil {
		return model.Appointment{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, classifyInsertErr(err)
	}
	return appt, nil
}

func (r *BookingRepository) RescheduleAppointment(ctx context.Context, p RescheduleParams) (model.Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	current, err := scanAppointment(tx.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1 AND org_id = $2
		FOR UPDATE
	`, p.AppointmentID, p.OrgID))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Appointment{}, fmt.Errorf("appointment %s: %w", p.AppointmentID, ErrNotFound)
	}
	if err != nil {
		return model.Appointment{}, err
	}
	if current.Status == model.AppointmentCancelled {
		return model.Appointment{}, fmt.Errorf("appointment %s is cancelled: %w", p.AppointmentID, ErrNotFound)
	}

	if p.Exclusive {
		n, err := r.lockOverlapping(ctx, tx, p.OrgID, current.StaffID, p.NewStart, p.NewEnd, p.BufferBefore, p.BufferAfter, current.ID)
		if err != nil {
			return model.Appointment{}, err
		}
		if n > 0 {
			return model.Appointment{}, ErrConflict
		}
	}

	moved, err := scanAppointment(tx.QueryRow(ctx, `
		UPDATE appointments
		SET starts_at = $3,
			ends_at = $4,
			buffered_during = tstzrange($3::timestamptz - $5::interval, $4::timestamptz + $6::interval, '[)')
		WHERE id = $1 AND org_id = $2
		RETURNING `+appointmentColumns+`
	`, p.AppointmentID, p.OrgID, p.NewStart, p.NewEnd, p.BufferBefore.String(), p.BufferAfter.String()))
	if err != nil {
		return model.Appointment{}, classifyInsertErr(err)
	}

	if err := r.insertBookingEvents(ctx, tx, moved, outbox.EventAppointmentRescheduled); err != nil {
		return model.Appointment{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, classifyInsertErr(err)
	}
	return moved, nil
}

func (r *BookingRepository) CancelAppointment(ctx context.Context, orgID, appointmentID, reason string) (model.Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	current, err := scanAppointment(tx.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1 AND org_id = $2
		FOR UPDATE
	`, appointmentID, orgID))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Appointment{}, fmt.Errorf("appointment %s: %w", appointmentID, ErrNotFound)
	}
	if err != nil {
		return model.Appointment{}, err
	}
	if current.Status == model.AppointmentCancelled {
		return current, tx.Commit(ctx)
	}

	cancelled, err := scanAppointment(tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'cancelled',
			cancelled_at = now(),
			cancellation_reason = $3
		WHERE id = $1 AND org_id = $2
		RETURNING `+appointmentColumns+`
	`, appointmentID, orgID, reason))
	if err != nil {
		return model.Appointment{}, err
	}

	payload, err := json.Marshal(appointmentPayload(cancelled))
	if err != nil {
		return model.Appointment{}, err
	}
	if err := r.outboxRepo.Insert(ctx, tx, outbox.Event{
		AggregateType: outbox.AggregateAppointment,
		AggregateID:   cancelled.ID,
		EventType:     outbox.EventAppointmentCancelled,
		Payload:       payload,
	}); err != nil {
		return model.Appointment{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, err
	}
	return cancelled, nil
}

func (r *BookingRepository) UpdateStatus(ctx context.Context, orgID, appointmentID, status string) (model.Appointment, error) {
	appt, err := scanAppointment(r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $3
		WHERE id = $1 AND org_id = $2 AND status <> 'cancelled'
		RETURNING `+appointmentColumns+`
	`, appointmentID, orgID, status))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Appointment{}, fmt.Errorf("appointment %s: %w", appointmentID, ErrNotFound)
	}
	return appt, err
}

func (r *BookingRepository) ListByOrg(ctx context.Context, orgID string, from, to time.Time, limit int) ([]model.Appointment, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE org_id = $1
			AND starts_at < $3
			AND ends_at > $2
		ORDER BY starts_at
		LIMIT $4
	`, orgID, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, appt)
	}
	return out, rows.Err()
}

// lockOverlapping locks and counts non-cancelled appointments whose buffered
// interval intersects the buffered candidate. Row locks serialize concurrent
// writers that both see a clear calendar.
func (r *BookingRepository) lockOverlapping(ctx context.Context, tx pgx.Tx, orgID, staffID string, start, end time.Time, before, after time.Duration, excludeID string) (int, error) {
	rows, err := tx.Query(ctx, `
		SELECT id
		FROM appointments
		WHERE org_id = $1
			AND staff_id IS NOT DISTINCT FROM NULLIF($2, '')::uuid
			AND status <> 'cancelled'
			AND buffered_during && tstzrange($3::timestamptz - $5::interval, $4::timestamptz + $6::interval, '[)')
			AND id::text <> $7
		FOR UPDATE
	`, orgID, staffID, start, end, before.String(), after.String(), excludeID)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		n++
	}
	return n, rows.Err()
}

func (r *BookingRepository) insertBookingEvents(ctx context.Context, tx pgx.Tx, appt model.Appointment, eventType string) error {
	payload, err := json.Marshal(appointmentPayload(appt))
	if err != nil {
		return err
	}
	if err := r.outboxRepo.Insert(ctx, tx, outbox.Event{
		AggregateType: outbox.AggregateAppointment,
		AggregateID:   appt.ID,
		EventType:     eventType,
		Payload:       payload,
	}); err != nil {
		return err
	}
	// Calendar sync is fire-and-forget: the event rides the same transaction,
	// but sync failures downstream never touch the booking.
	return r.outboxRepo.Insert(ctx, tx, outbox.Event{
		AggregateType: outbox.AggregateAppointment,
		AggregateID:   appt.ID,
		EventType:     outbox.EventCalendarSyncRequested,
		Payload:       payload,
	})
}

func appointmentPayload(a model.Appointment) map[string]any {
	return map[string]any{
		"appointment_id": a.ID,
		"org_id":         a.OrgID,
		"staff_id":       a.StaffID,
		"service_id":     a.ServiceID,
		"customer_id":    a.CustomerID,
		"starts_at":      a.StartsAt.UTC().Format(time.RFC3339),
		"ends_at":        a.EndsAt.UTC().Format(time.RFC3339),
		"status":         a.Status,
		"source":         a.Source,
	}
}
