package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/tessaly/bookingd/internal/availability"
	"github.com/tessaly/bookingd/internal/model"
	"github.com/tessaly/bookingd/internal/storage"
)

type BookRequest struct {
	OrgID          string
	StaffID        string
	ServiceID      string
	Start          time.Time
	DurationMin    int // derived from the service when 0
	Customer       storage.CustomerInfo
	Source         string
	IdempotencyKey string
}

type BookResult struct {
	Appointment model.Appointment
	// Duplicate is true when the idempotency key matched an existing
	// appointment and no new row was created.
	Duplicate bool
}

// Book turns a chosen slot into an appointment. The slot is always
// re-validated against live constraints inside the booking path; a
// client-supplied slot is never trusted. Retried requests carrying the same
// idempotency key return the original appointment.
func (e *Engine) Book(ctx context.Context, req BookRequest) (BookResult, error) {
	if err := validateBookRequest(&req); err != nil {
		return BookResult{}, err
	}

	durationMin := req.DurationMin
	if durationMin == 0 {
		if req.ServiceID == "" {
			durationMin = e.cfg.DefaultDurationMin
		} else {
			var err error
			durationMin, err = e.constraints.ServiceDuration(ctx, req.OrgID, req.ServiceID)
			if err != nil {
				return BookResult{}, e.translateStoreErr(err)
			}
			if durationMin <= 0 {
				return BookResult{}, invalidf("service_id", "service has no positive duration")
			}
		}
	}
	end := req.Start.Add(time.Duration(durationMin) * time.Minute)

	now := e.now()
	if req.IdempotencyKey != "" {
		existing, err := e.bookings.FindByIdempotencyKey(ctx, req.OrgID, req.IdempotencyKey, now.Add(-e.cfg.IdempotencyWindow))
		if err == nil {
			return BookResult{Appointment: existing, Duplicate: true}, nil
		}
		if !storage.IsNotFound(err) {
			return BookResult{}, e.translateStoreErr(err)
		}
	}

	snap, err := e.constraints.LoadConstraints(ctx, req.OrgID, req.StaffID, req.Start, end)
	if err != nil {
		return BookResult{}, e.translateStoreErr(err)
	}

	if err := e.recheckSlot(ctx, snap, req, end, now); err != nil {
		return BookResult{}, err
	}

	params := storage.CreateAppointmentParams{
		OrgID:          req.OrgID,
		StaffID:        req.StaffID,
		ServiceID:      req.ServiceID,
		Start:          req.Start,
		End:            end,
		BufferBefore:   snap.Constraints.BufferBefore,
		BufferAfter:    snap.Constraints.BufferAfter,
		Exclusive:      !snap.Org.Rules.AllowOverlaps,
		Customer:       req.Customer,
		Source:         req.Source,
		IdempotencyKey: req.IdempotencyKey,
	}

	appt, err := e.createWithRetry(ctx, params)
	if err != nil {
		switch {
		case storage.IsIdempotentReplay(err):
			// The key collision proves the row exists; the unique index is
			// unbounded, so the re-read must not be window-bounded either.
			existing, ferr := e.bookings.FindByIdempotencyKey(ctx, req.OrgID, req.IdempotencyKey, time.Time{})
			if ferr != nil {
				return BookResult{}, e.translateStoreErr(ferr)
			}
			return BookResult{Appointment: existing, Duplicate: true}, nil
		case storage.IsConflict(err):
			return BookResult{}, ErrConflict
		case storage.IsNotFound(err):
			return BookResult{}, ErrNotFound
		case storage.IsTransient(err):
			return BookResult{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		default:
			return BookResult{}, err
		}
	}
	return BookResult{Appointment: appt}, nil
}

// recheckSlot runs the chosen slot through ConflictGuard against live state.
// Constraints may have changed since the slot was quoted, so any rejection
// maps to Conflict: the remedy is always to re-fetch availability.
func (e *Engine) recheckSlot(ctx context.Context, snap storage.ConstraintSnapshot, req BookRequest, end time.Time, now time.Time) error {
	existing, err := e.bookings.ListBookedIntervals(ctx, req.OrgID, req.StaffID, req.Start.Add(-24*time.Hour), end.Add(24*time.Hour), "")
	if err != nil {
		return e.translateStoreErr(err)
	}

	// Oracle busy blocks apply as a soft constraint; oracle failure does not
	// block the booking.
	var busy []availability.Interval
	if snap.StaffCalendarID != "" {
		busy, err = e.oracle.FreeBusy(ctx, snap.StaffCalendarID, req.Start, end)
		if err != nil {
			e.logger.Warn("free/busy oracle degraded during booking", "org_id", req.OrgID, "err", err)
			busy = nil
		}
	}

	candidate := []availability.Interval{{Start: req.Start, End: end}}
	kept, _ := availability.Filter(candidate, snap.Constraints, existing, busy, now)
	if len(kept) == 0 {
		return ErrConflict
	}
	return nil
}

func (e *Engine) createWithRetry(ctx context.Context, params storage.CreateAppointmentParams) (model.Appointment, error) {
	var appt model.Appointment
	backoff := retry.WithMaxRetries(e.cfg.TransientRetries, retry.NewExponential(e.cfg.TransientRetryBase))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var err error
		appt, err = e.bookings.CreateAppointment(ctx, params)
		if err != nil && storage.IsTransient(err) {
			return retry.RetryableError(err)
		}
		return err
	})
	return appt, err
}

func validateBookRequest(req *BookRequest) error {
	if req.OrgID == "" {
		return invalidf("org_id", "required")
	}
	if req.Start.IsZero() {
		return invalidf("start", "required")
	}
	if req.DurationMin < 0 {
		return invalidf("duration_min", "must be positive")
	}
	req.Customer.Phone = normalizePhone(req.Customer.Phone)
	if req.Customer.Phone == "" {
		return invalidf("customer.phone", "required")
	}
	if strings.TrimSpace(req.Customer.Name) == "" {
		return invalidf("customer.name", "required")
	}
	req.Customer.Name = strings.TrimSpace(req.Customer.Name)
	req.Customer.Email = strings.TrimSpace(req.Customer.Email)
	req.IdempotencyKey = strings.TrimSpace(req.IdempotencyKey)
	return nil
}

// normalizePhone keeps digits and a leading plus so (orgID, phone) uniqueness
// is not defeated by formatting differences.
func normalizePhone(raw string) string {
	raw = strings.TrimSpace(raw)
	var b strings.Builder
	for i, r := range raw {
		if r == '+' && i == 0 {
			b.WriteRune(r)
			continue
		}
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
