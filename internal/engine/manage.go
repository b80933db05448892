package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/tessaly/bookingd/internal/availability"
	"github.com/tessaly/bookingd/internal/model"
	"github.com/tessaly/bookingd/internal/storage"
)

type RescheduleRequest struct {
	OrgID         string
	AppointmentID string
	NewStart      time.Time
	Source        string
}

// Reschedule moves an appointment, holding the same overlap invariant as a
// fresh booking: the new interval is guard-checked and then re-counted inside
// the storage transaction, with the moved appointment excluded from both.
func (e *Engine) Reschedule(ctx context.Context, req RescheduleRequest) (model.Appointment, error) {
	if req.OrgID == "" || req.AppointmentID == "" {
		return model.Appointment{}, invalidf("appointment_id", "org_id and appointment_id required")
	}
	if req.NewStart.IsZero() {
		return model.Appointment{}, invalidf("new_start", "required")
	}

	appt, err := e.bookings.GetAppointment(ctx, req.OrgID, req.AppointmentID)
	if err != nil {
		return model.Appointment{}, e.translateStoreErr(err)
	}
	if appt.Status == model.AppointmentCancelled {
		return model.Appointment{}, invalidf("appointment_id", "appointment is cancelled")
	}

	duration := appt.EndsAt.Sub(appt.StartsAt)
	newEnd := req.NewStart.Add(duration)

	snap, err := e.constraints.LoadConstraints(ctx, req.OrgID, appt.StaffID, req.NewStart, newEnd)
	if err != nil {
		return model.Appointment{}, e.translateStoreErr(err)
	}

	existing, err := e.bookings.ListBookedIntervals(ctx, req.OrgID, appt.StaffID, req.NewStart.Add(-24*time.Hour), newEnd.Add(24*time.Hour), appt.ID)
	if err != nil {
		return model.Appointment{}, e.translateStoreErr(err)
	}
	candidate := []availability.Interval{{Start: req.NewStart, End: newEnd}}
	kept, _ := availability.Filter(candidate, snap.Constraints, existing, nil, e.now())
	if len(kept) == 0 {
		return model.Appointment{}, ErrConflict
	}

	moved, err := e.bookings.RescheduleAppointment(ctx, storage.RescheduleParams{
		OrgID:         req.OrgID,
		AppointmentID: appt.ID,
		NewStart:      req.NewStart,
		NewEnd:        newEnd,
		BufferBefore:  snap.Constraints.BufferBefore,
		BufferAfter:   snap.Constraints.BufferAfter,
		Exclusive:     !snap.Org.Rules.AllowOverlaps,
	})
	if err != nil {
		switch {
		case storage.IsConflict(err):
			return model.Appointment{}, ErrConflict
		case storage.IsNotFound(err):
			return model.Appointment{}, ErrNotFound
		case storage.IsTransient(err):
			return model.Appointment{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		default:
			return model.Appointment{}, err
		}
	}
	return moved, nil
}

// Cancel marks an appointment cancelled. Cancelled appointments stop blocking
// new bookings immediately. Cancelling twice is a no-op returning the
// already-cancelled appointment.
func (e *Engine) Cancel(ctx context.Context, orgID, appointmentID, reason string) (model.Appointment, error) {
	if orgID == "" || appointmentID == "" {
		return model.Appointment{}, invalidf("appointment_id", "org_id and appointment_id required")
	}
	appt, err := e.bookings.CancelAppointment(ctx, orgID, appointmentID, reason)
	if err != nil {
		switch {
		case storage.IsNotFound(err):
			return model.Appointment{}, ErrNotFound
		case storage.IsTransient(err):
			return model.Appointment{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		default:
			return model.Appointment{}, err
		}
	}
	return appt, nil
}
