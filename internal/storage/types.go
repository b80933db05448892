package storage

import (
	"time"

	"github.com/tessaly/bookingd/internal/availability"
	"github.com/tessaly/bookingd/internal/model"
)

// ConstraintSnapshot is the per-request read of an org's scheduling rules,
// resolved into the org timezone exactly once.
type ConstraintSnapshot struct {
	Org             model.Organization
	Constraints     availability.Constraints
	StaffCalendarID string
}

type CustomerInfo struct {
	Name  string
	Phone string
	Email string
}

type CreateAppointmentParams struct {
	OrgID          string
	StaffID        string
	ServiceID      string
	Start          time.Time
	End            time.Time
	BufferBefore   time.Duration
	BufferAfter    time.Duration
	// Exclusive is false only for allow-overlaps orgs; it gates the in-tx
	// overlap recount and the DB exclusion-constraint backstop alike.
	Exclusive      bool
	Customer       CustomerInfo
	Source         string
	IdempotencyKey string
}

type RescheduleParams struct {
	OrgID         string
	AppointmentID string
	NewStart      time.Time
	NewEnd        time.Time
	BufferBefore  time.Duration
	BufferAfter   time.Duration
	Exclusive     bool
}
