package model

import "time"

const (
	AppointmentScheduled = "scheduled"
	AppointmentCompleted = "completed"
	AppointmentCancelled = "cancelled"
	AppointmentNoShow    = "no_show"
)

type Appointment struct {
	ID              string
	OrgID           string
	StaffID         string // empty when unassigned
	ServiceID       string
	CustomerID      string
	StartsAt        time.Time
	EndsAt          time.Time
	Status          string
	Source          string // channel tag: public, automation, staff
	ExternalEventID string
	IdempotencyKey  string
	CancelledAt     *time.Time
	CancelReason    string
	CreatedAt       time.Time
}
