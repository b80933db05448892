package model

import "time"

// Slot is a candidate bookable interval. Produced per request, never persisted.
type Slot struct {
	Start   time.Time
	End     time.Time
	StaffID string
	Score   float64
}

// Hold is a non-binding, time-limited soft reservation of a slot. It carries
// no exclusivity: a held slot can still be booked by someone else.
type Hold struct {
	Token     string    `json:"token"`
	OrgID     string    `json:"org_id"`
	StaffID   string    `json:"staff_id,omitempty"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	ExpiresAt time.Time `json:"expires_at"`
}
