package model

import "time"

// BookingRules is the org's typed scheduling policy. Defaults are explicit
// here rather than inferred per call site.
type BookingRules struct {
	LeadTimeMin     int
	BufferBeforeMin int
	BufferAfterMin  int
	AllowOverlaps   bool
}

type Organization struct {
	ID        string
	Name      string
	Timezone  string // IANA name; treated as immutable after creation
	Rules     BookingRules
	CreatedAt time.Time
}

// OpeningHours is one weekday's window in minutes of the org-local day.
// CloseMinute <= OpenMinute means closed that day.
type OpeningHours struct {
	OrgID       string
	Weekday     int // 0 = Sunday
	OpenMinute  int
	CloseMinute int
}

type Holiday struct {
	OrgID string
	Date  string // YYYY-MM-DD in org timezone
	Label string
}

type StaffMember struct {
	ID         string
	OrgID      string
	Name       string
	IsActive   bool
	CalendarID string // external calendar linkage for free/busy; empty = none
	CreatedAt  time.Time
}

// StaffSchedule is one working window for a staff member on a weekday.
// Absence of any row for a weekday means the staff member is unavailable
// that day, regardless of org opening hours.
type StaffSchedule struct {
	ID          string
	StaffID     string
	Weekday     int
	StartMinute int
	EndMinute   int
}

type Service struct {
	ID          string
	OrgID       string
	Name        string
	DurationMin int
	CreatedAt   time.Time
}

type Customer struct {
	ID        string
	OrgID     string
	Phone     string
	Name      string
	Email     string
	CreatedAt time.Time
}
