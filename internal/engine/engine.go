// Package engine is the availability and booking core: it computes bookable
// slots from independent constraint sources and turns a chosen slot into a
// durable, conflict-free, idempotent appointment.
package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/tessaly/bookingd/internal/availability"
	"github.com/tessaly/bookingd/internal/model"
	"github.com/tessaly/bookingd/internal/ranking"
	"github.com/tessaly/bookingd/internal/storage"
)

type ConstraintStore interface {
	// LoadConstraints returns not-found-classified errors when the org does
	// not exist, or when staffID is set and does not belong to the org.
	LoadConstraints(ctx context.Context, orgID, staffID string, from, to time.Time) (storage.ConstraintSnapshot, error)
	ServiceDuration(ctx context.Context, orgID, serviceID string) (int, error)
}

type BookingStore interface {
	// ListBookedIntervals returns non-cancelled appointment intervals for the
	// staff member (or unassigned appointments when staffID is empty),
	// optionally excluding one appointment id.
	ListBookedIntervals(ctx context.Context, orgID, staffID string, from, to time.Time, excludeID string) ([]availability.Interval, error)
	GetAppointment(ctx context.Context, orgID, appointmentID string) (model.Appointment, error)
	FindByIdempotencyKey(ctx context.Context, orgID, key string, since time.Time) (model.Appointment, error)
	// CreateAppointment recounts overlapping appointments and inserts inside
	// one transaction. It returns conflict-classified errors when the slot is
	// taken and replay-classified errors on an idempotency key collision.
	CreateAppointment(ctx context.Context, params storage.CreateAppointmentParams) (model.Appointment, error)
	RescheduleAppointment(ctx context.Context, params storage.RescheduleParams) (model.Appointment, error)
	CancelAppointment(ctx context.Context, orgID, appointmentID, reason string) (model.Appointment, error)
}

type RankingStore interface {
	LoadAggregates(ctx context.Context, orgID string, since time.Time) (ranking.Aggregates, error)
}

// Oracle is the external free/busy collaborator. Best-effort only: the engine
// swallows every oracle error and proceeds with internal constraints.
type Oracle interface {
	FreeBusy(ctx context.Context, calendarID string, from, to time.Time) ([]availability.Interval, error)
}

type Config struct {
	DefaultDurationMin int
	GranularityMin     int
	MaxWindowDays      int
	IdempotencyWindow  time.Duration
	RankingWindow      time.Duration
	TransientRetries   uint64
	TransientRetryBase time.Duration
}

func (c *Config) applyDefaults() {
	if c.DefaultDurationMin <= 0 {
		c.DefaultDurationMin = 30
	}
	if c.GranularityMin <= 0 {
		c.GranularityMin = 15
	}
	if c.MaxWindowDays <= 0 {
		c.MaxWindowDays = 60
	}
	if c.IdempotencyWindow <= 0 {
		c.IdempotencyWindow = 7 * 24 * time.Hour
	}
	if c.RankingWindow <= 0 {
		c.RankingWindow = 60 * 24 * time.Hour
	}
	if c.TransientRetries == 0 {
		c.TransientRetries = 3
	}
	if c.TransientRetryBase <= 0 {
		c.TransientRetryBase = 100 * time.Millisecond
	}
}

type Engine struct {
	constraints ConstraintStore
	bookings    BookingStore
	rankings    RankingStore
	oracle      Oracle
	logger      *slog.Logger
	cfg         Config
	now         func() time.Time
}

func New(constraints ConstraintStore, bookings BookingStore, rankings RankingStore, oracle Oracle, logger *slog.Logger, cfg Config) *Engine {
	cfg.applyDefaults()
	return &Engine{
		constraints: constraints,
		bookings:    bookings,
		rankings:    rankings,
		oracle:      oracle,
		logger:      logger,
		cfg:         cfg,
		now:         time.Now,
	}
}

func (e *Engine) translateStoreErr(err error) error {
	switch {
	case storage.IsNotFound(err):
		return ErrNotFound
	case storage.IsConflict(err):
		return ErrConflict
	default:
		return err
	}
}
