package storage

import (
	"context"
	"errors"
	"net"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound: the row does not exist or does not belong to the org.
	ErrNotFound = errors.New("not found")
	// ErrConflict: the interval is already taken, detected either by the
	// in-transaction recount or by the exclusion constraint at insert time.
	ErrConflict = errors.New("slot conflict")
	// ErrIdempotentReplay: an appointment with this (org, idempotency key)
	// already exists. Callers should re-read and return the original.
	ErrIdempotentReplay = errors.New("idempotency key already used")
	// ErrInvalidTimezone: not a recognized IANA zone name.
	ErrInvalidTimezone = errors.New("invalid timezone")
)

const (
	pgExclusionViolation = "23P01"
	pgUniqueViolation    = "23505"
	pgSerializationFail  = "40001"
	pgDeadlockDetected   = "40P01"
)

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, pgx.ErrNoRows)
}

func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

func IsIdempotentReplay(err error) bool {
	return errors.Is(err, ErrIdempotentReplay)
}

func IsInvalidTimezone(err error) bool {
	return errors.Is(err, ErrInvalidTimezone)
}

// IsTransient reports whether a store error is worth a bounded retry:
// deadlocks, serialization failures, timeouts, and connection-level errors.
// Constraint violations and not-found are never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgSerializationFail, pgDeadlockDetected:
			return true
		}
		return false
	}
	if pgconn.Timeout(err) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

func classifyInsertErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgExclusionViolation:
			return ErrConflict
		case pgUniqueViolation:
			if pgErr.ConstraintName == "appointments_idempotency_idx" {
				return ErrIdempotentReplay
			}
			return ErrConflict
		}
	}
	return err
}
