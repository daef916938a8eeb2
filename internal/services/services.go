// Package services wires the pure billing/scheduling rules to storage. Every
// operation takes the acting tutor id explicitly; there is no implicit
// current-user state.
package services

import (
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrInvalidInput         = errors.New("invalid input")
	ErrConflict             = errors.New("time slot conflicts with an existing booking")
	ErrNotFound             = errors.New("not found")
	ErrInvalidStatus        = errors.New("invalid status")
	ErrInvalidTransition    = errors.New("invalid state transition")
	ErrLessonBilled         = errors.New("lesson is already on an invoice")
	ErrAlreadyInvoiced      = errors.New("payment already exists for this period")
	ErrNothingToInvoice     = errors.New("no billable lessons found")
	ErrPaymentAlreadySettled = errors.New("payment is already settled")
)

// uniqueViolation reports whether err is a Postgres unique-constraint failure,
// optionally on one specific constraint.
func uniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}

// MonthStart normalizes any timestamp in a billing month to the first-of-month
// key the payments table is unique on.
func MonthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// MonthRange returns the half-open [first, next-first) range of a billing
// month in the given timezone, for selecting the month's lessons.
func MonthRange(month time.Time, loc *time.Location) (time.Time, time.Time) {
	start := time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 1, 0)
}

// DayRange returns the half-open [midnight, next-midnight) range of a date in
// the given timezone.
func DayRange(date time.Time, loc *time.Location) (time.Time, time.Time) {
	start := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}
