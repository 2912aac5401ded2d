// Package widget drives one customer's booking session.
package widget

import (
	"context"
	"errors"

	"reservo/internal/availability"
	"reservo/internal/mode"
	"reservo/internal/schedule"
)

var (
	// ErrStale is returned for a response superseded by a newer selection.
	ErrStale = errors.New("response superseded by a newer selection")
	// ErrOccupancyUnavailable means slots cannot be shown because existing
	// reservations could not be read. Retry later.
	ErrOccupancyUnavailable = errors.New("occupancy unavailable")
	// ErrSubmissionRejected means the backend refused the booking, typically
	// because the slot was taken meanwhile. Pick another slot and retry.
	ErrSubmissionRejected = errors.New("submission rejected")
	// ErrSlotsUnsupported is returned for slot views of a workshop business.
	ErrSlotsUnsupported = errors.New("booking mode does not use slots")
	// ErrInvalidDate is returned for a date that is not YYYY-MM-DD.
	ErrInvalidDate = errors.New("invalid date; expected YYYY-MM-DD")
)

// Retryable reports whether the user may retry the action that failed with err.
func Retryable(err error) bool {
	return errors.Is(err, ErrOccupancyUnavailable) || errors.Is(err, ErrSubmissionRejected)
}

// Source reads business configuration and existing bookings.
type Source interface {
	BusinessConfig(ctx context.Context, businessID string) (schedule.Raw, mode.Raw, error)
	Reservations(ctx context.Context, businessID, date string) ([]availability.Reservation, error)
	Workshops(ctx context.Context, businessID string) ([]mode.WorkshopSession, error)
}

// Submitter forwards a booking to the backend. Only success or failure is
// interpreted; a refusal is reported as ErrSubmissionRejected.
type Submitter interface {
	Submit(ctx context.Context, p mode.Payload) error
}
