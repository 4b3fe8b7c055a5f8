package domain

import (
	"errors"
	"fmt"
)

var (
	ErrIdempotencyKeyRequired = errors.New("idempotency key is required")
	ErrIdempotencyKeyReused   = errors.New("idempotency key was already used with a different request")
	ErrAppointmentNotFound    = errors.New("appointment not found")
	ErrStaffNotFound          = errors.New("staff member not found")
	ErrServiceNotFound        = errors.New("service not found")
	ErrNotAuthorized          = errors.New("actor may not act on this appointment")
	ErrDuplicateWaitlistEntry = errors.New("customer already has an active waitlist entry for this service")
	ErrWaitlistEntryNotFound  = errors.New("waitlist entry not found")

	// ErrSlotTaken surfaces the database exclusion constraint. The staff
	// row lock makes it unreachable through this service; it exists as a
	// backstop against out-of-band writes.
	ErrSlotTaken = errors.New("slot is already taken")
)

// ValidationError marks a request that is malformed regardless of
// current calendar state.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}

func Validationf(field, format string, args ...any) error {
	return &ValidationError{Field: field, Msg: fmt.Sprintf(format, args...)}
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
