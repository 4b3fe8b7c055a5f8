package domain

import "time"

// FailureKind distinguishes why a reservation was declined.
type FailureKind string

const (
	// FailurePolicy means the request broke a booking rule (deadline,
	// horizon, closed day).
	FailurePolicy FailureKind = "policy"
	// FailureConflict means the requested slot is taken.
	FailureConflict FailureKind = "conflict"
)

type ReservationStatus string

const (
	ReservationCompleted ReservationStatus = "completed"
	ReservationFailed    ReservationStatus = "failed"
)

// ReservationResult is the recorded outcome of a booking operation. It
// is stored against the idempotency key, so a retry with the same key
// replays it verbatim.
type ReservationResult struct {
	Status        ReservationStatus
	AppointmentID string
	FailureKind   FailureKind
	Reason        string
}

func CompletedReservation(appointmentID string) ReservationResult {
	return ReservationResult{Status: ReservationCompleted, AppointmentID: appointmentID}
}

func FailedReservation(kind FailureKind, reason string) ReservationResult {
	return ReservationResult{Status: ReservationFailed, FailureKind: kind, Reason: reason}
}

func (r ReservationResult) Completed() bool {
	return r.Status == ReservationCompleted
}

// IdempotencyRecord is the durable claim on an idempotency key. The
// fingerprint pins the key to one request payload; Result stays nil
// until the operation is finalized.
type IdempotencyRecord struct {
	Key         string
	Fingerprint string
	Result      *ReservationResult
	CreatedAt   time.Time
}

func (r IdempotencyRecord) Finalized() bool {
	return r.Result != nil
}
