package domain

import (
	"encoding/json"
	"time"
)

type OperationType string

const (
	OpReserve    OperationType = "reserve"
	OpReschedule OperationType = "reschedule"
	OpCancel     OperationType = "cancel"
)

// BookingOperation is one row of the append-only audit trail. Every
// attempt is recorded, including declined ones.
type BookingOperation struct {
	ID            string
	AppointmentID string
	Type          OperationType
	ActorID       string
	ActorRole     Role
	Outcome       ReservationStatus
	Reason        string
	Detail        json.RawMessage
	OccurredAt    time.Time
}
