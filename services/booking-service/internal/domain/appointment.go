package domain

import "time"

type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "pending"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCompleted AppointmentStatus = "completed"
	StatusCancelled AppointmentStatus = "cancelled"
	StatusNoShow    AppointmentStatus = "no_show"
)

// Active reports whether the appointment still occupies its slot on the
// staff calendar.
func (s AppointmentStatus) Active() bool {
	return s == StatusPending || s == StatusConfirmed
}

// Terminal reports whether the status permits no further transitions.
func (s AppointmentStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusNoShow
}

// Interval is a half-open time range [Start, End) in UTC.
type Interval struct {
	Start time.Time
	End   time.Time
}

func (i Interval) Valid() bool {
	return i.End.After(i.Start)
}

func (i Interval) Duration() time.Duration {
	return i.End.Sub(i.Start)
}

// Overlaps reports whether two half-open intervals share any instant.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && o.Start.Before(i.End)
}

type Appointment struct {
	ID              string
	CustomerID      string
	StaffID         string
	ServiceID       string
	StartTime       time.Time
	EndTime         time.Time
	Status          AppointmentStatus
	PriceCents      int64
	Currency        string
	Notes           string
	BufferMinutes   int
	RescheduleCount int
	PaymentIntentID string
	CancelledAt     *time.Time
	CancelReason    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (a Appointment) Span() Interval {
	return Interval{Start: a.StartTime, End: a.EndTime}
}

// Footprint is the interval the appointment blocks on the calendar: the
// service itself plus the cleanup buffer that was in force when it was
// booked.
func (a Appointment) Footprint() Interval {
	return Interval{
		Start: a.StartTime,
		End:   a.EndTime.Add(time.Duration(a.BufferMinutes) * time.Minute),
	}
}

// Service is a bookable offering with a fixed duration and price.
type Service struct {
	ID              string
	Name            string
	DurationMinutes int
	PriceCents      int64
}

func (s Service) Duration() time.Duration {
	return time.Duration(s.DurationMinutes) * time.Minute
}

// WorkingHours describes one weekday of a staff member's schedule.
// Minutes are counted from local midnight.
type WorkingHours struct {
	Weekday     time.Weekday
	Working     bool
	StartMinute int
	EndMinute   int
}
