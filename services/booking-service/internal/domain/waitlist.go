package domain

import "time"

type WaitlistStatus string

const (
	WaitlistActive    WaitlistStatus = "active"
	WaitlistNotified  WaitlistStatus = "notified"
	WaitlistBooked    WaitlistStatus = "booked"
	WaitlistExpired   WaitlistStatus = "expired"
	WaitlistCancelled WaitlistStatus = "cancelled"
)

// WaitlistEntry is a customer's standing request to be told when a slot
// for a service opens up inside their date range. Matching is by service
// and date range only; the staff preference is recorded for the
// notification but does not narrow the match, and time-of-day
// preferences are not part of the model.
type WaitlistEntry struct {
	ID         string
	CustomerID string
	ServiceID  string
	// StaffID is the preferred staff member. Empty means any.
	StaffID    string
	RangeStart time.Time
	RangeEnd   time.Time
	Priority   int
	Status     WaitlistStatus
	NotifiedAt *time.Time
	CreatedAt  time.Time
}

// Matches reports whether a freed slot on day falls inside the entry's
// desired range. Both bounds are dates; the range is inclusive.
func (e WaitlistEntry) Matches(day time.Time) bool {
	d := day.Truncate(24 * time.Hour)
	return !d.Before(e.RangeStart.Truncate(24*time.Hour)) && !d.After(e.RangeEnd.Truncate(24*time.Hour))
}
