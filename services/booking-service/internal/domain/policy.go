package domain

import "time"

// PolicySettings is the effective salon booking policy, assembled from
// the booking_policies table with defaults filling any gap.
type PolicySettings struct {
	// MinNotice is how far in advance a booking must be made.
	MinNotice time.Duration
	// MaxAdvance is how far into the future a booking may reach.
	MaxAdvance time.Duration
	// CancelNotice is how long before the start time a customer may
	// still cancel.
	CancelNotice time.Duration
	// RescheduleNotice is how long before the start time a customer may
	// still reschedule.
	RescheduleNotice time.Duration
	// MaxReschedules caps how many times a single appointment can be
	// moved.
	MaxReschedules int
	// BufferMinutes is the cleanup time blocked after each appointment.
	BufferMinutes int
	// SlotGranularityMinutes is the step between candidate slot starts.
	SlotGranularityMinutes int
	// WaitlistPromotionLimit is how many waitlist entries are notified
	// when a slot frees up.
	WaitlistPromotionLimit int
}

func DefaultPolicySettings() PolicySettings {
	return PolicySettings{
		MinNotice:              2 * time.Hour,
		MaxAdvance:             60 * 24 * time.Hour,
		CancelNotice:           24 * time.Hour,
		RescheduleNotice:       4 * time.Hour,
		MaxReschedules:         3,
		BufferMinutes:          10,
		SlotGranularityMinutes: 15,
		WaitlistPromotionLimit: 3,
	}
}

func (p PolicySettings) Buffer() time.Duration {
	return time.Duration(p.BufferMinutes) * time.Minute
}

func (p PolicySettings) SlotGranularity() time.Duration {
	return time.Duration(p.SlotGranularityMinutes) * time.Minute
}
