package availability

import (
	"time"

	"github.com/chairtime/chairtime/services/booking-service/internal/domain"
)

// Slot is one offerable appointment start/end pair.
type Slot struct {
	Start time.Time
	End   time.Time
}

// CandidateSlots returns slots of length duration starting every step
// within [windowStart, windowEnd) that do not touch any busy footprint.
//
// Busy intervals are expected to already include each appointment's
// cleanup buffer. Slots starting before now are dropped. All times are
// expected to be in the same location.
func CandidateSlots(windowStart, windowEnd time.Time, duration, step time.Duration, busy []domain.Interval, now time.Time) []Slot {
	if duration <= 0 || step <= 0 {
		return nil
	}
	if !windowEnd.After(windowStart) {
		return nil
	}
	if windowStart.Add(duration).After(windowEnd) {
		return nil
	}

	var slots []Slot
	for t := windowStart; !t.Add(duration).After(windowEnd); t = t.Add(step) {
		if t.Before(now) {
			continue
		}
		candidate := domain.Interval{Start: t, End: t.Add(duration)}
		if !overlapsAny(candidate, busy) {
			slots = append(slots, Slot{Start: candidate.Start, End: candidate.End})
		}
	}
	return slots
}

func overlapsAny(candidate domain.Interval, busy []domain.Interval) bool {
	for _, b := range busy {
		if candidate.Overlaps(b) {
			return true
		}
	}
	return false
}
