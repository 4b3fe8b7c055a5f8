package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/chairtime/chairtime/services/booking-service/internal/clock"
	"github.com/chairtime/chairtime/services/booking-service/internal/domain"
)

// Store is the calendar state the resolver reads. BookedFootprints must
// return active appointments with their cleanup buffer already applied.
type Store interface {
	Service(ctx context.Context, serviceID string) (domain.Service, error)
	StaffForService(ctx context.Context, serviceID string) ([]string, error)
	WorkingHours(ctx context.Context, staffID string, weekday time.Weekday) (domain.WorkingHours, error)
	IsHoliday(ctx context.Context, day time.Time) (bool, error)
	TimeOffIntervals(ctx context.Context, staffID string, window domain.Interval) ([]domain.Interval, error)
	BookedFootprints(ctx context.Context, staffID string, window domain.Interval) ([]domain.Interval, error)
}

// Resolver computes offerable slots for a service on a given day.
type Resolver struct {
	store Store
	clock clock.Clock
}

func NewResolver(store Store, clk clock.Clock) *Resolver {
	return &Resolver{store: store, clock: clk}
}

// Request asks for slots on Day (a UTC date). StaffID narrows the
// answer to one staff member; empty means everyone offering the
// service. Granularity zero means the policy default.
type Request struct {
	ServiceID   string
	StaffID     string
	Day         time.Time
	Granularity time.Duration
}

// StaffSlots holds the offerable slots for one staff member.
type StaffSlots struct {
	StaffID string
	Slots   []Slot
}

// Slots resolves the request against working hours, holidays, time off
// and existing appointments. A closed salon or fully booked day yields
// an empty (non-error) answer.
func (r *Resolver) Slots(ctx context.Context, req Request, set domain.PolicySettings) ([]StaffSlots, error) {
	day := req.Day.UTC().Truncate(24 * time.Hour)

	holiday, err := r.store.IsHoliday(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("check holiday: %w", err)
	}
	if holiday {
		return nil, nil
	}

	svc, err := r.store.Service(ctx, req.ServiceID)
	if err != nil {
		return nil, err
	}

	staffIDs := []string{req.StaffID}
	if req.StaffID == "" {
		staffIDs, err = r.store.StaffForService(ctx, req.ServiceID)
		if err != nil {
			return nil, fmt.Errorf("list staff for service: %w", err)
		}
	}

	step := req.Granularity
	if step <= 0 {
		step = set.SlotGranularity()
	}
	now := r.clock.Now().UTC()

	var out []StaffSlots
	for _, staffID := range staffIDs {
		slots, err := r.staffSlots(ctx, staffID, day, svc.Duration(), step, now)
		if err != nil {
			return nil, err
		}
		out = append(out, StaffSlots{StaffID: staffID, Slots: slots})
	}
	return out, nil
}

func (r *Resolver) staffSlots(ctx context.Context, staffID string, day time.Time, duration, step time.Duration, now time.Time) ([]Slot, error) {
	hours, err := r.store.WorkingHours(ctx, staffID, day.Weekday())
	if err != nil {
		return nil, fmt.Errorf("working hours for %s: %w", staffID, err)
	}
	if !hours.Working {
		return nil, nil
	}

	windowStart := day.Add(time.Duration(hours.StartMinute) * time.Minute)
	windowEnd := day.Add(time.Duration(hours.EndMinute) * time.Minute)
	window := domain.Interval{Start: windowStart, End: windowEnd}

	timeOff, err := r.store.TimeOffIntervals(ctx, staffID, window)
	if err != nil {
		return nil, fmt.Errorf("time off for %s: %w", staffID, err)
	}

	busy, err := r.store.BookedFootprints(ctx, staffID, window)
	if err != nil {
		return nil, fmt.Errorf("booked intervals for %s: %w", staffID, err)
	}
	busy = append(busy, timeOff...)

	return CandidateSlots(windowStart, windowEnd, duration, step, busy, now), nil
}
