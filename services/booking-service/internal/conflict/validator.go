package conflict

import (
	"context"
	"fmt"
	"time"

	"github.com/chairtime/chairtime/services/booking-service/internal/clock"
	"github.com/chairtime/chairtime/services/booking-service/internal/domain"
)

// Store reads the calendar state a candidate booking is checked
// against. When called inside a transaction the overlap query locks the
// matching appointment rows.
type Store interface {
	IsHoliday(ctx context.Context, day time.Time) (bool, error)
	StaffOnTimeOff(ctx context.Context, staffID string, span domain.Interval) (bool, error)
	OverlappingAppointments(ctx context.Context, staffID string, span domain.Interval, excludeID string) ([]string, error)
}

// Check is one candidate interval to validate. ExcludeID names an
// appointment to ignore in the overlap scan, so a reschedule does not
// collide with itself.
type Check struct {
	StaffID   string
	Span      domain.Interval
	ExcludeID string
}

// Result is the validator's verdict. A policy or conflict rejection is
// expressed here, not as an error; errors are reserved for
// infrastructure failures.
type Result struct {
	OK     bool
	Kind   domain.FailureKind
	Reason string
}

func ok() Result { return Result{OK: true} }

func rejected(kind domain.FailureKind, reason string) Result {
	return Result{Kind: kind, Reason: reason}
}

// Validator applies the booking rules in a fixed order: horizon first,
// then calendar closures, then overlap.
type Validator struct {
	store Store
	clock clock.Clock
}

func NewValidator(store Store, clk clock.Clock) *Validator {
	return &Validator{store: store, clock: clk}
}

func (v *Validator) Validate(ctx context.Context, chk Check, set domain.PolicySettings) (Result, error) {
	if !chk.Span.Valid() {
		return rejected(domain.FailurePolicy, "the requested time range is invalid"), nil
	}

	now := v.clock.Now().UTC()
	if chk.Span.Start.Before(now.Add(set.MinNotice)) {
		return rejected(domain.FailurePolicy,
			fmt.Sprintf("bookings require at least %s notice", formatNotice(set.MinNotice))), nil
	}
	if chk.Span.Start.After(now.Add(set.MaxAdvance)) {
		return rejected(domain.FailurePolicy,
			fmt.Sprintf("bookings can be made at most %d days in advance", int(set.MaxAdvance.Hours()/24))), nil
	}

	day := chk.Span.Start.UTC().Truncate(24 * time.Hour)
	holiday, err := v.store.IsHoliday(ctx, day)
	if err != nil {
		return Result{}, fmt.Errorf("check holiday: %w", err)
	}
	if holiday {
		return rejected(domain.FailurePolicy,
			fmt.Sprintf("the salon is closed on %s", day.Format("2006-01-02"))), nil
	}

	off, err := v.store.StaffOnTimeOff(ctx, chk.StaffID, chk.Span)
	if err != nil {
		return Result{}, fmt.Errorf("check time off: %w", err)
	}
	if off {
		return rejected(domain.FailurePolicy, "the staff member is away during the requested time"), nil
	}

	taken, err := v.store.OverlappingAppointments(ctx, chk.StaffID, chk.Span, chk.ExcludeID)
	if err != nil {
		return Result{}, fmt.Errorf("check overlap: %w", err)
	}
	if len(taken) > 0 {
		return rejected(domain.FailureConflict, "the requested time is no longer available"), nil
	}

	return ok(), nil
}

func formatNotice(d time.Duration) string {
	if d >= time.Hour && d%time.Hour == 0 {
		h := int(d.Hours())
		if h == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", h)
	}
	return fmt.Sprintf("%d minutes", int(d.Minutes()))
}
