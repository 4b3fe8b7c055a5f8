package conflict

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/chairtime/chairtime/services/booking-service/internal/clock"
	"github.com/chairtime/chairtime/services/booking-service/internal/domain"
)

type fakeCalendar struct {
	holidays map[string]bool
	timeOff  map[string][]domain.Interval
	booked   map[string][]bookedAppt
}

type bookedAppt struct {
	id        string
	footprint domain.Interval
}

func newFakeCalendar() *fakeCalendar {
	return &fakeCalendar{
		holidays: map[string]bool{},
		timeOff:  map[string][]domain.Interval{},
		booked:   map[string][]bookedAppt{},
	}
}

func (f *fakeCalendar) IsHoliday(_ context.Context, day time.Time) (bool, error) {
	return f.holidays[day.Format("2006-01-02")], nil
}

func (f *fakeCalendar) StaffOnTimeOff(_ context.Context, staffID string, span domain.Interval) (bool, error) {
	for _, iv := range f.timeOff[staffID] {
		if span.Overlaps(iv) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeCalendar) OverlappingAppointments(_ context.Context, staffID string, span domain.Interval, excludeID string) ([]string, error) {
	var ids []string
	for _, b := range f.booked[staffID] {
		if b.id == excludeID {
			continue
		}
		if span.Overlaps(b.footprint) {
			ids = append(ids, b.id)
		}
	}
	return ids, nil
}

var base = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func span(from, to time.Duration) domain.Interval {
	return domain.Interval{Start: base.Add(from), End: base.Add(to)}
}

func TestValidateAcceptsOpenSlot(t *testing.T) {
	v := NewValidator(newFakeCalendar(), clock.NewFixed(base))
	res, err := v.Validate(context.Background(), Check{StaffID: "staff-1", Span: span(24*time.Hour, 25*time.Hour)}, domain.DefaultPolicySettings())
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if !res.OK {
		t.Fatalf("expected acceptance, got %q", res.Reason)
	}
}

func TestValidateInvalidSpan(t *testing.T) {
	v := NewValidator(newFakeCalendar(), clock.NewFixed(base))
	res, err := v.Validate(context.Background(), Check{StaffID: "staff-1", Span: span(time.Hour, time.Hour)}, domain.DefaultPolicySettings())
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if res.OK || res.Kind != domain.FailurePolicy {
		t.Fatalf("expected policy rejection, got %+v", res)
	}
}

func TestValidateMinNotice(t *testing.T) {
	v := NewValidator(newFakeCalendar(), clock.NewFixed(base))
	// Default minimum notice is 2 hours; 90 minutes out is too soon.
	res, err := v.Validate(context.Background(), Check{StaffID: "staff-1", Span: span(90*time.Minute, 150*time.Minute)}, domain.DefaultPolicySettings())
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if res.OK || res.Kind != domain.FailurePolicy {
		t.Fatalf("expected policy rejection, got %+v", res)
	}
	if !strings.Contains(res.Reason, "2 hours notice") {
		t.Fatalf("unexpected reason %q", res.Reason)
	}
}

func TestValidateMaxAdvance(t *testing.T) {
	v := NewValidator(newFakeCalendar(), clock.NewFixed(base))
	res, err := v.Validate(context.Background(), Check{StaffID: "staff-1", Span: span(61*24*time.Hour, 61*24*time.Hour+time.Hour)}, domain.DefaultPolicySettings())
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if res.OK || res.Kind != domain.FailurePolicy {
		t.Fatalf("expected policy rejection, got %+v", res)
	}
	if !strings.Contains(res.Reason, "60 days") {
		t.Fatalf("unexpected reason %q", res.Reason)
	}
}

func TestValidateHoliday(t *testing.T) {
	cal := newFakeCalendar()
	cal.holidays["2026-03-03"] = true
	v := NewValidator(cal, clock.NewFixed(base))

	res, err := v.Validate(context.Background(), Check{StaffID: "staff-1", Span: span(25*time.Hour, 26*time.Hour)}, domain.DefaultPolicySettings())
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if res.OK || !strings.Contains(res.Reason, "closed") {
		t.Fatalf("expected holiday rejection, got %+v", res)
	}
}

func TestValidateTimeOff(t *testing.T) {
	cal := newFakeCalendar()
	cal.timeOff["staff-1"] = []domain.Interval{span(24*time.Hour, 32*time.Hour)}
	v := NewValidator(cal, clock.NewFixed(base))

	res, err := v.Validate(context.Background(), Check{StaffID: "staff-1", Span: span(25*time.Hour, 26*time.Hour)}, domain.DefaultPolicySettings())
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if res.OK || res.Kind != domain.FailurePolicy {
		t.Fatalf("expected time off rejection, got %+v", res)
	}
}

func TestValidateOverlapIsConflict(t *testing.T) {
	cal := newFakeCalendar()
	cal.booked["staff-1"] = []bookedAppt{{id: "appt-1", footprint: span(24*time.Hour, 25*time.Hour+15*time.Minute)}}
	v := NewValidator(cal, clock.NewFixed(base))

	res, err := v.Validate(context.Background(), Check{StaffID: "staff-1", Span: span(25*time.Hour, 26*time.Hour)}, domain.DefaultPolicySettings())
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if res.OK || res.Kind != domain.FailureConflict {
		t.Fatalf("expected conflict rejection, got %+v", res)
	}

	// The same span is fine once the blocking appointment is excluded,
	// which is how a reschedule avoids colliding with itself.
	res, err = v.Validate(context.Background(), Check{StaffID: "staff-1", Span: span(25*time.Hour, 26*time.Hour), ExcludeID: "appt-1"}, domain.DefaultPolicySettings())
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if !res.OK {
		t.Fatalf("expected acceptance with exclusion, got %+v", res)
	}
}
