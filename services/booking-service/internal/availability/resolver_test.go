package availability

import (
	"context"
	"testing"
	"time"

	"github.com/chairtime/chairtime/services/booking-service/internal/clock"
	"github.com/chairtime/chairtime/services/booking-service/internal/domain"
)

type fakeCalendar struct {
	service  domain.Service
	staff    []string
	hours    map[string]domain.WorkingHours
	holidays map[string]bool
	timeOff  map[string][]domain.Interval
	booked   map[string][]domain.Interval
}

func (f *fakeCalendar) Service(_ context.Context, serviceID string) (domain.Service, error) {
	if serviceID != f.service.ID {
		return domain.Service{}, domain.ErrServiceNotFound
	}
	return f.service, nil
}

func (f *fakeCalendar) StaffForService(context.Context, string) ([]string, error) {
	return f.staff, nil
}

func (f *fakeCalendar) WorkingHours(_ context.Context, staffID string, _ time.Weekday) (domain.WorkingHours, error) {
	if h, ok := f.hours[staffID]; ok {
		return h, nil
	}
	return domain.WorkingHours{}, nil
}

func (f *fakeCalendar) IsHoliday(_ context.Context, day time.Time) (bool, error) {
	return f.holidays[day.Format("2006-01-02")], nil
}

func (f *fakeCalendar) TimeOffIntervals(_ context.Context, staffID string, _ domain.Interval) ([]domain.Interval, error) {
	return f.timeOff[staffID], nil
}

func (f *fakeCalendar) BookedFootprints(_ context.Context, staffID string, _ domain.Interval) ([]domain.Interval, error) {
	return f.booked[staffID], nil
}

func newFakeCalendar() *fakeCalendar {
	return &fakeCalendar{
		service: domain.Service{ID: "svc-cut", Name: "Haircut", DurationMinutes: 60},
		staff:   []string{"staff-1", "staff-2"},
		hours: map[string]domain.WorkingHours{
			"staff-1": {Working: true, StartMinute: 9 * 60, EndMinute: 18 * 60},
			"staff-2": {Working: true, StartMinute: 10 * 60, EndMinute: 14 * 60},
		},
		holidays: map[string]bool{},
		timeOff:  map[string][]domain.Interval{},
		booked:   map[string][]domain.Interval{},
	}
}

func TestResolverHolidayYieldsNothing(t *testing.T) {
	cal := newFakeCalendar()
	cal.holidays["2026-03-02"] = true
	clk := clock.NewFixed(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	r := NewResolver(cal, clk)

	out, err := r.Slots(context.Background(), Request{
		ServiceID: "svc-cut",
		Day:       time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
	}, domain.DefaultPolicySettings())
	if err != nil {
		t.Fatalf("Slots failed: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("expected no slots on a holiday, got %d staff entries", len(out))
	}
}

func TestResolverAllStaffForService(t *testing.T) {
	cal := newFakeCalendar()
	clk := clock.NewFixed(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	r := NewResolver(cal, clk)
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	out, err := r.Slots(context.Background(), Request{ServiceID: "svc-cut", Day: day}, domain.DefaultPolicySettings())
	if err != nil {
		t.Fatalf("Slots failed: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 staff entries, got %d", len(out))
	}
	// staff-1 works 9h with 15 minute steps: last start 17:00.
	if got := len(out[0].Slots); got != 33 {
		t.Errorf("staff-1: expected 33 slots, got %d", got)
	}
	// staff-2 works 4h: starts 10:00 through 13:00.
	if got := len(out[1].Slots); got != 13 {
		t.Errorf("staff-2: expected 13 slots, got %d", got)
	}
}

func TestResolverSingleStaffAndTimeOff(t *testing.T) {
	cal := newFakeCalendar()
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	// Morning off until noon.
	cal.timeOff["staff-1"] = []domain.Interval{
		{Start: day.Add(9 * time.Hour), End: day.Add(12 * time.Hour)},
	}
	clk := clock.NewFixed(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	r := NewResolver(cal, clk)

	out, err := r.Slots(context.Background(), Request{
		ServiceID: "svc-cut",
		StaffID:   "staff-1",
		Day:       day,
	}, domain.DefaultPolicySettings())
	if err != nil {
		t.Fatalf("Slots failed: %v", err)
	}
	if len(out) != 1 || out[0].StaffID != "staff-1" {
		t.Fatalf("expected slots for staff-1 only, got %+v", out)
	}
	for _, s := range out[0].Slots {
		if s.Start.Before(day.Add(12 * time.Hour)) {
			t.Fatalf("slot %s falls inside time off", s.Start.Format("15:04"))
		}
	}
}

func TestResolverNonWorkingDay(t *testing.T) {
	cal := newFakeCalendar()
	cal.hours["staff-1"] = domain.WorkingHours{Working: false}
	clk := clock.NewFixed(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	r := NewResolver(cal, clk)

	out, err := r.Slots(context.Background(), Request{
		ServiceID: "svc-cut",
		StaffID:   "staff-1",
		Day:       time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
	}, domain.DefaultPolicySettings())
	if err != nil {
		t.Fatalf("Slots failed: %v", err)
	}
	if len(out) != 1 || len(out[0].Slots) != 0 {
		t.Fatalf("expected an empty slot list for a day off, got %+v", out)
	}
}

func TestResolverGranularityOverride(t *testing.T) {
	cal := newFakeCalendar()
	clk := clock.NewFixed(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	r := NewResolver(cal, clk)
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	out, err := r.Slots(context.Background(), Request{
		ServiceID:   "svc-cut",
		StaffID:     "staff-2",
		Day:         day,
		Granularity: time.Hour,
	}, domain.DefaultPolicySettings())
	if err != nil {
		t.Fatalf("Slots failed: %v", err)
	}
	// 10:00 through 13:00 on the hour.
	if got := len(out[0].Slots); got != 4 {
		t.Fatalf("expected 4 hourly slots, got %d", got)
	}
}
