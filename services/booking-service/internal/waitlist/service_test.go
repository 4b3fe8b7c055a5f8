package waitlist

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"testing"
	"time"

	"github.com/chairtime/chairtime/services/booking-service/internal/clock"
	"github.com/chairtime/chairtime/services/booking-service/internal/domain"
	"github.com/chairtime/chairtime/services/booking-service/internal/outbox"
)

var base = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeWaitlistStore struct {
	entries map[string]domain.WaitlistEntry
	events  []outbox.Event
}

func newFakeWaitlistStore() *fakeWaitlistStore {
	return &fakeWaitlistStore{entries: map[string]domain.WaitlistEntry{}}
}

func (s *fakeWaitlistStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (s *fakeWaitlistStore) CreateEntry(_ context.Context, entry *domain.WaitlistEntry) error {
	for _, e := range s.entries {
		if e.CustomerID == entry.CustomerID && e.ServiceID == entry.ServiceID && e.Status == domain.WaitlistActive {
			return domain.ErrDuplicateWaitlistEntry
		}
	}
	s.entries[entry.ID] = *entry
	return nil
}

func (s *fakeWaitlistStore) GetEntry(_ context.Context, id string) (domain.WaitlistEntry, error) {
	e, ok := s.entries[id]
	if !ok {
		return domain.WaitlistEntry{}, domain.ErrWaitlistEntryNotFound
	}
	return e, nil
}

func (s *fakeWaitlistStore) MatchCandidates(_ context.Context, serviceID string, day time.Time, limit int) ([]domain.WaitlistEntry, error) {
	if limit <= 0 {
		return nil, nil
	}
	var out []domain.WaitlistEntry
	for _, e := range s.entries {
		if e.ServiceID == serviceID && e.Status == domain.WaitlistActive && e.Matches(day) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeWaitlistStore) MarkNotified(_ context.Context, id string, at time.Time) error {
	e, ok := s.entries[id]
	if !ok || e.Status != domain.WaitlistActive {
		return domain.ErrWaitlistEntryNotFound
	}
	e.Status = domain.WaitlistNotified
	e.NotifiedAt = &at
	s.entries[id] = e
	return nil
}

func (s *fakeWaitlistStore) UpdateEntryStatus(_ context.Context, id string, status domain.WaitlistStatus) error {
	e, ok := s.entries[id]
	if !ok {
		return domain.ErrWaitlistEntryNotFound
	}
	e.Status = status
	s.entries[id] = e
	return nil
}

func (s *fakeWaitlistStore) Insert(_ context.Context, evt outbox.Event) error {
	s.events = append(s.events, evt)
	return nil
}

func seedEntry(s *fakeWaitlistStore, id, customerID string, priority int, createdAt time.Time) {
	s.entries[id] = domain.WaitlistEntry{
		ID:         id,
		CustomerID: customerID,
		ServiceID:  "svc-cut",
		RangeStart: base.Truncate(24 * time.Hour),
		RangeEnd:   base.Add(7 * 24 * time.Hour).Truncate(24 * time.Hour),
		Priority:   priority,
		Status:     domain.WaitlistActive,
		CreatedAt:  createdAt,
	}
}

func TestJoinForcesCustomerPriorityToZero(t *testing.T) {
	store := newFakeWaitlistStore()
	svc := NewService(store, store, clock.NewFixed(base), testLogger())

	entry, err := svc.Join(context.Background(), JoinInput{
		CustomerID: "cust-1",
		ServiceID:  "svc-cut",
		RangeStart: base,
		RangeEnd:   base.Add(48 * time.Hour),
		Priority:   9,
		Actor:      domain.Actor{ID: "cust-1", Role: domain.RoleCustomer},
	})
	if err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	if entry.Priority != 0 {
		t.Fatalf("customer-set priority must be dropped, got %d", entry.Priority)
	}
	if entry.Status != domain.WaitlistActive {
		t.Fatalf("status = %s", entry.Status)
	}
	if !entry.RangeStart.Equal(base.Truncate(24 * time.Hour)) {
		t.Fatalf("range start not truncated to a date: %s", entry.RangeStart)
	}
}

func TestJoinKeepsStaffPriority(t *testing.T) {
	store := newFakeWaitlistStore()
	svc := NewService(store, store, clock.NewFixed(base), testLogger())

	entry, err := svc.Join(context.Background(), JoinInput{
		CustomerID: "cust-1",
		ServiceID:  "svc-cut",
		RangeStart: base,
		RangeEnd:   base.Add(48 * time.Hour),
		Priority:   5,
		Actor:      domain.Actor{ID: "staff-1", Role: domain.RoleStaff},
	})
	if err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	if entry.Priority != 5 {
		t.Fatalf("staff-set priority should stand, got %d", entry.Priority)
	}
}

func TestJoinKeepsStaffPreference(t *testing.T) {
	store := newFakeWaitlistStore()
	svc := NewService(store, store, clock.NewFixed(base), testLogger())

	entry, err := svc.Join(context.Background(), JoinInput{
		CustomerID: "cust-1",
		ServiceID:  "svc-cut",
		StaffID:    "staff-2",
		RangeStart: base,
		RangeEnd:   base.Add(48 * time.Hour),
		Actor:      domain.Actor{ID: "cust-1", Role: domain.RoleCustomer},
	})
	if err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	if entry.StaffID != "staff-2" {
		t.Fatalf("staff preference = %q", entry.StaffID)
	}
	if store.entries[entry.ID].StaffID != "staff-2" {
		t.Fatal("staff preference not persisted")
	}
}

func TestPromoteIgnoresStaffPreference(t *testing.T) {
	store := newFakeWaitlistStore()
	seedEntry(store, "wl-1", "cust-1", 0, base)
	entry := store.entries["wl-1"]
	entry.StaffID = "staff-9"
	store.entries["wl-1"] = entry
	svc := NewService(store, store, clock.NewFixed(base), testLogger())

	// The freed slot belongs to a different staff member; matching is by
	// service and date range, so the entry is still promoted.
	entries, err := svc.PromoteForCancellation(context.Background(), domain.Appointment{
		ID: "appt-1", StaffID: "staff-1", ServiceID: "svc-cut",
		StartTime: base.Add(48 * time.Hour), EndTime: base.Add(49 * time.Hour),
	}, domain.DefaultPolicySettings())
	if err != nil {
		t.Fatalf("PromoteForCancellation failed: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != "wl-1" {
		t.Fatalf("entries = %+v", entries)
	}
}

func TestJoinDuplicate(t *testing.T) {
	store := newFakeWaitlistStore()
	svc := NewService(store, store, clock.NewFixed(base), testLogger())
	in := JoinInput{
		CustomerID: "cust-1",
		ServiceID:  "svc-cut",
		RangeStart: base,
		RangeEnd:   base.Add(48 * time.Hour),
		Actor:      domain.Actor{ID: "cust-1", Role: domain.RoleCustomer},
	}

	if _, err := svc.Join(context.Background(), in); err != nil {
		t.Fatalf("first Join failed: %v", err)
	}
	if _, err := svc.Join(context.Background(), in); !errors.Is(err, domain.ErrDuplicateWaitlistEntry) {
		t.Fatalf("expected ErrDuplicateWaitlistEntry, got %v", err)
	}
}

func TestJoinRejectsInvertedRange(t *testing.T) {
	store := newFakeWaitlistStore()
	svc := NewService(store, store, clock.NewFixed(base), testLogger())

	_, err := svc.Join(context.Background(), JoinInput{
		CustomerID: "cust-1",
		ServiceID:  "svc-cut",
		RangeStart: base.Add(48 * time.Hour),
		RangeEnd:   base,
		Actor:      domain.Actor{ID: "cust-1", Role: domain.RoleCustomer},
	})
	if !domain.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestLeave(t *testing.T) {
	store := newFakeWaitlistStore()
	seedEntry(store, "wl-1", "cust-1", 0, base)
	svc := NewService(store, store, clock.NewFixed(base), testLogger())
	ctx := context.Background()

	if err := svc.Leave(ctx, "wl-1", domain.Actor{ID: "cust-2", Role: domain.RoleCustomer}); !errors.Is(err, domain.ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized for another customer, got %v", err)
	}
	if err := svc.Leave(ctx, "wl-1", domain.Actor{ID: "cust-1", Role: domain.RoleCustomer}); err != nil {
		t.Fatalf("Leave failed: %v", err)
	}
	if store.entries["wl-1"].Status != domain.WaitlistCancelled {
		t.Fatalf("status = %s", store.entries["wl-1"].Status)
	}

	// Leaving again is a no-op.
	if err := svc.Leave(ctx, "wl-1", domain.Actor{ID: "cust-1", Role: domain.RoleCustomer}); err != nil {
		t.Fatalf("second Leave failed: %v", err)
	}
}

func TestPromoteForCancellation(t *testing.T) {
	store := newFakeWaitlistStore()
	seedEntry(store, "wl-low", "cust-1", 0, base.Add(-2*time.Hour))
	seedEntry(store, "wl-high", "cust-2", 5, base.Add(-1*time.Hour))
	seedEntry(store, "wl-late", "cust-3", 0, base.Add(-30*time.Minute))
	// Outside the freed day's range.
	store.entries["wl-out"] = domain.WaitlistEntry{
		ID: "wl-out", CustomerID: "cust-4", ServiceID: "svc-cut",
		RangeStart: base.Add(30 * 24 * time.Hour), RangeEnd: base.Add(40 * 24 * time.Hour),
		Status: domain.WaitlistActive, CreatedAt: base.Add(-3 * time.Hour),
	}
	svc := NewService(store, store, clock.NewFixed(base), testLogger())

	appt := domain.Appointment{
		ID:        "appt-1",
		StaffID:   "staff-1",
		ServiceID: "svc-cut",
		StartTime: base.Add(48 * time.Hour),
		EndTime:   base.Add(49 * time.Hour),
	}
	set := domain.DefaultPolicySettings()
	set.WaitlistPromotionLimit = 2

	entries, err := svc.PromoteForCancellation(context.Background(), appt, set)
	if err != nil {
		t.Fatalf("PromoteForCancellation failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 promotions, got %d", len(entries))
	}
	// Priority wins, then first joined.
	if entries[0].ID != "wl-high" || entries[1].ID != "wl-low" {
		t.Fatalf("promotion order = %s, %s", entries[0].ID, entries[1].ID)
	}
	for _, e := range entries {
		if e.Status != domain.WaitlistNotified || e.NotifiedAt == nil {
			t.Fatalf("entry %s not marked notified: %+v", e.ID, e)
		}
	}
	if store.entries["wl-late"].Status != domain.WaitlistActive {
		t.Fatal("entry beyond the limit must stay active")
	}
	if store.entries["wl-out"].Status != domain.WaitlistActive {
		t.Fatal("entry outside the date range must stay active")
	}
	if len(store.events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(store.events))
	}
	for _, evt := range store.events {
		if evt.EventType != "waitlist.notified" {
			t.Fatalf("event type = %s", evt.EventType)
		}
	}
}

func TestPromoteForCancellationZeroLimit(t *testing.T) {
	store := newFakeWaitlistStore()
	seedEntry(store, "wl-1", "cust-1", 0, base)
	svc := NewService(store, store, clock.NewFixed(base), testLogger())

	set := domain.DefaultPolicySettings()
	set.WaitlistPromotionLimit = 0
	entries, err := svc.PromoteForCancellation(context.Background(), domain.Appointment{
		ID: "appt-1", ServiceID: "svc-cut",
		StartTime: base.Add(48 * time.Hour), EndTime: base.Add(49 * time.Hour),
	}, set)
	if err != nil {
		t.Fatalf("PromoteForCancellation failed: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("zero limit should promote nobody, got %d", len(entries))
	}
}
