package waitlist

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/chairtime/chairtime/services/booking-service/internal/clock"
	"github.com/chairtime/chairtime/services/booking-service/internal/domain"
	"github.com/chairtime/chairtime/services/booking-service/internal/outbox"
)

// Store persists waitlist entries. MatchCandidates must return active
// entries for the service whose date range covers day, ordered by
// priority descending then creation time ascending, locked for update.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	CreateEntry(ctx context.Context, entry *domain.WaitlistEntry) error
	GetEntry(ctx context.Context, id string) (domain.WaitlistEntry, error)
	MatchCandidates(ctx context.Context, serviceID string, day time.Time, limit int) ([]domain.WaitlistEntry, error)
	MarkNotified(ctx context.Context, id string, at time.Time) error
	UpdateEntryStatus(ctx context.Context, id string, status domain.WaitlistStatus) error
}

type EventSink interface {
	Insert(ctx context.Context, evt outbox.Event) error
}

// Service manages waitlist membership and promotion.
type Service struct {
	store  Store
	events EventSink
	clock  clock.Clock
	logger *slog.Logger
}

func NewService(store Store, events EventSink, clk clock.Clock, logger *slog.Logger) *Service {
	return &Service{store: store, events: events, clock: clk, logger: logger}
}

type JoinInput struct {
	CustomerID string
	ServiceID  string
	StaffID    string
	RangeStart time.Time
	RangeEnd   time.Time
	Priority   int
	Actor      domain.Actor
}

func (in *JoinInput) validate() error {
	if in.CustomerID == "" {
		return domain.Validationf("customer_id", "is required")
	}
	if in.ServiceID == "" {
		return domain.Validationf("service_id", "is required")
	}
	if in.RangeStart.IsZero() || in.RangeEnd.IsZero() {
		return domain.Validationf("date_range", "both bounds are required")
	}
	in.RangeStart = in.RangeStart.UTC().Truncate(24 * time.Hour)
	in.RangeEnd = in.RangeEnd.UTC().Truncate(24 * time.Hour)
	if in.RangeEnd.Before(in.RangeStart) {
		return domain.Validationf("date_range", "end must not be before start")
	}
	if in.Priority < 0 {
		return domain.Validationf("priority", "must not be negative")
	}
	if !in.Actor.Role.Valid() {
		return domain.Validationf("actor_role", "must be customer, staff or admin")
	}
	if !in.Actor.MayActOn(in.CustomerID) {
		return domain.ErrNotAuthorized
	}
	// Only staff can grant elevated priority.
	if !in.Actor.Role.Privileged() {
		in.Priority = 0
	}
	return nil
}

// Join adds the customer to the waitlist for a service. One active
// entry per customer and service; a second join is rejected.
func (s *Service) Join(ctx context.Context, in JoinInput) (domain.WaitlistEntry, error) {
	if err := in.validate(); err != nil {
		return domain.WaitlistEntry{}, err
	}

	entry := domain.WaitlistEntry{
		ID:         uuid.NewString(),
		CustomerID: in.CustomerID,
		ServiceID:  in.ServiceID,
		StaffID:    in.StaffID,
		RangeStart: in.RangeStart,
		RangeEnd:   in.RangeEnd,
		Priority:   in.Priority,
		Status:     domain.WaitlistActive,
		CreatedAt:  s.clock.Now().UTC(),
	}
	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		return s.store.CreateEntry(ctx, &entry)
	})
	if err != nil {
		return domain.WaitlistEntry{}, err
	}
	return entry, nil
}

// Leave cancels an active entry. Customers may only cancel their own.
func (s *Service) Leave(ctx context.Context, entryID string, actor domain.Actor) error {
	return s.store.WithTx(ctx, func(ctx context.Context) error {
		entry, err := s.store.GetEntry(ctx, entryID)
		if err != nil {
			return err
		}
		if !actor.MayActOn(entry.CustomerID) {
			return domain.ErrNotAuthorized
		}
		if entry.Status != domain.WaitlistActive && entry.Status != domain.WaitlistNotified {
			return nil
		}
		return s.store.UpdateEntryStatus(ctx, entryID, domain.WaitlistCancelled)
	})
}

// PromoteForCancellation notifies the best-placed waitlist entries that
// a slot on the cancelled appointment's day has opened. It runs inside
// the cancellation transaction; the notified transition and the
// outgoing events commit or roll back with the cancellation itself.
func (s *Service) PromoteForCancellation(ctx context.Context, appt domain.Appointment, set domain.PolicySettings) ([]domain.WaitlistEntry, error) {
	day := appt.StartTime.UTC().Truncate(24 * time.Hour)

	entries, err := s.store.MatchCandidates(ctx, appt.ServiceID, day, set.WaitlistPromotionLimit)
	if err != nil {
		return nil, fmt.Errorf("match waitlist candidates: %w", err)
	}

	now := s.clock.Now().UTC()
	for i := range entries {
		if err := s.store.MarkNotified(ctx, entries[i].ID, now); err != nil {
			return nil, fmt.Errorf("mark waitlist entry notified: %w", err)
		}
		entries[i].Status = domain.WaitlistNotified
		entries[i].NotifiedAt = &now

		payload, _ := json.Marshal(map[string]any{
			"entry_id":    entries[i].ID,
			"customer_id": entries[i].CustomerID,
			"service_id":  entries[i].ServiceID,
			"staff_id":    appt.StaffID,
			"start_time":  appt.StartTime.Format(time.RFC3339),
			"end_time":    appt.EndTime.Format(time.RFC3339),
		})
		err := s.events.Insert(ctx, outbox.Event{
			AggregateType: "waitlist_entry",
			AggregateID:   entries[i].ID,
			EventType:     "waitlist.notified",
			Payload:       payload,
		})
		if err != nil {
			return nil, fmt.Errorf("insert waitlist.notified event: %w", err)
		}
	}
	if len(entries) > 0 {
		s.logger.Info("waitlist entries promoted",
			"service_id", appt.ServiceID,
			"day", day.Format("2006-01-02"),
			"count", len(entries))
	}
	return entries, nil
}
