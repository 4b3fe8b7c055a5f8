package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/chairtime/chairtime/services/booking-service/internal/clock"
	"github.com/chairtime/chairtime/services/booking-service/internal/conflict"
	"github.com/chairtime/chairtime/services/booking-service/internal/domain"
	"github.com/chairtime/chairtime/services/booking-service/internal/outbox"
	"github.com/chairtime/chairtime/services/booking-service/internal/payments"
)

// Store is the transactional state the engine works against. WithTx
// carries the transaction on the context, so every call made inside the
// closure joins it.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error

	// LockStaff takes a row lock on the staff member, serializing all
	// booking writes for that calendar. Validate-then-insert is safe
	// only under this lock.
	LockStaff(ctx context.Context, staffID string) error

	Service(ctx context.Context, serviceID string) (domain.Service, error)

	ClaimIdempotencyKey(ctx context.Context, key, fingerprint string) (domain.IdempotencyRecord, bool, error)
	FinalizeIdempotency(ctx context.Context, key string, result domain.ReservationResult) error

	CreateAppointment(ctx context.Context, appt *domain.Appointment) error
	GetAppointmentForUpdate(ctx context.Context, id string) (domain.Appointment, error)
	RescheduleAppointment(ctx context.Context, id string, span domain.Interval, rescheduleCount int) error
	CancelAppointment(ctx context.Context, id, reason string, at time.Time) error

	RecordOperation(ctx context.Context, op domain.BookingOperation) error
}

type PolicyLoader interface {
	Load(ctx context.Context) (domain.PolicySettings, error)
}

type ConflictChecker interface {
	Validate(ctx context.Context, chk conflict.Check, set domain.PolicySettings) (conflict.Result, error)
}

// EventSink records a domain event in the same transaction as the state
// change that caused it.
type EventSink interface {
	Insert(ctx context.Context, evt outbox.Event) error
}

// Engine owns the reservation path: one transaction per attempt, the
// outcome finalized against the idempotency key so retries replay it.
type Engine struct {
	store     Store
	policies  PolicyLoader
	conflicts ConflictChecker
	events    EventSink
	payments  payments.Processor
	clock     clock.Clock
	logger    *slog.Logger
}

func NewEngine(store Store, policies PolicyLoader, conflicts ConflictChecker, events EventSink, proc payments.Processor, clk clock.Clock, logger *slog.Logger) *Engine {
	return &Engine{
		store:     store,
		policies:  policies,
		conflicts: conflicts,
		events:    events,
		payments:  proc,
		clock:     clk,
		logger:    logger,
	}
}

type ReserveInput struct {
	IdempotencyKey string
	CustomerID     string
	StaffID        string
	ServiceID      string
	Start          time.Time
	// End is optional; when set it must equal Start plus the service
	// duration.
	End        time.Time
	PriceCents int64
	Currency   string
	Notes      string
	Actor      domain.Actor
}

func (in *ReserveInput) validate() error {
	in.IdempotencyKey = strings.TrimSpace(in.IdempotencyKey)
	if in.IdempotencyKey == "" {
		return domain.ErrIdempotencyKeyRequired
	}
	if in.CustomerID == "" {
		return domain.Validationf("customer_id", "is required")
	}
	if in.StaffID == "" {
		return domain.Validationf("staff_id", "is required")
	}
	if in.ServiceID == "" {
		return domain.Validationf("service_id", "is required")
	}
	if in.Start.IsZero() {
		return domain.Validationf("start_time", "is required")
	}
	if in.PriceCents < 0 {
		return domain.Validationf("price_cents", "must not be negative")
	}
	if !in.Actor.Role.Valid() {
		return domain.Validationf("actor_role", "must be customer, staff or admin")
	}
	if !in.Actor.MayActOn(in.CustomerID) {
		return domain.ErrNotAuthorized
	}
	if in.Currency == "" {
		in.Currency = "usd"
	}
	in.Start = in.Start.UTC()
	if !in.End.IsZero() {
		in.End = in.End.UTC()
	}
	return nil
}

func (in ReserveInput) fingerprint() string {
	return fingerprint(
		"reserve",
		in.CustomerID,
		in.StaffID,
		in.ServiceID,
		in.Start.UTC().Format(time.RFC3339),
		strconv.FormatInt(in.PriceCents, 10),
		in.Currency,
		in.Notes,
	)
}

// Reserve books an appointment, or replays the recorded outcome when
// the idempotency key has been seen before with the same payload.
// Policy and conflict rejections come back inside the result; an error
// return means the attempt did not reach a durable outcome and may be
// retried with the same key.
func (e *Engine) Reserve(ctx context.Context, in ReserveInput) (domain.ReservationResult, error) {
	if err := in.validate(); err != nil {
		return domain.ReservationResult{}, err
	}
	fp := in.fingerprint()

	var result domain.ReservationResult
	err := e.store.WithTx(ctx, func(ctx context.Context) error {
		rec, existed, err := e.store.ClaimIdempotencyKey(ctx, in.IdempotencyKey, fp)
		if err != nil {
			return fmt.Errorf("claim idempotency key: %w", err)
		}
		if existed {
			if rec.Fingerprint != fp {
				return domain.ErrIdempotencyKeyReused
			}
			if rec.Finalized() {
				result = *rec.Result
				return nil
			}
			// Claimed but never finalized: the earlier attempt rolled
			// back. Run the operation again under the same claim.
		}

		set, err := e.policies.Load(ctx)
		if err != nil {
			return err
		}

		svc, err := e.store.Service(ctx, in.ServiceID)
		if err != nil {
			return err
		}
		span := domain.Interval{Start: in.Start, End: in.Start.Add(svc.Duration())}
		if !in.End.IsZero() && !in.End.Equal(span.End) {
			return domain.Validationf("end_time", "must match the %d minute service duration", svc.DurationMinutes)
		}

		if err := e.store.LockStaff(ctx, in.StaffID); err != nil {
			return err
		}

		verdict, err := e.conflicts.Validate(ctx, conflict.Check{StaffID: in.StaffID, Span: span}, set)
		if err != nil {
			// Do not finalize on dependency errors; the client retries
			// later with the same key.
			return err
		}
		if !verdict.OK {
			result = domain.FailedReservation(verdict.Kind, verdict.Reason)
			return finalizeOutcome(ctx, e.store, e.clock, in.IdempotencyKey, "", domain.OpReserve, in.Actor, result, span, "")
		}

		appt := &domain.Appointment{
			ID:            uuid.NewString(),
			CustomerID:    in.CustomerID,
			StaffID:       in.StaffID,
			ServiceID:     in.ServiceID,
			StartTime:     span.Start,
			EndTime:       span.End,
			Status:        domain.StatusPending,
			PriceCents:    in.PriceCents,
			Currency:      in.Currency,
			Notes:         in.Notes,
			BufferMinutes: set.BufferMinutes,
			CreatedAt:     e.clock.Now().UTC(),
		}

		if in.PriceCents > 0 {
			intentID, err := e.payments.CreateDepositIntent(ctx, payments.DepositRequest{
				AppointmentID:  appt.ID,
				CustomerID:     in.CustomerID,
				AmountCents:    in.PriceCents,
				Currency:       in.Currency,
				IdempotencyKey: in.IdempotencyKey,
			})
			if err != nil {
				return fmt.Errorf("create deposit intent: %w", err)
			}
			appt.PaymentIntentID = intentID
		}

		if err := e.store.CreateAppointment(ctx, appt); err != nil {
			return fmt.Errorf("create appointment: %w", err)
		}

		if err := insertEvent(ctx, e.events, "appointment.booked", appt.ID, bookedPayload(appt)); err != nil {
			return err
		}

		result = domain.CompletedReservation(appt.ID)
		return finalizeOutcome(ctx, e.store, e.clock, in.IdempotencyKey, appt.ID, domain.OpReserve, in.Actor, result, span, "")
	})
	if err != nil {
		if errors.Is(err, domain.ErrSlotTaken) {
			// Exclusion constraint backstop fired. The key stays
			// unfinalized; a retry revalidates and records the conflict.
			e.logger.Warn("reservation hit exclusion constraint", "staff_id", in.StaffID)
			return domain.FailedReservation(domain.FailureConflict, "the requested time is no longer available"), nil
		}
		return domain.ReservationResult{}, err
	}
	return result, nil
}

// finalizeOutcome writes the audit row and stores the outcome against
// the idempotency key in the surrounding transaction.
func finalizeOutcome(ctx context.Context, store Store, clk clock.Clock, key, appointmentID string, op domain.OperationType, actor domain.Actor, result domain.ReservationResult, span domain.Interval, note string) error {
	fields := map[string]string{
		"start_time": span.Start.Format(time.RFC3339),
		"end_time":   span.End.Format(time.RFC3339),
	}
	if note != "" {
		fields["reason"] = note
	}
	detail, _ := json.Marshal(fields)
	if err := store.RecordOperation(ctx, domain.BookingOperation{
		ID:            uuid.NewString(),
		AppointmentID: appointmentID,
		Type:          op,
		ActorID:       actor.ID,
		ActorRole:     actor.Role,
		Outcome:       result.Status,
		Reason:        result.Reason,
		Detail:        detail,
		OccurredAt:    clk.Now().UTC(),
	}); err != nil {
		return fmt.Errorf("record operation: %w", err)
	}
	if err := store.FinalizeIdempotency(ctx, key, result); err != nil {
		return fmt.Errorf("finalize idempotency: %w", err)
	}
	return nil
}

func insertEvent(ctx context.Context, events EventSink, eventType, aggregateID string, payload []byte) error {
	err := events.Insert(ctx, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       payload,
	})
	if err != nil {
		return fmt.Errorf("insert %s event: %w", eventType, err)
	}
	return nil
}

func bookedPayload(appt *domain.Appointment) []byte {
	b, _ := json.Marshal(map[string]any{
		"appointment_id": appt.ID,
		"customer_id":    appt.CustomerID,
		"staff_id":       appt.StaffID,
		"service_id":     appt.ServiceID,
		"start_time":     appt.StartTime.Format(time.RFC3339),
		"end_time":       appt.EndTime.Format(time.RFC3339),
		"price_cents":    appt.PriceCents,
		"currency":       appt.Currency,
	})
	return b
}

func rescheduledPayload(appt domain.Appointment, span domain.Interval) []byte {
	b, _ := json.Marshal(map[string]any{
		"appointment_id": appt.ID,
		"customer_id":    appt.CustomerID,
		"staff_id":       appt.StaffID,
		"service_id":     appt.ServiceID,
		"old_start_time": appt.StartTime.Format(time.RFC3339),
		"start_time":     span.Start.Format(time.RFC3339),
		"end_time":       span.End.Format(time.RFC3339),
	})
	return b
}

func cancelledPayload(appt domain.Appointment, reason string) []byte {
	b, _ := json.Marshal(map[string]any{
		"appointment_id": appt.ID,
		"customer_id":    appt.CustomerID,
		"staff_id":       appt.StaffID,
		"service_id":     appt.ServiceID,
		"start_time":     appt.StartTime.Format(time.RFC3339),
		"end_time":       appt.EndTime.Format(time.RFC3339),
		"reason":         reason,
	})
	return b
}

// formatNotice renders a policy window for rejection messages.
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
