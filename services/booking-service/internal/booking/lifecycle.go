package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/chairtime/chairtime/services/booking-service/internal/clock"
	"github.com/chairtime/chairtime/services/booking-service/internal/conflict"
	"github.com/chairtime/chairtime/services/booking-service/internal/domain"
	"github.com/chairtime/chairtime/services/booking-service/internal/payments"
)

// WaitlistPromoter notifies waitlisted customers when a slot frees up.
// It runs inside the cancellation transaction.
type WaitlistPromoter interface {
	PromoteForCancellation(ctx context.Context, appt domain.Appointment, set domain.PolicySettings) ([]domain.WaitlistEntry, error)
}

// Lifecycle handles reschedule and cancel. Both run under the same
// idempotency protocol as Reserve: the first attempt records an
// outcome, retries with the same key replay it.
type Lifecycle struct {
	store     Store
	policies  PolicyLoader
	conflicts ConflictChecker
	events    EventSink
	waitlist  WaitlistPromoter
	payments  payments.Processor
	clock     clock.Clock
	logger    *slog.Logger
}

func NewLifecycle(store Store, policies PolicyLoader, conflicts ConflictChecker, events EventSink, waitlist WaitlistPromoter, proc payments.Processor, clk clock.Clock, logger *slog.Logger) *Lifecycle {
	return &Lifecycle{
		store:     store,
		policies:  policies,
		conflicts: conflicts,
		events:    events,
		waitlist:  waitlist,
		payments:  proc,
		clock:     clk,
		logger:    logger,
	}
}

type RescheduleInput struct {
	IdempotencyKey string
	AppointmentID  string
	NewStart       time.Time
	Reason         string
	Actor          domain.Actor
}

func (in *RescheduleInput) validate() error {
	in.IdempotencyKey = strings.TrimSpace(in.IdempotencyKey)
	if in.IdempotencyKey == "" {
		return domain.ErrIdempotencyKeyRequired
	}
	if in.AppointmentID == "" {
		return domain.Validationf("appointment_id", "is required")
	}
	if in.NewStart.IsZero() {
		return domain.Validationf("new_start_time", "is required")
	}
	if !in.Actor.Role.Valid() {
		return domain.Validationf("actor_role", "must be customer, staff or admin")
	}
	in.NewStart = in.NewStart.UTC()
	return nil
}

func (in RescheduleInput) fingerprint() string {
	return fingerprint(
		"reschedule",
		in.AppointmentID,
		in.NewStart.UTC().Format(time.RFC3339),
		in.Reason,
	)
}

// Reschedule moves an appointment to a new start, preserving its
// duration. Customers are bound by the reschedule deadline; staff and
// admins are not. Nobody gets past the reschedule cap or a calendar
// conflict.
func (l *Lifecycle) Reschedule(ctx context.Context, in RescheduleInput) (domain.ReservationResult, error) {
	if err := in.validate(); err != nil {
		return domain.ReservationResult{}, err
	}
	fp := in.fingerprint()

	var result domain.ReservationResult
	err := l.store.WithTx(ctx, func(ctx context.Context) error {
		rec, existed, err := l.store.ClaimIdempotencyKey(ctx, in.IdempotencyKey, fp)
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
		}

		appt, err := l.store.GetAppointmentForUpdate(ctx, in.AppointmentID)
		if err != nil {
			return err
		}
		if !in.Actor.MayActOn(appt.CustomerID) {
			return domain.ErrNotAuthorized
		}

		set, err := l.policies.Load(ctx)
		if err != nil {
			return err
		}

		span := domain.Interval{Start: in.NewStart, End: in.NewStart.Add(appt.Span().Duration())}
		now := l.clock.Now().UTC()

		if reason := rescheduleRejection(appt, set, in.Actor, now); reason != "" {
			result = domain.FailedReservation(domain.FailurePolicy, reason)
			return finalizeOutcome(ctx, l.store, l.clock, in.IdempotencyKey, appt.ID, domain.OpReschedule, in.Actor, result, span, in.Reason)
		}

		if err := l.store.LockStaff(ctx, appt.StaffID); err != nil {
			return err
		}
		verdict, err := l.conflicts.Validate(ctx, conflict.Check{StaffID: appt.StaffID, Span: span, ExcludeID: appt.ID}, set)
		if err != nil {
			return err
		}
		if !verdict.OK {
			result = domain.FailedReservation(verdict.Kind, verdict.Reason)
			return finalizeOutcome(ctx, l.store, l.clock, in.IdempotencyKey, appt.ID, domain.OpReschedule, in.Actor, result, span, in.Reason)
		}

		if err := l.store.RescheduleAppointment(ctx, appt.ID, span, appt.RescheduleCount+1); err != nil {
			return fmt.Errorf("reschedule appointment: %w", err)
		}

		if err := insertEvent(ctx, l.events, "appointment.rescheduled", appt.ID, rescheduledPayload(appt, span)); err != nil {
			return err
		}

		result = domain.CompletedReservation(appt.ID)
		return finalizeOutcome(ctx, l.store, l.clock, in.IdempotencyKey, appt.ID, domain.OpReschedule, in.Actor, result, span, in.Reason)
	})
	if err != nil {
		if errors.Is(err, domain.ErrSlotTaken) {
			l.logger.Warn("reschedule hit exclusion constraint", "appointment_id", in.AppointmentID)
			return domain.FailedReservation(domain.FailureConflict, "the requested time is no longer available"), nil
		}
		return domain.ReservationResult{}, err
	}
	return result, nil
}

func rescheduleRejection(appt domain.Appointment, set domain.PolicySettings, actor domain.Actor, now time.Time) string {
	if appt.Status.Terminal() {
		return fmt.Sprintf("a %s appointment cannot be rescheduled", appt.Status)
	}
	if appt.RescheduleCount >= set.MaxReschedules {
		return fmt.Sprintf("this appointment has already been rescheduled %d times", appt.RescheduleCount)
	}
	if !actor.Role.Privileged() && !now.Before(appt.StartTime.Add(-set.RescheduleNotice)) {
		return fmt.Sprintf("appointments must be rescheduled at least %s before the start time", formatNotice(set.RescheduleNotice))
	}
	return ""
}

type CancelInput struct {
	IdempotencyKey string
	AppointmentID  string
	Reason         string
	Actor          domain.Actor
}

func (in *CancelInput) validate() error {
	in.IdempotencyKey = strings.TrimSpace(in.IdempotencyKey)
	if in.IdempotencyKey == "" {
		return domain.ErrIdempotencyKeyRequired
	}
	if in.AppointmentID == "" {
		return domain.Validationf("appointment_id", "is required")
	}
	if !in.Actor.Role.Valid() {
		return domain.Validationf("actor_role", "must be customer, staff or admin")
	}
	return nil
}

func (in CancelInput) fingerprint() string {
	return fingerprint("cancel", in.AppointmentID, in.Reason)
}

// Cancel frees the slot, promotes matching waitlist entries inside the
// same transaction, and refunds any deposit after commit.
func (l *Lifecycle) Cancel(ctx context.Context, in CancelInput) (domain.ReservationResult, error) {
	if err := in.validate(); err != nil {
		return domain.ReservationResult{}, err
	}
	fp := in.fingerprint()

	var result domain.ReservationResult
	var refundIntentID string
	err := l.store.WithTx(ctx, func(ctx context.Context) error {
		rec, existed, err := l.store.ClaimIdempotencyKey(ctx, in.IdempotencyKey, fp)
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
		}

		appt, err := l.store.GetAppointmentForUpdate(ctx, in.AppointmentID)
		if err != nil {
			return err
		}
		if !in.Actor.MayActOn(appt.CustomerID) {
			return domain.ErrNotAuthorized
		}

		set, err := l.policies.Load(ctx)
		if err != nil {
			return err
		}
		now := l.clock.Now().UTC()

		if reason := cancelRejection(appt, set, in.Actor, now); reason != "" {
			result = domain.FailedReservation(domain.FailurePolicy, reason)
			return finalizeOutcome(ctx, l.store, l.clock, in.IdempotencyKey, appt.ID, domain.OpCancel, in.Actor, result, appt.Span(), in.Reason)
		}

		if err := l.store.CancelAppointment(ctx, appt.ID, in.Reason, now); err != nil {
			return fmt.Errorf("cancel appointment: %w", err)
		}

		if err := insertEvent(ctx, l.events, "appointment.cancelled", appt.ID, cancelledPayload(appt, in.Reason)); err != nil {
			return err
		}

		if _, err := l.waitlist.PromoteForCancellation(ctx, appt, set); err != nil {
			return fmt.Errorf("promote waitlist: %w", err)
		}

		refundIntentID = appt.PaymentIntentID
		result = domain.CompletedReservation(appt.ID)
		return finalizeOutcome(ctx, l.store, l.clock, in.IdempotencyKey, appt.ID, domain.OpCancel, in.Actor, result, appt.Span(), in.Reason)
	})
	if err != nil {
		return domain.ReservationResult{}, err
	}

	// Refund outside the transaction: a payment provider outage must not
	// undo the cancellation.
	if result.Completed() && refundIntentID != "" {
		if err := l.payments.CancelDeposit(ctx, refundIntentID); err != nil {
			l.logger.Error("deposit refund failed", "appointment_id", in.AppointmentID, "err", err)
		}
	}
	return result, nil
}

func cancelRejection(appt domain.Appointment, set domain.PolicySettings, actor domain.Actor, now time.Time) string {
	if appt.Status.Terminal() {
		return fmt.Sprintf("a %s appointment cannot be cancelled", appt.Status)
	}
	if !actor.Role.Privileged() && !now.Before(appt.StartTime.Add(-set.CancelNotice)) {
		return fmt.Sprintf("appointments must be cancelled at least %s before the start time", formatNotice(set.CancelNotice))
	}
	return ""
}
