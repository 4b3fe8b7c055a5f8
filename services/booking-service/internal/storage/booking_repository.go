package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/chairtime/chairtime/libs/db"
	"github.com/chairtime/chairtime/services/booking-service/internal/domain"
)

// idempotencyRetention is how long a recorded outcome is replayed for.
// Older rows are reclaimed in place when the key is presented again.
const idempotencyRetention = 24 * time.Hour

type BookingRepository struct {
	pool *db.Pool
}

func NewBookingRepository(pool *db.Pool) *BookingRepository {
	return &BookingRepository{pool: pool}
}

func (r *BookingRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.pool.WithTx(ctx, fn)
}

// LockStaff takes a row lock on the staff member. All booking writes
// for one calendar funnel through this lock, which is what makes
// validate-then-insert safe against concurrent reservations.
func (r *BookingRepository) LockStaff(ctx context.Context, staffID string) error {
	var id string
	err := r.pool.Runner(ctx).QueryRow(ctx, `
		SELECT id::text FROM staff
		WHERE id = $1 AND is_active
		FOR UPDATE
	`, staffID).Scan(&id)
	if IsNotFound(err) {
		return domain.ErrStaffNotFound
	}
	return err
}

func (r *BookingRepository) ClaimIdempotencyKey(ctx context.Context, key, fingerprint string) (domain.IdempotencyRecord, bool, error) {
	rec, err := r.selectIdempotencyForUpdate(ctx, key)
	if err == nil {
		if time.Since(rec.CreatedAt) < idempotencyRetention {
			existed := rec.Finalized() || rec.Fingerprint != fingerprint
			return rec, existed, nil
		}
		// Expired row; reclaim it under the lock we already hold.
		_, err = r.pool.Runner(ctx).Exec(ctx, `
			UPDATE booking_idempotency_keys
			SET fingerprint = $2,
				result_status = NULL,
				appointment_id = NULL,
				failure_kind = NULL,
				reason = NULL,
				created_at = now()
			WHERE idempotency_key = $1
		`, key, fingerprint)
		if err != nil {
			return domain.IdempotencyRecord{}, false, err
		}
		return domain.IdempotencyRecord{Key: key, Fingerprint: fingerprint}, false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.IdempotencyRecord{}, false, err
	}

	_, err = r.pool.Runner(ctx).Exec(ctx, `
		INSERT INTO booking_idempotency_keys (idempotency_key, fingerprint)
		VALUES ($1, $2)
		ON CONFLICT (idempotency_key) DO NOTHING
	`, key, fingerprint)
	if err != nil {
		return domain.IdempotencyRecord{}, false, err
	}

	// Re-select under lock. If a concurrent claim won, the row we read
	// back carries its fingerprint or finalized outcome.
	rec, err = r.selectIdempotencyForUpdate(ctx, key)
	if err != nil {
		return domain.IdempotencyRecord{}, false, err
	}
	existed := rec.Finalized() || rec.Fingerprint != fingerprint
	return rec, existed, nil
}

func (r *BookingRepository) FinalizeIdempotency(ctx context.Context, key string, result domain.ReservationResult) error {
	_, err := r.pool.Runner(ctx).Exec(ctx, `
		UPDATE booking_idempotency_keys
		SET result_status = $2,
			appointment_id = NULLIF($3, '')::uuid,
			failure_kind = NULLIF($4, ''),
			reason = NULLIF($5, ''),
			updated_at = now()
		WHERE idempotency_key = $1
	`, key, string(result.Status), result.AppointmentID, string(result.FailureKind), result.Reason)
	return err
}

func (r *BookingRepository) selectIdempotencyForUpdate(ctx context.Context, key string) (domain.IdempotencyRecord, error) {
	var rec domain.IdempotencyRecord
	var resultStatus, appointmentID, failureKind, reason *string
	err := r.pool.Runner(ctx).QueryRow(ctx, `
		SELECT idempotency_key, fingerprint, result_status,
			appointment_id::text, failure_kind, reason, created_at
		FROM booking_idempotency_keys
		WHERE idempotency_key = $1
		FOR UPDATE
	`, key).Scan(&rec.Key, &rec.Fingerprint, &resultStatus, &appointmentID, &failureKind, &reason, &rec.CreatedAt)
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}
	if resultStatus != nil {
		result := domain.ReservationResult{Status: domain.ReservationStatus(*resultStatus)}
		if appointmentID != nil {
			result.AppointmentID = *appointmentID
		}
		if failureKind != nil {
			result.FailureKind = domain.FailureKind(*failureKind)
		}
		if reason != nil {
			result.Reason = *reason
		}
		rec.Result = &result
	}
	return rec, nil
}

func (r *BookingRepository) CreateAppointment(ctx context.Context, appt *domain.Appointment) error {
	_, err := r.pool.Runner(ctx).Exec(ctx, `
		INSERT INTO appointments
			(id, customer_id, staff_id, service_id, start_time, end_time, status,
			price_cents, currency, notes, buffer_minutes, payment_intent_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NULLIF($12, ''), $13, $13)
	`, appt.ID, appt.CustomerID, appt.StaffID, appt.ServiceID, appt.StartTime, appt.EndTime,
		string(appt.Status), appt.PriceCents, appt.Currency, appt.Notes, appt.BufferMinutes,
		appt.PaymentIntentID, appt.CreatedAt)
	if IsConflict(err) {
		return domain.ErrSlotTaken
	}
	return err
}

func (r *BookingRepository) GetAppointmentForUpdate(ctx context.Context, id string) (domain.Appointment, error) {
	appt, err := r.scanAppointment(r.pool.Runner(ctx).QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
		FOR UPDATE
	`, id))
	if IsNotFound(err) {
		return domain.Appointment{}, domain.ErrAppointmentNotFound
	}
	return appt, err
}

func (r *BookingRepository) GetAppointment(ctx context.Context, id string) (domain.Appointment, error) {
	appt, err := r.scanAppointment(r.pool.Runner(ctx).QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id))
	if IsNotFound(err) {
		return domain.Appointment{}, domain.ErrAppointmentNotFound
	}
	return appt, err
}

func (r *BookingRepository) RescheduleAppointment(ctx context.Context, id string, span domain.Interval, rescheduleCount int) error {
	tag, err := r.pool.Runner(ctx).Exec(ctx, `
		UPDATE appointments
		SET start_time = $2,
			end_time = $3,
			reschedule_count = $4,
			updated_at = now()
		WHERE id = $1
	`, id, span.Start, span.End, rescheduleCount)
	if IsConflict(err) {
		return domain.ErrSlotTaken
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAppointmentNotFound
	}
	return nil
}

func (r *BookingRepository) CancelAppointment(ctx context.Context, id, reason string, at time.Time) error {
	tag, err := r.pool.Runner(ctx).Exec(ctx, `
		UPDATE appointments
		SET status = 'cancelled',
			cancelled_at = $3,
			cancel_reason = $2,
			updated_at = now()
		WHERE id = $1
	`, id, reason, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAppointmentNotFound
	}
	return nil
}

// OverlappingAppointments returns active appointments whose footprint
// (interval plus cleanup buffer) touches span, locking the rows. The
// exclude id keeps a reschedule from colliding with itself.
func (r *BookingRepository) OverlappingAppointments(ctx context.Context, staffID string, span domain.Interval, excludeID string) ([]string, error) {
	rows, err := r.pool.Runner(ctx).Query(ctx, `
		SELECT id::text
		FROM appointments
		WHERE staff_id = $1
			AND status IN ('pending', 'confirmed')
			AND ($4 = '' OR id::text <> $4)
			AND start_time < $3
			AND end_time + make_interval(mins => buffer_minutes) > $2
		FOR UPDATE
	`, staffID, span.Start, span.End, excludeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// BookedFootprints returns the busy intervals (appointment plus
// cleanup buffer) of a staff member inside the window.
func (r *BookingRepository) BookedFootprints(ctx context.Context, staffID string, window domain.Interval) ([]domain.Interval, error) {
	rows, err := r.pool.Runner(ctx).Query(ctx, `
		SELECT start_time, end_time + make_interval(mins => buffer_minutes)
		FROM appointments
		WHERE staff_id = $1
			AND status IN ('pending', 'confirmed')
			AND start_time < $3
			AND end_time + make_interval(mins => buffer_minutes) > $2
		ORDER BY start_time
	`, staffID, window.Start, window.End)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var busy []domain.Interval
	for rows.Next() {
		var iv domain.Interval
		if err := rows.Scan(&iv.Start, &iv.End); err != nil {
			return nil, err
		}
		busy = append(busy, iv)
	}
	return busy, rows.Err()
}

func (r *BookingRepository) ListByCustomer(ctx context.Context, customerID string, limit int) ([]domain.Appointment, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Runner(ctx).Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE customer_id = $1
		ORDER BY start_time DESC
		LIMIT $2
	`, customerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var appts []domain.Appointment
	for rows.Next() {
		appt, err := r.scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, appt)
	}
	return appts, rows.Err()
}

func (r *BookingRepository) RecordOperation(ctx context.Context, op domain.BookingOperation) error {
	_, err := r.pool.Runner(ctx).Exec(ctx, `
		INSERT INTO booking_operations
			(id, appointment_id, operation, actor_id, actor_role, outcome, reason, detail, occurred_at)
		VALUES ($1, NULLIF($2, '')::uuid, $3, $4, $5, $6, $7, $8, $9)
	`, op.ID, op.AppointmentID, string(op.Type), op.ActorID, string(op.ActorRole),
		string(op.Outcome), op.Reason, op.Detail, op.OccurredAt)
	if err != nil {
		return fmt.Errorf("insert booking operation: %w", err)
	}
	return nil
}

const appointmentColumns = `id::text, customer_id::text, staff_id::text, service_id::text,
	start_time, end_time, status, price_cents, currency, COALESCE(notes, ''),
	buffer_minutes, reschedule_count, COALESCE(payment_intent_id, ''),
	cancelled_at, COALESCE(cancel_reason, ''), created_at, updated_at`

func (r *BookingRepository) scanAppointment(row pgx.Row) (domain.Appointment, error) {
	var appt domain.Appointment
	var status string
	var cancelledAt *time.Time
	err := row.Scan(
		&appt.ID,
		&appt.CustomerID,
		&appt.StaffID,
		&appt.ServiceID,
		&appt.StartTime,
		&appt.EndTime,
		&status,
		&appt.PriceCents,
		&appt.Currency,
		&appt.Notes,
		&appt.BufferMinutes,
		&appt.RescheduleCount,
		&appt.PaymentIntentID,
		&cancelledAt,
		&appt.CancelReason,
		&appt.CreatedAt,
		&appt.UpdatedAt,
	)
	if err != nil {
		return domain.Appointment{}, err
	}
	appt.Status = domain.AppointmentStatus(status)
	appt.CancelledAt = cancelledAt
	return appt, nil
}
