package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/chairtime/chairtime/libs/db"
	"github.com/chairtime/chairtime/services/booking-service/internal/domain"
)

type WaitlistRepository struct {
	pool *db.Pool
}

func NewWaitlistRepository(pool *db.Pool) *WaitlistRepository {
	return &WaitlistRepository{pool: pool}
}

func (r *WaitlistRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.pool.WithTx(ctx, fn)
}

// CreateEntry inserts an entry. A partial unique index on active
// entries per customer and service turns a second join into
// ErrDuplicateWaitlistEntry.
func (r *WaitlistRepository) CreateEntry(ctx context.Context, entry *domain.WaitlistEntry) error {
	_, err := r.pool.Runner(ctx).Exec(ctx, `
		INSERT INTO waitlist_entries
			(id, customer_id, service_id, staff_id, range_start, range_end, priority, status, created_at)
		VALUES ($1, $2, $3, NULLIF($4, '')::uuid, $5, $6, $7, $8, $9)
	`, entry.ID, entry.CustomerID, entry.ServiceID, entry.StaffID, entry.RangeStart, entry.RangeEnd,
		entry.Priority, string(entry.Status), entry.CreatedAt)
	if IsUniqueViolation(err) {
		return domain.ErrDuplicateWaitlistEntry
	}
	return err
}

func (r *WaitlistRepository) GetEntry(ctx context.Context, id string) (domain.WaitlistEntry, error) {
	entry, err := scanWaitlistEntry(r.pool.Runner(ctx).QueryRow(ctx, `
		SELECT `+waitlistColumns+`
		FROM waitlist_entries
		WHERE id = $1
	`, id))
	if IsNotFound(err) {
		return domain.WaitlistEntry{}, domain.ErrWaitlistEntryNotFound
	}
	return entry, err
}

// MatchCandidates returns active entries for the service whose desired
// date range covers day, best-placed first. The staff preference does
// not narrow the match. Rows are locked with SKIP LOCKED so concurrent
// cancellations promote disjoint sets.
func (r *WaitlistRepository) MatchCandidates(ctx context.Context, serviceID string, day time.Time, limit int) ([]domain.WaitlistEntry, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := r.pool.Runner(ctx).Query(ctx, `
		SELECT `+waitlistColumns+`
		FROM waitlist_entries
		WHERE service_id = $1
			AND status = 'active'
			AND range_start <= $2
			AND range_end >= $2
		ORDER BY priority DESC, created_at ASC
		LIMIT $3
		FOR UPDATE SKIP LOCKED
	`, serviceID, day, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.WaitlistEntry
	for rows.Next() {
		entry, err := scanWaitlistEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (r *WaitlistRepository) MarkNotified(ctx context.Context, id string, at time.Time) error {
	tag, err := r.pool.Runner(ctx).Exec(ctx, `
		UPDATE waitlist_entries
		SET status = 'notified', notified_at = $2
		WHERE id = $1 AND status = 'active'
	`, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrWaitlistEntryNotFound
	}
	return nil
}

func (r *WaitlistRepository) UpdateEntryStatus(ctx context.Context, id string, status domain.WaitlistStatus) error {
	tag, err := r.pool.Runner(ctx).Exec(ctx, `
		UPDATE waitlist_entries
		SET status = $2
		WHERE id = $1
	`, id, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrWaitlistEntryNotFound
	}
	return nil
}

const waitlistColumns = `id::text, customer_id::text, service_id::text,
	COALESCE(staff_id::text, ''), range_start, range_end, priority, status, notified_at, created_at`

func scanWaitlistEntry(row pgx.Row) (domain.WaitlistEntry, error) {
	var entry domain.WaitlistEntry
	var status string
	var notifiedAt *time.Time
	err := row.Scan(
		&entry.ID,
		&entry.CustomerID,
		&entry.ServiceID,
		&entry.StaffID,
		&entry.RangeStart,
		&entry.RangeEnd,
		&entry.Priority,
		&status,
		&notifiedAt,
		&entry.CreatedAt,
	)
	if err != nil {
		return domain.WaitlistEntry{}, err
	}
	entry.Status = domain.WaitlistStatus(status)
	entry.NotifiedAt = notifiedAt
	return entry, nil
}
