package storage

import (
	"context"
	"time"

	"github.com/chairtime/chairtime/libs/db"
	"github.com/chairtime/chairtime/services/booking-service/internal/domain"
)

// ScheduleRepository reads the salon reference data: services, staff
// rosters, working hours, holidays, time off and policy rows.
type ScheduleRepository struct {
	pool *db.Pool
}

func NewScheduleRepository(pool *db.Pool) *ScheduleRepository {
	return &ScheduleRepository{pool: pool}
}

func (r *ScheduleRepository) Service(ctx context.Context, serviceID string) (domain.Service, error) {
	var svc domain.Service
	err := r.pool.Runner(ctx).QueryRow(ctx, `
		SELECT id::text, name, duration_minutes, price_cents
		FROM services
		WHERE id = $1 AND is_active
	`, serviceID).Scan(&svc.ID, &svc.Name, &svc.DurationMinutes, &svc.PriceCents)
	if IsNotFound(err) {
		return domain.Service{}, domain.ErrServiceNotFound
	}
	return svc, err
}

func (r *ScheduleRepository) StaffForService(ctx context.Context, serviceID string) ([]string, error) {
	rows, err := r.pool.Runner(ctx).Query(ctx, `
		SELECT s.id::text
		FROM staff s
		JOIN staff_services ss ON ss.staff_id = s.id
		WHERE ss.service_id = $1 AND s.is_active
		ORDER BY s.name
	`, serviceID)
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

// WorkingHours returns the staff member's hours for a weekday. With no
// row configured the default schedule applies: Monday through Friday,
// 09:00 to 17:00.
func (r *ScheduleRepository) WorkingHours(ctx context.Context, staffID string, weekday time.Weekday) (domain.WorkingHours, error) {
	wh := domain.WorkingHours{Weekday: weekday}
	err := r.pool.Runner(ctx).QueryRow(ctx, `
		SELECT is_working, start_minute, end_minute
		FROM staff_working_hours
		WHERE staff_id = $1 AND weekday = $2
	`, staffID, int(weekday)).Scan(&wh.Working, &wh.StartMinute, &wh.EndMinute)
	if IsNotFound(err) {
		if weekday >= time.Monday && weekday <= time.Friday {
			return domain.WorkingHours{Weekday: weekday, Working: true, StartMinute: 540, EndMinute: 1020}, nil
		}
		return domain.WorkingHours{Weekday: weekday}, nil
	}
	return wh, err
}

// IsHoliday reports whether day (a UTC date) is a salon holiday, either
// as a fixed date or as a yearly recurring month/day pair.
func (r *ScheduleRepository) IsHoliday(ctx context.Context, day time.Time) (bool, error) {
	day = day.UTC()
	var holiday bool
	err := r.pool.Runner(ctx).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM holidays
			WHERE (NOT is_recurring AND holiday_on = $1::date)
				OR (is_recurring AND recur_month = $2 AND recur_day = $3)
		)
	`, day.Format("2006-01-02"), int(day.Month()), day.Day()).Scan(&holiday)
	return holiday, err
}

func (r *ScheduleRepository) StaffOnTimeOff(ctx context.Context, staffID string, span domain.Interval) (bool, error) {
	var off bool
	err := r.pool.Runner(ctx).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM staff_time_off
			WHERE staff_id = $1 AND starts_at < $3 AND ends_at > $2
		)
	`, staffID, span.Start, span.End).Scan(&off)
	return off, err
}

func (r *ScheduleRepository) TimeOffIntervals(ctx context.Context, staffID string, window domain.Interval) ([]domain.Interval, error) {
	rows, err := r.pool.Runner(ctx).Query(ctx, `
		SELECT starts_at, ends_at
		FROM staff_time_off
		WHERE staff_id = $1 AND starts_at < $3 AND ends_at > $2
		ORDER BY starts_at
	`, staffID, window.Start, window.End)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var spans []domain.Interval
	for rows.Next() {
		var iv domain.Interval
		if err := rows.Scan(&iv.Start, &iv.End); err != nil {
			return nil, err
		}
		spans = append(spans, iv)
	}
	return spans, rows.Err()
}

func (r *ScheduleRepository) PolicyValues(ctx context.Context) (map[string]string, error) {
	rows, err := r.pool.Runner(ctx).Query(ctx, `
		SELECT key, value FROM booking_policies
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	values := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		values[k] = v
	}
	return values, rows.Err()
}
