package policy

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/chairtime/chairtime/services/booking-service/internal/domain"
)

// Policy keys as stored in the booking_policies table.
const (
	KeyMinNoticeMinutes       = "min_notice_minutes"
	KeyMaxAdvanceDays         = "max_advance_days"
	KeyCancelNoticeHours      = "cancel_notice_hours"
	KeyRescheduleNoticeHours  = "reschedule_notice_hours"
	KeyMaxReschedules         = "max_reschedules"
	KeyBufferMinutes          = "buffer_minutes"
	KeySlotGranularityMinutes = "slot_granularity_minutes"
	KeyWaitlistPromotionLimit = "waitlist_promotion_limit"
)

// Source yields the raw key/value policy rows.
type Source interface {
	PolicyValues(ctx context.Context) (map[string]string, error)
}

// Store turns raw policy rows into typed settings. Unknown keys are
// ignored, malformed or missing values fall back to the defaults.
type Store struct {
	source Source
	logger *slog.Logger
}

func NewStore(source Source, logger *slog.Logger) *Store {
	return &Store{source: source, logger: logger}
}

func (s *Store) Load(ctx context.Context) (domain.PolicySettings, error) {
	values, err := s.source.PolicyValues(ctx)
	if err != nil {
		return domain.PolicySettings{}, fmt.Errorf("load booking policies: %w", err)
	}

	set := domain.DefaultPolicySettings()
	for key, raw := range values {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.logger.Warn("ignoring malformed booking policy", "key", key, "value", raw)
			continue
		}
		switch key {
		case KeyMinNoticeMinutes:
			set.MinNotice = time.Duration(n) * time.Minute
		case KeyMaxAdvanceDays:
			set.MaxAdvance = time.Duration(n) * 24 * time.Hour
		case KeyCancelNoticeHours:
			set.CancelNotice = time.Duration(n) * time.Hour
		case KeyRescheduleNoticeHours:
			set.RescheduleNotice = time.Duration(n) * time.Hour
		case KeyMaxReschedules:
			set.MaxReschedules = n
		case KeyBufferMinutes:
			set.BufferMinutes = n
		case KeySlotGranularityMinutes:
			if n > 0 {
				set.SlotGranularityMinutes = n
			}
		case KeyWaitlistPromotionLimit:
			if n > 0 {
				set.WaitlistPromotionLimit = n
			}
		}
	}
	return set, nil
}
