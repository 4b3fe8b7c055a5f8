package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/chairtime/chairtime/services/booking-service/internal/domain"
)

func actorFrom(r *http.Request) domain.Actor {
	return domain.Actor{
		ID:   strings.TrimSpace(r.Header.Get("X-Actor-Id")),
		Role: domain.Role(strings.TrimSpace(r.Header.Get("X-Actor-Role"))),
	}
}

func parseTime(w http.ResponseWriter, raw, field string, required bool) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		if required {
			http.Error(w, field+" is required", http.StatusBadRequest)
			return time.Time{}, false
		}
		return time.Time{}, true
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		http.Error(w, "invalid "+field, http.StatusBadRequest)
		return time.Time{}, false
	}
	return t.UTC(), true
}

// writeResult renders a reservation outcome: okStatus for completed,
// 422 for policy rejections and 409 for conflicts.
func writeResult(w http.ResponseWriter, result domain.ReservationResult, okStatus int) {
	if result.Completed() {
		writeJSON(w, okStatus, resultResponse{
			Status:        string(result.Status),
			AppointmentID: result.AppointmentID,
		})
		return
	}

	status := http.StatusUnprocessableEntity
	if result.FailureKind == domain.FailureConflict {
		status = http.StatusConflict
	}
	writeJSON(w, status, resultResponse{
		Status: string(result.Status),
		Failure: &resultFailure{
			Kind:   string(result.FailureKind),
			Reason: result.Reason,
		},
	})
}

func (h *BookingHandler) writeError(w http.ResponseWriter, err error) {
	writeDomainError(w, err, func(msg string, args ...any) {
		h.logger.Error(msg, args...)
	})
}

func writeDomainError(w http.ResponseWriter, err error, logError func(string, ...any)) {
	switch {
	case errors.Is(err, domain.ErrIdempotencyKeyRequired):
		http.Error(w, "Idempotency-Key header is required", http.StatusBadRequest)
	case domain.IsValidation(err):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrIdempotencyKeyReused):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, domain.ErrDuplicateWaitlistEntry):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, domain.ErrNotAuthorized):
		http.Error(w, "forbidden", http.StatusForbidden)
	case errors.Is(err, domain.ErrAppointmentNotFound),
		errors.Is(err, domain.ErrStaffNotFound),
		errors.Is(err, domain.ErrServiceNotFound),
		errors.Is(err, domain.ErrWaitlistEntryNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		logError("booking request failed", "err", err)
		http.Error(w, "service temporarily unavailable", http.StatusServiceUnavailable)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
