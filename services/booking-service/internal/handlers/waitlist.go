package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/chairtime/chairtime/services/booking-service/internal/domain"
	"github.com/chairtime/chairtime/services/booking-service/internal/waitlist"
)

type Waitlist interface {
	Join(ctx context.Context, in waitlist.JoinInput) (domain.WaitlistEntry, error)
	Leave(ctx context.Context, entryID string, actor domain.Actor) error
}

type WaitlistHandler struct {
	waitlist Waitlist
	logger   *slog.Logger
}

func NewWaitlistHandler(wl Waitlist, logger *slog.Logger) *WaitlistHandler {
	return &WaitlistHandler{waitlist: wl, logger: logger}
}

type joinWaitlistRequest struct {
	CustomerID string `json:"customer_id"`
	ServiceID  string `json:"service_id"`
	StaffID    string `json:"staff_id"`
	RangeStart string `json:"range_start"`
	RangeEnd   string `json:"range_end"`
	Priority   int    `json:"priority"`
}

type waitlistEntryResponse struct {
	EntryID    string `json:"entry_id"`
	CustomerID string `json:"customer_id"`
	ServiceID  string `json:"service_id"`
	StaffID    string `json:"staff_id,omitempty"`
	RangeStart string `json:"range_start"`
	RangeEnd   string `json:"range_end"`
	Priority   int    `json:"priority"`
	Status     string `json:"status"`
}

type leaveWaitlistRequest struct {
	EntryID string `json:"entry_id"`
}

func (h *WaitlistHandler) Join(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req joinWaitlistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	rangeStart, ok := parseDate(w, req.RangeStart, "range_start")
	if !ok {
		return
	}
	rangeEnd, ok := parseDate(w, req.RangeEnd, "range_end")
	if !ok {
		return
	}

	entry, err := h.waitlist.Join(r.Context(), waitlist.JoinInput{
		CustomerID: strings.TrimSpace(req.CustomerID),
		ServiceID:  strings.TrimSpace(req.ServiceID),
		StaffID:    strings.TrimSpace(req.StaffID),
		RangeStart: rangeStart,
		RangeEnd:   rangeEnd,
		Priority:   req.Priority,
		Actor:      actorFrom(r),
	})
	if err != nil {
		writeDomainError(w, err, func(msg string, args ...any) { h.logger.Error(msg, args...) })
		return
	}

	writeJSON(w, http.StatusCreated, waitlistEntryResponse{
		EntryID:    entry.ID,
		CustomerID: entry.CustomerID,
		ServiceID:  entry.ServiceID,
		StaffID:    entry.StaffID,
		RangeStart: entry.RangeStart.Format("2006-01-02"),
		RangeEnd:   entry.RangeEnd.Format("2006-01-02"),
		Priority:   entry.Priority,
		Status:     string(entry.Status),
	})
}

func (h *WaitlistHandler) Leave(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req leaveWaitlistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.EntryID) == "" {
		http.Error(w, "entry_id is required", http.StatusBadRequest)
		return
	}

	if err := h.waitlist.Leave(r.Context(), strings.TrimSpace(req.EntryID), actorFrom(r)); err != nil {
		writeDomainError(w, err, func(msg string, args ...any) { h.logger.Error(msg, args...) })
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseDate(w http.ResponseWriter, raw, field string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		http.Error(w, field+" is required", http.StatusBadRequest)
		return time.Time{}, false
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		http.Error(w, field+" must be YYYY-MM-DD", http.StatusBadRequest)
		return time.Time{}, false
	}
	return t.UTC(), true
}
