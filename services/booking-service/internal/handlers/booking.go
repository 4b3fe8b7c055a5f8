package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/chairtime/chairtime/services/booking-service/internal/availability"
	"github.com/chairtime/chairtime/services/booking-service/internal/booking"
	"github.com/chairtime/chairtime/services/booking-service/internal/domain"
)

// Engine is the reservation surface the handler calls.
type Engine interface {
	Reserve(ctx context.Context, in booking.ReserveInput) (domain.ReservationResult, error)
}

type Lifecycle interface {
	Reschedule(ctx context.Context, in booking.RescheduleInput) (domain.ReservationResult, error)
	Cancel(ctx context.Context, in booking.CancelInput) (domain.ReservationResult, error)
}

type SlotResolver interface {
	Slots(ctx context.Context, req availability.Request, set domain.PolicySettings) ([]availability.StaffSlots, error)
}

type PolicyLoader interface {
	Load(ctx context.Context) (domain.PolicySettings, error)
}

type AppointmentLister interface {
	ListByCustomer(ctx context.Context, customerID string, limit int) ([]domain.Appointment, error)
}

type BookingHandler struct {
	engine    Engine
	lifecycle Lifecycle
	resolver  SlotResolver
	policies  PolicyLoader
	lister    AppointmentLister
	logger    *slog.Logger
}

func NewBookingHandler(engine Engine, lifecycle Lifecycle, resolver SlotResolver, policies PolicyLoader, lister AppointmentLister, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{
		engine:    engine,
		lifecycle: lifecycle,
		resolver:  resolver,
		policies:  policies,
		lister:    lister,
		logger:    logger,
	}
}

type reserveRequest struct {
	CustomerID string `json:"customer_id"`
	StaffID    string `json:"staff_id"`
	ServiceID  string `json:"service_id"`
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time"`
	PriceCents int64  `json:"price_cents"`
	Currency   string `json:"currency"`
	Notes      string `json:"notes"`
}

type rescheduleRequest struct {
	AppointmentID string `json:"appointment_id"`
	NewStartTime  string `json:"new_start_time"`
	Reason        string `json:"reason"`
}

type cancelRequest struct {
	AppointmentID string `json:"appointment_id"`
	Reason        string `json:"reason"`
}

type resultResponse struct {
	Status        string         `json:"status"`
	AppointmentID string         `json:"appointment_id,omitempty"`
	Failure       *resultFailure `json:"failure,omitempty"`
}

type resultFailure struct {
	Kind   string `json:"kind"`
	Reason string `json:"reason"`
}

type appointmentItem struct {
	AppointmentID   string `json:"appointment_id"`
	StaffID         string `json:"staff_id"`
	ServiceID       string `json:"service_id"`
	StartTime       string `json:"start_time"`
	EndTime         string `json:"end_time"`
	Status          string `json:"status"`
	PriceCents      int64  `json:"price_cents"`
	Currency        string `json:"currency"`
	RescheduleCount int    `json:"reschedule_count"`
	CancelledAt     string `json:"cancelled_at,omitempty"`
	CancelReason    string `json:"cancel_reason,omitempty"`
	CreatedAt       string `json:"created_at"`
}

type slotItem struct {
	StaffID   string `json:"staff_id"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

func (h *BookingHandler) Reserve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req reserveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	start, ok := parseTime(w, req.StartTime, "start_time", true)
	if !ok {
		return
	}
	end, ok := parseTime(w, req.EndTime, "end_time", false)
	if !ok {
		return
	}

	result, err := h.engine.Reserve(r.Context(), booking.ReserveInput{
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
		CustomerID:     strings.TrimSpace(req.CustomerID),
		StaffID:        strings.TrimSpace(req.StaffID),
		ServiceID:      strings.TrimSpace(req.ServiceID),
		Start:          start,
		End:            end,
		PriceCents:     req.PriceCents,
		Currency:       strings.ToLower(strings.TrimSpace(req.Currency)),
		Notes:          req.Notes,
		Actor:          actorFrom(r),
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeResult(w, result, http.StatusCreated)
}

func (h *BookingHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req rescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	newStart, ok := parseTime(w, req.NewStartTime, "new_start_time", true)
	if !ok {
		return
	}

	result, err := h.lifecycle.Reschedule(r.Context(), booking.RescheduleInput{
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
		AppointmentID:  strings.TrimSpace(req.AppointmentID),
		NewStart:       newStart,
		Reason:         strings.TrimSpace(req.Reason),
		Actor:          actorFrom(r),
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeResult(w, result, http.StatusOK)
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	result, err := h.lifecycle.Cancel(r.Context(), booking.CancelInput{
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
		AppointmentID:  strings.TrimSpace(req.AppointmentID),
		Reason:         strings.TrimSpace(req.Reason),
		Actor:          actorFrom(r),
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeResult(w, result, http.StatusOK)
}

func (h *BookingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	serviceID := strings.TrimSpace(r.URL.Query().Get("service_id"))
	staffID := strings.TrimSpace(r.URL.Query().Get("staff_id"))
	dateStr := strings.TrimSpace(r.URL.Query().Get("date"))
	if serviceID == "" || dateStr == "" {
		http.Error(w, "service_id and date are required", http.StatusBadRequest)
		return
	}
	day, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		http.Error(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	var granularity time.Duration
	if g := strings.TrimSpace(r.URL.Query().Get("granularity_minutes")); g != "" {
		mins, err := strconv.Atoi(g)
		if err != nil || mins <= 0 {
			http.Error(w, "granularity_minutes must be a positive integer", http.StatusBadRequest)
			return
		}
		granularity = time.Duration(mins) * time.Minute
	}

	set, err := h.policies.Load(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}

	staffSlots, err := h.resolver.Slots(r.Context(), availability.Request{
		ServiceID:   serviceID,
		StaffID:     staffID,
		Day:         day.UTC(),
		Granularity: granularity,
	}, set)
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := make([]slotItem, 0)
	for _, ss := range staffSlots {
		for _, s := range ss.Slots {
			resp = append(resp, slotItem{
				StaffID:   ss.StaffID,
				StartTime: s.Start.UTC().Format(time.RFC3339),
				EndTime:   s.End.UTC().Format(time.RFC3339),
			})
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	customerID := strings.TrimSpace(r.URL.Query().Get("customer_id"))
	if customerID == "" {
		http.Error(w, "customer_id is required", http.StatusBadRequest)
		return
	}
	actor := actorFrom(r)
	if !actor.MayActOn(customerID) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	limit := 0
	if l := strings.TrimSpace(r.URL.Query().Get("limit")); l != "" {
		limit, _ = strconv.Atoi(l)
	}

	appts, err := h.lister.ListByCustomer(r.Context(), customerID, limit)
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := make([]appointmentItem, 0, len(appts))
	for _, a := range appts {
		item := appointmentItem{
			AppointmentID:   a.ID,
			StaffID:         a.StaffID,
			ServiceID:       a.ServiceID,
			StartTime:       a.StartTime.UTC().Format(time.RFC3339),
			EndTime:         a.EndTime.UTC().Format(time.RFC3339),
			Status:          string(a.Status),
			PriceCents:      a.PriceCents,
			Currency:        a.Currency,
			RescheduleCount: a.RescheduleCount,
			CancelReason:    a.CancelReason,
			CreatedAt:       a.CreatedAt.UTC().Format(time.RFC3339),
		}
		if a.CancelledAt != nil {
			item.CancelledAt = a.CancelledAt.UTC().Format(time.RFC3339)
		}
		resp = append(resp, item)
	}
	writeJSON(w, http.StatusOK, resp)
}
