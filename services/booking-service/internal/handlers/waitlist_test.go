package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/chairtime/chairtime/services/booking-service/internal/domain"
	"github.com/chairtime/chairtime/services/booking-service/internal/waitlist"
)

type stubWaitlist struct {
	joinIn  waitlist.JoinInput
	entry   domain.WaitlistEntry
	leftID  string
	leaveBy domain.Actor
	err     error
}

func (s *stubWaitlist) Join(_ context.Context, in waitlist.JoinInput) (domain.WaitlistEntry, error) {
	s.joinIn = in
	return s.entry, s.err
}

func (s *stubWaitlist) Leave(_ context.Context, entryID string, actor domain.Actor) error {
	s.leftID = entryID
	s.leaveBy = actor
	return s.err
}

func TestWaitlistJoin(t *testing.T) {
	stub := &stubWaitlist{entry: domain.WaitlistEntry{
		ID:         "wl-1",
		CustomerID: "cust-1",
		ServiceID:  "svc-cut",
		StaffID:    "staff-2",
		RangeStart: time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC),
		RangeEnd:   time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		Status:     domain.WaitlistActive,
	}}
	h := NewWaitlistHandler(stub, testLogger())

	rw := postJSON(h.Join, "/api/v1/waitlist", `{
		"customer_id": "cust-1",
		"service_id": "svc-cut",
		"staff_id": "staff-2",
		"range_start": "2026-03-04",
		"range_end": "2026-03-10"
	}`, actorHeaders)
	if rw.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rw.Code, rw.Body.String())
	}

	var resp waitlistEntryResponse
	if err := json.Unmarshal(rw.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response: %v", err)
	}
	if resp.EntryID != "wl-1" || resp.RangeStart != "2026-03-04" || resp.Status != "active" {
		t.Fatalf("response = %+v", resp)
	}
	if resp.StaffID != "staff-2" {
		t.Fatalf("staff_id = %q", resp.StaffID)
	}
	if stub.joinIn.StaffID != "staff-2" {
		t.Fatalf("staff preference not forwarded: %q", stub.joinIn.StaffID)
	}
	if !stub.joinIn.RangeEnd.Equal(time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("range end = %s", stub.joinIn.RangeEnd)
	}
}

func TestWaitlistJoinBadDate(t *testing.T) {
	h := NewWaitlistHandler(&stubWaitlist{}, testLogger())
	rw := postJSON(h.Join, "/api/v1/waitlist", `{
		"customer_id": "cust-1",
		"service_id": "svc-cut",
		"range_start": "next tuesday",
		"range_end": "2026-03-10"
	}`, actorHeaders)
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rw.Code)
	}
	if !strings.Contains(rw.Body.String(), "range_start") {
		t.Fatalf("body = %s", rw.Body.String())
	}
}

func TestWaitlistJoinDuplicate(t *testing.T) {
	h := NewWaitlistHandler(&stubWaitlist{err: domain.ErrDuplicateWaitlistEntry}, testLogger())
	rw := postJSON(h.Join, "/api/v1/waitlist", `{
		"customer_id": "cust-1",
		"service_id": "svc-cut",
		"range_start": "2026-03-04",
		"range_end": "2026-03-10"
	}`, actorHeaders)
	if rw.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rw.Code)
	}
}

func TestWaitlistLeave(t *testing.T) {
	stub := &stubWaitlist{}
	h := NewWaitlistHandler(stub, testLogger())

	rw := postJSON(h.Leave, "/api/v1/waitlist/leave", `{"entry_id": "wl-1"}`, actorHeaders)
	if rw.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rw.Code, rw.Body.String())
	}
	if stub.leftID != "wl-1" || stub.leaveBy.ID != "cust-1" {
		t.Fatalf("leave called with %q by %+v", stub.leftID, stub.leaveBy)
	}

	rw = postJSON(h.Leave, "/api/v1/waitlist/leave", `{}`, actorHeaders)
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("missing entry_id: expected 400, got %d", rw.Code)
	}
}

func TestWaitlistLeaveNotFound(t *testing.T) {
	h := NewWaitlistHandler(&stubWaitlist{err: domain.ErrWaitlistEntryNotFound}, testLogger())
	rw := postJSON(h.Leave, "/api/v1/waitlist/leave", `{"entry_id": "wl-nope"}`, actorHeaders)
	if rw.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rw.Code)
	}
}

func TestWaitlistLeaveInfraError(t *testing.T) {
	h := NewWaitlistHandler(&stubWaitlist{err: errors.New("db down")}, testLogger())
	rw := postJSON(h.Leave, "/api/v1/waitlist/leave", `{"entry_id": "wl-1"}`, actorHeaders)
	if rw.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rw.Code)
	}
}
