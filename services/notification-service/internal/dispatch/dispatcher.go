package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/chairtime/chairtime/services/notification-service/internal/email"
	"github.com/chairtime/chairtime/services/notification-service/internal/sms"
	"github.com/chairtime/chairtime/services/notification-service/internal/storage"
)

// Store resolves customer contacts and records delivery attempts.
type Store interface {
	Contact(ctx context.Context, customerID string) (storage.Contact, error)
	Insert(ctx context.Context, n storage.Notification) error
}

// Dispatcher turns booking events into customer messages. Email is
// preferred; SMS is the fallback when no email is on file.
type Dispatcher struct {
	directory Store
	email     email.Sender
	sms       sms.Sender
	logger    *slog.Logger
}

func New(directory Store, emailSender email.Sender, smsSender sms.Sender, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		directory: directory,
		email:     emailSender,
		sms:       smsSender,
		logger:    logger,
	}
}

type eventPayload struct {
	AppointmentID string `json:"appointment_id"`
	EntryID       string `json:"entry_id"`
	CustomerID    string `json:"customer_id"`
	StaffID       string `json:"staff_id"`
	ServiceID     string `json:"service_id"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
	OldStartTime  string `json:"old_start_time"`
	Reason        string `json:"reason"`
}

func (d *Dispatcher) Handle(ctx context.Context, msg kafka.Message) error {
	var payload eventPayload
	if err := json.Unmarshal(msg.Value, &payload); err != nil {
		d.logger.Error("invalid event payload", "err", err, "topic", msg.Topic)
		return nil
	}
	if payload.CustomerID == "" {
		d.logger.Error("event missing customer_id", "topic", msg.Topic)
		return nil
	}

	subject, body, ok := compose(msg.Topic, payload)
	if !ok {
		d.logger.Warn("unhandled event type", "topic", msg.Topic)
		return nil
	}

	contact, err := d.directory.Contact(ctx, payload.CustomerID)
	if errors.Is(err, storage.ErrContactNotFound) {
		d.logger.Warn("no contact on file", "customer_id", payload.CustomerID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup contact: %w", err)
	}

	channel, recipient := pickChannel(contact)
	if channel == "" {
		d.logger.Warn("customer unreachable", "customer_id", payload.CustomerID)
		return nil
	}

	status := "sent"
	errorReason := ""
	switch channel {
	case "email":
		if err := d.email.Send(recipient, subject, body); err != nil {
			status = "failed"
			errorReason = err.Error()
			d.logger.Error("email send failed", "err", err, "recipient", recipient)
		}
	case "sms":
		if err := d.sms.Send(ctx, recipient, body); err != nil {
			status = "failed"
			errorReason = err.Error()
			d.logger.Error("sms send failed", "err", err, "recipient", recipient)
		}
	}

	if err := d.directory.Insert(ctx, storage.Notification{
		CustomerID:    payload.CustomerID,
		AppointmentID: payload.AppointmentID,
		Kind:          msg.Topic,
		Channel:       channel,
		Recipient:     recipient,
		Payload:       json.RawMessage(msg.Value),
		Status:        status,
		ErrorReason:   errorReason,
	}); err != nil {
		return fmt.Errorf("persist notification: %w", err)
	}

	d.logger.Info("notification dispatched",
		"kind", msg.Topic, "customer_id", payload.CustomerID,
		"channel", channel, "status", status)
	return nil
}

func pickChannel(contact storage.Contact) (channel string, recipient string) {
	if contact.Email != "" {
		return "email", contact.Email
	}
	if contact.Phone != "" {
		return "sms", contact.Phone
	}
	return "", ""
}

func compose(eventType string, payload eventPayload) (subject string, body string, ok bool) {
	switch eventType {
	case "appointment.booked":
		return "Your appointment is confirmed",
			fmt.Sprintf("Your appointment on %s is confirmed. See you then!", prettyTime(payload.StartTime)),
			true
	case "appointment.rescheduled":
		return "Your appointment was rescheduled",
			fmt.Sprintf("Your appointment moved from %s to %s.", prettyTime(payload.OldStartTime), prettyTime(payload.StartTime)),
			true
	case "appointment.cancelled":
		body := fmt.Sprintf("Your appointment on %s was cancelled.", prettyTime(payload.StartTime))
		if payload.Reason != "" {
			body = fmt.Sprintf("%s Reason: %s", body, payload.Reason)
		}
		return "Your appointment was cancelled", body, true
	case "waitlist.notified":
		return "A time you wanted just opened up",
			fmt.Sprintf("A slot on %s is now available. Book soon before it fills up.", prettyTime(payload.StartTime)),
			true
	default:
		return "", "", false
	}
}

func prettyTime(raw string) string {
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return raw
	}
	return t.Format("Mon, Jan 2 2006 at 3:04 PM")
}
