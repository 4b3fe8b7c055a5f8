package storage

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/chairtime/chairtime/libs/db"
)

// Contact is how a customer can be reached.
type Contact struct {
	Email string
	Phone string
}

var ErrContactNotFound = errors.New("customer contact not found")

type Notification struct {
	CustomerID    string
	AppointmentID string
	Kind          string
	Channel       string
	Recipient     string
	Payload       json.RawMessage
	Status        string
	ErrorReason   string
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Contact(ctx context.Context, customerID string) (Contact, error) {
	var c Contact
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(email, ''), COALESCE(phone, '')
		FROM customers
		WHERE id = $1
	`, customerID).Scan(&c.Email, &c.Phone)
	if errors.Is(err, pgx.ErrNoRows) {
		return Contact{}, ErrContactNotFound
	}
	if err != nil {
		return Contact{}, err
	}
	return c, nil
}

func (r *Repository) Insert(ctx context.Context, n Notification) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO notifications (customer_id, appointment_id, kind, channel, recipient, payload, status, error_reason)
		VALUES ($1, NULLIF($2, '')::uuid, $3, $4, $5, $6, $7, NULLIF($8, ''))
	`, n.CustomerID, n.AppointmentID, n.Kind, n.Channel, n.Recipient, n.Payload, n.Status, n.ErrorReason)
	return err
}
