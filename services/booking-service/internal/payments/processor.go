package payments

import "context"

// DepositRequest asks the payment provider to hold a booking deposit.
type DepositRequest struct {
	AppointmentID  string
	CustomerID     string
	AmountCents    int64
	Currency       string
	IdempotencyKey string
}

// Processor collects and releases booking deposits. CreateDepositIntent
// runs on the reservation path, so implementations must be idempotent
// on IdempotencyKey.
type Processor interface {
	CreateDepositIntent(ctx context.Context, req DepositRequest) (string, error)
	CancelDeposit(ctx context.Context, intentID string) error
}

// NoopProcessor is used when no payment provider is configured, for
// salons that settle in person.
type NoopProcessor struct{}

func (NoopProcessor) CreateDepositIntent(context.Context, DepositRequest) (string, error) {
	return "", nil
}

func (NoopProcessor) CancelDeposit(context.Context, string) error {
	return nil
}
