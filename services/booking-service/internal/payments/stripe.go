package payments

import (
	"context"
	"fmt"
	"log/slog"

	stripe "github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/paymentintent"
)

// StripeProcessor holds deposits as manual-capture payment intents. The
// salon captures after the visit or the intent is cancelled with the
// appointment.
type StripeProcessor struct {
	logger *slog.Logger
}

func NewStripeProcessor(secretKey string, logger *slog.Logger) *StripeProcessor {
	stripe.Key = secretKey
	return &StripeProcessor{logger: logger}
}

func (p *StripeProcessor) CreateDepositIntent(ctx context.Context, req DepositRequest) (string, error) {
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(req.AmountCents),
		Currency:      stripe.String(req.Currency),
		CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
		Description:   stripe.String("booking deposit"),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	params.AddMetadata("appointment_id", req.AppointmentID)
	params.AddMetadata("customer_id", req.CustomerID)
	params.SetIdempotencyKey(req.IdempotencyKey)

	pi, err := paymentintent.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe create payment intent: %w", err)
	}
	p.logger.Info("deposit intent created", "appointment_id", req.AppointmentID, "intent_id", pi.ID)
	return pi.ID, nil
}

func (p *StripeProcessor) CancelDeposit(ctx context.Context, intentID string) error {
	params := &stripe.PaymentIntentCancelParams{}
	params.Context = ctx
	if _, err := paymentintent.Cancel(intentID, params); err != nil {
		return fmt.Errorf("stripe cancel payment intent: %w", err)
	}
	return nil
}
