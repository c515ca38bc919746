package payments

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/paymentintent"
	"github.com/sudsy-app/sudsy-payments/internal/pkg/env"
)

type stripeCharger struct{}

// NewStripeCharger creates the production charger. The Stripe key comes
// from the environment; both the webhook path and the retry sweep use this
// same client.
func NewStripeCharger() Charger {
	stripe.Key = env.GetEnv("STRIPE_SECRET_KEY", "")
	return &stripeCharger{}
}

func (c *stripeCharger) ChargeOffSession(ctx context.Context, stripeCustomerID, stripePaymentMethodID string, amount decimal.Decimal, description string) ChargeOutcome {
	params := &stripe.PaymentIntentParams{
		Params: stripe.Params{
			Context:        ctx,
			IdempotencyKey: stripe.String(uuid.NewString()),
		},
		Amount:        stripe.Int64(ToMinorUnits(amount)),
		Currency:      stripe.String(string(stripe.CurrencyUSD)),
		Customer:      stripe.String(stripeCustomerID),
		PaymentMethod: stripe.String(stripePaymentMethodID),
		OffSession:    stripe.Bool(true),
		Confirm:       stripe.Bool(true),
		Description:   stripe.String(description),
	}

	pi, err := paymentintent.New(params)
	if err != nil {
		return classifyChargeError(err)
	}

	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		return ChargeOutcome{Kind: ChargeSucceeded, PaymentIntentID: pi.ID}
	case stripe.PaymentIntentStatusRequiresAction, stripe.PaymentIntentStatusRequiresConfirmation:
		return ChargeOutcome{Kind: ChargeRequiresAction, PaymentIntentID: pi.ID, Detail: "customer action required"}
	default:
		return ChargeOutcome{Kind: ChargeTransientError, PaymentIntentID: pi.ID, Detail: "unexpected intent status: " + string(pi.Status)}
	}
}

func classifyChargeError(err error) ChargeOutcome {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ChargeOutcome{Kind: ChargeTransientError, Detail: "processor call timed out"}
	}

	var sErr *stripe.Error
	if errors.As(err, &sErr) {
		intentID := ""
		if sErr.PaymentIntent != nil {
			intentID = sErr.PaymentIntent.ID
		}
		if sErr.Code == stripe.ErrorCodeAuthenticationRequired {
			return ChargeOutcome{Kind: ChargeRequiresAction, PaymentIntentID: intentID, Detail: sErr.Msg}
		}
		if sErr.Type == stripe.ErrorTypeCard {
			return ChargeOutcome{Kind: ChargeDeclined, PaymentIntentID: intentID, Detail: sErr.Msg}
		}
		return ChargeOutcome{Kind: ChargeTransientError, PaymentIntentID: intentID, Detail: sErr.Msg}
	}

	return ChargeOutcome{Kind: ChargeTransientError, Detail: err.Error()}
}
