package payments

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/sudsy-app/sudsy-payments/app/models"
)

// ChargeOutcomeKind tags the result of one off-session charge attempt.
// Expected business outcomes (declined card, customer action required) and
// transport problems are separate kinds so callers branch on the tag
// instead of string-matching error messages.
type ChargeOutcomeKind string

const (
	ChargeSucceeded      ChargeOutcomeKind = "succeeded"
	ChargeDeclined       ChargeOutcomeKind = "declined"
	ChargeRequiresAction ChargeOutcomeKind = "requires_action"
	ChargeTransientError ChargeOutcomeKind = "transient_error"
)

// ChargeOutcome is the normalized result of a processor charge attempt.
type ChargeOutcome struct {
	Kind            ChargeOutcomeKind
	PaymentIntentID string
	Detail          string
}

// Charger attempts settlement against the payment processor. The webhook
// path and the retry sweep share one implementation so both see the same
// idempotency and timeout behavior.
type Charger interface {
	ChargeOffSession(ctx context.Context, stripeCustomerID, stripePaymentMethodID string, amount decimal.Decimal, description string) ChargeOutcome
}

// PayoutRail settles one outbound batch payment and returns an external
// reference for the audit trail.
type PayoutRail interface {
	Send(ctx context.Context, recipient *models.Customer, item *models.BatchPayment) (string, error)
}

// RailSelector resolves a payout method to its rail client.
type RailSelector interface {
	RailFor(payoutMethod string) (PayoutRail, error)
}

// Notifier delivers customer-facing payment notifications. Implementations
// own their failure semantics; calls must never block or fail the payment
// flow they are attached to.
type Notifier interface {
	PaymentFailed(customer *models.Customer, amount decimal.Decimal)
	PaymentRequiresAction(customer *models.Customer)
	RetriesExhausted(customer *models.Customer)
}
