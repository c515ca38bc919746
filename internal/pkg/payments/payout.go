package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/transfer"
	"github.com/sudsy-app/sudsy-payments/app/models"
)

// stripeTransferRail settles DIRECT_TRANSFER payouts to the recipient's
// connected account.
type stripeTransferRail struct{}

func (r *stripeTransferRail) Send(ctx context.Context, recipient *models.Customer, item *models.BatchPayment) (string, error) {
	if recipient.StripeAccountID == "" {
		return "", errors.New("recipient has no connected payout account")
	}

	t, err := transfer.New(&stripe.TransferParams{
		Params: stripe.Params{
			Context:        ctx,
			IdempotencyKey: stripe.String(uuid.NewString()),
		},
		Amount:      stripe.Int64(ToMinorUnits(item.Amount)),
		Currency:    stripe.String(string(stripe.CurrencyUSD)),
		Destination: stripe.String(recipient.StripeAccountID),
		Description: stripe.String(fmt.Sprintf("%s payout, batch payment %d", item.Type, item.ID)),
	})
	if err != nil {
		return "", err
	}
	return t.ID, nil
}

// manualRail covers rails settled outside the platform (peer payment app,
// cash, check). The engine records the payout; the money moves by hand.
type manualRail struct {
	method string
}

func (r *manualRail) Send(ctx context.Context, recipient *models.Customer, item *models.BatchPayment) (string, error) {
	_ = ctx
	_ = recipient
	return fmt.Sprintf("%s-%s", r.method, uuid.NewString()), nil
}

type railSelector struct{}

// NewRailSelector maps payout methods to their rail clients.
func NewRailSelector() RailSelector {
	return &railSelector{}
}

func (s *railSelector) RailFor(payoutMethod string) (PayoutRail, error) {
	switch payoutMethod {
	case models.PayoutMethodDirectTransfer:
		return &stripeTransferRail{}, nil
	case models.PayoutMethodPeerApp, models.PayoutMethodCash, models.PayoutMethodCheck:
		return &manualRail{method: payoutMethod}, nil
	default:
		return nil, ErrInvalidPayoutMethod
	}
}
