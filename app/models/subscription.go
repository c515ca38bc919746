package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	SubscriptionStatusActive    = "ACTIVE"
	SubscriptionStatusPastDue   = "PAST_DUE"
	SubscriptionStatusCancelled = "CANCELLED"
)

// Subscription tracks a customer's recurring cleaning commitment and mirrors
// the processor subscription state. StripeSubscriptionID is nullable until
// the first processor sync and immutable once set. Amount is the weekly
// price in major units, converted from processor minor units exactly once.
type Subscription struct {
	ID                   uint            `gorm:"primaryKey" json:"id"`
	CustomerID           uint            `gorm:"not null;index" json:"customer_id"`
	StripeSubscriptionID *string         `gorm:"type:varchar(191);index:ux_subscriptions_stripe_id,unique" json:"stripe_subscription_id,omitempty"`
	Status               string          `gorm:"type:varchar(20);not null;default:'ACTIVE';index" json:"status"`
	Amount               decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0" json:"amount"`
	StartDate            time.Time       `gorm:"type:timestamp;not null" json:"start_date"`
	EndDate              *time.Time      `gorm:"type:timestamp;default:null" json:"end_date,omitempty"`
	NextBillingAt        *time.Time      `gorm:"type:timestamp;default:null" json:"next_billing_at,omitempty"`
	LastPaymentAt        *time.Time      `gorm:"type:timestamp;default:null" json:"last_payment_at,omitempty"`
	CreatedAt            time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsTerminal reports whether the subscription can no longer transition.
func (s *Subscription) IsTerminal() bool {
	return s.Status == SubscriptionStatusCancelled
}
