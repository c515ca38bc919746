package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	PaymentStatusCompleted = "COMPLETED"
	PaymentStatusFailed    = "FAILED"
	PaymentStatusPending   = "PENDING"
)

const (
	PaymentTypeSubscriptionRenewal = "SUBSCRIPTION_RENEWAL"
	PaymentTypeOneTime             = "ONE_TIME_PAYMENT"
)

// Payment is an append-only record of one settlement attempt's outcome.
// Corrections create a new row; COMPLETED/FAILED rows are never mutated.
type Payment struct {
	ID                    uint            `gorm:"primaryKey" json:"id"`
	CustomerID            uint            `gorm:"not null;index" json:"customer_id"`
	SubscriptionID        *uint           `gorm:"index" json:"subscription_id,omitempty"`
	Amount                decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"amount"`
	Status                string          `gorm:"type:varchar(20);not null;index" json:"status"`
	Type                  string          `gorm:"type:varchar(30);not null;default:'SUBSCRIPTION_RENEWAL'" json:"type"`
	StripeInvoiceID       string          `gorm:"type:varchar(191);not null;default:'';index" json:"stripe_invoice_id"`
	StripePaymentIntentID string          `gorm:"type:varchar(191);not null;default:'';index" json:"stripe_payment_intent_id"`
	CreatedAt             time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
}
