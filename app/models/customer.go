package models

import "time"

// Payment processor constants used across payment-related models.
const (
	PaymentProviderStripe = "stripe"
)

// Customer is the local mirror of a paying customer. The processor customer
// id links inbound events to this row; the default payment method is what
// off-session retry charges bill against.
type Customer struct {
	ID                    uint      `gorm:"primaryKey" json:"id"`
	Name                  string    `gorm:"type:varchar(120);not null" json:"name"`
	Email                 string    `gorm:"type:varchar(200);not null;index" json:"email"`
	StripeCustomerID      string    `gorm:"type:varchar(191);not null;default:'';index:ux_customers_stripe_id,unique" json:"stripe_customer_id"`
	StripePaymentMethodID string    `gorm:"type:varchar(191);not null;default:''" json:"-"`
	StripeAccountID       string    `gorm:"type:varchar(191);not null;default:''" json:"-"`
	ReferredByID          *uint     `gorm:"index" json:"referred_by_id,omitempty"`
	CreatedAt             time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
