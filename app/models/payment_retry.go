package models

import "time"

const (
	RetryStatusScheduled = "SCHEDULED"
	RetryStatusPending   = "PENDING"
	RetryStatusSuccess   = "SUCCESS"
	RetryStatusFailed    = "FAILED"
)

// MaxPaymentRetries bounds how often a failed renewal is re-attempted.
// Attempt 4 (retry_count == 3) is the last one; after that the owning
// subscription goes PAST_DUE and no further rows are created.
const MaxPaymentRetries = 3

// RetryBackoff is the delay between two attempts for the same payment.
const RetryBackoff = 72 * time.Hour

// PaymentRetry tracks the lifecycle of retrying one originally-failed
// Payment. Rows are claimed SCHEDULED -> PENDING by the sweep and end in
// SUCCESS or FAILED.
type PaymentRetry struct {
	ID                    uint       `gorm:"primaryKey" json:"id"`
	PaymentID             uint       `gorm:"not null;index" json:"payment_id"`
	Status                string     `gorm:"type:varchar(20);not null;default:'SCHEDULED';index:idx_payment_retries_status_due,priority:1" json:"status"`
	RetryCount            int        `gorm:"not null;default:0" json:"retry_count"`
	NextRetryAt           time.Time  `gorm:"type:timestamp;not null;index:idx_payment_retries_status_due,priority:2" json:"next_retry_at"`
	StripePaymentIntentID string     `gorm:"type:varchar(191);not null;default:''" json:"stripe_payment_intent_id"`
	ErrorMessage          string     `gorm:"type:text" json:"error_message"`
	ClaimedAt             *time.Time `gorm:"type:timestamp;default:null" json:"claimed_at,omitempty"`
	CreatedAt             time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
