package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	BatchStatusDraft      = "DRAFT"
	BatchStatusProcessing = "PROCESSING"
	BatchStatusCompleted  = "COMPLETED"
	BatchStatusPartial    = "PARTIAL"
	BatchStatusFailed     = "FAILED"
)

const (
	BatchPaymentTypeEarnings = "EARNINGS"
	BatchPaymentTypeReferral = "REFERRAL"
	BatchPaymentTypeRefund   = "REFUND"
)

const (
	BatchPaymentStatusPending   = "PENDING"
	BatchPaymentStatusSucceeded = "SUCCEEDED"
	BatchPaymentStatusFailed    = "FAILED"
)

// Payout rails a batch can be settled through.
const (
	PayoutMethodDirectTransfer = "DIRECT_TRANSFER"
	PayoutMethodPeerApp        = "PEER_APP"
	PayoutMethodCash           = "CASH"
	PayoutMethodCheck          = "CHECK"
)

// PaymentBatch groups outbound payments (worker earnings, referral
// commissions, refunds) for one processing run. Its status is recomputed
// from item outcomes after every run, never hand-set.
type PaymentBatch struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	Reference     string     `gorm:"type:varchar(36);not null;index:ux_payment_batches_reference,unique" json:"reference"`
	Name          string     `gorm:"type:varchar(120);not null" json:"name"`
	Status        string     `gorm:"type:varchar(20);not null;default:'DRAFT';index" json:"status"`
	PayoutMethod  string     `gorm:"type:varchar(20);not null;default:''" json:"payout_method"`
	CreatedBy     string     `gorm:"type:varchar(120);not null;default:''" json:"created_by"`
	TotalPayments int        `gorm:"not null;default:0" json:"total_payments"`
	SuccessCount  int        `gorm:"not null;default:0" json:"success_count"`
	FailedCount   int        `gorm:"not null;default:0" json:"failed_count"`
	ProcessedAt   *time.Time `gorm:"type:timestamp;default:null" json:"processed_at,omitempty"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsProcessable reports whether a new processing run may start. Completed
// and in-flight batches must reject a second request.
func (b *PaymentBatch) IsProcessable() bool {
	return b.Status == BatchStatusDraft || b.Status == BatchStatusFailed
}

// BatchPayment is a single outbound payment inside a batch.
type BatchPayment struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	BatchID      uint            `gorm:"not null;index" json:"batch_id"`
	Type         string          `gorm:"type:varchar(20);not null" json:"type"`
	RecipientID  uint            `gorm:"not null;index" json:"recipient_id"`
	Amount       decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"amount"`
	Status       string          `gorm:"type:varchar(20);not null;default:'PENDING';index" json:"status"`
	ExternalRef  string          `gorm:"type:varchar(191);not null;default:''" json:"external_ref"`
	ErrorMessage string          `gorm:"type:text" json:"error_message"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// ValidPayoutMethod reports whether the given rail is one we can settle on.
func ValidPayoutMethod(method string) bool {
	switch method {
	case PayoutMethodDirectTransfer, PayoutMethodPeerApp, PayoutMethodCash, PayoutMethodCheck:
		return true
	default:
		return false
	}
}
