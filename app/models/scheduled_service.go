package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	ServiceStatusScheduled = "SCHEDULED"
	ServiceStatusCompleted = "COMPLETED"
	ServiceStatusCancelled = "CANCELLED"
)

// ScheduledService is one recurring cleaning appointment generated from a
// subscription for a billing week. At most one row exists per
// (subscription, ISO week); the generator enforces that with a ranged
// lookup inside the insert transaction.
type ScheduledService struct {
	ID                uint            `gorm:"primaryKey" json:"id"`
	CustomerID        uint            `gorm:"not null;index" json:"customer_id"`
	SubscriptionID    uint            `gorm:"not null;index:idx_scheduled_services_sub_date,priority:1" json:"subscription_id"`
	ScheduledFor      time.Time       `gorm:"type:timestamp;not null;index:idx_scheduled_services_sub_date,priority:2" json:"scheduled_for"`
	Status            string          `gorm:"type:varchar(20);not null;default:'SCHEDULED';index" json:"status"`
	PotentialEarnings decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"potential_earnings"`
	CreatedAt         time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}
