package models

import "time"

// SecurityAuditLog records rejected webhook deliveries (bad signature).
// These rows feed security monitoring and are never retried.
type SecurityAuditLog struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	IP        string    `gorm:"type:varchar(45);not null;default:''" json:"ip"`
	UserAgent string    `gorm:"type:varchar(255);not null;default:''" json:"user_agent"`
	Reason    string    `gorm:"type:varchar(255);not null" json:"reason"`
	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}
