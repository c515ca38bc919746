package models

import "time"

// WebhookEvent stores processor webhook payloads with deduplication
// metadata for idempotent processing. The (provider, provider_event_id)
// unique index is the at-least-once delivery boundary.
type WebhookEvent struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	Provider        string     `gorm:"type:varchar(20);not null;index:ux_webhook_events_provider_event,unique,priority:1;index" json:"provider"`
	ProviderEventID string     `gorm:"type:varchar(191);not null;default:'';index:ux_webhook_events_provider_event,unique,priority:2" json:"provider_event_id"`
	EventType       string     `gorm:"type:varchar(100);not null;index" json:"event_type"`
	PayloadJSON     string     `gorm:"type:longtext;not null" json:"payload_json"`
	ProcessedAt     *time.Time `gorm:"type:timestamp;default:null" json:"processed_at,omitempty"`
	ProcessingError string     `gorm:"type:text" json:"processing_error"`
	CreatedAt       time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// Applied reports whether the event already ran its handler to completion.
// Unprocessed rows are re-attempted when the processor redelivers.
func (e *WebhookEvent) Applied() bool {
	return e.ProcessedAt != nil && e.ProcessingError == ""
}
