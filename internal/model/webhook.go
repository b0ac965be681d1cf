package model

import "time"

// WebhookOutbox carries a caller-facing notification (terminal task status
// snapshot) instead of a queue-enqueue instruction. Same state machine and
// retry discipline as OutboxMessage, delivered over HTTP.
type WebhookOutbox struct {
	ID          int64      `json:"id" gorm:"primaryKey"`
	TaskID      int64      `json:"task_id" gorm:"index"`
	CallbackURL string     `json:"callback_url" gorm:"size:2048;not null"`
	TaskStatus  int        `json:"task_status"`
	Payload     string     `json:"payload" gorm:"type:text"`
	Status      int        `json:"status" gorm:"index:idx_webhook_status_created"`
	RetryCount  int        `json:"retry_count" gorm:"default:0"`
	MaxRetry    int        `json:"max_retry" gorm:"default:2"`
	LastError   string     `json:"last_error" gorm:"type:text"`
	SentAt      *time.Time `json:"sent_at"`
	CreatedAt   time.Time  `json:"created_at" gorm:"index:idx_webhook_status_created"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
