package model

import "time"

// OutboxMessage is a durable promise to enqueue a task onto the broker. One
// row is created in the same transaction as its FetchTask.
type OutboxMessage struct {
	ID          int64      `json:"id" gorm:"primaryKey"`
	TaskID      int64      `json:"task_id" gorm:"index"`
	Payload     string     `json:"payload" gorm:"type:text"`
	DedupKey    string     `json:"dedup_key" gorm:"size:64;uniqueIndex"`
	Status      int        `json:"status" gorm:"index:idx_outbox_status_created"`
	RetryCount  int        `json:"retry_count" gorm:"default:0"`
	MaxRetry    int        `json:"max_retry" gorm:"default:5"`
	LastError   string     `json:"last_error" gorm:"type:text"`
	ProcessedAt *time.Time `json:"processed_at"`
	CreatedAt   time.Time  `json:"created_at" gorm:"index:idx_outbox_status_created"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

const (
	OutboxPending = 0
	OutboxSent    = 1
	OutboxFailed  = 2
)

// OutboxRecord is the flattened view shared by the queue-enqueue and the
// webhook-deliver variants so one dispatch/retry engine serves both tables.
// Target is the queue name for enqueue records and the callback URL for
// webhook records.
type OutboxRecord struct {
	ID         int64
	TaskID     int64
	Payload    string
	Target     string
	RetryCount int
	MaxRetry   int
	CreatedAt  time.Time
}
