package model

import "time"

// FetchTask is one unit of asynchronous work: download a remote resource,
// store it, and optionally notify the tenant's callback URL.
type FetchTask struct {
	ID             int64      `json:"id" gorm:"primaryKey"`
	TenantID       string     `json:"tenant_id" gorm:"size:64;not null;uniqueIndex:uk_tenant_idem"`
	IdempotencyKey string     `json:"idempotency_key" gorm:"size:128;not null;uniqueIndex:uk_tenant_idem"`
	SourceURL      string     `json:"source_url" gorm:"size:2048;not null"`
	CallbackURL    string     `json:"callback_url" gorm:"size:2048"`
	Status         int        `json:"status" gorm:"index:idx_task_status_created"`
	RetryCount     int        `json:"retry_count" gorm:"default:0"`
	MaxRetry       int        `json:"max_retry" gorm:"default:3"`
	ObjectKey      string     `json:"object_key" gorm:"size:512"`
	ObjectSize     int64      `json:"object_size"`
	ErrorMessage   string     `json:"error_message" gorm:"type:text"`
	LastRetryAt    *time.Time `json:"last_retry_at"`
	TraceID        string     `json:"trace_id" gorm:"size:64;index"`
	CreatedAt      time.Time  `json:"created_at" gorm:"index:idx_task_status_created"`
	UpdatedAt      time.Time  `json:"updated_at" gorm:"index"`
}

const (
	TaskQueued     = 0
	TaskProcessing = 1
	TaskCompleted  = 2
	TaskFailed     = 3
)

// Retryable reports whether the task still has execution budget left.
func (t *FetchTask) Retryable() bool {
	return t.RetryCount < t.MaxRetry
}

// Terminal reports whether the task can never transition again. FAILED is
// terminal only once the retry budget is exhausted.
func (t *FetchTask) Terminal() bool {
	if t.Status == TaskCompleted {
		return true
	}
	return t.Status == TaskFailed && !t.Retryable()
}

func TaskStatusName(status int) string {
	switch status {
	case TaskQueued:
		return "QUEUED"
	case TaskProcessing:
		return "PROCESSING"
	case TaskCompleted:
		return "COMPLETED"
	case TaskFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}
