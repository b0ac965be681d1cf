package v1

import (
	"encoding/json"
	"time"
)

// QueueTaskPayload is the body of a queue-enqueue outbox message. It carries
// the task id and idempotency key so the consuming side can dedup a message
// that was published twice (crash between publish and status mark).
type QueueTaskPayload struct {
	TaskID         int64  `json:"task_id"`
	TenantID       string `json:"tenant_id"`
	IdempotencyKey string `json:"idempotency_key"`
	TraceID        string `json:"trace_id,omitempty"`
}

// WebhookPayload is the body POSTed to a tenant callback URL.
type WebhookPayload struct {
	Event          string    `json:"event"`
	TaskID         int64     `json:"task_id"`
	TenantID       string    `json:"tenant_id"`
	IdempotencyKey string    `json:"idempotency_key"`
	Status         string    `json:"status"`
	ObjectKey      string    `json:"object_key,omitempty"`
	ErrorMessage   string    `json:"error_message,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// TaskEvent is broadcast on the internal hub for dashboard watchers.
type TaskEvent struct {
	Seq        int64     `json:"seq"`
	TaskID     int64     `json:"task_id"`
	TenantID   string    `json:"tenant_id"`
	FromStatus string    `json:"from_status"`
	ToStatus   string    `json:"to_status"`
	Reason     string    `json:"reason,omitempty"`
	Type       string    `json:"type,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (p *QueueTaskPayload) ToJSON() string {
	b, err := json.Marshal(p)
	if err != nil {
		panic("fetchflow serialization failed" + err.Error())
	}
	return string(b)
}

func (p *WebhookPayload) ToJSON() string {
	b, err := json.Marshal(p)
	if err != nil {
		panic("fetchflow serialization failed" + err.Error())
	}
	return string(b)
}
