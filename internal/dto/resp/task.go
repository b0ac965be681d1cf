package resp

import (
	"time"

	"fetchflow/internal/model"
)

type TaskItem struct {
	ID             int64     `json:"id"`
	TenantID       string    `json:"tenant_id"`
	IdempotencyKey string    `json:"idempotency_key"`
	SourceURL      string    `json:"source_url"`
	CallbackURL    string    `json:"callback_url,omitempty"`
	Status         string    `json:"status"`
	RetryCount     int       `json:"retry_count"`
	MaxRetry       int       `json:"max_retry"`
	ObjectKey      string    `json:"object_key,omitempty"`
	ObjectSize     int64     `json:"object_size,omitempty"`
	ErrorMessage   string    `json:"error_message,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type CreateTaskResponse struct {
	*TaskItem
	Created bool `json:"created"`
}

type GetTaskResponse struct {
	*TaskItem
}

type ListTasksResponse struct {
	Data  []TaskItem `json:"data"`
	Total int64      `json:"total"`
}

type TransitionItem struct {
	ID         int64     `json:"id"`
	FromStatus string    `json:"from_status"`
	ToStatus   string    `json:"to_status"`
	Reason     string    `json:"reason,omitempty"`
	Actor      string    `json:"actor"`
	CreatedAt  time.Time `json:"created_at"`
}

type TaskHistoryResponse struct {
	Data []TransitionItem `json:"data"`
}

func NewTaskItem(t *model.FetchTask) *TaskItem {
	return &TaskItem{
		ID:             t.ID,
		TenantID:       t.TenantID,
		IdempotencyKey: t.IdempotencyKey,
		SourceURL:      t.SourceURL,
		CallbackURL:    t.CallbackURL,
		Status:         model.TaskStatusName(t.Status),
		RetryCount:     t.RetryCount,
		MaxRetry:       t.MaxRetry,
		ObjectKey:      t.ObjectKey,
		ObjectSize:     t.ObjectSize,
		ErrorMessage:   t.ErrorMessage,
		CreatedAt:      t.CreatedAt,
		UpdatedAt:      t.UpdatedAt,
	}
}

func NewTransitionItem(tr *model.TaskTransition) TransitionItem {
	return TransitionItem{
		ID:         tr.ID,
		FromStatus: model.TaskStatusName(tr.FromStatus),
		ToStatus:   model.TaskStatusName(tr.ToStatus),
		Reason:     tr.Reason,
		Actor:      tr.Actor,
		CreatedAt:  tr.CreatedAt,
	}
}
