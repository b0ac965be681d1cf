package model

import "time"

// TaskTransition is the append-only status history of a task. Rows are
// written inside the same transaction as the transition they record.
type TaskTransition struct {
	ID         int64     `json:"id" gorm:"primaryKey"`
	TaskID     int64     `json:"task_id" gorm:"index"`
	FromStatus int       `json:"from_status"`
	ToStatus   int       `json:"to_status"`
	Reason     string    `json:"reason" gorm:"size:512"`
	Actor      string    `json:"actor" gorm:"size:64"`
	TraceID    string    `json:"trace_id" gorm:"size:64;index"`
	CreatedAt  time.Time `json:"created_at" gorm:"index"`
}
