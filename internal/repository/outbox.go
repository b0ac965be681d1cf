package repository

import (
	"context"
	"time"

	"fetchflow/internal/model"

	"gorm.io/gorm"
)

// OutboxInterface defines persistence for queue-enqueue outbox rows. Fetch
// methods return the flattened OutboxRecord view consumed by the dispatch
// and retry engines.
type OutboxInterface interface {
	Create(ctx context.Context, outbox *model.OutboxMessage) error
	FetchPending(ctx context.Context, limit int) ([]model.OutboxRecord, error)
	FetchRetryable(ctx context.Context, before time.Time, limit int) ([]model.OutboxRecord, error)
	MarkSent(ctx context.Context, id int64, at time.Time) error
	MarkFailed(ctx context.Context, id int64, lastError string, retryCount int) error
	WithTx(tx *gorm.DB) OutboxInterface
}

type OutboxRepository struct {
	db *gorm.DB
}

func NewOutboxRepository(db *gorm.DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

func (r *OutboxRepository) Create(ctx context.Context, outbox *model.OutboxMessage) error {
	return r.db.WithContext(ctx).Create(outbox).Error
}

// FetchPending returns up to limit PENDING rows, oldest first (FIFO).
func (r *OutboxRepository) FetchPending(ctx context.Context, limit int) ([]model.OutboxRecord, error) {
	var rows []model.OutboxMessage
	err := r.db.WithContext(ctx).
		Where("status = ?", model.OutboxPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toRecords(rows), nil
}

// FetchRetryable returns FAILED rows with retry budget left whose creation
// predates the backoff threshold, oldest first.
func (r *OutboxRepository) FetchRetryable(ctx context.Context, before time.Time, limit int) ([]model.OutboxRecord, error) {
	var rows []model.OutboxMessage
	err := r.db.WithContext(ctx).
		Where("status = ? AND retry_count < max_retry AND created_at < ?", model.OutboxFailed, before).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toRecords(rows), nil
}

func (r *OutboxRepository) MarkSent(ctx context.Context, id int64, at time.Time) error {
	return r.db.WithContext(ctx).Model(&model.OutboxMessage{}).Where("id = ?", id).
		Updates(map[string]any{
			"status":       model.OutboxSent,
			"processed_at": at,
		}).Error
}

func (r *OutboxRepository) MarkFailed(ctx context.Context, id int64, lastError string, retryCount int) error {
	return r.db.WithContext(ctx).Model(&model.OutboxMessage{}).Where("id = ?", id).
		Updates(map[string]any{
			"status":      model.OutboxFailed,
			"last_error":  lastError,
			"retry_count": retryCount,
		}).Error
}

func (r *OutboxRepository) WithTx(tx *gorm.DB) OutboxInterface {
	return &OutboxRepository{db: tx}
}

func toRecords(rows []model.OutboxMessage) []model.OutboxRecord {
	records := make([]model.OutboxRecord, 0, len(rows))
	for _, m := range rows {
		records = append(records, model.OutboxRecord{
			ID:         m.ID,
			TaskID:     m.TaskID,
			Payload:    m.Payload,
			RetryCount: m.RetryCount,
			MaxRetry:   m.MaxRetry,
			CreatedAt:  m.CreatedAt,
		})
	}
	return records
}
