package repository

import (
	"context"
	"time"

	"fetchflow/internal/model"

	"gorm.io/gorm"
)

// WebhookInterface mirrors OutboxInterface for callback notifications. The
// record's Target carries the callback URL.
type WebhookInterface interface {
	Create(ctx context.Context, outbox *model.WebhookOutbox) error
	FetchPending(ctx context.Context, limit int) ([]model.OutboxRecord, error)
	FetchRetryable(ctx context.Context, before time.Time, limit int) ([]model.OutboxRecord, error)
	MarkSent(ctx context.Context, id int64, at time.Time) error
	MarkFailed(ctx context.Context, id int64, lastError string, retryCount int) error
	WithTx(tx *gorm.DB) WebhookInterface
}

type WebhookRepository struct {
	db *gorm.DB
}

func NewWebhookRepository(db *gorm.DB) *WebhookRepository {
	return &WebhookRepository{db: db}
}

func (r *WebhookRepository) Create(ctx context.Context, outbox *model.WebhookOutbox) error {
	return r.db.WithContext(ctx).Create(outbox).Error
}

func (r *WebhookRepository) FetchPending(ctx context.Context, limit int) ([]model.OutboxRecord, error) {
	var rows []model.WebhookOutbox
	err := r.db.WithContext(ctx).
		Where("status = ?", model.OutboxPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toWebhookRecords(rows), nil
}

func (r *WebhookRepository) FetchRetryable(ctx context.Context, before time.Time, limit int) ([]model.OutboxRecord, error) {
	var rows []model.WebhookOutbox
	err := r.db.WithContext(ctx).
		Where("status = ? AND retry_count < max_retry AND created_at < ?", model.OutboxFailed, before).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toWebhookRecords(rows), nil
}

func (r *WebhookRepository) MarkSent(ctx context.Context, id int64, at time.Time) error {
	return r.db.WithContext(ctx).Model(&model.WebhookOutbox{}).Where("id = ?", id).
		Updates(map[string]any{
			"status":  model.OutboxSent,
			"sent_at": at,
		}).Error
}

func (r *WebhookRepository) MarkFailed(ctx context.Context, id int64, lastError string, retryCount int) error {
	return r.db.WithContext(ctx).Model(&model.WebhookOutbox{}).Where("id = ?", id).
		Updates(map[string]any{
			"status":      model.OutboxFailed,
			"last_error":  lastError,
			"retry_count": retryCount,
		}).Error
}

func (r *WebhookRepository) WithTx(tx *gorm.DB) WebhookInterface {
	return &WebhookRepository{db: tx}
}

func toWebhookRecords(rows []model.WebhookOutbox) []model.OutboxRecord {
	records := make([]model.OutboxRecord, 0, len(rows))
	for _, m := range rows {
		records = append(records, model.OutboxRecord{
			ID:         m.ID,
			TaskID:     m.TaskID,
			Payload:    m.Payload,
			Target:     m.CallbackURL,
			RetryCount: m.RetryCount,
			MaxRetry:   m.MaxRetry,
			CreatedAt:  m.CreatedAt,
		})
	}
	return records
}
