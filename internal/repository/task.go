package repository

import (
	"context"
	"errors"
	"time"

	"fetchflow/internal/model"

	"gorm.io/gorm"
)

// TaskInterface defines persistence for fetch tasks. Lookups that miss
// return (nil, nil) so callers can distinguish absence from infrastructure
// failure.
type TaskInterface interface {
	Create(ctx context.Context, task *model.FetchTask) error
	GetByID(ctx context.Context, id int64) (*model.FetchTask, error)
	GetByIdempotencyKey(ctx context.Context, tenantID, key string) (*model.FetchTask, error)
	ListByTenant(ctx context.Context, tenantID string, limit, offset int) ([]model.FetchTask, int64, error)
	Save(ctx context.Context, task *model.FetchTask) error
	MarkProcessing(ctx context.Context, id int64) error
	FetchStale(ctx context.Context, before time.Time, limit int) ([]model.FetchTask, error)
	PingContext(ctx context.Context) error
	WithTx(tx *gorm.DB) TaskInterface
}

type TaskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

func (r *TaskRepository) Create(ctx context.Context, task *model.FetchTask) error {
	return r.db.WithContext(ctx).Create(task).Error
}

func (r *TaskRepository) GetByID(ctx context.Context, id int64) (*model.FetchTask, error) {
	var task model.FetchTask
	if err := r.db.WithContext(ctx).First(&task, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &task, nil
}

func (r *TaskRepository) GetByIdempotencyKey(ctx context.Context, tenantID, key string) (*model.FetchTask, error) {
	var task model.FetchTask
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND idempotency_key = ?", tenantID, key).
		First(&task).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &task, nil
}

func (r *TaskRepository) ListByTenant(ctx context.Context, tenantID string, limit, offset int) ([]model.FetchTask, int64, error) {
	var tasks []model.FetchTask
	var total int64

	db := r.db.WithContext(ctx).Model(&model.FetchTask{}).Where("tenant_id = ?", tenantID)
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := db.Order("id DESC").Limit(limit).Offset(offset).Find(&tasks).Error; err != nil {
		return nil, 0, err
	}
	return tasks, total, nil
}

func (r *TaskRepository) Save(ctx context.Context, task *model.FetchTask) error {
	return r.db.WithContext(ctx).Save(task).Error
}

func (r *TaskRepository) MarkProcessing(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Model(&model.FetchTask{}).Where("id = ?", id).
		Update("status", model.TaskProcessing).Error
}

// FetchStale returns non-terminal tasks whose last activity is older than
// before, oldest first. These are presumed orphaned by a dead worker.
func (r *TaskRepository) FetchStale(ctx context.Context, before time.Time, limit int) ([]model.FetchTask, error) {
	var tasks []model.FetchTask
	err := r.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?", []int{model.TaskQueued, model.TaskProcessing}, before).
		Order("updated_at ASC").
		Limit(limit).
		Find(&tasks).Error
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

func (r *TaskRepository) PingContext(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (r *TaskRepository) WithTx(tx *gorm.DB) TaskInterface {
	return &TaskRepository{db: tx}
}
