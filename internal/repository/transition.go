package repository

import (
	"context"

	"fetchflow/internal/model"

	"gorm.io/gorm"
)

// TransitionInterface defines the interface for the task status history log
type TransitionInterface interface {
	Create(ctx context.Context, transition *model.TaskTransition) error
	ListByTask(ctx context.Context, taskID int64) ([]model.TaskTransition, error)
	WithTx(tx *gorm.DB) TransitionInterface
}

type TransitionRepository struct {
	db *gorm.DB
}

func NewTransitionRepository(db *gorm.DB) *TransitionRepository {
	return &TransitionRepository{db: db}
}

func (r *TransitionRepository) Create(ctx context.Context, transition *model.TaskTransition) error {
	return r.db.WithContext(ctx).Create(transition).Error
}

func (r *TransitionRepository) ListByTask(ctx context.Context, taskID int64) ([]model.TaskTransition, error) {
	var transitions []model.TaskTransition
	err := r.db.WithContext(ctx).
		Where("task_id = ?", taskID).
		Order("id ASC").
		Find(&transitions).Error
	return transitions, err
}

func (r *TransitionRepository) WithTx(tx *gorm.DB) TransitionInterface {
	return &TransitionRepository{db: tx}
}
