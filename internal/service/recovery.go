package service

import (
	"context"
	"time"

	"fetchflow/internal/lock"
	"fetchflow/internal/metrics"
	"fetchflow/internal/model"
	"fetchflow/internal/repository"
	"fetchflow/internal/storage"
	v1 "fetchflow/pkg/api/v1"
	"fetchflow/pkg/constraints"
	"fetchflow/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const recoveryLockKey = "recovery"

// RecoveryService reclaims tasks that stopped making progress: QUEUED rows
// whose enqueue was lost and PROCESSING rows orphaned by a dead worker.
// Tasks with budget left are re-enqueued; exhausted ones are failed
// terminally. The scheduled run is guarded by a distributed lock so only
// one instance sweeps at a time.
type RecoveryService struct {
	db          *gorm.DB
	tasks       repository.TaskInterface
	webhooks    repository.WebhookInterface
	transitions repository.TransitionInterface
	queue       Enqueuer
	store       storage.BlobStore
	locker      lock.Locker
	observer    metrics.DispatchObserver
	hub         *Hub

	interval        time.Duration
	threshold       time.Duration
	lockLease       time.Duration
	batchSize       int
	webhookMaxRetry int
	now             func() time.Time
}

func NewRecoveryService(db *gorm.DB, tasks repository.TaskInterface,
	webhooks repository.WebhookInterface, transitions repository.TransitionInterface,
	queue Enqueuer, store storage.BlobStore, locker lock.Locker,
	observer metrics.DispatchObserver, hub *Hub,
	interval, threshold, lockLease time.Duration, batchSize, webhookMaxRetry int) *RecoveryService {
	return &RecoveryService{
		db:              db,
		tasks:           tasks,
		webhooks:        webhooks,
		transitions:     transitions,
		queue:           queue,
		store:           store,
		locker:          locker,
		observer:        observer,
		hub:             hub,
		interval:        interval,
		threshold:       threshold,
		lockLease:       lockLease,
		batchSize:       batchSize,
		webhookMaxRetry: webhookMaxRetry,
		now:             time.Now,
	}
}

// RecoverStale performs one bounded sweep, oldest stall first. One task's
// failure never aborts the batch.
func (s *RecoveryService) RecoverStale(ctx context.Context, threshold time.Duration, batchSize int) (DispatchResult, error) {
	var result DispatchResult
	before := s.now().Add(-threshold)
	stale, err := s.tasks.FetchStale(ctx, before, batchSize)
	if err != nil {
		return result, err
	}
	result.Total = len(stale)
	for i := range stale {
		task := &stale[i]
		if task.Status == model.TaskProcessing && !task.Retryable() {
			if err := s.failExhausted(ctx, task); err != nil {
				logger.Error("recovery terminal fail error",
					zap.Int64("task_id", task.ID), zap.Error(err))
				result.Failed++
				continue
			}
			result.Success++
			continue
		}
		if err := s.requeue(ctx, task); err != nil {
			logger.Error("recovery requeue error",
				zap.Int64("task_id", task.ID), zap.Error(err))
			result.Failed++
			continue
		}
		result.Success++
	}
	return result, nil
}

// requeue re-issues the queue message for a stalled task. Enqueue dedups
// by task id, so a message that is still sitting in the queue is a no-op.
// The task row is touched so the next sweep does not pick it up again.
func (s *RecoveryService) requeue(ctx context.Context, task *model.FetchTask) error {
	payload := v1.QueueTaskPayload{
		TaskID:         task.ID,
		TenantID:       task.TenantID,
		IdempotencyKey: task.IdempotencyKey,
		TraceID:        task.TraceID,
	}
	if err := s.queue.Enqueue(ctx, task.ID, []byte(payload.ToJSON())); err != nil {
		return err
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.tasks.WithTx(tx).Save(ctx, task); err != nil {
			return err
		}
		return s.transitions.WithTx(tx).Create(ctx, &model.TaskTransition{
			TaskID:     task.ID,
			FromStatus: task.Status,
			ToStatus:   task.Status,
			Reason:     "requeued by recovery",
			Actor:      "recovery",
			TraceID:    task.TraceID,
		})
	})
	if err != nil {
		return err
	}
	logger.Info("stale task requeued",
		zap.Int64("task_id", task.ID),
		zap.String("status", model.TaskStatusName(task.Status)),
		zap.Int("retry_count", task.RetryCount))
	s.hub.Notify(v1.TaskEvent{
		TaskID:     task.ID,
		TenantID:   task.TenantID,
		FromStatus: model.TaskStatusName(task.Status),
		ToStatus:   model.TaskStatusName(task.Status),
		Reason:     "requeued by recovery",
		OccurredAt: s.now(),
	})
	return nil
}

// failExhausted terminally fails an orphaned task that has no budget left
// and stages the caller notification in the same transaction.
func (s *RecoveryService) failExhausted(ctx context.Context, task *model.FetchTask) error {
	fromStatus := task.Status
	task.Status = model.TaskFailed
	task.ErrorMessage = "worker lost and retry budget exhausted"

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.tasks.WithTx(tx).Save(ctx, task); err != nil {
			return err
		}
		if err := s.transitions.WithTx(tx).Create(ctx, &model.TaskTransition{
			TaskID:     task.ID,
			FromStatus: fromStatus,
			ToStatus:   model.TaskFailed,
			Reason:     task.ErrorMessage,
			Actor:      "recovery",
			TraceID:    task.TraceID,
		}); err != nil {
			return err
		}
		if task.CallbackURL == "" {
			return nil
		}
		payload := v1.WebhookPayload{
			Event:          constraints.EventTaskFailed,
			TaskID:         task.ID,
			TenantID:       task.TenantID,
			IdempotencyKey: task.IdempotencyKey,
			Status:         model.TaskStatusName(model.TaskFailed),
			ErrorMessage:   task.ErrorMessage,
			OccurredAt:     s.now(),
		}
		return s.webhooks.WithTx(tx).Create(ctx, &model.WebhookOutbox{
			TaskID:      task.ID,
			CallbackURL: task.CallbackURL,
			TaskStatus:  model.TaskFailed,
			Payload:     payload.ToJSON(),
			Status:      model.OutboxPending,
			MaxRetry:    s.webhookMaxRetry,
		})
	})
	if err != nil {
		return err
	}

	logger.Warn("stale task failed terminally",
		zap.Int64("task_id", task.ID),
		zap.String("tenant_id", task.TenantID),
		zap.Int("retry_count", task.RetryCount))
	s.hub.Notify(v1.TaskEvent{
		TaskID:     task.ID,
		TenantID:   task.TenantID,
		FromStatus: model.TaskStatusName(fromStatus),
		ToStatus:   model.TaskStatusName(model.TaskFailed),
		Reason:     task.ErrorMessage,
		OccurredAt: s.now(),
	})

	s.abortStorage(task)
	return nil
}

func (s *RecoveryService) abortStorage(task *model.FetchTask) {
	if s.store == nil || task.ObjectKey == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.store.Abort(ctx, task.ObjectKey); err != nil {
		logger.Warn("recovery storage abort failed",
			zap.Int64("task_id", task.ID),
			zap.String("object_key", task.ObjectKey),
			zap.Error(err))
	}
}

// Run sweeps on a ticker. When another instance holds the lock the tick
// is skipped without waiting.
func (s *RecoveryService) Run(ctx context.Context) {
	logger.Info("recovery loop started",
		zap.Duration("interval", s.interval),
		zap.Duration("threshold", s.threshold),
		zap.Int("batch_size", s.batchSize))
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("recovery loop stopped")
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *RecoveryService) runOnce(ctx context.Context) {
	acquired, err := s.locker.TryAcquire(ctx, recoveryLockKey, s.lockLease)
	if err != nil {
		logger.Error("recovery lock acquire failed", zap.Error(err))
		return
	}
	if !acquired {
		logger.Debug("recovery lock held elsewhere, skipping sweep")
		return
	}
	defer func() {
		if err := s.locker.Release(ctx, recoveryLockKey); err != nil {
			logger.Warn("recovery lock release failed", zap.Error(err))
		}
	}()

	result, err := s.RecoverStale(ctx, s.threshold, s.batchSize)
	if err != nil {
		logger.Error("recovery sweep failed", zap.Error(err))
		return
	}
	if s.observer != nil && result.Total > 0 {
		s.observer.RecordRecovery(result.Success, result.Failed)
	}
	if result.Total > 0 {
		logger.Info("recovery sweep finished",
			zap.Int("total", result.Total),
			zap.Int("success", result.Success),
			zap.Int("failed", result.Failed))
	}
}
