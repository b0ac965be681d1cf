package service

import (
	"context"
	"fmt"
	"time"

	"fetchflow/internal/fetcher"
	"fetchflow/internal/model"
	"fetchflow/internal/repository"
	"fetchflow/internal/storage"
	v1 "fetchflow/pkg/api/v1"
	"fetchflow/pkg/constraints"
	"fetchflow/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Executor runs one fetch task end to end: claim it, stream the source
// into blob storage, and commit the terminal status together with its
// transition row and any webhook notification in one transaction.
type Executor struct {
	db          *gorm.DB
	tasks       repository.TaskInterface
	webhooks    repository.WebhookInterface
	transitions repository.TransitionInterface
	fetcher     fetcher.SourceFetcher
	store       storage.BlobStore
	hub         *Hub

	keyPrefix       string
	webhookMaxRetry int
	now             func() time.Time
}

func NewExecutor(db *gorm.DB, tasks repository.TaskInterface,
	webhooks repository.WebhookInterface, transitions repository.TransitionInterface,
	sourceFetcher fetcher.SourceFetcher, store storage.BlobStore, hub *Hub,
	keyPrefix string, webhookMaxRetry int) *Executor {
	return &Executor{
		db:              db,
		tasks:           tasks,
		webhooks:        webhooks,
		transitions:     transitions,
		fetcher:         sourceFetcher,
		store:           store,
		hub:             hub,
		keyPrefix:       keyPrefix,
		webhookMaxRetry: webhookMaxRetry,
		now:             time.Now,
	}
}

// Execute processes one delivery of a task. Redeliveries are expected:
// a terminal task is acknowledged without work, and a task already in
// PROCESSING is assumed orphaned by a dead worker and is re-run.
func (e *Executor) Execute(ctx context.Context, taskID int64) error {
	task, err := e.tasks.GetByID(ctx, taskID)
	if err != nil {
		return fmt.Errorf("load task %d: %w", taskID, err)
	}
	if task == nil {
		return fmt.Errorf("task %d: %w", taskID, ErrTaskNotFound)
	}
	if task.Terminal() {
		logger.Debug("skipping redelivery of terminal task",
			zap.Int64("task_id", task.ID),
			zap.String("status", model.TaskStatusName(task.Status)))
		return nil
	}

	fromStatus := task.Status
	if err := e.markProcessing(ctx, task); err != nil {
		return fmt.Errorf("mark processing task %d: %w", taskID, err)
	}
	e.notify(task, fromStatus, model.TaskProcessing, "picked up")

	key := e.objectKey(task)
	size, contentType, fetchErr := e.fetchAndStore(ctx, task, key)
	if fetchErr != nil {
		return e.recordFailure(ctx, task, fetchErr)
	}
	return e.recordCompletion(ctx, task, key, size, contentType)
}

func (e *Executor) objectKey(task *model.FetchTask) string {
	return fmt.Sprintf("%s/%s/%d", e.keyPrefix, task.TenantID, task.ID)
}

// fetchAndStore streams the source into storage. A completed upload from
// an earlier attempt is reused instead of downloaded again.
func (e *Executor) fetchAndStore(ctx context.Context, task *model.FetchTask, key string) (int64, string, error) {
	if task.ObjectKey != "" {
		exists, err := e.store.Exists(ctx, task.ObjectKey)
		if err == nil && exists {
			logger.Info("reusing stored object from earlier attempt",
				zap.Int64("task_id", task.ID),
				zap.String("object_key", task.ObjectKey))
			info, metaErr := e.store.Metadata(ctx, task.ObjectKey)
			if metaErr != nil {
				return task.ObjectSize, "", nil
			}
			return info.Size, info.ContentType, nil
		}
	}

	result, err := e.fetcher.Fetch(ctx, task.SourceURL)
	if err != nil {
		return 0, "", fmt.Errorf("fetch source: %w", err)
	}
	defer func() {
		if closeErr := result.Body.Close(); closeErr != nil {
			logger.Warn("source body close failed",
				zap.Int64("task_id", task.ID), zap.Error(closeErr))
		}
	}()

	if err := e.store.Put(ctx, key, result.Body, result.Size, result.ContentType); err != nil {
		return 0, "", fmt.Errorf("store object: %w", err)
	}
	size := result.Size
	if size < 0 {
		if info, metaErr := e.store.Metadata(ctx, key); metaErr == nil {
			size = info.Size
		}
	}
	return size, result.ContentType, nil
}

func (e *Executor) markProcessing(ctx context.Context, task *model.FetchTask) error {
	fromStatus := task.Status
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := e.tasks.WithTx(tx).MarkProcessing(ctx, task.ID); err != nil {
			return err
		}
		return e.transitions.WithTx(tx).Create(ctx, &model.TaskTransition{
			TaskID:     task.ID,
			FromStatus: fromStatus,
			ToStatus:   model.TaskProcessing,
			Reason:     "picked up",
			Actor:      "worker",
			TraceID:    task.TraceID,
		})
	})
	if err != nil {
		return err
	}
	task.Status = model.TaskProcessing
	return nil
}

// recordCompletion commits COMPLETED together with its transition and the
// webhook outbox row, so the caller notification can never be lost once
// the status is visible.
func (e *Executor) recordCompletion(ctx context.Context, task *model.FetchTask, key string, size int64, contentType string) error {
	task.Status = model.TaskCompleted
	task.ObjectKey = key
	task.ObjectSize = size
	task.ErrorMessage = ""

	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := e.tasks.WithTx(tx).Save(ctx, task); err != nil {
			return err
		}
		if err := e.transitions.WithTx(tx).Create(ctx, &model.TaskTransition{
			TaskID:     task.ID,
			FromStatus: model.TaskProcessing,
			ToStatus:   model.TaskCompleted,
			Reason:     "stored",
			Actor:      "worker",
			TraceID:    task.TraceID,
		}); err != nil {
			return err
		}
		return e.createWebhook(ctx, tx, task, constraints.EventTaskCompleted, "")
	})
	if err != nil {
		return fmt.Errorf("record completion task %d: %w", task.ID, err)
	}

	logger.Info("task completed",
		zap.Int64("task_id", task.ID),
		zap.String("tenant_id", task.TenantID),
		zap.String("object_key", key),
		zap.Int64("object_size", size),
		zap.String("content_type", contentType))
	e.notify(task, model.TaskProcessing, model.TaskCompleted, "stored")
	return nil
}

// recordFailure commits FAILED with the retry counter bumped. The failure
// is persisted state, not a handler error, so the delivery is acked; the
// retry loop owns re-driving tasks with remaining budget.
func (e *Executor) recordFailure(ctx context.Context, task *model.FetchTask, cause error) error {
	now := e.now()
	task.Status = model.TaskFailed
	task.RetryCount++
	task.ErrorMessage = cause.Error()
	task.LastRetryAt = &now
	terminal := !task.Retryable()

	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := e.tasks.WithTx(tx).Save(ctx, task); err != nil {
			return err
		}
		if err := e.transitions.WithTx(tx).Create(ctx, &model.TaskTransition{
			TaskID:     task.ID,
			FromStatus: model.TaskProcessing,
			ToStatus:   model.TaskFailed,
			Reason:     cause.Error(),
			Actor:      "worker",
			TraceID:    task.TraceID,
		}); err != nil {
			return err
		}
		if terminal {
			return e.createWebhook(ctx, tx, task, constraints.EventTaskFailed, cause.Error())
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("record failure task %d: %w", task.ID, err)
	}

	logger.Warn("task attempt failed",
		zap.Int64("task_id", task.ID),
		zap.String("tenant_id", task.TenantID),
		zap.Int("retry_count", task.RetryCount),
		zap.Int("max_retry", task.MaxRetry),
		zap.Bool("terminal", terminal),
		zap.Error(cause))
	e.notify(task, model.TaskProcessing, model.TaskFailed, cause.Error())

	if terminal {
		e.abortStorage(task)
	}
	return nil
}

// createWebhook stages the caller notification inside the terminal-status
// transaction. Tasks without a callback URL stage nothing.
func (e *Executor) createWebhook(ctx context.Context, tx *gorm.DB, task *model.FetchTask, event, errorMessage string) error {
	if task.CallbackURL == "" {
		return nil
	}
	payload := v1.WebhookPayload{
		Event:          event,
		TaskID:         task.ID,
		TenantID:       task.TenantID,
		IdempotencyKey: task.IdempotencyKey,
		Status:         model.TaskStatusName(task.Status),
		ObjectKey:      task.ObjectKey,
		ErrorMessage:   errorMessage,
		OccurredAt:     e.now(),
	}
	return e.webhooks.WithTx(tx).Create(ctx, &model.WebhookOutbox{
		TaskID:      task.ID,
		CallbackURL: task.CallbackURL,
		TaskStatus:  task.Status,
		Payload:     payload.ToJSON(),
		Status:      model.OutboxPending,
		MaxRetry:    e.webhookMaxRetry,
	})
}

// abortStorage cleans up interrupted multipart uploads once a task can
// never run again. Best effort, the object may not exist at all.
func (e *Executor) abortStorage(task *model.FetchTask) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	key := task.ObjectKey
	if key == "" {
		key = e.objectKey(task)
	}
	if err := e.store.Abort(ctx, key); err != nil {
		logger.Warn("storage abort failed",
			zap.Int64("task_id", task.ID),
			zap.String("object_key", key),
			zap.Error(err))
	}
}

func (e *Executor) notify(task *model.FetchTask, from, to int, reason string) {
	e.hub.Notify(v1.TaskEvent{
		TaskID:     task.ID,
		TenantID:   task.TenantID,
		FromStatus: model.TaskStatusName(from),
		ToStatus:   model.TaskStatusName(to),
		Reason:     reason,
		OccurredAt: e.now(),
	})
}
