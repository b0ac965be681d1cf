package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"fetchflow/internal/model"
	"fetchflow/internal/repository"
	v1 "fetchflow/pkg/api/v1"
	"fetchflow/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrTaskNotFound     = errors.New("task not found")
	ErrMissingTenant    = errors.New("tenant id is required")
	ErrMissingIdemKey   = errors.New("idempotency key is required")
	ErrInvalidSourceURL = errors.New("source url must be a valid http or https url")
	ErrInvalidCallback  = errors.New("callback url must be a valid http or https url")
)

// CreateTaskCommand is the validated input for task creation.
type CreateTaskCommand struct {
	TenantID       string
	IdempotencyKey string
	SourceURL      string
	CallbackURL    string
	MaxRetry       int
	TraceID        string
}

// TaskService owns the task lifecycle entry points: idempotent creation
// with its transactional outbox bundle, and read paths for the API.
type TaskService struct {
	db          *gorm.DB
	tasks       repository.TaskInterface
	outbox      repository.OutboxInterface
	transitions repository.TransitionInterface
	queue       Enqueuer
	hub         *Hub

	taskMaxRetry   int
	outboxMaxRetry int
	now            func() time.Time
}

func NewTaskService(db *gorm.DB, tasks repository.TaskInterface,
	outbox repository.OutboxInterface, transitions repository.TransitionInterface,
	queue Enqueuer, hub *Hub, taskMaxRetry, outboxMaxRetry int) *TaskService {
	return &TaskService{
		db:             db,
		tasks:          tasks,
		outbox:         outbox,
		transitions:    transitions,
		queue:          queue,
		hub:            hub,
		taskMaxRetry:   taskMaxRetry,
		outboxMaxRetry: outboxMaxRetry,
		now:            time.Now,
	}
}

// CreateTask registers a fetch task. The task row, its creation transition
// and the queue-enqueue outbox row commit in one transaction; the broker
// enqueue happens after commit and is recovered by the dispatcher if it
// is lost. The boolean reports whether a new task was created: a repeated
// idempotency key returns the existing task with created=false.
func (s *TaskService) CreateTask(ctx context.Context, cmd CreateTaskCommand) (*model.FetchTask, bool, error) {
	if err := validateCreate(&cmd); err != nil {
		return nil, false, err
	}

	existing, err := s.tasks.GetByIdempotencyKey(ctx, cmd.TenantID, cmd.IdempotencyKey)
	if err != nil {
		return nil, false, fmt.Errorf("idempotency lookup: %w", err)
	}
	if existing != nil {
		logger.Debug("task creation deduplicated",
			zap.String("tenant_id", cmd.TenantID),
			zap.String("idempotency_key", cmd.IdempotencyKey),
			zap.Int64("task_id", existing.ID))
		return existing, false, nil
	}

	maxRetry := cmd.MaxRetry
	if maxRetry <= 0 {
		maxRetry = s.taskMaxRetry
	}
	task := &model.FetchTask{
		TenantID:       cmd.TenantID,
		IdempotencyKey: cmd.IdempotencyKey,
		SourceURL:      cmd.SourceURL,
		CallbackURL:    cmd.CallbackURL,
		Status:         model.TaskQueued,
		MaxRetry:       maxRetry,
		TraceID:        cmd.TraceID,
	}

	var outboxID int64
	var payload string
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.tasks.WithTx(tx).Create(ctx, task); err != nil {
			return err
		}
		transition := &model.TaskTransition{
			TaskID:     task.ID,
			FromStatus: model.TaskQueued,
			ToStatus:   model.TaskQueued,
			Reason:     "created",
			Actor:      GetOperator(ctx),
			TraceID:    cmd.TraceID,
		}
		if err := s.transitions.WithTx(tx).Create(ctx, transition); err != nil {
			return err
		}
		qp := v1.QueueTaskPayload{
			TaskID:         task.ID,
			TenantID:       task.TenantID,
			IdempotencyKey: task.IdempotencyKey,
			TraceID:        cmd.TraceID,
		}
		payload = qp.ToJSON()
		msg := &model.OutboxMessage{
			TaskID:   task.ID,
			Payload:  payload,
			DedupKey: uuid.NewString(),
			Status:   model.OutboxPending,
			MaxRetry: s.outboxMaxRetry,
		}
		if err := s.outbox.WithTx(tx).Create(ctx, msg); err != nil {
			return err
		}
		outboxID = msg.ID
		return nil
	})
	if err != nil {
		// two callers raced on the same idempotency key: the loser
		// re-reads and returns the winner's task
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			winner, lookupErr := s.tasks.GetByIdempotencyKey(ctx, cmd.TenantID, cmd.IdempotencyKey)
			if lookupErr == nil && winner != nil {
				return winner, false, nil
			}
		}
		return nil, false, fmt.Errorf("create task: %w", err)
	}

	logger.Info("task created",
		zap.Int64("task_id", task.ID),
		zap.String("tenant_id", task.TenantID),
		zap.String("idempotency_key", task.IdempotencyKey),
		zap.String("trace_id", cmd.TraceID))
	s.hub.Notify(v1.TaskEvent{
		TaskID:     task.ID,
		TenantID:   task.TenantID,
		FromStatus: model.TaskStatusName(model.TaskQueued),
		ToStatus:   model.TaskStatusName(model.TaskQueued),
		Reason:     "created",
		OccurredAt: s.now(),
	})

	// fast path: kick the broker now instead of waiting for the
	// dispatcher poll; the outbox row stays PENDING if this fails
	go s.publishCreated(task.ID, outboxID, payload)

	return task, true, nil
}

func (s *TaskService) publishCreated(taskID, outboxID int64, payload string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.queue.Enqueue(ctx, taskID, []byte(payload)); err != nil {
		logger.Warn("post-commit enqueue failed, dispatcher will pick it up",
			zap.Int64("task_id", taskID),
			zap.Int64("outbox_id", outboxID),
			zap.Error(err))
		return
	}
	if err := s.outbox.MarkSent(ctx, outboxID, s.now()); err != nil {
		logger.Warn("post-commit outbox mark sent failed",
			zap.Int64("task_id", taskID),
			zap.Int64("outbox_id", outboxID),
			zap.Error(err))
	}
}

// GetTask returns one task scoped to the tenant.
func (s *TaskService) GetTask(ctx context.Context, tenantID string, id int64) (*model.FetchTask, error) {
	task, err := s.tasks.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if task == nil || (tenantID != "" && task.TenantID != tenantID) {
		return nil, ErrTaskNotFound
	}
	return task, nil
}

// ListTasks returns a page of the tenant's tasks, newest first.
func (s *TaskService) ListTasks(ctx context.Context, tenantID string, limit, offset int) ([]model.FetchTask, int64, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.tasks.ListByTenant(ctx, tenantID, limit, offset)
}

// GetHistory returns the status transition log of one task.
func (s *TaskService) GetHistory(ctx context.Context, tenantID string, id int64) ([]model.TaskTransition, error) {
	if _, err := s.GetTask(ctx, tenantID, id); err != nil {
		return nil, err
	}
	return s.transitions.ListByTask(ctx, id)
}

// Ping verifies database connectivity for the health endpoint.
func (s *TaskService) Ping(ctx context.Context) error {
	return s.tasks.PingContext(ctx)
}

func validateCreate(cmd *CreateTaskCommand) error {
	if cmd.TenantID == "" {
		return ErrMissingTenant
	}
	if cmd.IdempotencyKey == "" {
		return ErrMissingIdemKey
	}
	if !validHTTPURL(cmd.SourceURL) {
		return ErrInvalidSourceURL
	}
	if cmd.CallbackURL != "" && !validHTTPURL(cmd.CallbackURL) {
		return ErrInvalidCallback
	}
	return nil
}

func validHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
