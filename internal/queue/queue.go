package queue

import (
	"context"
	"errors"
	"fmt"

	"fetchflow/internal/config"

	"github.com/hibiken/asynq"
)

// Queue wraps the asynq client for enqueueing task ids onto the broker. The
// asynq TaskID option carries the fetch task id, so publishing the same
// outbox row twice (crash between publish and status mark) collapses into
// one queued task.
type Queue struct {
	client   *asynq.Client
	name     string
	maxRetry int
}

func New(cfg config.RedisConfig, queueCfg config.QueueConfig) *Queue {
	opt := asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	return &Queue{
		client:   asynq.NewClient(opt),
		name:     queueCfg.Name,
		maxRetry: queueCfg.MaxRetry,
	}
}

// Enqueue publishes one task id. A TaskID conflict means the task is already
// queued and is treated as success.
func (q *Queue) Enqueue(ctx context.Context, taskID int64, payload []byte) error {
	task := asynq.NewTask(q.name, payload,
		asynq.TaskID(fmt.Sprintf("task:%d", taskID)),
		asynq.Queue(q.name),
	)
	_, err := q.client.EnqueueContext(ctx, task, asynq.MaxRetry(q.maxRetry))
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
			return nil
		}
		return err
	}
	return nil
}

func (q *Queue) Close() error {
	return q.client.Close()
}

// NewServer builds the consumer-side asynq server for cmd/worker.
func NewServer(cfg config.RedisConfig, queueCfg config.QueueConfig) *asynq.Server {
	opt := asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	return asynq.NewServer(opt, asynq.Config{
		Concurrency: queueCfg.Concurrency,
		Queues:      map[string]int{queueCfg.Name: 1},
	})
}
