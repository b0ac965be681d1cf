package service

import (
	"context"
	"time"

	"fetchflow/internal/metrics"
	"fetchflow/internal/model"
	"fetchflow/pkg/logger"

	"go.uber.org/zap"
)

// OutboxSource is the persistence side of an outbox channel. Both the
// queue outbox and the webhook outbox repositories satisfy it.
type OutboxSource interface {
	FetchPending(ctx context.Context, limit int) ([]model.OutboxRecord, error)
	FetchRetryable(ctx context.Context, before time.Time, limit int) ([]model.OutboxRecord, error)
	MarkSent(ctx context.Context, id int64, at time.Time) error
	MarkFailed(ctx context.Context, id int64, lastError string, retryCount int) error
}

// Publisher delivers one outbox record to its destination.
type Publisher interface {
	Publish(ctx context.Context, rec model.OutboxRecord) error
}

// DispatchResult reports one batch pass over an outbox channel.
type DispatchResult struct {
	Total   int `json:"total"`
	Success int `json:"success"`
	Failed  int `json:"failed"`
}

// Dispatcher drains PENDING rows from one outbox channel and hands them
// to its publisher. Failures are isolated per row: a record that cannot
// be delivered is marked FAILED and the batch moves on.
type Dispatcher struct {
	name      string
	source    OutboxSource
	publisher Publisher
	observer  metrics.DispatchObserver
	interval  time.Duration
	batchSize int
	now       func() time.Time
}

func NewDispatcher(name string, source OutboxSource, publisher Publisher,
	observer metrics.DispatchObserver, interval time.Duration, batchSize int) *Dispatcher {
	return &Dispatcher{
		name:      name,
		source:    source,
		publisher: publisher,
		observer:  observer,
		interval:  interval,
		batchSize: batchSize,
		now:       time.Now,
	}
}

// ProcessPending performs one bounded batch pass. It never returns early
// because of a single record's failure; the error return covers only the
// fetch itself.
func (d *Dispatcher) ProcessPending(ctx context.Context, batchSize int) (DispatchResult, error) {
	var result DispatchResult
	records, err := d.source.FetchPending(ctx, batchSize)
	if err != nil {
		return result, err
	}
	result.Total = len(records)
	for _, rec := range records {
		if err := d.publisher.Publish(ctx, rec); err != nil {
			logger.Error("outbox publish failed",
				zap.String("channel", d.name),
				zap.Int64("outbox_id", rec.ID),
				zap.Int64("task_id", rec.TaskID),
				zap.Error(err))
			if markErr := d.source.MarkFailed(ctx, rec.ID, err.Error(), rec.RetryCount+1); markErr != nil {
				logger.Error("outbox mark failed error",
					zap.String("channel", d.name),
					zap.Int64("outbox_id", rec.ID),
					zap.Error(markErr))
			}
			result.Failed++
			continue
		}
		if err := d.source.MarkSent(ctx, rec.ID, d.now()); err != nil {
			logger.Error("outbox mark sent error",
				zap.String("channel", d.name),
				zap.Int64("outbox_id", rec.ID),
				zap.Error(err))
			result.Failed++
			continue
		}
		result.Success++
	}
	return result, nil
}

// Run polls the channel until the context is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	logger.Info("outbox dispatcher started",
		zap.String("channel", d.name),
		zap.Duration("interval", d.interval),
		zap.Int("batch_size", d.batchSize))
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("outbox dispatcher stopped", zap.String("channel", d.name))
			return
		case <-ticker.C:
			result, err := d.ProcessPending(ctx, d.batchSize)
			if err != nil {
				logger.Error("outbox fetch failed",
					zap.String("channel", d.name), zap.Error(err))
				continue
			}
			if d.observer != nil && result.Total > 0 {
				d.observer.RecordDispatch(d.name, result.Success, result.Failed)
			}
			if result.Total > 0 {
				logger.Debug("outbox batch dispatched",
					zap.String("channel", d.name),
					zap.Int("total", result.Total),
					zap.Int("success", result.Success),
					zap.Int("failed", result.Failed))
			}
		}
	}
}
