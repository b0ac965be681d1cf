package service

import (
	"context"
	"time"

	"fetchflow/internal/metrics"
	"fetchflow/pkg/logger"

	"go.uber.org/zap"
)

// RetryResult reports one full retry sweep over an outbox channel.
type RetryResult struct {
	Retried    int `json:"retried"`
	Succeeded  int `json:"succeeded"`
	Failed     int `json:"failed"`
	Iterations int `json:"iterations"`
}

// RetryService re-drives FAILED outbox rows that still have retry budget
// and have aged past the backoff window. One sweep is hard-capped at
// maxIterations batches so a noisy backlog cannot pin the loop.
type RetryService struct {
	name          string
	source        OutboxSource
	publisher     Publisher
	observer      metrics.DispatchObserver
	interval      time.Duration
	batchSize     int
	maxIterations int
	backoff       time.Duration
	now           func() time.Time
}

func NewRetryService(name string, source OutboxSource, publisher Publisher,
	observer metrics.DispatchObserver, interval time.Duration,
	batchSize, maxIterations int, backoff time.Duration) *RetryService {
	return &RetryService{
		name:          name,
		source:        source,
		publisher:     publisher,
		observer:      observer,
		interval:      interval,
		batchSize:     batchSize,
		maxIterations: maxIterations,
		backoff:       backoff,
		now:           time.Now,
	}
}

// Retry performs one sweep. The eligibility cutoff is fixed at sweep
// start so rows failed mid-sweep do not become eligible within it.
func (r *RetryService) Retry(ctx context.Context) (RetryResult, error) {
	var result RetryResult
	before := r.now().Add(-r.backoff)
	for i := 0; i < r.maxIterations; i++ {
		records, err := r.source.FetchRetryable(ctx, before, r.batchSize)
		if err != nil {
			return result, err
		}
		if len(records) == 0 {
			break
		}
		result.Iterations++
		for _, rec := range records {
			result.Retried++
			if err := r.publisher.Publish(ctx, rec); err != nil {
				logger.Warn("outbox retry failed",
					zap.String("channel", r.name),
					zap.Int64("outbox_id", rec.ID),
					zap.Int("retry_count", rec.RetryCount+1),
					zap.Int("max_retry", rec.MaxRetry),
					zap.Error(err))
				if markErr := r.source.MarkFailed(ctx, rec.ID, err.Error(), rec.RetryCount+1); markErr != nil {
					logger.Error("outbox retry bookkeeping error",
						zap.String("channel", r.name),
						zap.Int64("outbox_id", rec.ID),
						zap.Error(markErr))
				}
				result.Failed++
				continue
			}
			if err := r.source.MarkSent(ctx, rec.ID, r.now()); err != nil {
				logger.Error("outbox retry mark sent error",
					zap.String("channel", r.name),
					zap.Int64("outbox_id", rec.ID),
					zap.Error(err))
				result.Failed++
				continue
			}
			result.Succeeded++
		}
		// a short batch means the backlog is drained
		if len(records) < r.batchSize {
			break
		}
	}
	return result, nil
}

// Run sweeps the channel until the context is cancelled.
func (r *RetryService) Run(ctx context.Context) {
	logger.Info("outbox retry loop started",
		zap.String("channel", r.name),
		zap.Duration("interval", r.interval),
		zap.Int("batch_size", r.batchSize),
		zap.Int("max_iterations", r.maxIterations),
		zap.Duration("backoff", r.backoff))
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("outbox retry loop stopped", zap.String("channel", r.name))
			return
		case <-ticker.C:
			result, err := r.Retry(ctx)
			if err != nil {
				logger.Error("outbox retry sweep failed",
					zap.String("channel", r.name), zap.Error(err))
				continue
			}
			if r.observer != nil && result.Retried > 0 {
				r.observer.RecordRetry(r.name, result.Succeeded, result.Failed, result.Iterations)
			}
			if result.Retried > 0 {
				logger.Info("outbox retry sweep finished",
					zap.String("channel", r.name),
					zap.Int("retried", result.Retried),
					zap.Int("succeeded", result.Succeeded),
					zap.Int("failed", result.Failed),
					zap.Int("iterations", result.Iterations))
			}
		}
	}
}
