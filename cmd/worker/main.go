package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"fetchflow/internal/config"
	"fetchflow/internal/fetcher"
	"fetchflow/internal/metrics"
	"fetchflow/internal/queue"
	"fetchflow/internal/repository"
	"fetchflow/internal/service"
	"fetchflow/internal/storage"
	v1 "fetchflow/pkg/api/v1"
	"fetchflow/pkg/logger"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func main() {
	cfg := config.Load()

	logger.InitLogger(cfg.Server.Environment)
	defer logger.Sync()

	if err := run(cfg); err != nil {
		logger.Error("worker startup failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx := context.Background()

	db, err := gorm.Open(mysql.Open(cfg.MySQL.DSN), &gorm.Config{TranslateError: true})
	if err != nil {
		return fmt.Errorf("failed to connect to mysql: %w", err)
	}

	store, err := storage.NewS3Store(ctx, cfg.Storage)
	if err != nil {
		return err
	}

	taskRepo := repository.NewTaskRepository(db)
	webhookRepo := repository.NewWebhookRepository(db)
	transitionRepo := repository.NewTransitionRepository(db)

	observer := metrics.NewPrometheusObserver()
	hub := service.NewHub(cfg.Workers.EventBufferSize, observer)
	go hub.Run(ctx)

	executor := service.NewExecutor(db, taskRepo, webhookRepo, transitionRepo,
		fetcher.NewHTTPFetcher(cfg.Fetch.Timeout, cfg.Fetch.MaxBodyBytes),
		store, hub, cfg.Storage.KeyPrefix, cfg.Webhook.MaxRetry)

	srv := queue.NewServer(cfg.Redis, cfg.Queue)
	mux := asynq.NewServeMux()
	mux.HandleFunc(cfg.Queue.Name, func(ctx context.Context, t *asynq.Task) error {
		var payload v1.QueueTaskPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			logger.Error("malformed queue payload", zap.Error(err))
			return fmt.Errorf("malformed payload: %v: %w", err, asynq.SkipRetry)
		}
		if err := executor.Execute(ctx, payload.TaskID); err != nil {
			if errors.Is(err, service.ErrTaskNotFound) {
				logger.Warn("queued task no longer exists",
					zap.Int64("task_id", payload.TaskID))
				return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
			}
			return err
		}
		return nil
	})

	logger.Info("worker starting",
		zap.String("queue", cfg.Queue.Name),
		zap.Int("concurrency", cfg.Queue.Concurrency))
	return srv.Run(mux)
}
