package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fetchflow/internal/api"
	"fetchflow/internal/config"
	"fetchflow/internal/lock"
	"fetchflow/internal/metrics"
	"fetchflow/internal/model"
	"fetchflow/internal/queue"
	"fetchflow/internal/repository"
	"fetchflow/internal/service"
	"fetchflow/internal/storage"
	"fetchflow/internal/webhook"
	"fetchflow/pkg/logger"

	"github.com/redis/go-redis/v9"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

const (
	channelQueue   = "queue"
	channelWebhook = "webhook"
)

func main() {
	// 1. Load Configuration
	cfg := config.Load()

	// Initialize logger
	logger.InitLogger(cfg.Server.Environment)
	defer logger.Sync()

	if err := run(cfg); err != nil {
		logger.Error("application startup failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	// 2. Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Initialize Infrastructure
	rdb, err := initRedis(cfg.Redis)
	if err != nil {
		return err
	}
	defer rdb.Close()

	etcdCli, err := initEtcd(cfg.Etcd)
	if err != nil {
		return err
	}
	defer etcdCli.Close()

	db, err := initDB(cfg.MySQL)
	if err != nil {
		return err
	}

	store, err := storage.NewS3Store(ctx, cfg.Storage)
	if err != nil {
		return err
	}

	taskQueue := queue.New(cfg.Redis, cfg.Queue)
	defer taskQueue.Close()

	// 4. Initialize Repositories
	taskRepo := repository.NewTaskRepository(db)
	outboxRepo := repository.NewOutboxRepository(db)
	webhookRepo := repository.NewWebhookRepository(db)
	transitionRepo := repository.NewTransitionRepository(db)
	tenantKeyRepo := repository.NewTenantKeyStore(db)

	// 5. Initialize Services
	observer := metrics.NewPrometheusObserver()
	hub := service.NewHub(cfg.Workers.EventBufferSize, observer)

	taskSvc := service.NewTaskService(db, taskRepo, outboxRepo, transitionRepo,
		taskQueue, hub, cfg.Fetch.TaskMaxRetry, cfg.Workers.OutboxMaxRetry)
	authSvc := service.NewAuthService(rdb, []byte(cfg.Auth.SignedKey),
		cfg.Auth.AdminUsername, cfg.Auth.AdminPassword,
		cfg.Auth.AccessTokenTTL, cfg.Auth.RefreshTokenTTL)

	// 6. Initialize & Start Workers (Background Tasks)
	queueDispatcher := service.NewDispatcher(channelQueue, outboxRepo,
		service.NewQueuePublisher(taskQueue), observer,
		cfg.Workers.DispatchInterval, cfg.Workers.DispatchBatchSize)
	webhookDispatcher := service.NewDispatcher(channelWebhook, webhookRepo,
		service.NewWebhookPublisher(webhook.NewHTTPSender(cfg.Webhook.Timeout)), observer,
		cfg.Workers.DispatchInterval, cfg.Workers.DispatchBatchSize)

	queueRetry := service.NewRetryService(channelQueue, outboxRepo,
		service.NewQueuePublisher(taskQueue), observer,
		cfg.Workers.RetryInterval, cfg.Workers.RetryBatchSize,
		cfg.Workers.RetryMaxIterations, cfg.Workers.RetryBackoff)
	webhookRetry := service.NewRetryService(channelWebhook, webhookRepo,
		service.NewWebhookPublisher(webhook.NewHTTPSender(cfg.Webhook.Timeout)), observer,
		cfg.Workers.RetryInterval, cfg.Workers.RetryBatchSize,
		cfg.Workers.RetryMaxIterations, cfg.Workers.RetryBackoff)

	recoverySvc := service.NewRecoveryService(db, taskRepo, webhookRepo, transitionRepo,
		taskQueue, store, lock.NewEtcdLocker(etcdCli), observer, hub,
		cfg.Workers.RecoveryInterval, cfg.Workers.StaleThreshold,
		cfg.Workers.RecoveryLockLease, cfg.Workers.RecoveryBatchSize,
		cfg.Webhook.MaxRetry)

	// Start background routines
	go queueDispatcher.Run(ctx)
	go webhookDispatcher.Run(ctx)
	go queueRetry.Run(ctx)
	go webhookRetry.Run(ctx)
	go recoverySvc.Run(ctx)
	go hub.Run(ctx)

	// 7. Setup HTTP Server
	adminHandler := api.NewAdminHandler(taskSvc,
		map[string]api.DispatchRunner{
			channelQueue:   queueDispatcher,
			channelWebhook: webhookDispatcher,
		},
		map[string]api.RetryRunner{
			channelQueue:   queueRetry,
			channelWebhook: webhookRetry,
		},
		recoverySvc,
		cfg.Workers.StaleThreshold, cfg.Workers.DispatchBatchSize,
		cfg.Workers.RecoveryBatchSize)

	r := api.RegisterRoutes(
		api.NewTaskHandler(taskSvc),
		adminHandler,
		api.NewStreamHandler(hub),
		api.NewAuthHandler(authSvc),
		tenantKeyRepo,
		rdb,
		[]byte(cfg.Auth.SignedKey),
		cfg.RateLimit.RequestsPerSecond,
	)

	srv := &http.Server{
		Addr:    cfg.Server.Port,
		Handler: r,
	}

	// 8. Start Server
	go func() {
		logger.Info("server starting",
			zap.String("addr", cfg.Server.Port),
			zap.String("env", cfg.Server.Environment))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server listen failed", zap.Error(err))
		}
	}()

	// 9. Graceful Shutdown Signal Wait
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server...")

	// Create a deadline to wait for current requests to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// Signal all workers to stop
	cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server exited properly")
	return nil
}

// -- Infrastructure Initializers --

func initRedis(cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return rdb, nil
}

func initEtcd(cfg config.EtcdConfig) (*clientv3.Client, error) {
	client, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: cfg.DialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to etcd: %w", err)
	}
	return client, nil
}

func initDB(cfg config.MySQLConfig) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(cfg.DSN), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mysql: %w", err)
	}

	// Simple auto-migrate for dev convenience
	// In production, you might want to use a proper migration tool like golang-migrate
	err = db.AutoMigrate(
		&model.FetchTask{},
		&model.OutboxMessage{},
		&model.WebhookOutbox{},
		&model.TaskTransition{},
		&model.TenantKey{},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return db, nil
}
