package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"fetchflow/internal/dto/resp"
	"fetchflow/internal/service"
	"fetchflow/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type DispatchRunner interface {
	ProcessPending(ctx context.Context, batchSize int) (service.DispatchResult, error)
}

type RetryRunner interface {
	Retry(ctx context.Context) (service.RetryResult, error)
}

type RecoveryRunner interface {
	RecoverStale(ctx context.Context, threshold time.Duration, batchSize int) (service.DispatchResult, error)
}

// AdminHandler exposes the scheduled loops for manual operation: an
// operator can force a dispatch, retry or recovery pass and gets the
// pass counters back.
type AdminHandler struct {
	tasks       TaskProvider
	dispatchers map[string]DispatchRunner
	retriers    map[string]RetryRunner
	recovery    RecoveryRunner

	staleThreshold    time.Duration
	dispatchBatchSize int
	recoveryBatchSize int
}

func NewAdminHandler(tasks TaskProvider, dispatchers map[string]DispatchRunner,
	retriers map[string]RetryRunner, recovery RecoveryRunner,
	staleThreshold time.Duration, dispatchBatchSize, recoveryBatchSize int) *AdminHandler {
	return &AdminHandler{
		tasks:             tasks,
		dispatchers:       dispatchers,
		retriers:          retriers,
		recovery:          recovery,
		staleThreshold:    staleThreshold,
		dispatchBatchSize: dispatchBatchSize,
		recoveryBatchSize: recoveryBatchSize,
	}
}

func (h *AdminHandler) TriggerDispatch(c *gin.Context) {
	channel := c.Param("channel")
	runner, ok := h.dispatchers[channel]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown channel"})
		return
	}

	result, err := runner.ProcessPending(c.Request.Context(), h.dispatchBatchSize)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	logger.Info("manual dispatch triggered",
		zap.String("channel", channel),
		zap.String("operator", service.GetOperator(c.Request.Context())),
		zap.Int("total", result.Total))
	c.JSON(http.StatusOK, result)
}

func (h *AdminHandler) TriggerRetry(c *gin.Context) {
	channel := c.Param("channel")
	runner, ok := h.retriers[channel]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown channel"})
		return
	}

	result, err := runner.Retry(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	logger.Info("manual retry triggered",
		zap.String("channel", channel),
		zap.String("operator", service.GetOperator(c.Request.Context())),
		zap.Int("retried", result.Retried))
	c.JSON(http.StatusOK, result)
}

func (h *AdminHandler) TriggerRecovery(c *gin.Context) {
	result, err := h.recovery.RecoverStale(c.Request.Context(), h.staleThreshold, h.recoveryBatchSize)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	logger.Info("manual recovery triggered",
		zap.String("operator", service.GetOperator(c.Request.Context())),
		zap.Int("total", result.Total))
	c.JSON(http.StatusOK, result)
}

// GetTask is the cross-tenant task view for operators.
func (h *AdminHandler) GetTask(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid task id"})
		return
	}

	task, err := h.tasks.GetTask(c.Request.Context(), "", id)
	if err != nil {
		if errors.Is(err, service.ErrTaskNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, resp.GetTaskResponse{TaskItem: resp.NewTaskItem(task)})
}
