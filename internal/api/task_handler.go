package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"fetchflow/internal/dto/req"
	"fetchflow/internal/dto/resp"
	"fetchflow/internal/model"
	"fetchflow/internal/service"

	"github.com/gin-gonic/gin"
)

type TaskProvider interface {
	CreateTask(ctx context.Context, cmd service.CreateTaskCommand) (*model.FetchTask, bool, error)
	GetTask(ctx context.Context, tenantID string, id int64) (*model.FetchTask, error)
	ListTasks(ctx context.Context, tenantID string, limit, offset int) ([]model.FetchTask, int64, error)
	GetHistory(ctx context.Context, tenantID string, id int64) ([]model.TaskTransition, error)
	Ping(ctx context.Context) error
}

type TaskHandler struct {
	service TaskProvider
}

func NewTaskHandler(service TaskProvider) *TaskHandler {
	return &TaskHandler{service: service}
}

func (h *TaskHandler) CreateTask(c *gin.Context) {
	var r req.CreateTaskRequest
	if err := c.ShouldBindJSON(&r); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "JSON format error"})
		return
	}

	cmd := service.CreateTaskCommand{
		TenantID:       service.GetTenant(c.Request.Context()),
		IdempotencyKey: r.IdempotencyKey,
		SourceURL:      r.SourceURL,
		CallbackURL:    r.CallbackURL,
		MaxRetry:       r.MaxRetry,
		TraceID:        c.GetString("TraceID"),
	}
	task, created, err := h.service.CreateTask(c.Request.Context(), cmd)
	if err != nil {
		if isValidationError(err) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, resp.CreateTaskResponse{
		TaskItem: resp.NewTaskItem(task),
		Created:  created,
	})
}

func (h *TaskHandler) GetTask(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid task id"})
		return
	}

	task, err := h.service.GetTask(c.Request.Context(), service.GetTenant(c.Request.Context()), id)
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

func (h *TaskHandler) ListTasks(c *gin.Context) {
	var r req.ListTasksRequest
	if err := c.ShouldBindQuery(&r); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid params"})
		return
	}

	tasks, total, err := h.service.ListTasks(c.Request.Context(), service.GetTenant(c.Request.Context()), r.Limit, r.Offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	items := make([]resp.TaskItem, 0, len(tasks))
	for i := range tasks {
		items = append(items, *resp.NewTaskItem(&tasks[i]))
	}
	c.JSON(http.StatusOK, resp.ListTasksResponse{Data: items, Total: total})
}

func (h *TaskHandler) GetTaskHistory(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid task id"})
		return
	}

	transitions, err := h.service.GetHistory(c.Request.Context(), service.GetTenant(c.Request.Context()), id)
	if err != nil {
		if errors.Is(err, service.ErrTaskNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	items := make([]resp.TransitionItem, 0, len(transitions))
	for i := range transitions {
		items = append(items, resp.NewTransitionItem(&transitions[i]))
	}
	c.JSON(http.StatusOK, resp.TaskHistoryResponse{Data: items})
}

func (h *TaskHandler) HealthCheck(c *gin.Context) {
	if err := h.service.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func isValidationError(err error) bool {
	return errors.Is(err, service.ErrMissingTenant) ||
		errors.Is(err, service.ErrMissingIdemKey) ||
		errors.Is(err, service.ErrInvalidSourceURL) ||
		errors.Is(err, service.ErrInvalidCallback)
}
