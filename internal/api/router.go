package api

import (
	"fetchflow/internal/metrics"
	"fetchflow/internal/middleware"
	"fetchflow/internal/repository"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

func RegisterRoutes(taskHandler *TaskHandler, adminHandler *AdminHandler,
	streamHandler *StreamHandler, authHandler *AuthHandler,
	tenantKeys repository.TenantKeyRepository, rdb *redis.Client,
	signedKey []byte, requestsPerSecond int) *gin.Engine {
	r := gin.New()

	// Global Middleware
	r.Use(
		middleware.CorsMiddleware(),
		middleware.RequestID(),
		middleware.GinZapLogger(),
		middleware.GinZapRecovery(),
		middleware.HttpMiddleware(),
		middleware.TraceMiddleware(),
	)
	r.SetTrustedProxies(nil)

	// Public Routes
	r.GET("/health", taskHandler.HealthCheck)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	// Auth Routes (Public)
	auth := r.Group("/v1/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
	}

	// Auth Routes (Protected)
	authProtected := r.Group("/v1/auth")
	authProtected.Use(middleware.JWTMiddleware(true, signedKey))
	{
		authProtected.GET("/me", authHandler.GetProfile)
		authProtected.POST("/logout", authHandler.Logout)
	}

	// Tenant Routes (Protected by API Key)
	writeLimiter := middleware.RateLimitMiddleware(rdb, requestsPerSecond)

	tenant := r.Group("/v1")
	tenant.Use(middleware.TenantAuthMiddleware(tenantKeys))
	{
		tenant.POST("/tasks", writeLimiter, taskHandler.CreateTask)
		tenant.GET("/tasks", taskHandler.ListTasks)
		tenant.GET("/tasks/:id", taskHandler.GetTask)
		tenant.GET("/tasks/:id/history", taskHandler.GetTaskHistory)
	}

	// Operator Routes (Control Plane)
	// Enable Dev-Pass=true for debugging
	admin := r.Group("/v1/admin")
	admin.Use(middleware.JWTMiddleware(true, signedKey))
	{
		admin.GET("/stream", streamHandler.DashboardWatch)
		admin.GET("/tasks/:id", adminHandler.GetTask)
		admin.POST("/dispatch/:channel", adminHandler.TriggerDispatch)
		admin.POST("/retry/:channel", adminHandler.TriggerRetry)
		admin.POST("/recover", adminHandler.TriggerRecovery)
	}
	return r
}
