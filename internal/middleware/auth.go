package middleware

import (
	"fetchflow/internal/repository"
	"fetchflow/internal/service"

	"github.com/gin-gonic/gin"
)

// TenantAuthMiddleware authenticates tenant API calls by API key and scopes
// the request context to the resolved tenant.
func TenantAuthMiddleware(repo repository.TenantKeyRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := c.GetHeader("X-Fetch-Key")

		if apiKey == "" {
			c.AbortWithStatusJSON(401, gin.H{"error": "missing API key"})
			return
		}

		tenantID, err := repo.ResolveAPIKey(c.Request.Context(), apiKey)
		if err != nil || tenantID == "" {
			c.AbortWithStatusJSON(403, gin.H{"error": "forbidden"})
			return
		}

		ctx := service.WithTenant(c.Request.Context(), tenantID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
