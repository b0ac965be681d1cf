package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// TraceHeader carries the request trace ID; callers may supply their own,
// otherwise one is generated so the ID can be stamped onto created tasks.
const TraceHeader = "X-Trace-ID"

func TraceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader(TraceHeader)
		if traceID == "" {
			traceID = uuid.NewString()
		}
		c.Set("TraceID", traceID)
		c.Writer.Header().Set(TraceHeader, traceID)
		c.Next()
	}
}
