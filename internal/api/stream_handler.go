package api

import (
	"io"
	"strconv"

	"fetchflow/internal/service"
	v1 "fetchflow/pkg/api/v1"
	"fetchflow/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// StreamHandler serves the live task event feed over SSE.
type StreamHandler struct {
	hub *service.Hub
}

func NewStreamHandler(hub *service.Hub) *StreamHandler {
	return &StreamHandler{hub: hub}
}

// DashboardWatch streams all task transitions to an operator console.
// Events missed since last_seq are replayed first; when the replay window
// no longer covers last_seq the client is told to resync from the API.
func (h *StreamHandler) DashboardWatch(c *gin.Context) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("Access-Control-Allow-Origin", "*")

	operator := service.GetOperator(c.Request.Context())
	logger.Info("dashboard client connected",
		zap.String("operator", operator),
		zap.String("ip", c.ClientIP()),
	)

	var lastSeq int64
	if v := c.Query("last_seq"); v != "" {
		lastSeq, _ = strconv.ParseInt(v, 10, 64)
	}

	client := &service.Client{
		Send: make(chan v1.TaskEvent, 128),
	}

	h.hub.Register(client)
	defer h.hub.Unregister(client)

	maxSentSeq := lastSeq
	if lastSeq > 0 {
		events, ok := h.hub.EventsSince(lastSeq)
		if !ok {
			c.SSEvent("reset", "seq_too_old")
		} else {
			for _, ev := range events {
				c.SSEvent("message", ev)
				maxSentSeq = ev.Seq
			}
		}
	}

	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-client.Send:
			if !ok {
				return false
			}
			// filter replayed duplicates
			if ev.Seq <= maxSentSeq {
				return true
			}
			c.SSEvent("message", ev)
			maxSentSeq = ev.Seq
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
