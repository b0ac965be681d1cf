package service

import (
	"context"

	"fetchflow/internal/buffer"
	"fetchflow/internal/metrics"
	v1 "fetchflow/pkg/api/v1"
	"fetchflow/pkg/logger"

	"go.uber.org/zap"
)

// Client is a single event stream subscriber. TenantID scopes the events
// the client receives; empty means all tenants (admin watch).
type Client struct {
	Send     chan v1.TaskEvent
	TenantID string
}

// Hub fans task lifecycle events out to connected watchers and keeps a
// bounded replay window so reconnecting clients can catch up by sequence.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan v1.TaskEvent
	register   chan *Client
	unregister chan *Client
	buffer     *buffer.EventBuffer
	observer   metrics.HubObserver
	nextSeq    int64
}

func NewHub(bufferSize int, observer metrics.HubObserver) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan v1.TaskEvent, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		buffer:     buffer.NewEventBuffer(bufferSize),
		observer:   observer,
		nextSeq:    1,
	}
}

func (h *Hub) Register(c *Client)   { h.register <- c }
func (h *Hub) Unregister(c *Client) { h.unregister <- c }

// Notify queues an event for broadcast. Nil-safe so services can run
// without a hub; drops the event when the broadcast queue is saturated.
func (h *Hub) Notify(ev v1.TaskEvent) {
	if h == nil {
		return
	}
	select {
	case h.broadcast <- ev:
	default:
		logger.Warn("event hub broadcast queue full, dropping event",
			zap.Int64("task_id", ev.TaskID))
	}
}

// EventsSince returns buffered events after lastSeq. ok=false means the
// window no longer covers lastSeq and the client must resync from the DB.
func (h *Hub) EventsSince(lastSeq int64) ([]v1.TaskEvent, bool) {
	return h.buffer.GetSince(lastSeq)
}

// Run owns the client set and the sequence counter. Events are stamped
// and buffered here so ordering is consistent across all watchers.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				close(c.Send)
				delete(h.clients, c)
			}
			return
		case c := <-h.register:
			h.clients[c] = true
			if h.observer != nil {
				h.observer.IncOnline()
			}
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.Send)
				if h.observer != nil {
					h.observer.DecOnline()
				}
			}
		case ev := <-h.broadcast:
			ev.Seq = h.nextSeq
			h.nextSeq++
			h.buffer.Add(ev)
			for c := range h.clients {
				if c.TenantID != "" && c.TenantID != ev.TenantID {
					continue
				}
				select {
				case c.Send <- ev:
					if h.observer != nil {
						h.observer.RecordPush()
					}
				default:
					// slow consumer, skip rather than stall the hub
				}
			}
		}
	}
}
