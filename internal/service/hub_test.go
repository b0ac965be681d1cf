package service

import (
	"context"
	"testing"
	"time"

	v1 "fetchflow/pkg/api/v1"
)

func collect(t *testing.T, c *Client, n int) []v1.TaskEvent {
	t.Helper()
	out := make([]v1.TaskEvent, 0, n)
	for len(out) < n {
		select {
		case ev := <-c.Send:
			out = append(out, ev)
		case <-time.After(time.Second):
			t.Fatalf("timed out after %d of %d events", len(out), n)
		}
	}
	return out
}

func TestHub_SequencesAndReplays(t *testing.T) {
	hub := NewHub(16, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	client := &Client{Send: make(chan v1.TaskEvent, 16)}
	hub.Register(client)

	for i := 0; i < 3; i++ {
		hub.Notify(v1.TaskEvent{TaskID: int64(i + 1), TenantID: "t1"})
	}

	events := collect(t, client, 3)
	for i, ev := range events {
		if ev.Seq != int64(i+1) {
			t.Errorf("event %d has seq %d, want %d", i, ev.Seq, i+1)
		}
	}

	// replay from the middle
	replay, ok := hub.EventsSince(1)
	if !ok {
		t.Fatal("buffer should cover seq 1")
	}
	if len(replay) != 2 || replay[0].Seq != 2 || replay[1].Seq != 3 {
		t.Errorf("expected replay of seq 2 and 3, got %+v", replay)
	}

	hub.Unregister(client)
}

func TestHub_TenantScoping(t *testing.T) {
	hub := NewHub(16, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	admin := &Client{Send: make(chan v1.TaskEvent, 16)}
	tenant := &Client{Send: make(chan v1.TaskEvent, 16), TenantID: "t1"}
	hub.Register(admin)
	hub.Register(tenant)

	hub.Notify(v1.TaskEvent{TaskID: 1, TenantID: "t1"})
	hub.Notify(v1.TaskEvent{TaskID: 2, TenantID: "t2"})

	adminEvents := collect(t, admin, 2)
	if len(adminEvents) != 2 {
		t.Errorf("admin watcher sees all tenants, got %d events", len(adminEvents))
	}

	tenantEvents := collect(t, tenant, 1)
	if tenantEvents[0].TenantID != "t1" {
		t.Errorf("tenant watcher got foreign event %+v", tenantEvents[0])
	}
	select {
	case ev := <-tenant.Send:
		t.Errorf("tenant watcher must not receive %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_NilSafeNotify(t *testing.T) {
	var hub *Hub
	hub.Notify(v1.TaskEvent{TaskID: 1})
}
