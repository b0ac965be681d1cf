package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"fetchflow/internal/model"
)

type fakeLocker struct {
	mu       sync.Mutex
	held     bool
	acquired int
	released int
	deny     bool
}

func (l *fakeLocker) TryAcquire(ctx context.Context, key string, lease time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.deny {
		return false, nil
	}
	l.held = true
	l.acquired++
	return true, nil
}

func (l *fakeLocker) Release(ctx context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held = false
	l.released++
	return nil
}

func (l *fakeLocker) IsHeld(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held
}

func TestRecoverStale_RequeuesRetryable(t *testing.T) {
	db, mock := newTestDB(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	tasks := newFakeTaskRepo()
	tasks.stale = []model.FetchTask{{
		ID:             5,
		TenantID:       "t1",
		IdempotencyKey: "k5",
		Status:         model.TaskProcessing,
		RetryCount:     1,
		MaxRetry:       3,
	}}
	enqueuer := newFakeEnqueuer()
	transitions := &fakeTransitionRepo{}

	svc := NewRecoveryService(db, tasks, &fakeWebhookRepo{}, transitions,
		enqueuer, newFakeStore(), &fakeLocker{}, nil, nil,
		time.Second, 10*time.Minute, time.Minute, 100, 2)

	result, err := svc.RecoverStale(context.Background(), 10*time.Minute, 100)
	if err != nil {
		t.Fatalf("RecoverStale: %v", err)
	}
	if result.Total != 1 || result.Success != 1 {
		t.Errorf("expected one recovered task, got %+v", result)
	}
	if len(enqueuer.calls) != 1 || enqueuer.calls[0] != 5 {
		t.Errorf("expected task 5 re-enqueued, got %v", enqueuer.calls)
	}
	if len(transitions.created) != 1 || transitions.created[0].Reason != "requeued by recovery" {
		t.Errorf("expected a requeue transition, got %+v", transitions.created)
	}
}

func TestRecoverStale_StalenessCutoff(t *testing.T) {
	db, _ := newTestDB(t)
	tasks := newFakeTaskRepo()

	svc := NewRecoveryService(db, tasks, &fakeWebhookRepo{}, &fakeTransitionRepo{},
		newFakeEnqueuer(), newFakeStore(), &fakeLocker{}, nil, nil,
		time.Second, 10*time.Minute, time.Minute, 100, 2)

	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	if _, err := svc.RecoverStale(context.Background(), 10*time.Minute, 100); err != nil {
		t.Fatalf("RecoverStale: %v", err)
	}
	want := fixed.Add(-10 * time.Minute)
	if !tasks.staleCut.Equal(want) {
		t.Errorf("staleness cutoff should be now minus threshold, got %v want %v",
			tasks.staleCut, want)
	}
}

func TestRecoverStale_FailsExhaustedProcessing(t *testing.T) {
	db, mock := newTestDB(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	tasks := newFakeTaskRepo()
	tasks.stale = []model.FetchTask{{
		ID:             9,
		TenantID:       "t1",
		IdempotencyKey: "k9",
		CallbackURL:    "https://example.com/hook",
		ObjectKey:      "fetchflow/t1/9",
		Status:         model.TaskProcessing,
		RetryCount:     3,
		MaxRetry:       3,
	}}
	enqueuer := newFakeEnqueuer()
	webhooks := &fakeWebhookRepo{}
	store := newFakeStore()

	svc := NewRecoveryService(db, tasks, webhooks, &fakeTransitionRepo{},
		enqueuer, store, &fakeLocker{}, nil, nil,
		time.Second, 10*time.Minute, time.Minute, 100, 2)

	result, err := svc.RecoverStale(context.Background(), 10*time.Minute, 100)
	if err != nil {
		t.Fatalf("RecoverStale: %v", err)
	}
	if result.Success != 1 {
		t.Errorf("resolving an exhausted task counts as success, got %+v", result)
	}
	if len(enqueuer.calls) != 0 {
		t.Error("exhausted task must not be re-enqueued")
	}
	if len(tasks.saved) != 1 || tasks.saved[0].Status != model.TaskFailed {
		t.Errorf("task should be saved FAILED, got %+v", tasks.saved)
	}
	if len(webhooks.created) != 1 {
		t.Fatalf("terminal failure with a callback must stage a webhook, got %d", len(webhooks.created))
	}
	if webhooks.created[0].TaskStatus != model.TaskFailed {
		t.Error("webhook snapshot should carry FAILED")
	}
	if len(store.aborted) != 1 || store.aborted[0] != "fetchflow/t1/9" {
		t.Errorf("expected storage abort for the task object, got %v", store.aborted)
	}
}

func TestRecoverStale_QueuedWithoutBudgetStillRequeued(t *testing.T) {
	// A QUEUED task never started running, so exhausted budget does not
	// apply; only orphaned PROCESSING tasks fail terminally.
	db, mock := newTestDB(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	tasks := newFakeTaskRepo()
	tasks.stale = []model.FetchTask{{
		ID:         3,
		TenantID:   "t1",
		Status:     model.TaskQueued,
		RetryCount: 3,
		MaxRetry:   3,
	}}
	enqueuer := newFakeEnqueuer()

	svc := NewRecoveryService(db, tasks, &fakeWebhookRepo{}, &fakeTransitionRepo{},
		enqueuer, newFakeStore(), &fakeLocker{}, nil, nil,
		time.Second, 10*time.Minute, time.Minute, 100, 2)

	if _, err := svc.RecoverStale(context.Background(), 10*time.Minute, 100); err != nil {
		t.Fatalf("RecoverStale: %v", err)
	}
	if len(enqueuer.calls) != 1 {
		t.Errorf("queued task should be re-enqueued, got %v", enqueuer.calls)
	}
}

func TestRecoveryRunOnce_SkipsWhenLockHeld(t *testing.T) {
	tasks := newFakeTaskRepo()
	tasks.stale = []model.FetchTask{{ID: 1, Status: model.TaskQueued, MaxRetry: 3}}
	enqueuer := newFakeEnqueuer()
	locker := &fakeLocker{deny: true}

	svc := NewRecoveryService(nil, tasks, &fakeWebhookRepo{}, &fakeTransitionRepo{},
		enqueuer, newFakeStore(), locker, nil, nil,
		time.Second, 10*time.Minute, time.Minute, 100, 2)

	svc.runOnce(context.Background())

	if len(enqueuer.calls) != 0 {
		t.Error("a denied lock must skip the sweep entirely")
	}
	if locker.released != 0 {
		t.Error("nothing to release when the lock was never acquired")
	}
}
