package service

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"fetchflow/internal/fetcher"
	"fetchflow/internal/model"
	"fetchflow/internal/repository"
	"fetchflow/internal/storage"
	"fetchflow/pkg/logger"

	"github.com/DATA-DOG/go-sqlmock"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func init() {
	logger.InitLogger("test")
}

// newTestDB wires gorm over sqlmock. Repositories in these tests are
// fakes, so transactions only need Begin/Commit expectations.
func newTestDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{SkipDefaultTransaction: true, TranslateError: true})
	if err != nil {
		t.Fatalf("gorm open: %v", err)
	}
	return db, mock
}

type fakeTaskRepo struct {
	mu        sync.Mutex
	nextID    int64
	tasks     map[int64]*model.FetchTask
	stale     []model.FetchTask
	staleCut  time.Time
	saved     []model.FetchTask
	marked    []int64
	createErr error
}

func newFakeTaskRepo() *fakeTaskRepo {
	return &fakeTaskRepo{nextID: 1, tasks: make(map[int64]*model.FetchTask)}
}

func (r *fakeTaskRepo) Create(ctx context.Context, task *model.FetchTask) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	task.ID = r.nextID
	r.nextID++
	cp := *task
	r.tasks[task.ID] = &cp
	return nil
}

func (r *fakeTaskRepo) GetByID(ctx context.Context, id int64) (*model.FetchTask, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[id]
	if !ok {
		return nil, nil
	}
	cp := *task
	return &cp, nil
}

func (r *fakeTaskRepo) GetByIdempotencyKey(ctx context.Context, tenantID, key string) (*model.FetchTask, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, task := range r.tasks {
		if task.TenantID == tenantID && task.IdempotencyKey == key {
			cp := *task
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeTaskRepo) ListByTenant(ctx context.Context, tenantID string, limit, offset int) ([]model.FetchTask, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.FetchTask
	for _, task := range r.tasks {
		if task.TenantID == tenantID {
			out = append(out, *task)
		}
	}
	return out, int64(len(out)), nil
}

func (r *fakeTaskRepo) Save(ctx context.Context, task *model.FetchTask) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *task
	r.tasks[task.ID] = &cp
	r.saved = append(r.saved, cp)
	return nil
}

func (r *fakeTaskRepo) MarkProcessing(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if task, ok := r.tasks[id]; ok {
		task.Status = model.TaskProcessing
	}
	r.marked = append(r.marked, id)
	return nil
}

func (r *fakeTaskRepo) FetchStale(ctx context.Context, before time.Time, limit int) ([]model.FetchTask, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.staleCut = before
	if len(r.stale) > limit {
		return r.stale[:limit], nil
	}
	return r.stale, nil
}

func (r *fakeTaskRepo) PingContext(ctx context.Context) error { return nil }

func (r *fakeTaskRepo) WithTx(tx *gorm.DB) repository.TaskInterface { return r }

type fakeOutboxRepo struct {
	mu      sync.Mutex
	created []model.OutboxMessage
	sent    []int64
	failed  []int64
	pending []model.OutboxRecord
	sentErr error
}

func (r *fakeOutboxRepo) Create(ctx context.Context, msg *model.OutboxMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg.ID = int64(len(r.created) + 1)
	r.created = append(r.created, *msg)
	return nil
}

func (r *fakeOutboxRepo) FetchPending(ctx context.Context, limit int) ([]model.OutboxRecord, error) {
	return r.pending, nil
}

func (r *fakeOutboxRepo) FetchRetryable(ctx context.Context, before time.Time, limit int) ([]model.OutboxRecord, error) {
	return nil, nil
}

func (r *fakeOutboxRepo) MarkSent(ctx context.Context, id int64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sentErr != nil {
		return r.sentErr
	}
	r.sent = append(r.sent, id)
	return nil
}

func (r *fakeOutboxRepo) MarkFailed(ctx context.Context, id int64, lastError string, retryCount int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = append(r.failed, id)
	return nil
}

func (r *fakeOutboxRepo) WithTx(tx *gorm.DB) repository.OutboxInterface { return r }

type fakeWebhookRepo struct {
	mu      sync.Mutex
	created []model.WebhookOutbox
}

func (r *fakeWebhookRepo) Create(ctx context.Context, outbox *model.WebhookOutbox) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	outbox.ID = int64(len(r.created) + 1)
	r.created = append(r.created, *outbox)
	return nil
}

func (r *fakeWebhookRepo) FetchPending(ctx context.Context, limit int) ([]model.OutboxRecord, error) {
	return nil, nil
}

func (r *fakeWebhookRepo) FetchRetryable(ctx context.Context, before time.Time, limit int) ([]model.OutboxRecord, error) {
	return nil, nil
}

func (r *fakeWebhookRepo) MarkSent(ctx context.Context, id int64, at time.Time) error { return nil }

func (r *fakeWebhookRepo) MarkFailed(ctx context.Context, id int64, lastError string, retryCount int) error {
	return nil
}

func (r *fakeWebhookRepo) WithTx(tx *gorm.DB) repository.WebhookInterface { return r }

type fakeTransitionRepo struct {
	mu      sync.Mutex
	created []model.TaskTransition
}

func (r *fakeTransitionRepo) Create(ctx context.Context, tr *model.TaskTransition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tr.ID = int64(len(r.created) + 1)
	r.created = append(r.created, *tr)
	return nil
}

func (r *fakeTransitionRepo) ListByTask(ctx context.Context, taskID int64) ([]model.TaskTransition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.TaskTransition
	for _, tr := range r.created {
		if tr.TaskID == taskID {
			out = append(out, tr)
		}
	}
	return out, nil
}

func (r *fakeTransitionRepo) WithTx(tx *gorm.DB) repository.TransitionInterface { return r }

type fakeEnqueuer struct {
	mu    sync.Mutex
	calls []int64
	err   error
	done  chan int64
}

func newFakeEnqueuer() *fakeEnqueuer {
	return &fakeEnqueuer{done: make(chan int64, 16)}
}

func (q *fakeEnqueuer) Enqueue(ctx context.Context, taskID int64, payload []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.calls = append(q.calls, taskID)
	select {
	case q.done <- taskID:
	default:
	}
	return nil
}

type fakeStore struct {
	mu      sync.Mutex
	objects map[string]int64
	putErr  error
	aborted []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: make(map[string]int64)}
}

func (s *fakeStore) Exists(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[key]
	return ok, nil
}

func (s *fakeStore) Metadata(ctx context.Context, key string) (*storage.ObjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	size, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %s not found", key)
	}
	return &storage.ObjectInfo{Key: key, Size: size}, nil
}

func (s *fakeStore) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	if s.putErr != nil {
		return s.putErr
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = int64(len(data))
	return nil
}

func (s *fakeStore) Abort(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aborted = append(s.aborted, key)
	return nil
}

type fakeFetcher struct {
	body string
	size int64
	err  error
}

func (f *fakeFetcher) Fetch(ctx context.Context, sourceURL string) (*fetcher.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &fetcher.Result{
		Body:        io.NopCloser(strings.NewReader(f.body)),
		Size:        f.size,
		ContentType: "application/octet-stream",
	}, nil
}
