package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"fetchflow/internal/model"
)

// scriptedSource feeds predefined batches and records bookkeeping calls.
type scriptedSource struct {
	mu      sync.Mutex
	batches [][]model.OutboxRecord
	cursor  int
	sent    []int64
	failed  []int64
	counts  []int
	lastCut time.Time
}

func (s *scriptedSource) next() []model.OutboxRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cursor >= len(s.batches) {
		return nil
	}
	batch := s.batches[s.cursor]
	s.cursor++
	return batch
}

func (s *scriptedSource) FetchPending(ctx context.Context, limit int) ([]model.OutboxRecord, error) {
	return s.next(), nil
}

func (s *scriptedSource) FetchRetryable(ctx context.Context, before time.Time, limit int) ([]model.OutboxRecord, error) {
	s.mu.Lock()
	s.lastCut = before
	s.mu.Unlock()
	return s.next(), nil
}

func (s *scriptedSource) MarkSent(ctx context.Context, id int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, id)
	return nil
}

func (s *scriptedSource) MarkFailed(ctx context.Context, id int64, lastError string, retryCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed = append(s.failed, id)
	s.counts = append(s.counts, retryCount)
	return nil
}

// flakyPublisher fails exactly the record ids in failIDs.
type flakyPublisher struct {
	mu        sync.Mutex
	failIDs   map[int64]bool
	published []int64
}

func (p *flakyPublisher) Publish(ctx context.Context, rec model.OutboxRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failIDs[rec.ID] {
		return errors.New("downstream unavailable")
	}
	p.published = append(p.published, rec.ID)
	return nil
}

func records(ids ...int64) []model.OutboxRecord {
	out := make([]model.OutboxRecord, 0, len(ids))
	for _, id := range ids {
		out = append(out, model.OutboxRecord{ID: id, TaskID: id * 10, Payload: "{}", MaxRetry: 5})
	}
	return out
}

func TestDispatcher_FaultIsolation(t *testing.T) {
	source := &scriptedSource{batches: [][]model.OutboxRecord{records(1, 2, 3)}}
	publisher := &flakyPublisher{failIDs: map[int64]bool{2: true}}
	d := NewDispatcher("queue", source, publisher, nil, time.Second, 50)

	result, err := d.ProcessPending(context.Background(), 50)
	if err != nil {
		t.Fatalf("ProcessPending: %v", err)
	}
	if result.Total != 3 || result.Success != 2 || result.Failed != 1 {
		t.Errorf("expected total=3 success=2 failed=1, got %+v", result)
	}
	if len(publisher.published) != 2 {
		t.Errorf("siblings of a failed record must still publish, got %v", publisher.published)
	}
	if len(source.failed) != 1 || source.failed[0] != 2 {
		t.Errorf("record 2 should be marked failed, got %v", source.failed)
	}
	if len(source.counts) != 1 || source.counts[0] != 1 {
		t.Errorf("a failed publish must charge the retry budget, got counts %v", source.counts)
	}
	if len(source.sent) != 2 {
		t.Errorf("records 1 and 3 should be marked sent, got %v", source.sent)
	}
}

func TestDispatcher_NothingPending(t *testing.T) {
	source := &scriptedSource{}
	d := NewDispatcher("queue", source, &flakyPublisher{}, nil, time.Second, 50)

	result, err := d.ProcessPending(context.Background(), 50)
	if err != nil {
		t.Fatalf("ProcessPending: %v", err)
	}
	if result.Total != 0 || result.Success != 0 || result.Failed != 0 {
		t.Errorf("empty channel should be a no-op, got %+v", result)
	}
}

func TestDispatcher_MarkSentFailureCounts(t *testing.T) {
	source := &scriptedSource{batches: [][]model.OutboxRecord{records(1)}}
	d := NewDispatcher("queue", &failingMarkSource{scriptedSource: source}, &flakyPublisher{}, nil, time.Second, 50)

	result, err := d.ProcessPending(context.Background(), 50)
	if err != nil {
		t.Fatalf("ProcessPending: %v", err)
	}
	if result.Failed != 1 || result.Success != 0 {
		t.Errorf("a published but unmarkable record counts failed, got %+v", result)
	}
}

type failingMarkSource struct {
	*scriptedSource
}

func (s *failingMarkSource) MarkSent(ctx context.Context, id int64, at time.Time) error {
	return errors.New("db gone")
}
