package buffer

import (
	"sort"
	"sync"

	v1 "fetchflow/pkg/api/v1"
)

// EventBuffer is a fixed-size ring of task events ordered by sequence
// number, used to replay recent history to reconnecting watchers.
type EventBuffer struct {
	mu     sync.RWMutex
	events []v1.TaskEvent
	size   int
	head   int
	isFull bool
}

func NewEventBuffer(size int) *EventBuffer {
	if size <= 0 {
		size = 1000
	}
	return &EventBuffer{
		events: make([]v1.TaskEvent, size),
		size:   size,
	}
}

func (b *EventBuffer) Add(ev v1.TaskEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.events[b.head] = ev
	b.head = (b.head + 1) % b.size
	if b.head == 0 {
		b.isFull = true
	}
}

// GetSince returns events with Seq > lastSeq. The second return value is
// false when lastSeq has already rolled out of the ring and the watcher
// needs a full resync.
func (b *EventBuffer) GetSince(lastSeq int64) ([]v1.TaskEvent, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	count := b.head
	start := 0
	if b.isFull {
		count = b.size
		start = b.head
	}

	if count == 0 {
		return nil, true
	}

	oldestSeq := b.events[start].Seq
	if lastSeq < oldestSeq-1 {
		return nil, false
	}

	idx := sort.Search(count, func(i int) bool {
		physIdx := (start + i) % b.size
		return b.events[physIdx].Seq > lastSeq
	})
	if idx == count {
		return nil, true
	}

	result := make([]v1.TaskEvent, 0, count-idx)
	for i := idx; i < count; i++ {
		physIdx := (start + i) % b.size
		result = append(result, b.events[physIdx])
	}
	return result, true
}
