package buffer

import (
	"sync"
	"testing"

	v1 "fetchflow/pkg/api/v1"
	"fetchflow/pkg/logger"
)

func init() {
	logger.InitLogger("test")
}

func TestEventBuffer_Lifecycle(t *testing.T) {
	// Size 3
	buf := NewEventBuffer(3)

	// 1. Empty buffer check
	events, ok := buf.GetSince(0)
	if !ok || len(events) != 0 {
		t.Error("Empty buffer should return empty slice and ok=true")
	}

	// 2. Fill buffer [1, 2, 3]
	buf.Add(v1.TaskEvent{Seq: 1})
	buf.Add(v1.TaskEvent{Seq: 2})
	buf.Add(v1.TaskEvent{Seq: 3})

	events, ok = buf.GetSince(0)
	if !ok || len(events) != 3 {
		t.Errorf("GetSince(0) with seq starting at 1 should replay all, got ok=%v len=%d", ok, len(events))
	}

	// 3. Wrap around: add 4. Buffer logical: [2, 3, 4]
	buf.Add(v1.TaskEvent{Seq: 4})

	// 4. Seq 1 rolled out, watcher at 0 needs a resync
	_, ok = buf.GetSince(0)
	if ok {
		t.Error("GetSince(0) should fail once seq 1 rolled out")
	}

	// 5. Valid partial get (> 2 -> [3, 4])
	events, ok = buf.GetSince(2)
	if !ok {
		t.Fatal("GetSince(2) should be valid")
	}
	if len(events) != 2 || events[0].Seq != 3 || events[1].Seq != 4 {
		t.Errorf("Expected [3, 4], got %+v", events)
	}

	// 6. Up to date (> 4 -> [])
	events, ok = buf.GetSince(4)
	if !ok || len(events) != 0 {
		t.Errorf("GetSince(4) should return empty and ok=true, got ok=%v len=%d", ok, len(events))
	}
}

func TestEventBuffer_BoundaryContinuity(t *testing.T) {
	buf := NewEventBuffer(3)
	buf.Add(v1.TaskEvent{Seq: 5})
	buf.Add(v1.TaskEvent{Seq: 6})

	// lastSeq 4 is exactly one before the oldest buffered seq, the
	// history chain is unbroken
	events, ok := buf.GetSince(4)
	if !ok || len(events) != 2 {
		t.Errorf("GetSince(4) should replay [5, 6], got ok=%v len=%d", ok, len(events))
	}

	// lastSeq 3 leaves a gap before 5
	if _, ok := buf.GetSince(3); ok {
		t.Error("GetSince(3) has a gap and must force a resync")
	}
}

func TestEventBuffer_ConcurrentAccess(t *testing.T) {
	buf := NewEventBuffer(64)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; i <= 500; i++ {
			buf.Add(v1.TaskEvent{Seq: int64(i)})
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			buf.GetSince(int64(i))
		}
	}()

	wg.Wait()
}
