package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"
)

const keyPrefix = "/fetchflow/locks/"

// Locker is a distributed mutual-exclusion primitive with zero wait time and
// a bounded lease: TryAcquire fails fast when another instance holds the key,
// and the lease expires on its own if the holder crashes. Acquisition is
// re-entrant within one process.
type Locker interface {
	TryAcquire(ctx context.Context, key string, lease time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
	IsHeld(key string) bool
}

type heldLock struct {
	session *concurrency.Session
	mutex   *concurrency.Mutex
	count   int
}

// EtcdLocker backs Locker with etcd concurrency sessions. The session TTL is
// the lease: a crashed holder's lock vanishes when its lease lapses.
type EtcdLocker struct {
	client *clientv3.Client

	mu   sync.Mutex
	held map[string]*heldLock
}

func NewEtcdLocker(client *clientv3.Client) *EtcdLocker {
	return &EtcdLocker{
		client: client,
		held:   make(map[string]*heldLock),
	}
}

func (l *EtcdLocker) TryAcquire(ctx context.Context, key string, lease time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if h, ok := l.held[key]; ok {
		h.count++
		return true, nil
	}

	ttl := int(lease.Seconds())
	if ttl < 1 {
		ttl = 1
	}
	session, err := concurrency.NewSession(l.client, concurrency.WithTTL(ttl))
	if err != nil {
		return false, err
	}

	mutex := concurrency.NewMutex(session, keyPrefix+key)
	if err := mutex.TryLock(ctx); err != nil {
		session.Close()
		if errors.Is(err, concurrency.ErrLocked) {
			return false, nil
		}
		return false, err
	}

	l.held[key] = &heldLock{session: session, mutex: mutex, count: 1}
	return true, nil
}

func (l *EtcdLocker) Release(ctx context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	h, ok := l.held[key]
	if !ok {
		return nil
	}
	h.count--
	if h.count > 0 {
		return nil
	}

	delete(l.held, key)
	err := h.mutex.Unlock(ctx)
	h.session.Close()
	return err
}

func (l *EtcdLocker) IsHeld(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.held[key]
	return ok
}
