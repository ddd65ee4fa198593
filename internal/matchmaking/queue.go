// Package matchmaking pairs players waiting for a random opponent. Pools are
// FIFO per variant and category, and pairing is a single atomic step so two
// players can never both be handed the same opponent.
package matchmaking

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/atc-pixel/yks-arena-sub001/internal/engine"
)

var ErrAlreadyQueued = errors.New("already queued")

type Entry struct {
	UID        string         `json:"uid"`
	Category   string         `json:"category"`
	Variant    engine.Variant `json:"variant"`
	EnqueuedAt time.Time      `json:"enqueuedAt"`
}

func (e Entry) pool() string { return string(e.Variant) + ":" + e.Category }

// Queue is the waiting room. Implementations must make PairOrEnqueue atomic.
type Queue interface {
	// PairOrEnqueue pops the oldest entry of e's pool, or appends e when the
	// pool is empty and reports its 1-based position.
	PairOrEnqueue(ctx context.Context, e Entry) (opponent Entry, paired bool, position int, err error)
	// PushFront puts an entry back at the head of its pool.
	PushFront(ctx context.Context, e Entry) error
	Remove(ctx context.Context, uid string) (bool, error)
	Contains(ctx context.Context, uid string) (bool, error)
}

type MemoryQueue struct {
	mu      sync.Mutex
	pools   map[string][]Entry
	members map[string]string
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		pools:   make(map[string][]Entry),
		members: make(map[string]string),
	}
}

func (q *MemoryQueue) PairOrEnqueue(_ context.Context, e Entry) (Entry, bool, int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.members[e.UID]; ok {
		return Entry{}, false, 0, ErrAlreadyQueued
	}

	key := e.pool()
	if pool := q.pools[key]; len(pool) > 0 {
		head := pool[0]
		q.pools[key] = pool[1:]
		delete(q.members, head.UID)
		return head, true, 0, nil
	}

	q.pools[key] = append(q.pools[key], e)
	q.members[e.UID] = key
	return Entry{}, false, len(q.pools[key]), nil
}

func (q *MemoryQueue) PushFront(_ context.Context, e Entry) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.members[e.UID]; ok {
		return nil
	}
	key := e.pool()
	q.pools[key] = append([]Entry{e}, q.pools[key]...)
	q.members[e.UID] = key
	return nil
}

func (q *MemoryQueue) Remove(_ context.Context, uid string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	key, ok := q.members[uid]
	if !ok {
		return false, nil
	}
	delete(q.members, uid)
	q.pools[key] = slices.DeleteFunc(q.pools[key], func(e Entry) bool { return e.UID == uid })
	return true, nil
}

func (q *MemoryQueue) Contains(_ context.Context, uid string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.members[uid]
	return ok, nil
}
