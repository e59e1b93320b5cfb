package queue

import (
	"context"
	"errors"
	"sync"
)

// MemoryQueue executes jobs inline on Enqueue. It backs tests and local
// single-process setups where losing fire-and-forget semantics is an
// acceptable trade for determinism.
type MemoryQueue struct {
	mu        sync.Mutex
	handler   Handler
	exhausted ExhaustedFunc
	enqueued  int
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, job Job) error {
	q.mu.Lock()
	handler, exhausted := q.handler, q.exhausted
	q.enqueued++
	q.mu.Unlock()
	if handler == nil {
		return errors.New("memory queue has no subscriber")
	}
	run(ctx, job, handler, exhausted)
	return nil
}

func (q *MemoryQueue) Subscribe(handler Handler, exhausted ExhaustedFunc) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handler = handler
	q.exhausted = exhausted
	return nil
}

func (q *MemoryQueue) Close() error { return nil }

// Enqueued reports how many jobs have been submitted; tests use it to
// assert the dedup short-circuit skipped the queue.
func (q *MemoryQueue) Enqueued() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.enqueued
}
