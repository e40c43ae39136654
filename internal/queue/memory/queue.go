// Package memory provides the in-process archive task queue.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/radikoarchive/radiko-archiver/internal/catalog"
)

// ErrClosed is returned by Dequeue once the queue is closed and drained.
var ErrClosed = errors.New("queue closed")

// Queue is a bounded in-memory queue with context-aware operations. A
// capacity of zero makes every Enqueue wait for a ready consumer.
type Queue struct {
	ch      chan catalog.Program
	closeMu sync.Mutex
	closed  bool
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	if capacity < 0 {
		capacity = 0
	}
	return &Queue{
		ch: make(chan catalog.Program, capacity),
	}
}

// Enqueue pushes a program into the queue or returns if the context ends.
func (q *Queue) Enqueue(ctx context.Context, p catalog.Program) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- p:
		return nil
	}
}

// Dequeue pops the next program, respecting context cancellation.
func (q *Queue) Dequeue(ctx context.Context) (catalog.Program, error) {
	select {
	case <-ctx.Done():
		return catalog.Program{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case p, ok := <-q.ch:
		if !ok {
			return catalog.Program{}, ErrClosed
		}
		return p, nil
	}
}

// Close closes the underlying channel for shutdown.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
