// Package queue buffers audit entries between request handlers and the writers.
//
// Enqueue never blocks: a full or closed queue refuses the entry and the
// caller counts it as dropped.
package queue

import (
	"context"
	"sync"

	"github.com/okian/stark/internal/domain/audit"
	"github.com/okian/stark/pkg/metrics"
)

const defaultQueueCapacity = 1024

// Entry is the payload type flowing through the queue.
type Entry = audit.Entry

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds an entry. Returns false if the queue is full or closed.
	Enqueue(ctx context.Context, e Entry) bool

	// Dequeue returns a channel that receives entries as they become available.
	// The channel is closed once the queue is closed and drained, or ctx ends.
	Dequeue(ctx context.Context) <-chan Entry

	// Len returns the current number of queued entries.
	Len() int

	// Close stops accepting entries. Buffered entries remain readable.
	Close() error

	// IsClosed returns true if the queue has been closed.
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	entries  chan Entry
	capacity int
	mu       sync.RWMutex
	closed   bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultQueueCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.entries = make(chan Entry, q.capacity)

	metrics.UpdateAuditQueueCapacity(q.capacity)
	metrics.UpdateAuditQueueSize(0)

	return q
}

// Enqueue adds an entry to the queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, e Entry) bool { //nolint:gocritic // hugeParam: Entry is passed by value for channel semantics
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordAuditDropped()
		metrics.RecordErrorByComponent("audit_queue", "closed")
		return false
	}
	if err := ctx.Err(); err != nil {
		metrics.RecordAuditDropped()
		metrics.RecordErrorByComponent("audit_queue", "context_cancelled")
		return false
	}

	select {
	case q.entries <- e:
		metrics.RecordAuditEnqueued()
		metrics.UpdateAuditQueueSize(len(q.entries))
		return true
	default:
		metrics.RecordAuditDropped()
		metrics.RecordErrorByComponent("audit_queue", "queue_full")
		return false
	}
}

// Dequeue returns a channel that will receive entries as they become available.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan Entry {
	out := make(chan Entry)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-q.entries:
				if !ok {
					return
				}
				select {
				case out <- e:
					metrics.UpdateAuditQueueSize(len(q.entries))
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// Len returns the current number of queued entries.
func (q *InMemoryQueue) Len() int {
	size := len(q.entries)
	metrics.UpdateAuditQueueSize(size)
	return size
}

// Close stops accepting entries.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.entries)
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
