// Package worker drains the audit queue into the audit store.
package worker

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/stark/internal/adapters/mq/queue"
	"github.com/okian/stark/pkg/logger"
	"github.com/okian/stark/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultWorkerCount  = 2
	defaultWriteTimeout = 5 * time.Second
)

// Writer persists audit entries.
type Writer interface {
	InsertAudit(ctx context.Context, e queue.Entry) error
}

// Queue defines how workers receive entries.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Entry
}

// InMemoryWorker writes entries read off the queue, one at a time.
type InMemoryWorker struct {
	queue        Queue
	writer       Writer
	name         string
	writeTimeout time.Duration

	done chan struct{}

	written atomic.Int64
	failed  atomic.Int64

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, writer Writer, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:        q,
		writer:       writer,
		name:         "audit-worker",
		writeTimeout: defaultWriteTimeout,
		done:         make(chan struct{}),
		logger:       logger.Get().Named("audit-worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run consumes entries until the queue is closed and drained or ctx ends.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	for e := range w.queue.Dequeue(ctx) {
		if err := w.write(ctx, e); err != nil {
			w.logger.Error(ctx, "audit write failed",
				logger.String("worker", w.name),
				logger.String("entry_id", e.ID),
				logger.String("action", string(e.Action)),
				logger.Error(err),
			)
		}
	}
}

// Done is closed once Run returns.
func (w *InMemoryWorker) Done() <-chan struct{} {
	return w.done
}

func (w *InMemoryWorker) write(ctx context.Context, e queue.Entry) error { //nolint:gocritic // hugeParam: Entry is passed by value for channel semantics
	wctx, cancel := context.WithTimeout(ctx, w.writeTimeout)
	defer cancel()

	if err := w.writer.InsertAudit(wctx, e); err != nil {
		w.failed.Add(1)
		metrics.RecordAuditWriteError()
		metrics.RecordErrorByComponent("audit_worker", "write_error")
		return fmt.Errorf("insert audit %s: %w", e.ID, err)
	}
	w.written.Add(1)
	metrics.RecordAuditWritten()
	return nil
}

// Pool manages multiple workers over one queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   queue.Queue

	startOnce sync.Once
	cancel    context.CancelFunc

	logger logger.Logger
}

// NewPool creates a pool of workerCount workers draining q into writer.
func NewPool(workerCount int, q queue.Queue, writer Writer, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = defaultWorkerCount
	}

	p := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   q,
		logger:  logger.Get().Named("audit-pool"),
	}
	for i := 0; i < workerCount; i++ {
		wopts := append([]Option{WithName("audit-worker-" + strconv.Itoa(i))}, opts...)
		p.workers[i] = NewInMemoryWorker(q, writer, wopts...)
	}
	return p
}

// Start launches every worker. Calling it again has no effect.
func (p *Pool) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		ctx, p.cancel = context.WithCancel(ctx)
		for _, w := range p.workers {
			go w.Run(ctx)
		}
		metrics.UpdateAuditWorkers(len(p.workers))
	})
}

// Shutdown closes the queue and waits for the workers to drain it. When ctx
// ends first, in-flight writes are cancelled and the remaining entries lost.
func (p *Pool) Shutdown(ctx context.Context) error {
	if err := p.queue.Close(); err != nil {
		p.logger.Error(ctx, "error closing audit queue", logger.Error(err))
	}
	if p.cancel == nil {
		return nil
	}
	defer p.cancel()

	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-ctx.Done():
			p.logger.Warn(ctx, "audit drain timed out",
				logger.Int("worker_id", i),
				logger.Int("pending", p.queue.Len()),
			)
			metrics.UpdateAuditWorkers(0)
			return fmt.Errorf("audit drain: %w", ctx.Err())
		}
	}
	metrics.UpdateAuditWorkers(0)
	return nil
}

// Stats reports totals across the pool.
func (p *Pool) Stats() (written, failed int64) {
	for _, w := range p.workers {
		written += w.written.Load()
		failed += w.failed.Load()
	}
	return written, failed
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return len(p.workers)
}
