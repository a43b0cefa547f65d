// Package worker drains the dispatch queue into the coordinator.
package worker

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/pawmates/tracking/internal/domain/model"
	"github.com/pawmates/tracking/pkg/logger"
)

const poolShutdownTimeout = 30 * time.Second

// Admitter runs the admission algorithm for one fix. Rejections (duplicates,
// stale fixes, low accuracy) are part of normal operation and are reported
// as errors the worker logs at debug level.
type Admitter interface {
	Admit(ctx context.Context, ev *model.LocationEvent) error
}

// Queue defines how workers receive fixes. Each worker owns one shard so a
// session's fixes are always admitted in arrival order. Closing the queue is
// part of the contract: Shutdown closes it to end intake before draining.
type Queue interface {
	Shards() int
	Dequeue(shard int) <-chan *model.LocationEvent
	Close() error
}

// shardWorker drains a single shard.
type shardWorker struct {
	queue    Queue
	admitter Admitter
	shard    int
	name     string

	done chan struct{}

	logger logger.Logger
}

func newShardWorker(q Queue, admitter Admitter, shard int) *shardWorker {
	name := "worker-" + strconv.Itoa(shard)
	return &shardWorker{
		queue:    q,
		admitter: admitter,
		shard:    shard,
		name:     name,
		done:     make(chan struct{}),
		logger:   logger.Get().Named(name),
	}
}

// run drains the shard until the queue closes or ctx is cancelled. Fixes
// buffered when the queue closes are still admitted: a closed channel keeps
// yielding until empty.
func (w *shardWorker) run(ctx context.Context) {
	defer close(w.done)

	ch := w.queue.Dequeue(w.shard)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			w.admit(ctx, ev)
		}
	}
}

func (w *shardWorker) admit(ctx context.Context, ev *model.LocationEvent) {
	if err := w.admitter.Admit(ctx, ev); err != nil {
		// Rejections are expected under replays and clock jitter.
		w.logger.Debug(ctx, "fix rejected",
			logger.String("session_id", ev.SessionID),
			logger.String("location_id", ev.LocationID),
			logger.Error(err),
		)
	}
}

// Pool runs one worker per queue shard.
type Pool struct {
	workers []*shardWorker
	queue   Queue

	logger logger.Logger
}

// NewPool creates a pool sized to the queue's shard count.
func NewPool(q Queue, admitter Admitter) *Pool {
	p := &Pool{
		queue:  q,
		logger: logger.Get().Named("worker-pool"),
	}
	p.workers = make([]*shardWorker, q.Shards())
	for i := range p.workers {
		p.workers[i] = newShardWorker(q, admitter, i)
	}
	return p
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.run(ctx)
	}
	p.logger.Info(ctx, "started", logger.Int("workers", len(p.workers)))
}

// Shutdown closes the queue and waits for workers to drain their shards.
func (p *Pool) Shutdown(ctx context.Context) error {
	if err := p.queue.Close(); err != nil {
		p.logger.Error(ctx, "error closing queue", logger.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
			return fmt.Errorf("shutdown timed out: %w", shutdownCtx.Err())
		}
	}
	return nil
}
