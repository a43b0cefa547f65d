// Package queue provides the bounded dispatch queue between ingestion and
// the coordinator.
//
// The queue is sharded: every fix is routed to a shard by its session ID, so
// one session is always drained by the same consumer. That serializes
// admission per session without any per-event locking.
package queue

import (
	"context"
	"hash/fnv"
	"sync"

	"github.com/pawmates/tracking/internal/domain/model"
	"github.com/pawmates/tracking/pkg/metrics"
)

// Default queue configuration constants.
const (
	defaultShards   = 8
	defaultCapacity = 100000
)

// Queue provides non-blocking enqueue and per-shard channel dequeue.
type Queue interface {
	// Enqueue routes a fix to its session's shard.
	// Returns false if the shard is full and the fix was not enqueued.
	Enqueue(ctx context.Context, ev *model.LocationEvent) bool

	// Shards returns the number of shards.
	Shards() int

	// Dequeue returns the channel draining one shard. The channel is closed
	// when the queue is closed.
	Dequeue(shard int) <-chan *model.LocationEvent

	// Len returns the current number of queued fixes across all shards.
	Len(ctx context.Context) int

	// Close gracefully shuts down the queue. After closing, no new fixes can
	// be enqueued and the shard channels are closed once drained.
	Close() error

	// IsClosed returns true if the queue has been closed.
	IsClosed() bool
}

// ShardedQueue implements Queue using one buffered channel per shard.
type ShardedQueue struct {
	shards   []chan *model.LocationEvent
	n        int
	capacity int // total across shards

	mu     sync.RWMutex
	closed bool
}

// NewShardedQueue creates a sharded queue with configuration options.
func NewShardedQueue(opts ...Option) *ShardedQueue {
	q := &ShardedQueue{
		n:        defaultShards,
		capacity: defaultCapacity,
	}
	for _, opt := range opts {
		opt(q)
	}

	perShard := q.capacity / q.n
	if perShard < 1 {
		perShard = 1
	}
	q.shards = make([]chan *model.LocationEvent, q.n)
	for i := range q.shards {
		q.shards[i] = make(chan *model.LocationEvent, perShard)
	}

	metrics.UpdateQueueCapacity(perShard * q.n)
	metrics.UpdateQueueSize(0)
	return q
}

// shardFor picks the shard for a session. FNV-1a keeps the routing stable
// for the lifetime of the process.
func (q *ShardedQueue) shardFor(sessionID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(sessionID))
	return int(h.Sum32() % uint32(q.n))
}

func (q *ShardedQueue) Enqueue(ctx context.Context, ev *model.LocationEvent) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueEnqueueError()
		return false
	}

	select {
	case q.shards[q.shardFor(ev.SessionID)] <- ev:
		metrics.UpdateQueueSize(q.len())
		return true
	case <-ctx.Done():
		metrics.RecordQueueEnqueueError()
		return false
	default:
		metrics.RecordQueueEnqueueError()
		return false // shard is full
	}
}

func (q *ShardedQueue) Shards() int {
	return q.n
}

func (q *ShardedQueue) Dequeue(shard int) <-chan *model.LocationEvent {
	return q.shards[shard]
}

func (q *ShardedQueue) len() int {
	total := 0
	for _, ch := range q.shards {
		total += len(ch)
	}
	return total
}

func (q *ShardedQueue) Len(_ context.Context) int {
	size := q.len()
	metrics.UpdateQueueSize(size)
	return size
}

// Close gracefully shuts down the queue.
func (q *ShardedQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil // already closed
	}
	for _, ch := range q.shards {
		close(ch)
	}
	q.closed = true
	return nil
}

func (q *ShardedQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
