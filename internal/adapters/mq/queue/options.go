// Package queue provides the bounded dispatch queue between ingestion and
// the coordinator.
package queue

// Option applies a configuration option to the ShardedQueue.
type Option func(*ShardedQueue)

// WithShards sets the number of shards (and therefore consumers).
func WithShards(n int) Option {
	return func(q *ShardedQueue) {
		if n > 0 {
			q.n = n
		}
	}
}

// WithCapacity sets the total queue capacity, split evenly across shards.
func WithCapacity(n int) Option {
	return func(q *ShardedQueue) {
		if n > 0 {
			q.capacity = n
		}
	}
}
