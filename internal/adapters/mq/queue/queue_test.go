package queue

import (
	"context"
	"fmt"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/pawmates/tracking/internal/domain/model"
)

func fix(sessionID, locationID string) *model.LocationEvent {
	return &model.LocationEvent{SessionID: sessionID, LocationID: locationID}
}

func TestEnqueueDequeue(t *testing.T) {
	ctx := context.Background()

	Convey("Given a sharded queue", t, func() {
		q := NewShardedQueue(WithShards(4), WithCapacity(40))

		Convey("Enqueued fixes land on exactly one shard", func() {
			So(q.Enqueue(ctx, fix("walk-1", "loc-1")), ShouldBeTrue)
			So(q.Len(ctx), ShouldEqual, 1)

			found := 0
			for i := 0; i < q.Shards(); i++ {
				select {
				case ev := <-q.Dequeue(i):
					So(ev.LocationID, ShouldEqual, "loc-1")
					found++
				default:
				}
			}
			So(found, ShouldEqual, 1)
		})

		Convey("A session always routes to the same shard", func() {
			for i := 0; i < 10; i++ {
				So(q.Enqueue(ctx, fix("walk-1", fmt.Sprintf("loc-%d", i))), ShouldBeTrue)
			}

			occupied := 0
			for i := 0; i < q.Shards(); i++ {
				if len(q.Dequeue(i)) > 0 {
					So(len(q.Dequeue(i)), ShouldEqual, 10)
					occupied++
				}
			}
			So(occupied, ShouldEqual, 1)
		})

		Convey("Order is preserved within a session", func() {
			for i := 0; i < 5; i++ {
				So(q.Enqueue(ctx, fix("walk-1", fmt.Sprintf("loc-%d", i))), ShouldBeTrue)
			}

			var shard <-chan *model.LocationEvent
			for i := 0; i < q.Shards(); i++ {
				if len(q.Dequeue(i)) > 0 {
					shard = q.Dequeue(i)
				}
			}
			So(shard, ShouldNotBeNil)
			for i := 0; i < 5; i++ {
				ev := <-shard
				So(ev.LocationID, ShouldEqual, fmt.Sprintf("loc-%d", i))
			}
		})
	})
}

func TestBackpressure(t *testing.T) {
	ctx := context.Background()

	Convey("Given a queue with one slot per shard", t, func() {
		q := NewShardedQueue(WithShards(2), WithCapacity(2))

		Convey("A full shard rejects without blocking", func() {
			So(q.Enqueue(ctx, fix("walk-1", "loc-1")), ShouldBeTrue)
			So(q.Enqueue(ctx, fix("walk-1", "loc-2")), ShouldBeFalse)

			// Another session may still land on the other shard.
			other := ""
			for i := 0; i < 100; i++ {
				id := fmt.Sprintf("walk-%d", i+2)
				if q.Enqueue(ctx, fix(id, "loc-1")) {
					other = id
					break
				}
			}
			So(other, ShouldNotBeEmpty)
		})
	})
}

func TestClose(t *testing.T) {
	ctx := context.Background()

	Convey("Given a queue with buffered fixes", t, func() {
		q := NewShardedQueue(WithShards(2), WithCapacity(8))
		So(q.Enqueue(ctx, fix("walk-1", "loc-1")), ShouldBeTrue)

		Convey("Close stops new enqueues but keeps buffered fixes readable", func() {
			So(q.Close(), ShouldBeNil)
			So(q.IsClosed(), ShouldBeTrue)
			So(q.Enqueue(ctx, fix("walk-1", "loc-2")), ShouldBeFalse)

			total := 0
			for i := 0; i < q.Shards(); i++ {
				for ev := range q.Dequeue(i) {
					So(ev.LocationID, ShouldEqual, "loc-1")
					total++
				}
			}
			So(total, ShouldEqual, 1)
		})

		Convey("Close is idempotent", func() {
			So(q.Close(), ShouldBeNil)
			So(q.Close(), ShouldBeNil)
		})
	})
}
