package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/pawmates/tracking/internal/adapters/mq/queue"
	"github.com/pawmates/tracking/internal/domain/model"
	"github.com/pawmates/tracking/pkg/logger"
)

func TestMain(m *testing.M) {
	if err := logger.Init(); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

// The sharded queue must satisfy the full worker contract, Close included.
var _ Queue = (*queue.ShardedQueue)(nil)

// recordingAdmitter captures the order fixes arrive in, per session.
type recordingAdmitter struct {
	mu      sync.Mutex
	order   map[string][]string
	total   int
	rejects bool
}

func newRecordingAdmitter() *recordingAdmitter {
	return &recordingAdmitter{order: make(map[string][]string)}
}

func (a *recordingAdmitter) Admit(_ context.Context, ev *model.LocationEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.order[ev.SessionID] = append(a.order[ev.SessionID], ev.LocationID)
	a.total++
	if a.rejects {
		return errors.New("rejected")
	}
	return nil
}

func (a *recordingAdmitter) waitTotal(t *testing.T, n int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		a.mu.Lock()
		got := a.total
		a.mu.Unlock()
		if got >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d admissions", n)
}

func TestPoolPreservesSessionOrder(t *testing.T) {
	ctx := context.Background()

	Convey("Given a pool over a sharded queue", t, func() {
		q := queue.NewShardedQueue(queue.WithShards(4), queue.WithCapacity(4000))
		adm := newRecordingAdmitter()
		p := NewPool(q, adm)
		p.Start(ctx)

		Convey("Fixes of each session are admitted in enqueue order", func() {
			const sessions = 5
			const perSession = 50
			for i := 0; i < perSession; i++ {
				for s := 0; s < sessions; s++ {
					ok := q.Enqueue(ctx, &model.LocationEvent{
						SessionID:  fmt.Sprintf("walk-%d", s),
						LocationID: fmt.Sprintf("loc-%d", i),
					})
					So(ok, ShouldBeTrue)
				}
			}

			adm.waitTotal(t, sessions*perSession)

			adm.mu.Lock()
			defer adm.mu.Unlock()
			So(adm.order, ShouldHaveLength, sessions)
			for _, got := range adm.order {
				So(got, ShouldHaveLength, perSession)
				for i, id := range got {
					So(id, ShouldEqual, fmt.Sprintf("loc-%d", i))
				}
			}
		})

		Reset(func() {
			_ = p.Shutdown(ctx)
		})
	})
}

func TestPoolShutdownDrains(t *testing.T) {
	ctx := context.Background()

	Convey("Given buffered fixes at shutdown", t, func() {
		q := queue.NewShardedQueue(queue.WithShards(2), queue.WithCapacity(100))
		adm := newRecordingAdmitter()
		p := NewPool(q, adm)

		for i := 0; i < 20; i++ {
			So(q.Enqueue(ctx, &model.LocationEvent{
				SessionID:  fmt.Sprintf("walk-%d", i%3),
				LocationID: fmt.Sprintf("loc-%d", i),
			}), ShouldBeTrue)
		}

		p.Start(ctx)

		Convey("Shutdown waits until every buffered fix was admitted", func() {
			So(p.Shutdown(ctx), ShouldBeNil)

			adm.mu.Lock()
			defer adm.mu.Unlock()
			So(adm.total, ShouldEqual, 20)
		})
	})
}

func TestPoolLogsRejections(t *testing.T) {
	ctx := context.Background()

	Convey("Given an admitter that rejects everything", t, func() {
		q := queue.NewShardedQueue(queue.WithShards(1), queue.WithCapacity(10))
		adm := newRecordingAdmitter()
		adm.rejects = true
		p := NewPool(q, adm)
		p.Start(ctx)

		Convey("The pool keeps draining regardless", func() {
			for i := 0; i < 5; i++ {
				So(q.Enqueue(ctx, &model.LocationEvent{
					SessionID:  "walk-1",
					LocationID: fmt.Sprintf("loc-%d", i),
				}), ShouldBeTrue)
			}
			adm.waitTotal(t, 5)
			So(p.Shutdown(ctx), ShouldBeNil)
		})
	})
}
