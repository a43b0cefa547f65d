package ingest

import (
	"context"
	"errors"
	"os"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/pawmates/tracking/pkg/logger"
)

func TestMain(m *testing.M) {
	if err := logger.Init(); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

func TestSubjects(t *testing.T) {
	Convey("Given the subject conventions", t, func() {
		So(SubjectLocation("prod", "walk-1"), ShouldEqual, "prod.walks.location.walk-1")
		So(SubjectControl("dev", "walk-2"), ShouldEqual, "dev.walks.control.walk-2")
		So(subjectLocationWildcard("dev"), ShouldEqual, "dev.walks.location.*")
		So(subjectControlWildcard("dev"), ShouldEqual, "dev.walks.control.*")

		Convey("Session IDs are recovered from subjects", func() {
			So(sessionIDFromSubject("dev.walks.control.walk-1"), ShouldEqual, "walk-1")
			So(sessionIDFromSubject("walk-1"), ShouldEqual, "")
			So(sessionIDFromSubject("dev.walks.control."), ShouldEqual, "")
		})
	})
}

func TestDecodeControlMessage(t *testing.T) {
	Convey("Given control payloads", t, func() {
		Convey("A complete payload decodes", func() {
			msg, err := DecodeControlMessage([]byte(`{"session_id":"walk-1","action":"start"}`), "")
			So(err, ShouldBeNil)
			So(msg.SessionID, ShouldEqual, "walk-1")
			So(msg.Action, ShouldEqual, ActionStart)
		})

		Convey("The subject supplies a missing session ID", func() {
			msg, err := DecodeControlMessage([]byte(`{"action":"complete"}`), "walk-9")
			So(err, ShouldBeNil)
			So(msg.SessionID, ShouldEqual, "walk-9")
			So(msg.Action, ShouldEqual, ActionComplete)
		})

		Convey("Missing session IDs are rejected", func() {
			_, err := DecodeControlMessage([]byte(`{"action":"cancel"}`), "")
			So(errors.Is(err, ErrDecodeControl), ShouldBeTrue)
		})

		Convey("Unknown actions are rejected", func() {
			_, err := DecodeControlMessage([]byte(`{"session_id":"walk-1","action":"pause"}`), "")
			So(errors.Is(err, ErrDecodeControl), ShouldBeTrue)
		})

		Convey("Garbage is rejected", func() {
			_, err := DecodeControlMessage([]byte(`{`), "walk-1")
			So(errors.Is(err, ErrDecodeControl), ShouldBeTrue)
		})
	})
}

func TestPublishRetry(t *testing.T) {
	ctx := context.Background()

	newTestBroker := func(attempts int, pub func(string, []byte) error) *Broker {
		return &Broker{
			env:         "dev",
			maxAttempts: attempts,
			fatal:       make(chan error, 1),
			log:         logger.Get().Named("ingest"),
			pub:         pub,
		}
	}

	Convey("Given a broker with a flaky transport", t, func() {
		Convey("Transient failures are retried until success", func() {
			calls := 0
			b := newTestBroker(3, func(_ string, _ []byte) error {
				calls++
				if calls < 3 {
					return errors.New("connection reset")
				}
				return nil
			})

			err := b.Publish(ctx, "dev.walks.location.walk-1", []byte(`{}`))
			So(err, ShouldBeNil)
			So(calls, ShouldEqual, 3)
		})

		Convey("The attempt budget bounds retries", func() {
			calls := 0
			b := newTestBroker(3, func(_ string, _ []byte) error {
				calls++
				return errors.New("connection reset")
			})

			err := b.Publish(ctx, "dev.walks.location.walk-1", []byte(`{}`))
			So(errors.Is(err, ErrPublish), ShouldBeTrue)
			So(calls, ShouldEqual, 3)
		})

		Convey("A cancelled context stops retrying", func() {
			cctx, cancel := context.WithCancel(ctx)
			calls := 0
			b := newTestBroker(10, func(_ string, _ []byte) error {
				calls++
				cancel()
				return errors.New("connection reset")
			})

			err := b.Publish(cctx, "dev.walks.location.walk-1", []byte(`{}`))
			So(errors.Is(err, ErrPublish), ShouldBeTrue)
			So(calls, ShouldBeLessThan, 3)
		})
	})
}
