package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	. "github.com/smartystreets/goconvey/convey"
)

func TestManagerCreation(t *testing.T) {
	Convey("Given a metrics manager", t, func() {
		Convey("When created with a fresh registry", func() {
			m := NewManager(WithRegistry(prometheus.NewRegistry()))

			Convey("Then it registers without panicking", func() {
				So(m, ShouldNotBeNil)
			})
		})

		Convey("When created with custom options", func() {
			m := NewManager(
				WithNamespace("testns"),
				WithSubsystem("testsub"),
				WithHistogramBuckets([]float64{1, 10, 100}),
				WithRegistry(prometheus.NewRegistry()),
			)

			Convey("Then the options are applied", func() {
				So(m, ShouldNotBeNil)
				So(m.namespace, ShouldEqual, "testns")
				So(m.subsystem, ShouldEqual, "testsub")
				So(m.histogramBuckets, ShouldResemble, []float64{1, 10, 100})
			})
		})
	})
}

func TestPackageHelpers(t *testing.T) {
	Convey("Given the package-level helpers", t, func() {
		Convey("When recording across the pipeline", func() {
			record := func() {
				RecordEventIngested("broker")
				RecordEventAccepted()
				RecordEventRejected("duplicate")
				RecordEventsLost(3)
				RecordBatchFlushed(50)
				RecordFlushFailure()
				RecordFlushLatency(12.5)
				UpdateBreakerState(1)
				RecordBreakerTransition("closed", "open")
				RecordBreakerRejection()
				UpdateActiveSessions(4)
				UpdateDegradedSessions(1)
				UpdatePendingEvents(120)
				UpdateQueueSize(7)
				UpdateQueueCapacity(100000)
				RecordQueueEnqueueError()
				UpdateSubscribers(2)
				RecordSubscriberDropped()
				RecordBroadcast()
				RecordPublishRetry()
				RecordPublishFailure()
				RecordHTTPRequest("locations", "POST", "202")
				RecordHTTPRequestDuration("locations", "POST", 3.2)
				RecordRateLimited()
			}

			Convey("Then none of them panic", func() {
				So(record, ShouldNotPanic)
			})
		})

		Convey("When gathering the private registry", func() {
			families, err := Registry().Gather()

			Convey("Then the service collectors are present", func() {
				So(err, ShouldBeNil)

				names := make(map[string]struct{}, len(families))
				for _, f := range families {
					names[f.GetName()] = struct{}{}
				}
				So(names, ShouldContainKey, "tracking_ingest_events_accepted_total")
				So(names, ShouldContainKey, "tracking_ingest_events_rejected_total")
				So(names, ShouldContainKey, "tracking_ingest_circuit_breaker_state")
			})
		})
	})
}
