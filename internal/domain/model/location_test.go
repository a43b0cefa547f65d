package model

import (
	"errors"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func validEvent() *LocationEvent {
	return &LocationEvent{
		SessionID:      "walk-1",
		LocationID:     "loc-1",
		Latitude:       52.5200,
		Longitude:      13.4050,
		AccuracyMeters: 8.5,
		Timestamp:      time.Now().Add(-time.Second),
	}
}

func TestLocationEventValidate(t *testing.T) {
	Convey("Given a location event", t, func() {
		Convey("A well-formed event passes validation", func() {
			So(validEvent().Validate(), ShouldBeNil)
		})

		Convey("Missing identifiers are rejected", func() {
			e := validEvent()
			e.SessionID = ""
			So(errors.Is(e.Validate(), ErrInvalidEvent), ShouldBeTrue)

			e = validEvent()
			e.LocationID = ""
			So(errors.Is(e.Validate(), ErrInvalidEvent), ShouldBeTrue)
		})

		Convey("Coordinates outside WGS84 bounds are rejected", func() {
			e := validEvent()
			e.Latitude = 90.0001
			So(errors.Is(e.Validate(), ErrInvalidEvent), ShouldBeTrue)

			e = validEvent()
			e.Latitude = -91
			So(errors.Is(e.Validate(), ErrInvalidEvent), ShouldBeTrue)

			e = validEvent()
			e.Longitude = 180.5
			So(errors.Is(e.Validate(), ErrInvalidEvent), ShouldBeTrue)

			e = validEvent()
			e.Longitude = -181
			So(errors.Is(e.Validate(), ErrInvalidEvent), ShouldBeTrue)
		})

		Convey("Boundary coordinates are accepted", func() {
			e := validEvent()
			e.Latitude = MaxLatitude
			e.Longitude = MinLongitude
			So(e.Validate(), ShouldBeNil)
		})

		Convey("Negative accuracy is rejected", func() {
			e := validEvent()
			e.AccuracyMeters = -1
			So(errors.Is(e.Validate(), ErrInvalidEvent), ShouldBeTrue)
		})

		Convey("Zero and far-future timestamps are rejected", func() {
			e := validEvent()
			e.Timestamp = time.Time{}
			So(errors.Is(e.Validate(), ErrInvalidEvent), ShouldBeTrue)

			e = validEvent()
			e.Timestamp = time.Now().Add(time.Hour)
			So(errors.Is(e.Validate(), ErrInvalidEvent), ShouldBeTrue)
		})

		Convey("A slightly future timestamp within skew is accepted", func() {
			e := validEvent()
			e.Timestamp = time.Now().Add(30 * time.Second)
			So(e.Validate(), ShouldBeNil)
		})
	})
}

func TestLocationEventCodec(t *testing.T) {
	Convey("Given a location event", t, func() {
		e := validEvent()
		alt := 34.2
		e.AltitudeMeters = &alt

		Convey("It round-trips through the wire codec", func() {
			b, err := EncodeLocationEvent(e)
			So(err, ShouldBeNil)

			got, err := DecodeLocationEvent(b)
			So(err, ShouldBeNil)
			So(got.SessionID, ShouldEqual, e.SessionID)
			So(got.LocationID, ShouldEqual, e.LocationID)
			So(got.Latitude, ShouldEqual, e.Latitude)
			So(got.Longitude, ShouldEqual, e.Longitude)
			So(got.AltitudeMeters, ShouldNotBeNil)
			So(*got.AltitudeMeters, ShouldEqual, alt)
			So(got.Timestamp.Equal(e.Timestamp), ShouldBeTrue)
		})

		Convey("Garbage input fails decoding", func() {
			_, err := DecodeLocationEvent([]byte("{not json"))
			So(errors.Is(err, ErrDecodeEvent), ShouldBeTrue)
		})
	})
}

func TestSessionStatusTransitions(t *testing.T) {
	Convey("Given the session lifecycle", t, func() {
		Convey("Scheduled may start or cancel", func() {
			So(StatusScheduled.CanTransition(StatusInProgress), ShouldBeTrue)
			So(StatusScheduled.CanTransition(StatusCancelled), ShouldBeTrue)
			So(StatusScheduled.CanTransition(StatusCompleted), ShouldBeFalse)
		})

		Convey("In progress may complete or cancel", func() {
			So(StatusInProgress.CanTransition(StatusCompleted), ShouldBeTrue)
			So(StatusInProgress.CanTransition(StatusCancelled), ShouldBeTrue)
			So(StatusInProgress.CanTransition(StatusScheduled), ShouldBeFalse)
		})

		Convey("Terminal states do not transition", func() {
			So(StatusCompleted.CanTransition(StatusInProgress), ShouldBeFalse)
			So(StatusCancelled.CanTransition(StatusInProgress), ShouldBeFalse)
		})

		Convey("Transition returns a wrapped error on illegal steps", func() {
			_, err := StatusCompleted.Transition(StatusInProgress)
			So(errors.Is(err, ErrInvalidTransition), ShouldBeTrue)

			next, err := StatusScheduled.Transition(StatusInProgress)
			So(err, ShouldBeNil)
			So(next, ShouldEqual, StatusInProgress)
		})
	})
}
