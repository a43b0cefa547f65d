package walksim

import (
	"os"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/pawmates/tracking/pkg/logger"
)

func TestMain(m *testing.M) {
	if err := logger.Init(); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

func TestGenerateTrack(t *testing.T) {
	Convey("Given a generated track", t, func() {
		track := generateTrack(100, 2*time.Second)

		Convey("Then it has the requested number of fixes", func() {
			So(track, ShouldHaveLength, 100)
		})

		Convey("Then timestamps never move backwards", func() {
			prev := time.Time{}
			for _, f := range track {
				ts, err := time.Parse(time.RFC3339Nano, f.Timestamp)
				So(err, ShouldBeNil)
				So(ts.Before(prev), ShouldBeFalse)
				prev = ts
			}
		})

		Convey("Then duplicate fixes repeat the previous location ID", func() {
			So(track[duplicateEvery].LocationID, ShouldEqual, track[duplicateEvery-1].LocationID)
		})

		Convey("Then some fixes carry implausible accuracy", func() {
			bad := 0
			for _, f := range track {
				if f.AccuracyMeters >= badAccuracyM {
					bad++
				}
			}
			So(bad, ShouldBeGreaterThan, 0)
		})

		Convey("Then coordinates stay near the start area", func() {
			for _, f := range track {
				So(f.Latitude, ShouldBeBetween, baseLatitude-1, baseLatitude+1)
				So(f.Longitude, ShouldBeBetween, baseLongitude-1, baseLongitude+1)
			}
		})
	})
}
