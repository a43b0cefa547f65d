package api

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/pawmates/tracking/internal/adapters/repository"
	"github.com/pawmates/tracking/internal/adapters/stream"
	"github.com/pawmates/tracking/internal/app"
	"github.com/pawmates/tracking/internal/domain/model"
	"github.com/pawmates/tracking/pkg/logger"
)

func TestMain(m *testing.M) {
	if err := logger.Init(); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

type fakeCoordinator struct {
	startErr    error
	completeErr error
	cancelErr   error
	admitErr    error
	statsErr    error
	ready       bool

	admitted []*model.LocationEvent
}

func (f *fakeCoordinator) StartSession(_ context.Context, _ string) error    { return f.startErr }
func (f *fakeCoordinator) CompleteSession(_ context.Context, _ string) error { return f.completeErr }
func (f *fakeCoordinator) CancelSession(_ context.Context, _ string) error   { return f.cancelErr }

func (f *fakeCoordinator) Admit(_ context.Context, ev *model.LocationEvent) error {
	if f.admitErr != nil {
		return f.admitErr
	}
	f.admitted = append(f.admitted, ev)
	return nil
}

func (f *fakeCoordinator) Stats(_ context.Context, sessionID string) (*model.SessionStats, error) {
	if f.statsErr != nil {
		return nil, f.statsErr
	}
	return model.NewSessionStats(sessionID), nil
}

func (f *fakeCoordinator) Ready() bool { return f.ready }

type fakeHistory struct {
	err    error
	events []*model.LocationEvent
	gotQ   repository.HistoryQuery
}

func (f *fakeHistory) History(_ context.Context, _ string, q repository.HistoryQuery) ([]*model.LocationEvent, error) {
	f.gotQ = q
	if f.err != nil {
		return nil, f.err
	}
	return f.events, nil
}

type fakeStreams struct{}

func (fakeStreams) Subscribe(_ context.Context, _ string, _ stream.Sink) (*stream.Subscriber, error) {
	return nil, stream.ErrSubscribe
}
func (fakeStreams) Unsubscribe(_ context.Context, _ *stream.Subscriber) {}

func newTestMux(coord *fakeCoordinator, history *fakeHistory, opts ...Option) *http.ServeMux {
	srv := NewServer(coord, fakeStreams{}, history, opts...)
	mux := http.NewServeMux()
	srv.Register(context.Background(), mux)
	return mux
}

func do(mux *http.ServeMux, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func locationBody(locationID string) string {
	return fmt.Sprintf(`{"location_id":%q,"latitude":52.52,"longitude":13.405,"accuracy_meters":10,"timestamp":%q}`,
		locationID, time.Now().UTC().Format(time.RFC3339Nano))
}

func errorCode(rec *httptest.ResponseRecorder) string {
	var resp errorResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	return resp.Code
}

func TestPostLocation(t *testing.T) {
	Convey("Given the ingest endpoint", t, func() {
		coord := &fakeCoordinator{ready: true}
		mux := newTestMux(coord, &fakeHistory{})

		Convey("When a valid fix is posted", func() {
			rec := do(mux, http.MethodPost, "/v1/sessions/walk-1/locations", locationBody("loc-1"))

			Convey("Then it is accepted with the path session ID", func() {
				So(rec.Code, ShouldEqual, http.StatusAccepted)
				So(coord.admitted, ShouldHaveLength, 1)
				So(coord.admitted[0].SessionID, ShouldEqual, "walk-1")
				So(coord.admitted[0].LocationID, ShouldEqual, "loc-1")
			})
		})

		Convey("When the body is not JSON", func() {
			rec := do(mux, http.MethodPost, "/v1/sessions/walk-1/locations", "not json")

			Convey("Then the request is rejected", func() {
				So(rec.Code, ShouldEqual, http.StatusBadRequest)
				So(errorCode(rec), ShouldEqual, "bad_request")
			})
		})

		Convey("When the latitude is out of range", func() {
			body := `{"location_id":"loc-1","latitude":95,"longitude":13.405,"accuracy_meters":10,"timestamp":"2026-08-23T10:00:00Z"}`
			rec := do(mux, http.MethodPost, "/v1/sessions/walk-1/locations", body)

			Convey("Then validation fails before admission", func() {
				So(rec.Code, ShouldEqual, http.StatusBadRequest)
				So(coord.admitted, ShouldBeEmpty)
			})
		})
	})
}

func TestAdmitErrorMapping(t *testing.T) {
	cases := []struct {
		err       error
		status    int
		code      string
		retryable bool
	}{
		{app.ErrSessionNotActive, http.StatusNotFound, "session_not_active", false},
		{app.ErrDuplicate, http.StatusConflict, "duplicate", false},
		{app.ErrOutOfOrder, http.StatusUnprocessableEntity, "out_of_order", false},
		{app.ErrLowAccuracy, http.StatusUnprocessableEntity, "low_accuracy", false},
		{model.ErrInvalidEvent, http.StatusBadRequest, "invalid_event", false},
		{app.ErrPendingLimit, http.StatusServiceUnavailable, "resource_exhausted", true},
		{app.ErrShuttingDown, http.StatusServiceUnavailable, "shutting_down", true},
	}

	Convey("Given each admission verdict", t, func() {
		for _, tc := range cases {
			tc := tc
			Convey(fmt.Sprintf("When admission fails with %v", tc.err), func() {
				coord := &fakeCoordinator{ready: true, admitErr: tc.err}
				mux := newTestMux(coord, &fakeHistory{})
				rec := do(mux, http.MethodPost, "/v1/sessions/walk-1/locations", locationBody("loc-1"))

				Convey("Then the status and code match", func() {
					So(rec.Code, ShouldEqual, tc.status)
					So(errorCode(rec), ShouldEqual, tc.code)

					var resp errorResponse
					So(json.Unmarshal(rec.Body.Bytes(), &resp), ShouldBeNil)
					So(resp.Retryable, ShouldEqual, tc.retryable)
				})
			})
		}

		Convey("When the pending buffer is full", func() {
			coord := &fakeCoordinator{ready: true, admitErr: app.ErrPendingLimit}
			mux := newTestMux(coord, &fakeHistory{})
			rec := do(mux, http.MethodPost, "/v1/sessions/walk-1/locations", locationBody("loc-1"))

			Convey("Then the client is told when to retry", func() {
				So(rec.Header().Get("Retry-After"), ShouldEqual, "5")
			})
		})
	})
}

func TestSessionLifecycleEndpoints(t *testing.T) {
	Convey("Given the session endpoints", t, func() {
		Convey("When a session is started", func() {
			mux := newTestMux(&fakeCoordinator{ready: true}, &fakeHistory{})
			rec := do(mux, http.MethodPost, "/v1/sessions/walk-1/start", "")

			So(rec.Code, ShouldEqual, http.StatusCreated)
		})

		Convey("When the session already exists", func() {
			mux := newTestMux(&fakeCoordinator{ready: true, startErr: app.ErrSessionExists}, &fakeHistory{})
			rec := do(mux, http.MethodPost, "/v1/sessions/walk-1/start", "")

			So(rec.Code, ShouldEqual, http.StatusConflict)
			So(errorCode(rec), ShouldEqual, "session_exists")
		})

		Convey("When completing an active session", func() {
			mux := newTestMux(&fakeCoordinator{ready: true}, &fakeHistory{})
			rec := do(mux, http.MethodPost, "/v1/sessions/walk-1/complete", "")

			So(rec.Code, ShouldEqual, http.StatusOK)
		})

		Convey("When completing an unknown session", func() {
			mux := newTestMux(&fakeCoordinator{ready: true, completeErr: app.ErrSessionNotActive}, &fakeHistory{})
			rec := do(mux, http.MethodPost, "/v1/sessions/walk-1/complete", "")

			So(rec.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("When cancelling an active session", func() {
			mux := newTestMux(&fakeCoordinator{ready: true}, &fakeHistory{})
			rec := do(mux, http.MethodPost, "/v1/sessions/walk-1/cancel", "")

			So(rec.Code, ShouldEqual, http.StatusOK)
		})

		Convey("When fetching stats for an unknown session", func() {
			mux := newTestMux(&fakeCoordinator{ready: true, statsErr: app.ErrSessionNotActive}, &fakeHistory{})
			rec := do(mux, http.MethodGet, "/v1/sessions/walk-1/stats", "")

			So(rec.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("When fetching stats for an active session", func() {
			mux := newTestMux(&fakeCoordinator{ready: true}, &fakeHistory{})
			rec := do(mux, http.MethodGet, "/v1/sessions/walk-1/stats", "")

			So(rec.Code, ShouldEqual, http.StatusOK)
		})
	})
}

func TestHistoryEndpoint(t *testing.T) {
	Convey("Given the history endpoint", t, func() {
		Convey("When query parameters are valid", func() {
			history := &fakeHistory{events: []*model.LocationEvent{}}
			mux := newTestMux(&fakeCoordinator{ready: true}, history)
			rec := do(mux, http.MethodGet,
				"/v1/sessions/walk-1/locations?from=2026-08-23T10:00:00Z&to=2026-08-23T11:00:00Z&limit=50", "")

			Convey("Then they are parsed into the store query", func() {
				So(rec.Code, ShouldEqual, http.StatusOK)
				So(history.gotQ.From.IsZero(), ShouldBeFalse)
				So(history.gotQ.To.IsZero(), ShouldBeFalse)
				So(history.gotQ.Limit, ShouldEqual, 50)
			})
		})

		Convey("When from is malformed", func() {
			mux := newTestMux(&fakeCoordinator{ready: true}, &fakeHistory{})
			rec := do(mux, http.MethodGet, "/v1/sessions/walk-1/locations?from=yesterday", "")

			So(rec.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When limit is not a positive integer", func() {
			mux := newTestMux(&fakeCoordinator{ready: true}, &fakeHistory{})
			rec := do(mux, http.MethodGet, "/v1/sessions/walk-1/locations?limit=-3", "")

			So(rec.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the session has no stored track", func() {
			mux := newTestMux(&fakeCoordinator{ready: true}, &fakeHistory{err: repository.ErrNotFound})
			rec := do(mux, http.MethodGet, "/v1/sessions/walk-1/locations", "")

			So(rec.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("When the store circuit is open", func() {
			mux := newTestMux(&fakeCoordinator{ready: true}, &fakeHistory{err: repository.ErrCircuitOpen})
			rec := do(mux, http.MethodGet, "/v1/sessions/walk-1/locations", "")

			So(rec.Code, ShouldEqual, http.StatusServiceUnavailable)
			So(rec.Header().Get("Retry-After"), ShouldEqual, "5")
		})
	})
}

func TestRateLimiting(t *testing.T) {
	Convey("Given a server with a one-token limiter", t, func() {
		coord := &fakeCoordinator{ready: true}
		mux := newTestMux(coord, &fakeHistory{}, WithRateLimit(0.001, 1))

		Convey("When the same client posts twice in a burst", func() {
			first := do(mux, http.MethodPost, "/v1/sessions/walk-1/locations", locationBody("loc-1"))
			second := do(mux, http.MethodPost, "/v1/sessions/walk-1/locations", locationBody("loc-2"))

			Convey("Then the second request is throttled", func() {
				So(first.Code, ShouldEqual, http.StatusAccepted)
				So(second.Code, ShouldEqual, http.StatusTooManyRequests)
				So(errorCode(second), ShouldEqual, "rate_limited")
				So(second.Header().Get("Retry-After"), ShouldNotBeEmpty)
			})
		})

		Convey("When reads hit the same server", func() {
			for i := 0; i < 3; i++ {
				rec := do(mux, http.MethodGet, "/v1/sessions/walk-1/stats", "")
				So(rec.Code, ShouldEqual, http.StatusOK)
			}
		})
	})
}

func TestClientLimiter(t *testing.T) {
	Convey("Given a per-client limiter", t, func() {
		l := NewClientLimiter(0.001, 2)

		Convey("Then clients are limited independently", func() {
			So(l.Allow("a"), ShouldBeTrue)
			So(l.Allow("a"), ShouldBeTrue)
			So(l.Allow("a"), ShouldBeFalse)
			So(l.Allow("b"), ShouldBeTrue)
		})
	})
}

func TestHealthEndpoint(t *testing.T) {
	Convey("Given the health endpoint", t, func() {
		Convey("When the coordinator is ready", func() {
			mux := newTestMux(&fakeCoordinator{ready: true}, &fakeHistory{})
			rec := do(mux, http.MethodGet, "/healthz", "")

			So(rec.Code, ShouldEqual, http.StatusOK)
		})

		Convey("When the coordinator is shutting down", func() {
			mux := newTestMux(&fakeCoordinator{ready: false}, &fakeHistory{})
			rec := do(mux, http.MethodGet, "/healthz", "")

			So(rec.Code, ShouldEqual, http.StatusServiceUnavailable)
		})

		Convey("When metrics are scraped", func() {
			mux := newTestMux(&fakeCoordinator{ready: true}, &fakeHistory{})
			rec := do(mux, http.MethodGet, "/metrics", "")

			So(rec.Code, ShouldEqual, http.StatusOK)
		})
	})
}
