// Package ingest connects the service to the pub/sub broker carrying
// device traffic.
package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/nats-io/nats.go"

	"github.com/pawmates/tracking/internal/domain/model"
	"github.com/pawmates/tracking/pkg/logger"
	"github.com/pawmates/tracking/pkg/metrics"
)

// Publisher publishes payloads to the broker.
type Publisher interface {
	Publish(ctx context.Context, subject string, payload []byte) error
}

// LocationHandler receives decoded fixes from the location subjects.
type LocationHandler func(ctx context.Context, ev *model.LocationEvent)

// ControlHandler receives session lifecycle commands.
type ControlHandler func(ctx context.Context, msg *ControlMessage)

// Broker wraps a NATS connection with the service's subject conventions,
// publish retries and connection lifecycle reporting.
type Broker struct {
	conn *nats.Conn
	subs []*nats.Subscription

	env           string
	maxAttempts   int
	maxReconnects int
	reconnectWait time.Duration
	credentials   string

	fatal chan error
	log   logger.Logger

	// publish indirection, replaced in tests
	pub func(subject string, data []byte) error
}

// Connect dials the broker. The initial connect failing is fatal; transient
// disconnects afterwards are retried by the client and reported through the
// handlers. A permanently closed connection is surfaced on Fatal.
func Connect(ctx context.Context, url string, opts ...Option) (*Broker, error) {
	b := &Broker{
		env:           "dev",
		maxAttempts:   3,
		maxReconnects: 10,
		reconnectWait: time.Second,
		fatal:         make(chan error, 1),
		log:           logger.Get().Named("ingest"),
	}
	for _, opt := range opts {
		opt(b)
	}

	natsOpts := []nats.Option{
		nats.RetryOnFailedConnect(false),
		nats.MaxReconnects(b.maxReconnects),
		nats.ReconnectWait(b.reconnectWait),
		nats.ReconnectJitter(100*time.Millisecond, time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			b.log.Warn(ctx, "broker disconnected", logger.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			b.log.Info(ctx, "broker reconnected", logger.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			err := nc.LastError()
			select {
			case b.fatal <- fmt.Errorf("%w: connection closed: %v", ErrConnect, err):
			default:
			}
		}),
	}
	if b.credentials != "" {
		natsOpts = append(natsOpts, nats.UserCredentials(b.credentials))
	}

	conn, err := nats.Connect(url, natsOpts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnect, err)
	}
	b.conn = conn
	b.pub = conn.Publish

	b.log.Info(ctx, "broker connected", logger.String("url", conn.ConnectedUrl()))
	return b, nil
}

// Fatal reports an unrecoverable loss of the broker connection.
func (b *Broker) Fatal() <-chan error {
	return b.fatal
}

// SubscribeLocations consumes fixes from every session's location subject.
// Decode failures are counted and logged; the subscription stays healthy.
func (b *Broker) SubscribeLocations(ctx context.Context, handler LocationHandler) error {
	subject := subjectLocationWildcard(b.env)
	sub, err := b.conn.Subscribe(subject, func(msg *nats.Msg) {
		ev, err := model.DecodeLocationEvent(msg.Data)
		if err != nil {
			metrics.RecordEventRejected("malformed")
			b.log.Warn(ctx, "malformed fix",
				logger.String("subject", msg.Subject),
				logger.Error(err),
			)
			return
		}
		metrics.RecordEventIngested("broker")
		handler(ctx, ev)
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSubscribe, subject, err)
	}
	b.subs = append(b.subs, sub)
	b.log.Info(ctx, "subscribed", logger.String("subject", subject))
	return nil
}

// SubscribeControl consumes session lifecycle commands.
func (b *Broker) SubscribeControl(ctx context.Context, handler ControlHandler) error {
	subject := subjectControlWildcard(b.env)
	sub, err := b.conn.Subscribe(subject, func(msg *nats.Msg) {
		cm, err := DecodeControlMessage(msg.Data, sessionIDFromSubject(msg.Subject))
		if err != nil {
			b.log.Warn(ctx, "malformed control message",
				logger.String("subject", msg.Subject),
				logger.Error(err),
			)
			return
		}
		handler(ctx, cm)
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSubscribe, subject, err)
	}
	b.subs = append(b.subs, sub)
	b.log.Info(ctx, "subscribed", logger.String("subject", subject))
	return nil
}

// Publish sends payload with bounded exponential backoff. Each failed
// attempt is retried with jitter until the attempt budget is spent.
func (b *Broker) Publish(ctx context.Context, subject string, payload []byte) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 100 * time.Millisecond
	bo.MaxInterval = 2 * time.Second

	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(b.maxAttempts-1)), ctx)
	err := backoff.RetryNotify(
		func() error { return b.pub(subject, payload) },
		policy,
		func(err error, next time.Duration) {
			metrics.RecordPublishRetry()
			b.log.Warn(ctx, "publish retry",
				logger.String("subject", subject),
				logger.Duration("next_attempt_in", next),
				logger.Error(err),
			)
		},
	)
	if err != nil {
		metrics.RecordPublishFailure()
		return fmt.Errorf("%w: %s: %v", ErrPublish, subject, err)
	}
	return nil
}

// PublishLocation encodes and publishes one fix to its session subject.
func (b *Broker) PublishLocation(ctx context.Context, ev *model.LocationEvent) error {
	data, err := model.EncodeLocationEvent(ev)
	if err != nil {
		return err
	}
	return b.Publish(ctx, SubjectLocation(b.env, ev.SessionID), data)
}

// Close drains subscriptions and closes the connection.
func (b *Broker) Close() {
	for _, sub := range b.subs {
		_ = sub.Drain()
	}
	if b.conn != nil {
		_ = b.conn.Drain()
		b.conn.Close()
	}
}

// sessionIDFromSubject extracts the trailing token, e.g. the session ID of
// "dev.walks.control.walk-1".
func sessionIDFromSubject(subject string) string {
	i := strings.LastIndex(subject, ".")
	if i < 0 || i == len(subject)-1 {
		return ""
	}
	return subject[i+1:]
}
