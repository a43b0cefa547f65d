package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // database/sql driver

	"github.com/pawmates/tracking/internal/domain/model"
	"github.com/pawmates/tracking/pkg/logger"
)

const defaultHistoryLimit = 500

const schema = `
CREATE TABLE IF NOT EXISTS location_events (
	session_id  TEXT    NOT NULL,
	location_id TEXT    NOT NULL,
	latitude    REAL    NOT NULL,
	longitude   REAL    NOT NULL,
	accuracy    REAL    NOT NULL,
	altitude    REAL,
	ts          INTEGER NOT NULL,
	PRIMARY KEY (session_id, location_id)
);
CREATE INDEX IF NOT EXISTS idx_location_events_session_ts
	ON location_events (session_id, ts);

CREATE TABLE IF NOT EXISTS session_metrics (
	session_id            TEXT    PRIMARY KEY,
	points                INTEGER NOT NULL,
	total_distance_meters REAL    NOT NULL,
	average_speed_mps     REAL    NOT NULL,
	max_speed_mps         REAL    NOT NULL,
	duration_ms           INTEGER NOT NULL,
	average_accuracy      REAL    NOT NULL,
	recorded_at           INTEGER NOT NULL
);
`

// SQLiteStore implements Store on an embedded SQLite database. The track is
// append-only; replays of already stored fixes are ignored.
type SQLiteStore struct {
	db             *sql.DB
	maxConns       int
	acquireTimeout time.Duration
	historyLimit   int
	log            logger.Logger
}

// NewSQLiteStore opens (or creates) the database at path and prepares the
// schema. The pool is bounded; acquiring a connection is bounded by the
// acquire timeout so pool exhaustion surfaces as an error instead of a stall.
func NewSQLiteStore(ctx context.Context, path string, opts ...SQLiteOption) (*SQLiteStore, error) {
	s := &SQLiteStore{
		acquireTimeout: 2 * time.Second,
		historyLimit:   defaultHistoryLimit,
		log:            logger.Get().Named("sqlite"),
	}
	for _, opt := range opts {
		opt(s)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreOpen, err)
	}
	if s.maxConns > 0 {
		db.SetMaxOpenConns(s.maxConns)
		db.SetMaxIdleConns(s.maxConns)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: schema: %v", ErrStoreOpen, err)
	}

	s.db = db
	s.log.Info(ctx, "store opened", logger.String("path", path), logger.Int("max_conns", s.maxConns))
	return s, nil
}

// acquire checks out a pooled connection, bounded by the acquire timeout.
func (s *SQLiteStore) acquire(ctx context.Context) (*sql.Conn, context.CancelFunc, error) {
	actx, cancel := context.WithTimeout(ctx, s.acquireTimeout)
	conn, err := s.db.Conn(actx)
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("%w: acquire: %v", ErrStoreWrite, err)
	}
	return conn, cancel, nil
}

func (s *SQLiteStore) StoreBatch(ctx context.Context, sessionID string, events []*model.LocationEvent) error {
	if len(events) == 0 {
		return nil
	}

	conn, cancel, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer cancel()
	defer conn.Close()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", ErrStoreWrite, err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO location_events
			(session_id, location_id, latitude, longitude, accuracy, altitude, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("%w: prepare: %v", ErrStoreWrite, err)
	}
	defer stmt.Close()

	for _, e := range events {
		var altitude any
		if e.AltitudeMeters != nil {
			altitude = *e.AltitudeMeters
		}
		if _, err := stmt.ExecContext(ctx,
			sessionID, e.LocationID, e.Latitude, e.Longitude,
			e.AccuracyMeters, altitude, e.Timestamp.UnixNano(),
		); err != nil {
			return fmt.Errorf("%w: insert: %v", ErrStoreWrite, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", ErrStoreWrite, err)
	}
	return nil
}

func (s *SQLiteStore) RecordSessionMetrics(ctx context.Context, sessionID string, stats *model.SessionStats) error {
	conn, cancel, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer cancel()
	defer conn.Close()

	_, err = conn.ExecContext(ctx, `
		INSERT INTO session_metrics
			(session_id, points, total_distance_meters, average_speed_mps,
			 max_speed_mps, duration_ms, average_accuracy, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (session_id) DO UPDATE SET
			points = excluded.points,
			total_distance_meters = excluded.total_distance_meters,
			average_speed_mps = excluded.average_speed_mps,
			max_speed_mps = excluded.max_speed_mps,
			duration_ms = excluded.duration_ms,
			average_accuracy = excluded.average_accuracy,
			recorded_at = excluded.recorded_at`,
		sessionID, stats.Points, stats.TotalDistanceMeters, stats.AverageSpeedMPS,
		stats.MaxSpeedMPS, stats.Duration.Milliseconds(), stats.AverageAccuracy,
		time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("%w: session metrics: %v", ErrStoreWrite, err)
	}
	return nil
}

func (s *SQLiteStore) History(ctx context.Context, sessionID string, q HistoryQuery) ([]*model.LocationEvent, error) {
	limit := q.Limit
	if limit <= 0 || limit > s.historyLimit {
		limit = s.historyLimit
	}

	query := `
		SELECT location_id, latitude, longitude, accuracy, altitude, ts
		FROM location_events
		WHERE session_id = ?`
	args := []any{sessionID}
	if !q.From.IsZero() {
		query += " AND ts >= ?"
		args = append(args, q.From.UnixNano())
	}
	if !q.To.IsZero() {
		query += " AND ts <= ?"
		args = append(args, q.To.UnixNano())
	}
	query += " ORDER BY ts ASC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreRead, err)
	}
	defer rows.Close()

	var out []*model.LocationEvent
	for rows.Next() {
		var (
			e        model.LocationEvent
			altitude sql.NullFloat64
			ts       int64
		)
		if err := rows.Scan(&e.LocationID, &e.Latitude, &e.Longitude, &e.AccuracyMeters, &altitude, &ts); err != nil {
			return nil, fmt.Errorf("%w: scan: %v", ErrStoreRead, err)
		}
		e.SessionID = sessionID
		if altitude.Valid {
			v := altitude.Float64
			e.AltitudeMeters = &v
		}
		e.Timestamp = time.Unix(0, ts).UTC()
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreRead, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	return out, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
