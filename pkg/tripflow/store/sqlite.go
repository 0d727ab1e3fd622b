package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/boltride/tripflow/pkg/tripflow/event"
)

// SQLiteStore persists trip records to SQLite. It is a durable
// implementation of the Store contract suitable for single-process
// production use: the compare-and-swap lands as a conditional UPDATE on
// the version column.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
	cfg    SQLiteConfig
}

// SQLiteConfig configures the SQLite trip store.
type SQLiteConfig struct {
	// TTL is the pending-record expiry horizon. Default: 24 hours.
	TTL time.Duration

	// Now supplies the current time. Default: time.Now.
	Now func() time.Time
}

// ErrStoreClosed is returned for operations on a closed store.
var ErrStoreClosed = fmt.Errorf("trip store is closed")

// NewSQLiteStore creates a new SQLite trip store.
// The path should be a file path (e.g. "./trips.db") or ":memory:" for testing.
func NewSQLiteStore(path string, cfg SQLiteConfig) (*SQLiteStore, error) {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Enable WAL mode for better concurrent read performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS trips (
			trip_id         TEXT PRIMARY KEY,
			status          INTEGER NOT NULL,
			start_event     BLOB,
			end_event       BLOB,
			created_at      TEXT NOT NULL,
			updated_at      TEXT NOT NULL,
			version         INTEGER NOT NULL,
			ttl_deadline    TEXT NOT NULL,
			completion_date TEXT
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	if _, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_trips_completion
		ON trips(status, completion_date)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create index: %w", err)
	}

	return &SQLiteStore{db: db, cfg: cfg}, nil
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, tripID string) (*TripRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	rec, err := s.load(ctx, s.db, tripID)
	if err != nil {
		return nil, err
	}
	if rec.expired(s.cfg.Now()) {
		rec.Status = StatusExpired
	}
	return rec, nil
}

// Apply implements Store.
func (s *SQLiteStore) Apply(ctx context.Context, tripID string, expectedVersion int64, mut Mutator) (*TripRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	now := s.cfg.Now()

	if expectedVersion == 0 {
		fresh := newPendingRecord(tripID, now, s.cfg.TTL)
		if err := mut(fresh); err != nil {
			return nil, err
		}
		fresh.Version = 1
		if err := s.insert(ctx, fresh); err != nil {
			return nil, err
		}
		return fresh, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: begin: %v", ErrUnavailable, err)
	}
	defer tx.Rollback()

	current, err := s.load(ctx, tx, tripID)
	if err != nil {
		return nil, err
	}
	if current.expired(now) {
		return nil, ErrNotFound
	}
	if current.Version != expectedVersion {
		return nil, ErrVersionConflict
	}

	next := current.Clone()
	if err := mut(next); err != nil {
		return nil, err
	}
	next.Version = current.Version + 1
	next.UpdatedAt = now

	startBlob, endBlob, err := encodeEvents(next)
	if err != nil {
		return nil, err
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE trips SET
			status = ?, start_event = ?, end_event = ?,
			updated_at = ?, version = ?, completion_date = ?
		WHERE trip_id = ? AND version = ?
	`, int(next.Status), startBlob, endBlob,
		next.UpdatedAt.UTC().Format(time.RFC3339Nano), next.Version,
		completionDate(next), tripID, expectedVersion)
	if err != nil {
		return nil, fmt.Errorf("update trip: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update trip: %w", err)
	}
	if affected == 0 {
		return nil, ErrVersionConflict
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit: %v", ErrUnavailable, err)
	}
	return next, nil
}

// CompletedTrips returns all COMPLETE records whose completion date falls
// on the given UTC day.
func (s *SQLiteStore) CompletedTrips(ctx context.Context, day time.Time) ([]*TripRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT trip_id, status, start_event, end_event,
		       created_at, updated_at, version, ttl_deadline
		FROM trips
		WHERE status = ? AND completion_date = ?
	`, int(StatusComplete), day.UTC().Format(time.DateOnly))
	if err != nil {
		return nil, fmt.Errorf("query completed trips: %w", err)
	}
	defer rows.Close()

	var out []*TripRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate completed trips: %w", err)
	}
	return out, nil
}

// ExpireDue flips pending records past their TTL deadline to EXPIRED and
// returns how many were flipped.
func (s *SQLiteStore) ExpireDue(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrStoreClosed
	}

	now := s.cfg.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE trips SET
			status = ?, updated_at = ?, version = version + 1
		WHERE status = ? AND ttl_deadline < ?
	`, int(StatusExpired), now.Format(time.RFC3339Nano),
		int(StatusPending), now.Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("expire trips: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expire trips: %w", err)
	}
	return int(affected), nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// querier abstracts *sql.DB and *sql.Tx for loads.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLiteStore) load(ctx context.Context, q querier, tripID string) (*TripRecord, error) {
	row := q.QueryRowContext(ctx, `
		SELECT trip_id, status, start_event, end_event,
		       created_at, updated_at, version, ttl_deadline
		FROM trips WHERE trip_id = ?
	`, tripID)

	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *SQLiteStore) insert(ctx context.Context, rec *TripRecord) error {
	startBlob, endBlob, err := encodeEvents(rec)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO trips (trip_id, status, start_event, end_event,
			created_at, updated_at, version, ttl_deadline, completion_date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.TripID, int(rec.Status), startBlob, endBlob,
		rec.CreatedAt.UTC().Format(time.RFC3339Nano),
		rec.UpdatedAt.UTC().Format(time.RFC3339Nano),
		rec.Version,
		rec.TTLDeadline.UTC().Format(time.RFC3339Nano),
		completionDate(rec))
	if err != nil {
		// A concurrent creator won the primary-key race.
		return ErrVersionConflict
	}
	return nil
}

// scanner abstracts *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (*TripRecord, error) {
	var (
		rec                               TripRecord
		status                            int
		startBlob, endBlob                []byte
		createdAt, updatedAt, ttlDeadline string
	)
	if err := sc.Scan(&rec.TripID, &status, &startBlob, &endBlob,
		&createdAt, &updatedAt, &rec.Version, &ttlDeadline); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scan trip record: %w", err)
	}

	rec.Status = Status(status)
	var err error
	if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if rec.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	if rec.TTLDeadline, err = time.Parse(time.RFC3339Nano, ttlDeadline); err != nil {
		return nil, fmt.Errorf("parse ttl_deadline: %w", err)
	}

	if len(startBlob) > 0 {
		rec.Start = new(event.TripEvent)
		if err := json.Unmarshal(startBlob, rec.Start); err != nil {
			return nil, fmt.Errorf("decode start event: %w", err)
		}
	}
	if len(endBlob) > 0 {
		rec.End = new(event.TripEvent)
		if err := json.Unmarshal(endBlob, rec.End); err != nil {
			return nil, fmt.Errorf("decode end event: %w", err)
		}
	}
	return &rec, nil
}

func encodeEvents(rec *TripRecord) (startBlob, endBlob []byte, err error) {
	if rec.Start != nil {
		if startBlob, err = json.Marshal(rec.Start); err != nil {
			return nil, nil, fmt.Errorf("encode start event: %w", err)
		}
	}
	if rec.End != nil {
		if endBlob, err = json.Marshal(rec.End); err != nil {
			return nil, nil, fmt.Errorf("encode end event: %w", err)
		}
	}
	return startBlob, endBlob, nil
}

// completionDate is the END event's UTC date for COMPLETE records,
// used by the daily aggregation scan.
func completionDate(rec *TripRecord) any {
	if rec.Status == StatusComplete && rec.End != nil {
		return rec.End.EventTime.UTC().Format(time.DateOnly)
	}
	return nil
}

// Compile-time check that SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)
