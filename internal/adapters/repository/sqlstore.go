package repository

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/lib/pq"
	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/okian/rollcall/internal/domain/model"
	"github.com/okian/rollcall/pkg/logger"
	"github.com/okian/rollcall/pkg/metrics"
)

// dialect holds the statements that differ between SQL engines.
type dialect struct {
	driver string
	schema string
	insert string
	all    string
	byDate string
}

var sqliteDialect = dialect{
	driver: "sqlite",
	schema: `
	CREATE TABLE IF NOT EXISTS attendance (
		seq     INTEGER PRIMARY KEY AUTOINCREMENT,
		id      TEXT NOT NULL UNIQUE,
		roll_no INTEGER NOT NULL,
		name    TEXT NOT NULL,
		date    TEXT NOT NULL,
		time    TEXT NOT NULL,
		status  TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_attendance_date ON attendance(date);
	`,
	insert: `INSERT INTO attendance (id, roll_no, name, date, time, status) VALUES (?, ?, ?, ?, ?, ?)`,
	all:    `SELECT roll_no, name, date, time, status FROM attendance ORDER BY seq`,
	byDate: `SELECT roll_no, name, date, time, status FROM attendance WHERE date = ? ORDER BY seq`,
}

var postgresDialect = dialect{
	driver: "postgres",
	schema: `
	CREATE TABLE IF NOT EXISTS attendance (
		seq     BIGSERIAL PRIMARY KEY,
		id      TEXT NOT NULL UNIQUE,
		roll_no INTEGER NOT NULL,
		name    TEXT NOT NULL,
		date    TEXT NOT NULL,
		time    TEXT NOT NULL,
		status  TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_attendance_date ON attendance(date);
	`,
	insert: `INSERT INTO attendance (id, roll_no, name, date, time, status) VALUES ($1, $2, $3, $4, $5, $6)`,
	all:    `SELECT roll_no, name, date, time, status FROM attendance ORDER BY seq`,
	byDate: `SELECT roll_no, name, date, time, status FROM attendance WHERE date = $1 ORDER BY seq`,
}

// SQLStore keeps records in a SQL table ordered by an autoincrement sequence.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
	log     logger.Logger

	entropyMu sync.Mutex
	entropy   *rand.Rand
}

// NewSQLiteStore opens or creates a SQLite database at path.
func NewSQLiteStore(ctx context.Context, path string, opts ...Option) (*SQLStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: create db dir: %w", ErrStoreUnreadable, err)
		}
	}
	// synchronous(full) makes every committed insert durable.
	dsn := path + "?_pragma=journal_mode(wal)&_pragma=synchronous(full)&_pragma=busy_timeout(5000)"
	return openSQL(ctx, sqliteDialect, dsn, opts...)
}

// NewPostgresStore connects to dsn and ensures the attendance table exists.
func NewPostgresStore(ctx context.Context, dsn string, opts ...Option) (*SQLStore, error) {
	return openSQL(ctx, postgresDialect, dsn, opts...)
}

func openSQL(ctx context.Context, d dialect, dsn string, opts ...Option) (*SQLStore, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrStoreUnreadable, d.driver, err)
	}
	db.SetMaxOpenConns(o.maxOpenConns)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, o.pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: ping %s: %w", ErrStoreUnreadable, d.driver, err)
	}
	if _, err := db.ExecContext(ctx, d.schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: migrate: %w", ErrStoreUnreadable, err)
	}

	return &SQLStore{
		db:      db,
		dialect: d,
		log:     o.log,
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())), //nolint:gosec // ulid entropy
	}, nil
}

func (s *SQLStore) newID() string {
	s.entropyMu.Lock()
	defer s.entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

// Append inserts rec in its own implicit transaction.
func (s *SQLStore) Append(ctx context.Context, rec model.AttendanceRecord) error {
	_, err := s.db.ExecContext(ctx, s.dialect.insert,
		s.newID(), rec.PersonID, rec.DisplayName, rec.Date, rec.Time, rec.Status)
	if err != nil {
		metrics.RecordStoreError()
		return fmt.Errorf("%w: %w", ErrStoreWrite, err)
	}
	metrics.RecordStoreWrite()
	return nil
}

// LoadAll returns every record in insertion order.
func (s *SQLStore) LoadAll(ctx context.Context) ([]model.AttendanceRecord, error) {
	return s.query(ctx, s.dialect.all)
}

// List returns records for date in insertion order.
func (s *SQLStore) List(ctx context.Context, date string) ([]model.AttendanceRecord, error) {
	return s.query(ctx, s.dialect.byDate, date)
}

func (s *SQLStore) query(ctx context.Context, q string, args ...any) ([]model.AttendanceRecord, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnreadable, err)
	}
	defer rows.Close()

	var out []model.AttendanceRecord
	for rows.Next() {
		var r model.AttendanceRecord
		if err := rows.Scan(&r.PersonID, &r.DisplayName, &r.Date, &r.Time, &r.Status); err != nil {
			s.log.Warn(ctx, "unreadable attendance row", logger.Error(err))
			out = append(out, model.AttendanceRecord{})
			continue
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnreadable, err)
	}
	return out, nil
}

// DB returns the underlying sql.DB for direct access.
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

// Close closes the connection pool.
func (s *SQLStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("closing attendance db: %w", err)
	}
	return nil
}
