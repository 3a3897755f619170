package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/Houeta/listing-monitor/internal/repository"
	_ "github.com/mattn/go-sqlite3" // database/sql driver
)

var (
	_ repository.StateRepository        = (*Repository)(nil)
	_ repository.SubscriptionRepository = (*Repository)(nil)
)

// timeLayout is fixed width so that lexical order of stored timestamps equals time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Repository represents a data repository that interacts with the database
// and provides logging capabilities. It holds a reference to the database
// and a logger instance for logging operations.
type Repository struct {
	db  *sql.DB
	log *slog.Logger
}

// NewRepository opens (or creates) the SQLite database at storagePath and migrates its schema.
func NewRepository(ctx context.Context, log *slog.Logger, storagePath string) (*Repository, error) {
	// WAL lets readers see the last committed baseline while a scan commits.
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000", storagePath)
	dtb, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	// Check if the connection is actually established.
	if err = dtb.PingContext(ctx); err != nil {
		dtb.Close()
		return nil, fmt.Errorf("unable to establish connection to database: %w", err)
	}

	// Perform the initial schema migration.
	if err = initSchema(ctx, dtb); err != nil {
		dtb.Close()
		return nil, fmt.Errorf("DB schema initialization error: %w", err)
	}

	return &Repository{db: dtb, log: log}, nil
}

// NewForTest wraps an existing handle without migrating it.
func NewForTest(db *sql.DB) *Repository {
	return &Repository{db: db, log: slog.New(slog.DiscardHandler)}
}

// initSchema creates the necessary tables if they don't already exist.
func initSchema(ctx context.Context, dtb *sql.DB) error {
	const migrationQuery = `
	CREATE TABLE IF NOT EXISTS baseline_meta (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		version INTEGER NOT NULL,
		as_of TEXT NOT NULL
	);

	INSERT OR IGNORE INTO baseline_meta (id, version, as_of) VALUES (1, 0, '');

	CREATE TABLE IF NOT EXISTS listings (
		id TEXT PRIMARY KEY NOT NULL,
		fingerprint TEXT NOT NULL,
		title TEXT NOT NULL,
		url TEXT NOT NULL,
		location TEXT NOT NULL,
		attributes TEXT,
		asking_price REAL,
		monthly_revenue REAL,
		monthly_profit REAL,
		category TEXT,
		status TEXT NOT NULL,
		target TEXT NOT NULL,
		page INTEGER NOT NULL,
		first_seen TEXT NOT NULL,
		last_seen TEXT NOT NULL,
		last_modified TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS change_log (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		scan_id TEXT NOT NULL,
		listing_id TEXT NOT NULL,
		change_type TEXT NOT NULL,
		before_json TEXT,
		after_json TEXT,
		score REAL NOT NULL,
		category TEXT NOT NULL,
		detected_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS scan_runs (
		scan_id TEXT PRIMARY KEY NOT NULL,
		target TEXT NOT NULL,
		started_at TEXT NOT NULL,
		completed_at TEXT,
		status TEXT NOT NULL,
		pages_requested INTEGER NOT NULL DEFAULT 0,
		pages_fetched INTEGER NOT NULL DEFAULT 0,
		listings_observed INTEGER NOT NULL DEFAULT 0,
		parse_errors INTEGER NOT NULL DEFAULT 0,
		fetch_errors INTEGER NOT NULL DEFAULT 0,
		change_count INTEGER NOT NULL DEFAULT 0,
		error TEXT
	);

	CREATE TABLE IF NOT EXISTS subscriptions (
		chat_id INTEGER PRIMARY KEY NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_scan_runs_single_running ON scan_runs(status) WHERE status = 'running';
	CREATE INDEX IF NOT EXISTS idx_scan_runs_started ON scan_runs(started_at);
	CREATE INDEX IF NOT EXISTS idx_change_log_detected ON change_log(detected_at);
	CREATE INDEX IF NOT EXISTS idx_listings_scope ON listings(target, page);
	`
	_, err := dtb.ExecContext(ctx, migrationQuery)
	if err != nil {
		return fmt.Errorf("failed to execute migration query: %w", err)
	}

	return nil
}

// Close closes the connection to the database.
func (r *Repository) Close() error {
	if err := r.db.Close(); err != nil {
		r.log.Error("failed to close the database", "op", "repository.sqlite.Close", "error", err)
		return fmt.Errorf("failed to close the database: %w", err)
	}

	return nil
}

// DB is a getter for database handler.
func (r *Repository) DB() *sql.DB {
	return r.db
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid stored timestamp %q: %w", s, err)
	}
	return t, nil
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func floatPtr(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Float64
	return &v
}

func stringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}
