// Package store provides the embedded local mirror for offline-first
// operation: durable copies of remote entities (projects, cabinets,
// segments, work entries, photos, reference documents) plus the sync
// queue's backing rows.
//
// The database runs embedded SQLite with WAL so status readers can query
// while the sync engine writes. Schema changes are additive and versioned;
// adding an index never loses data, and the mirror is never dropped while
// unsent queue rows exist.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Store wraps the SQLite connection with mirror-specific functionality.
type Store struct {
	conn *sql.DB
	path string
}

// Open creates a database connection at the specified path.
//
// The database is opened in embedded mode with WAL for concurrent reads.
// If it doesn't exist it is created; call Migrate before first use.
// The caller MUST call Close when done.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{conn: conn, path: path}

	if _, err := s.conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := s.conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if _, err := s.conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return s, nil
}

// RawDB returns the underlying sql.DB connection.
func (s *Store) RawDB() *sql.DB {
	return s.conn
}

// Close closes the connection after checkpointing the WAL.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	s.conn = nil
	return nil
}

// migrations are applied in order; user_version records the last applied
// step. Steps must stay additive: never a DROP of user data, never a
// rewrite that loses rows. Indexes added later (segment, rejected_at)
// arrive as their own steps so existing databases upgrade in place.
var migrations = []string{
	// v1: initial mirror + queue
	`
	CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		customer TEXT,
		city TEXT,
		status TEXT NOT NULL DEFAULT 'active',
		start_date TEXT,
		total_length_m REAL NOT NULL DEFAULT 0,
		pm_user_id TEXT,
		base_rate_per_m REAL
	);

	CREATE TABLE IF NOT EXISTS cabinets (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		code TEXT NOT NULL,
		name TEXT,
		address TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		total_length_m REAL NOT NULL DEFAULT 0,
		completed_length_m REAL NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS segments (
		id TEXT PRIMARY KEY,
		cabinet_id TEXT NOT NULL,
		name TEXT,
		length_planned_m REAL NOT NULL DEFAULT 0,
		surface TEXT NOT NULL DEFAULT 'asphalt',
		area TEXT NOT NULL DEFAULT 'roadway',
		depth_req_m REAL,
		width_req_m REAL,
		status TEXT NOT NULL DEFAULT 'open'
	);

	CREATE TABLE IF NOT EXISTS work_entries (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		cabinet_id TEXT,
		segment_id TEXT,
		cut_id TEXT,
		house_id TEXT,
		crew_id TEXT,
		user_id TEXT NOT NULL,
		date TEXT NOT NULL,
		stage_code TEXT NOT NULL,
		meters_done_m REAL NOT NULL DEFAULT 0,
		method TEXT,
		width_m REAL,
		depth_m REAL,
		cables_count INTEGER,
		has_protection_pipe INTEGER,
		soil_type TEXT,
		notes TEXT,
		approved INTEGER NOT NULL DEFAULT 0,
		approved_by TEXT,
		approved_at TEXT,
		rejection_reason TEXT,
		rejected_by TEXT,
		rejected_at TEXT
	);

	CREATE TABLE IF NOT EXISTS photos (
		id TEXT PRIMARY KEY,
		work_entry_id TEXT,
		cut_stage_id TEXT,
		url TEXT NOT NULL,
		ts TEXT NOT NULL,
		gps_lat REAL,
		gps_lon REAL,
		author_user_id TEXT,
		label TEXT
	);

	CREATE TABLE IF NOT EXISTS sync_queue (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		data TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		retry_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_cabinets_project ON cabinets(project_id);
	CREATE INDEX IF NOT EXISTS idx_segments_cabinet ON segments(cabinet_id);
	CREATE INDEX IF NOT EXISTS idx_entries_user ON work_entries(user_id);
	CREATE INDEX IF NOT EXISTS idx_entries_project ON work_entries(project_id);
	CREATE INDEX IF NOT EXISTS idx_entries_approved ON work_entries(approved);
	CREATE INDEX IF NOT EXISTS idx_entries_date ON work_entries(date);
	CREATE INDEX IF NOT EXISTS idx_photos_entry ON photos(work_entry_id);
	CREATE INDEX IF NOT EXISTS idx_queue_status ON sync_queue(status);
	CREATE INDEX IF NOT EXISTS idx_queue_created ON sync_queue(created_at);
	`,

	// v2: segment index for per-segment progress views
	`CREATE INDEX IF NOT EXISTS idx_entries_segment ON work_entries(segment_id);`,

	// v3: rejected_at index for filtering rejected entries
	`CREATE INDEX IF NOT EXISTS idx_entries_rejected ON work_entries(rejected_at);`,

	// v4: worker documents for offline access
	`
	CREATE TABLE IF NOT EXISTS worker_documents (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		category TEXT NOT NULL,
		title TEXT NOT NULL,
		url TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_worker_docs_user ON worker_documents(user_id);
	CREATE INDEX IF NOT EXISTS idx_worker_docs_category ON worker_documents(category);
	`,

	// v5: document categories
	`
	CREATE TABLE IF NOT EXISTS document_categories (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL,
		name TEXT NOT NULL,
		category_type TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_doc_categories_code ON document_categories(code);
	`,
}

// Migrate applies pending schema steps. Idempotent; safe to call on every
// startup.
func (s *Store) Migrate(ctx context.Context) error {
	var version int
	if err := s.conn.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for v := version; v < len(migrations); v++ {
		if _, err := s.conn.ExecContext(ctx, migrations[v]); err != nil {
			return fmt.Errorf("failed to apply schema migration %d: %w", v+1, err)
		}
		if _, err := s.conn.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", v+1)); err != nil {
			return fmt.Errorf("failed to record schema version %d: %w", v+1, err)
		}
	}
	return nil
}

// SchemaVersion returns the applied migration count.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := s.conn.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, nil
}

// Counts returns per-collection row counts for status reporting.
func (s *Store) Counts(ctx context.Context) (map[string]int, error) {
	tables := []string{
		"projects", "cabinets", "segments", "work_entries", "photos",
		"sync_queue", "worker_documents", "document_categories",
	}
	counts := make(map[string]int, len(tables))
	for _, table := range tables {
		var n int
		if err := s.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", table, err)
		}
		counts[table] = n
	}
	return counts, nil
}

// ClearMirror deletes mirrored reference and entity data. The sync queue
// is deliberately left untouched: it holds unsent work and must never be
// dropped with the cache.
func (s *Store) ClearMirror(ctx context.Context) error {
	tables := []string{
		"projects", "cabinets", "segments", "work_entries", "photos",
		"worker_documents", "document_categories",
	}
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range tables {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit clear: %w", err)
	}
	return nil
}

// nullStr converts an optional string to a nullable SQL value.
func nullStr(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

// nullFloat converts an optional float to a nullable SQL value.
func nullFloat(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}

// nullInt converts an optional int to a nullable SQL value.
func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

// nullBool converts an optional bool to a nullable SQL value.
func nullBool(p *bool) sql.NullBool {
	if p == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *p, Valid: true}
}

func strFromNull(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func floatFromNull(nf sql.NullFloat64) *float64 {
	if !nf.Valid {
		return nil
	}
	f := nf.Float64
	return &f
}

func intFromNull(ni sql.NullInt64) *int {
	if !ni.Valid {
		return nil
	}
	i := int(ni.Int64)
	return &i
}

func boolFromNull(nb sql.NullBool) *bool {
	if !nb.Valid {
		return nil
	}
	b := nb.Bool
	return &b
}
