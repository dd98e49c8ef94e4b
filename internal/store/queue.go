package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// QueueRecord is the raw persisted shape of a sync-queue row. The queue
// package layers typed payloads and status transitions on top; the store
// only guarantees durability and FIFO ordering by created_at.
type QueueRecord struct {
	ID         string
	Type       string
	Data       []byte
	Status     string
	RetryCount int
	LastError  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

const queueColumns = "id, type, data, status, retry_count, last_error, created_at, updated_at"

// InsertQueueRecord persists a new queue row.
func (s *Store) InsertQueueRecord(ctx context.Context, r QueueRecord) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO sync_queue (`+queueColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Type, string(r.Data), r.Status, r.RetryCount,
		nullIfEmpty(r.LastError),
		r.CreatedAt.UTC().Format(time.RFC3339Nano),
		r.UpdatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to insert queue record %s: %w", r.ID, err)
	}
	return nil
}

// UpdateQueueRecord rewrites the mutable columns of a queue row.
func (s *Store) UpdateQueueRecord(ctx context.Context, r QueueRecord) error {
	res, err := s.conn.ExecContext(ctx, `
		UPDATE sync_queue
		SET data = ?, status = ?, retry_count = ?, last_error = ?, updated_at = ?
		WHERE id = ?`,
		string(r.Data), r.Status, r.RetryCount, nullIfEmpty(r.LastError),
		r.UpdatedAt.UTC().Format(time.RFC3339Nano), r.ID)
	if err != nil {
		return fmt.Errorf("failed to update queue record %s: %w", r.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check queue update %s: %w", r.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("queue record %s: %w", r.ID, ErrNotFound)
	}
	return nil
}

// GetQueueRecord fetches a queue row by id.
func (s *Store) GetQueueRecord(ctx context.Context, id string) (*QueueRecord, error) {
	rows, err := s.conn.QueryContext(ctx,
		"SELECT "+queueColumns+" FROM sync_queue WHERE id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("failed to query queue record %s: %w", id, err)
	}
	defer rows.Close()

	records, err := scanQueueRecords(rows)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("queue record %s: %w", id, ErrNotFound)
	}
	return &records[0], nil
}

// ListQueueRecords returns queue rows in creation order, optionally
// filtered by status.
func (s *Store) ListQueueRecords(ctx context.Context, status string) ([]QueueRecord, error) {
	query := "SELECT " + queueColumns + " FROM sync_queue"
	var args []any
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, status)
	}
	query += " ORDER BY created_at, id"

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list queue records: %w", err)
	}
	defer rows.Close()

	return scanQueueRecords(rows)
}

// CountQueueByStatus returns row counts keyed by status.
func (s *Store) CountQueueByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := s.conn.QueryContext(ctx,
		"SELECT status, COUNT(*) FROM sync_queue GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("failed to count queue records: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan queue count: %w", err)
		}
		counts[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed iterating queue counts: %w", err)
	}
	return counts, nil
}

// ResetQueueStatus moves every row with status from to status to,
// stamping updated_at. Returns the number of rows changed.
func (s *Store) ResetQueueStatus(ctx context.Context, from, to string, now time.Time) (int, error) {
	res, err := s.conn.ExecContext(ctx,
		"UPDATE sync_queue SET status = ?, updated_at = ? WHERE status = ?",
		to, now.UTC().Format(time.RFC3339Nano), from)
	if err != nil {
		return 0, fmt.Errorf("failed to reset queue status %s: %w", from, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check queue status reset: %w", err)
	}
	return int(n), nil
}

// LastQueueUpdate returns the newest updated_at among rows with the given
// status, or the zero time when none exist.
func (s *Store) LastQueueUpdate(ctx context.Context, status string) (time.Time, error) {
	rows, err := s.conn.QueryContext(ctx,
		"SELECT MAX(updated_at) FROM sync_queue WHERE status = ?", status)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to query last queue update: %w", err)
	}
	defer rows.Close()

	var max sql.NullString
	if rows.Next() {
		if err := rows.Scan(&max); err != nil {
			return time.Time{}, fmt.Errorf("failed to scan last queue update: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		return time.Time{}, fmt.Errorf("failed reading last queue update: %w", err)
	}
	if !max.Valid {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, max.String)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse last queue update: %w", err)
	}
	return t, nil
}

// DeleteQueueRecords removes queue rows matching status with updated_at
// before cutoff. A zero cutoff matches every row of that status. Returns
// the number of rows removed.
func (s *Store) DeleteQueueRecords(ctx context.Context, status string, cutoff time.Time) (int, error) {
	query := "DELETE FROM sync_queue WHERE status = ?"
	args := []any{status}
	if !cutoff.IsZero() {
		query += " AND updated_at < ?"
		args = append(args, cutoff.UTC().Format(time.RFC3339Nano))
	}

	res, err := s.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete queue records: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check queue deletion: %w", err)
	}
	return int(n), nil
}

func scanQueueRecords(rows *sql.Rows) ([]QueueRecord, error) {
	var records []QueueRecord
	for rows.Next() {
		var r QueueRecord
		var data, createdAt, updatedAt string
		var lastError sql.NullString

		err := rows.Scan(&r.ID, &r.Type, &data, &r.Status, &r.RetryCount,
			&lastError, &createdAt, &updatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan queue record: %w", err)
		}

		r.Data = []byte(data)
		if lastError.Valid {
			r.LastError = lastError.String
		}
		if r.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("failed to parse created_at for %s: %w", r.ID, err)
		}
		if r.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
			return nil, fmt.Errorf("failed to parse updated_at for %s: %w", r.ID, err)
		}

		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed iterating queue records: %w", err)
	}
	return records, nil
}

func nullIfEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
