package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/cometa-fiber/fieldsync/internal/model"
)

const photoColumns = `id, work_entry_id, cut_stage_id, url, ts, gps_lat,
	gps_lon, author_user_id, label`

// UpsertPhoto inserts or replaces a mirrored photo record.
func (s *Store) UpsertPhoto(ctx context.Context, p model.Photo) error {
	query := `
	INSERT INTO photos (` + photoColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		work_entry_id = excluded.work_entry_id,
		cut_stage_id = excluded.cut_stage_id,
		url = excluded.url,
		ts = excluded.ts,
		gps_lat = excluded.gps_lat,
		gps_lon = excluded.gps_lon,
		author_user_id = excluded.author_user_id,
		label = excluded.label
	`

	var label sql.NullString
	if p.Label != nil {
		label = sql.NullString{String: string(*p.Label), Valid: true}
	}

	_, err := s.conn.ExecContext(ctx, query,
		p.ID, nullStr(p.WorkEntryID), nullStr(p.CutStageID), p.URL, p.TS,
		nullFloat(p.GPSLat), nullFloat(p.GPSLon), nullStr(p.AuthorUserID), label,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert photo %s: %w", p.ID, err)
	}
	return nil
}

// GetPhoto fetches a mirrored photo by id.
func (s *Store) GetPhoto(ctx context.Context, id string) (*model.Photo, error) {
	rows, err := s.conn.QueryContext(ctx,
		"SELECT "+photoColumns+" FROM photos WHERE id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("failed to query photo %s: %w", id, err)
	}
	defer rows.Close()

	photos, err := scanPhotos(rows)
	if err != nil {
		return nil, err
	}
	if len(photos) == 0 {
		return nil, fmt.Errorf("photo %s: %w", id, ErrNotFound)
	}
	return &photos[0], nil
}

// ListPhotosForEntry returns mirrored photos attached to a work entry,
// oldest capture first.
func (s *Store) ListPhotosForEntry(ctx context.Context, workEntryID string) ([]model.Photo, error) {
	rows, err := s.conn.QueryContext(ctx,
		"SELECT "+photoColumns+" FROM photos WHERE work_entry_id = ? ORDER BY ts, id",
		workEntryID)
	if err != nil {
		return nil, fmt.Errorf("failed to list photos for entry %s: %w", workEntryID, err)
	}
	defer rows.Close()

	return scanPhotos(rows)
}

// LinkPhotos attaches unassigned photos to a work entry. Used after an
// entry created offline finally gets its server-acknowledged id.
func (s *Store) LinkPhotos(ctx context.Context, photoIDs []string, workEntryID string) error {
	if len(photoIDs) == 0 {
		return nil
	}
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, id := range photoIDs {
		if _, err := tx.ExecContext(ctx,
			"UPDATE photos SET work_entry_id = ? WHERE id = ?", workEntryID, id); err != nil {
			return fmt.Errorf("failed to link photo %s: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit photo links: %w", err)
	}
	return nil
}

// DeletePhoto removes a mirrored photo record.
func (s *Store) DeletePhoto(ctx context.Context, id string) error {
	if _, err := s.conn.ExecContext(ctx, "DELETE FROM photos WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete photo %s: %w", id, err)
	}
	return nil
}

func scanPhotos(rows *sql.Rows) ([]model.Photo, error) {
	var photos []model.Photo
	for rows.Next() {
		var p model.Photo
		var workEntryID, cutStageID, authorUserID, label sql.NullString
		var gpsLat, gpsLon sql.NullFloat64

		err := rows.Scan(&p.ID, &workEntryID, &cutStageID, &p.URL, &p.TS,
			&gpsLat, &gpsLon, &authorUserID, &label)
		if err != nil {
			return nil, fmt.Errorf("failed to scan photo: %w", err)
		}

		p.WorkEntryID = strFromNull(workEntryID)
		p.CutStageID = strFromNull(cutStageID)
		p.GPSLat = floatFromNull(gpsLat)
		p.GPSLon = floatFromNull(gpsLon)
		p.AuthorUserID = strFromNull(authorUserID)
		if label.Valid {
			l := model.PhotoLabel(label.String)
			p.Label = &l
		}

		photos = append(photos, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed iterating photos: %w", err)
	}
	return photos, nil
}
