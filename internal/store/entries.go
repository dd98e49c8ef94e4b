package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/cometa-fiber/fieldsync/internal/model"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

const entryColumns = `id, project_id, cabinet_id, segment_id, cut_id, house_id,
	crew_id, user_id, date, stage_code, meters_done_m, method, width_m, depth_m,
	cables_count, has_protection_pipe, soil_type, notes, approved, approved_by,
	approved_at, rejection_reason, rejected_by, rejected_at`

// UpsertWorkEntry inserts or replaces a mirrored work entry.
func (s *Store) UpsertWorkEntry(ctx context.Context, e model.WorkEntry) error {
	query := `
	INSERT INTO work_entries (` + entryColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		project_id = excluded.project_id,
		cabinet_id = excluded.cabinet_id,
		segment_id = excluded.segment_id,
		cut_id = excluded.cut_id,
		house_id = excluded.house_id,
		crew_id = excluded.crew_id,
		user_id = excluded.user_id,
		date = excluded.date,
		stage_code = excluded.stage_code,
		meters_done_m = excluded.meters_done_m,
		method = excluded.method,
		width_m = excluded.width_m,
		depth_m = excluded.depth_m,
		cables_count = excluded.cables_count,
		has_protection_pipe = excluded.has_protection_pipe,
		soil_type = excluded.soil_type,
		notes = excluded.notes,
		approved = excluded.approved,
		approved_by = excluded.approved_by,
		approved_at = excluded.approved_at,
		rejection_reason = excluded.rejection_reason,
		rejected_by = excluded.rejected_by,
		rejected_at = excluded.rejected_at
	`

	var method sql.NullString
	if e.Method != nil {
		method = sql.NullString{String: string(*e.Method), Valid: true}
	}

	_, err := s.conn.ExecContext(ctx, query,
		e.ID, e.ProjectID, nullStr(e.CabinetID), nullStr(e.SegmentID),
		nullStr(e.CutID), nullStr(e.HouseID), nullStr(e.CrewID), e.UserID,
		e.Date, string(e.StageCode), e.MetersDoneM, method,
		nullFloat(e.WidthM), nullFloat(e.DepthM), nullInt(e.CablesCount),
		nullBool(e.HasProtectionPipe), nullStr(e.SoilType), nullStr(e.Notes),
		e.Approved, nullStr(e.ApprovedBy), nullStr(e.ApprovedAt),
		nullStr(e.RejectionReason), nullStr(e.RejectedBy), nullStr(e.RejectedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert work entry %s: %w", e.ID, err)
	}
	return nil
}

// GetWorkEntry fetches a mirrored work entry by id.
func (s *Store) GetWorkEntry(ctx context.Context, id string) (*model.WorkEntry, error) {
	rows, err := s.conn.QueryContext(ctx,
		"SELECT "+entryColumns+" FROM work_entries WHERE id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("failed to query work entry %s: %w", id, err)
	}
	defer rows.Close()

	entries, err := scanWorkEntries(rows)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("work entry %s: %w", id, ErrNotFound)
	}
	return &entries[0], nil
}

// EntryFilter narrows ListWorkEntries. Zero-valued fields are ignored.
type EntryFilter struct {
	UserID    string
	ProjectID string
	SegmentID string
	Date      string
	Rejected  bool // only entries with a rejection mark
	Pending   bool // only entries awaiting approval (not approved, not rejected)
}

// ListWorkEntries returns mirrored work entries matching the filter,
// newest date first.
func (s *Store) ListWorkEntries(ctx context.Context, f EntryFilter) ([]model.WorkEntry, error) {
	var conds []string
	var args []any
	if f.UserID != "" {
		conds = append(conds, "user_id = ?")
		args = append(args, f.UserID)
	}
	if f.ProjectID != "" {
		conds = append(conds, "project_id = ?")
		args = append(args, f.ProjectID)
	}
	if f.SegmentID != "" {
		conds = append(conds, "segment_id = ?")
		args = append(args, f.SegmentID)
	}
	if f.Date != "" {
		conds = append(conds, "date = ?")
		args = append(args, f.Date)
	}
	if f.Rejected {
		conds = append(conds, "rejected_at IS NOT NULL")
	}
	if f.Pending {
		conds = append(conds, "approved = 0 AND rejected_at IS NULL")
	}

	query := "SELECT " + entryColumns + " FROM work_entries"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY date DESC, id"

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list work entries: %w", err)
	}
	defer rows.Close()

	return scanWorkEntries(rows)
}

// DeleteWorkEntry removes a mirrored work entry and its mirrored photos.
func (s *Store) DeleteWorkEntry(ctx context.Context, id string) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM photos WHERE work_entry_id = ?", id); err != nil {
		return fmt.Errorf("failed to delete photos for entry %s: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM work_entries WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete work entry %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit delete: %w", err)
	}
	return nil
}

func scanWorkEntries(rows *sql.Rows) ([]model.WorkEntry, error) {
	var entries []model.WorkEntry
	for rows.Next() {
		var e model.WorkEntry
		var cabinetID, segmentID, cutID, houseID, crewID sql.NullString
		var method, soilType, notes sql.NullString
		var approvedBy, approvedAt sql.NullString
		var rejectionReason, rejectedBy, rejectedAt sql.NullString
		var widthM, depthM sql.NullFloat64
		var cablesCount sql.NullInt64
		var hasPipe sql.NullBool
		var stageCode string

		err := rows.Scan(
			&e.ID, &e.ProjectID, &cabinetID, &segmentID, &cutID, &houseID,
			&crewID, &e.UserID, &e.Date, &stageCode, &e.MetersDoneM, &method,
			&widthM, &depthM, &cablesCount, &hasPipe, &soilType, &notes,
			&e.Approved, &approvedBy, &approvedAt,
			&rejectionReason, &rejectedBy, &rejectedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan work entry: %w", err)
		}

		e.StageCode = model.StageCode(stageCode)
		e.CabinetID = strFromNull(cabinetID)
		e.SegmentID = strFromNull(segmentID)
		e.CutID = strFromNull(cutID)
		e.HouseID = strFromNull(houseID)
		e.CrewID = strFromNull(crewID)
		if method.Valid {
			m := model.WorkMethod(method.String)
			e.Method = &m
		}
		e.WidthM = floatFromNull(widthM)
		e.DepthM = floatFromNull(depthM)
		e.CablesCount = intFromNull(cablesCount)
		e.HasProtectionPipe = boolFromNull(hasPipe)
		e.SoilType = strFromNull(soilType)
		e.Notes = strFromNull(notes)
		e.ApprovedBy = strFromNull(approvedBy)
		e.ApprovedAt = strFromNull(approvedAt)
		e.RejectionReason = strFromNull(rejectionReason)
		e.RejectedBy = strFromNull(rejectedBy)
		e.RejectedAt = strFromNull(rejectedAt)

		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed iterating work entries: %w", err)
	}
	return entries, nil
}
