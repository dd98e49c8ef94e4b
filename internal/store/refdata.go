package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/cometa-fiber/fieldsync/internal/model"
)

// Reference-data writes arrive in bulk from the pull operation; each bulk
// put replaces the whole collection inside one transaction so a reader
// never sees a half-applied pull.

// BulkPutProjects replaces the mirrored project collection.
func (s *Store) BulkPutProjects(ctx context.Context, projects []model.Project) error {
	return s.bulkReplace(ctx, "projects", func(tx *sql.Tx) error {
		for _, p := range projects {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO projects (id, name, customer, city, status, start_date,
					total_length_m, pm_user_id, base_rate_per_m)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				p.ID, p.Name, nullStr(p.Customer), nullStr(p.City), p.Status,
				nullStr(p.StartDate), p.TotalLengthM, nullStr(p.PMUserID),
				nullFloat(p.BaseRatePerM))
			if err != nil {
				return fmt.Errorf("failed to put project %s: %w", p.ID, err)
			}
		}
		return nil
	})
}

// ListProjects returns all mirrored projects ordered by name.
func (s *Store) ListProjects(ctx context.Context) ([]model.Project, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, name, customer, city, status, start_date, total_length_m,
			pm_user_id, base_rate_per_m
		FROM projects ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var projects []model.Project
	for rows.Next() {
		var p model.Project
		var customer, city, startDate, pmUserID sql.NullString
		var baseRate sql.NullFloat64
		if err := rows.Scan(&p.ID, &p.Name, &customer, &city, &p.Status,
			&startDate, &p.TotalLengthM, &pmUserID, &baseRate); err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		p.Customer = strFromNull(customer)
		p.City = strFromNull(city)
		p.StartDate = strFromNull(startDate)
		p.PMUserID = strFromNull(pmUserID)
		p.BaseRatePerM = floatFromNull(baseRate)
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed iterating projects: %w", err)
	}
	return projects, nil
}

// BulkPutCabinets replaces the mirrored cabinet collection.
func (s *Store) BulkPutCabinets(ctx context.Context, cabinets []model.Cabinet) error {
	return s.bulkReplace(ctx, "cabinets", func(tx *sql.Tx) error {
		for _, c := range cabinets {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO cabinets (id, project_id, code, name, address, status,
					total_length_m, completed_length_m)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				c.ID, c.ProjectID, c.Code, nullStr(c.Name), nullStr(c.Address),
				c.Status, c.TotalLengthM, c.CompletedLengthM)
			if err != nil {
				return fmt.Errorf("failed to put cabinet %s: %w", c.ID, err)
			}
		}
		return nil
	})
}

// ListCabinets returns mirrored cabinets, optionally filtered by project.
func (s *Store) ListCabinets(ctx context.Context, projectID string) ([]model.Cabinet, error) {
	query := `SELECT id, project_id, code, name, address, status,
		total_length_m, completed_length_m FROM cabinets`
	var args []any
	if projectID != "" {
		query += " WHERE project_id = ?"
		args = append(args, projectID)
	}
	query += " ORDER BY code"

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list cabinets: %w", err)
	}
	defer rows.Close()

	var cabinets []model.Cabinet
	for rows.Next() {
		var c model.Cabinet
		var name, address sql.NullString
		if err := rows.Scan(&c.ID, &c.ProjectID, &c.Code, &name, &address,
			&c.Status, &c.TotalLengthM, &c.CompletedLengthM); err != nil {
			return nil, fmt.Errorf("failed to scan cabinet: %w", err)
		}
		c.Name = strFromNull(name)
		c.Address = strFromNull(address)
		cabinets = append(cabinets, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed iterating cabinets: %w", err)
	}
	return cabinets, nil
}

// BulkPutSegments replaces the mirrored segment collection.
func (s *Store) BulkPutSegments(ctx context.Context, segments []model.Segment) error {
	return s.bulkReplace(ctx, "segments", func(tx *sql.Tx) error {
		for _, seg := range segments {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO segments (id, cabinet_id, name, length_planned_m,
					surface, area, depth_req_m, width_req_m, status)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				seg.ID, seg.CabinetID, nullStr(seg.Name), seg.LengthPlannedM,
				seg.Surface, seg.Area, nullFloat(seg.DepthReqM),
				nullFloat(seg.WidthReqM), seg.Status)
			if err != nil {
				return fmt.Errorf("failed to put segment %s: %w", seg.ID, err)
			}
		}
		return nil
	})
}

// ListSegments returns mirrored segments, optionally filtered by cabinet.
func (s *Store) ListSegments(ctx context.Context, cabinetID string) ([]model.Segment, error) {
	query := `SELECT id, cabinet_id, name, length_planned_m, surface, area,
		depth_req_m, width_req_m, status FROM segments`
	var args []any
	if cabinetID != "" {
		query += " WHERE cabinet_id = ?"
		args = append(args, cabinetID)
	}
	query += " ORDER BY id"

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list segments: %w", err)
	}
	defer rows.Close()

	var segments []model.Segment
	for rows.Next() {
		var seg model.Segment
		var name sql.NullString
		var depthReq, widthReq sql.NullFloat64
		if err := rows.Scan(&seg.ID, &seg.CabinetID, &name, &seg.LengthPlannedM,
			&seg.Surface, &seg.Area, &depthReq, &widthReq, &seg.Status); err != nil {
			return nil, fmt.Errorf("failed to scan segment: %w", err)
		}
		seg.Name = strFromNull(name)
		seg.DepthReqM = floatFromNull(depthReq)
		seg.WidthReqM = floatFromNull(widthReq)
		segments = append(segments, seg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed iterating segments: %w", err)
	}
	return segments, nil
}

// BulkPutWorkerDocuments replaces the mirrored worker-document collection.
func (s *Store) BulkPutWorkerDocuments(ctx context.Context, docs []model.WorkerDocument) error {
	return s.bulkReplace(ctx, "worker_documents", func(tx *sql.Tx) error {
		for _, d := range docs {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO worker_documents (id, user_id, category, title, url, created_at)
				VALUES (?, ?, ?, ?, ?, ?)`,
				d.ID, d.UserID, d.Category, d.Title, d.URL, d.CreatedAt)
			if err != nil {
				return fmt.Errorf("failed to put worker document %s: %w", d.ID, err)
			}
		}
		return nil
	})
}

// ListWorkerDocuments returns mirrored documents for a worker.
func (s *Store) ListWorkerDocuments(ctx context.Context, userID string) ([]model.WorkerDocument, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, user_id, category, title, url, created_at
		FROM worker_documents WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list worker documents: %w", err)
	}
	defer rows.Close()

	var docs []model.WorkerDocument
	for rows.Next() {
		var d model.WorkerDocument
		if err := rows.Scan(&d.ID, &d.UserID, &d.Category, &d.Title, &d.URL,
			&d.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan worker document: %w", err)
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed iterating worker documents: %w", err)
	}
	return docs, nil
}

// BulkPutDocumentCategories replaces the mirrored category collection.
func (s *Store) BulkPutDocumentCategories(ctx context.Context, cats []model.DocumentCategory) error {
	return s.bulkReplace(ctx, "document_categories", func(tx *sql.Tx) error {
		for _, c := range cats {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO document_categories (id, code, name, category_type)
				VALUES (?, ?, ?, ?)`,
				c.ID, c.Code, c.Name, c.CategoryType)
			if err != nil {
				return fmt.Errorf("failed to put document category %s: %w", c.ID, err)
			}
		}
		return nil
	})
}

// ListDocumentCategories returns all mirrored document categories.
func (s *Store) ListDocumentCategories(ctx context.Context) ([]model.DocumentCategory, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, code, name, category_type FROM document_categories ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("failed to list document categories: %w", err)
	}
	defer rows.Close()

	var cats []model.DocumentCategory
	for rows.Next() {
		var c model.DocumentCategory
		if err := rows.Scan(&c.ID, &c.Code, &c.Name, &c.CategoryType); err != nil {
			return nil, fmt.Errorf("failed to scan document category: %w", err)
		}
		cats = append(cats, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed iterating document categories: %w", err)
	}
	return cats, nil
}

func (s *Store) bulkReplace(ctx context.Context, table string, insert func(*sql.Tx) error) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
		return fmt.Errorf("failed to clear %s: %w", table, err)
	}
	if err := insert(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit %s replace: %w", table, err)
	}
	return nil
}
