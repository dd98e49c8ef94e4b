package service

import (
	"context"
	"fmt"

	"github.com/cometa-fiber/fieldsync/internal/model"
	"github.com/cometa-fiber/fieldsync/internal/remote"
	"github.com/cometa-fiber/fieldsync/internal/transform"
)

// PullResult summarizes one reference-data pull.
type PullResult struct {
	Projects           int
	Cabinets           int
	Segments           int
	WorkEntries        int
	Photos             int
	WorkerDocuments    int
	DocumentCategories int
}

// Pull refreshes the mirror from the remote store: reference collections
// wholesale, plus the user's work entries with their photos. Requires
// connectivity; queued local writes are untouched.
func (s *Service) Pull(ctx context.Context, userID string) (*PullResult, error) {
	res := &PullResult{}

	rows, err := s.remote.Select(ctx, "projects", "", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to pull projects: %w", err)
	}
	projects := make([]model.Project, 0, len(rows))
	for _, row := range rows {
		projects = append(projects, projectFromRemote(row))
	}
	if err := s.store.BulkPutProjects(ctx, projects); err != nil {
		return nil, err
	}
	res.Projects = len(projects)

	rows, err = s.remote.Select(ctx, "cabinets", "", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to pull cabinets: %w", err)
	}
	cabinets := make([]model.Cabinet, 0, len(rows))
	for _, row := range rows {
		cabinets = append(cabinets, cabinetFromRemote(row))
	}
	if err := s.store.BulkPutCabinets(ctx, cabinets); err != nil {
		return nil, err
	}
	res.Cabinets = len(cabinets)

	rows, err = s.remote.Select(ctx, "segments", "", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to pull segments: %w", err)
	}
	segments := make([]model.Segment, 0, len(rows))
	for _, row := range rows {
		segments = append(segments, segmentFromRemote(row))
	}
	if err := s.store.BulkPutSegments(ctx, segments); err != nil {
		return nil, err
	}
	res.Segments = len(segments)

	rows, err = s.remote.Select(ctx, "work_entries", "*,photos(*)",
		map[string]string{"user_id": userID})
	if err != nil {
		return nil, fmt.Errorf("failed to pull work entries: %w", err)
	}
	for _, row := range rows {
		entry := transform.WorkEntryFromRemote(row)
		if err := s.store.UpsertWorkEntry(ctx, entry); err != nil {
			return nil, err
		}
		res.WorkEntries++
		for _, photo := range entry.Photos {
			if err := s.store.UpsertPhoto(ctx, photo); err != nil {
				return nil, err
			}
			res.Photos++
		}
	}

	rows, err = s.remote.Select(ctx, "worker_documents", "",
		map[string]string{"user_id": userID})
	if err != nil {
		return nil, fmt.Errorf("failed to pull worker documents: %w", err)
	}
	docs := make([]model.WorkerDocument, 0, len(rows))
	for _, row := range rows {
		docs = append(docs, workerDocumentFromRemote(row))
	}
	if err := s.store.BulkPutWorkerDocuments(ctx, docs); err != nil {
		return nil, err
	}
	res.WorkerDocuments = len(docs)

	rows, err = s.remote.Select(ctx, "document_categories", "", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to pull document categories: %w", err)
	}
	cats := make([]model.DocumentCategory, 0, len(rows))
	for _, row := range rows {
		cats = append(cats, documentCategoryFromRemote(row))
	}
	if err := s.store.BulkPutDocumentCategories(ctx, cats); err != nil {
		return nil, err
	}
	res.DocumentCategories = len(cats)

	s.logger.Printf("pull complete: %d projects, %d cabinets, %d segments, %d entries, %d photos",
		res.Projects, res.Cabinets, res.Segments, res.WorkEntries, res.Photos)
	return res, nil
}

func projectFromRemote(row remote.Record) model.Project {
	return model.Project{
		ID:           rstr(row["id"]),
		Name:         rstr(row["name"]),
		Customer:     rstrPtr(row["customer"]),
		City:         rstrPtr(row["city"]),
		Status:       rstr(row["status"]),
		StartDate:    rstrPtr(row["start_date"]),
		TotalLengthM: rnum(row["total_length_m"]),
		PMUserID:     rstrPtr(row["pm_user_id"]),
		BaseRatePerM: rnumPtr(row["base_rate_per_m"]),
	}
}

func cabinetFromRemote(row remote.Record) model.Cabinet {
	return model.Cabinet{
		ID:               rstr(row["id"]),
		ProjectID:        rstr(row["project_id"]),
		Code:             rstr(row["code"]),
		Name:             rstrPtr(row["name"]),
		Address:          rstrPtr(row["address"]),
		Status:           rstr(row["status"]),
		TotalLengthM:     rnum(row["total_length_m"]),
		CompletedLengthM: rnum(row["completed_length_m"]),
	}
}

func segmentFromRemote(row remote.Record) model.Segment {
	return model.Segment{
		ID:             rstr(row["id"]),
		CabinetID:      rstr(row["cabinet_id"]),
		Name:           rstrPtr(row["name"]),
		LengthPlannedM: rnum(row["length_planned_m"]),
		Surface:        rstr(row["surface"]),
		Area:           rstr(row["area"]),
		DepthReqM:      rnumPtr(row["depth_req_m"]),
		WidthReqM:      rnumPtr(row["width_req_m"]),
		Status:         rstr(row["status"]),
	}
}

func workerDocumentFromRemote(row remote.Record) model.WorkerDocument {
	return model.WorkerDocument{
		ID:        rstr(row["id"]),
		UserID:    rstr(row["user_id"]),
		Category:  rstr(row["category"]),
		Title:     rstr(row["title"]),
		URL:       rstr(row["url"]),
		CreatedAt: rstr(row["created_at"]),
	}
}

func documentCategoryFromRemote(row remote.Record) model.DocumentCategory {
	return model.DocumentCategory{
		ID:           rstr(row["id"]),
		Code:         rstr(row["code"]),
		Name:         rstr(row["name"]),
		CategoryType: rstr(row["category_type"]),
	}
}

func rstr(v any) string {
	s, _ := v.(string)
	return s
}

func rstrPtr(v any) *string {
	if s, ok := v.(string); ok {
		return &s
	}
	return nil
}

func rnum(v any) float64 {
	f, _ := v.(float64)
	return f
}

func rnumPtr(v any) *float64 {
	if f, ok := v.(float64); ok {
		return &f
	}
	return nil
}
