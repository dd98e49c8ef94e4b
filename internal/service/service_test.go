package service

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cometa-fiber/fieldsync/internal/events"
	"github.com/cometa-fiber/fieldsync/internal/model"
	"github.com/cometa-fiber/fieldsync/internal/queue"
	"github.com/cometa-fiber/fieldsync/internal/remote"
	"github.com/cometa-fiber/fieldsync/internal/store"
)

type patchCall struct {
	table  string
	filter map[string]string
	patch  remote.Record
}

type fakeRemote struct {
	selects map[string][]remote.Record
	updates []patchCall
	deletes []patchCall
	err     error
}

func (f *fakeRemote) Select(ctx context.Context, table, sel string, filter map[string]string) ([]remote.Record, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.selects[table], nil
}

func (f *fakeRemote) Update(ctx context.Context, table string, filter map[string]string, patch remote.Record) error {
	if f.err != nil {
		return f.err
	}
	f.updates = append(f.updates, patchCall{table: table, filter: filter, patch: patch})
	return nil
}

func (f *fakeRemote) Delete(ctx context.Context, table string, filter map[string]string) error {
	if f.err != nil {
		return f.err
	}
	f.deletes = append(f.deletes, patchCall{table: table, filter: filter})
	return nil
}

type alwaysOnline struct{}

func (alwaysOnline) Online() bool { return true }

func newTestService(t *testing.T) (*Service, *store.Store, *queue.Queue, *fakeRemote) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "service.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	bus := events.NewBus()
	q := queue.New(s, bus)
	r := &fakeRemote{selects: map[string][]remote.Record{}}
	svc := New(s, q, r, bus, alwaysOnline{})
	return svc, s, q, r
}

func validEntry() model.WorkEntry {
	return model.WorkEntry{
		ProjectID:   "proj-1",
		UserID:      "user-1",
		Date:        "2025-03-14",
		StageCode:   model.Stage2Excavation,
		MetersDoneM: 25,
	}
}

func TestCreateEntryWritesMirrorAndQueue(t *testing.T) {
	svc, s, q, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateEntry(ctx, validEntry())
	if err != nil {
		t.Fatalf("CreateEntry() error = %v", err)
	}
	if created.ID == "" {
		t.Fatal("no id assigned")
	}

	// Mirror readable immediately, before any sync.
	if _, err := s.GetWorkEntry(ctx, created.ID); err != nil {
		t.Errorf("mirror read failed: %v", err)
	}

	pending, err := q.ListPending(ctx)
	if err != nil {
		t.Fatalf("ListPending() error = %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("queue has %d items, want 1", len(pending))
	}
	if pending[0].Payload.WorkEntry == nil || pending[0].Payload.WorkEntry.Entry.ID != created.ID {
		t.Errorf("queued payload = %+v", pending[0].Payload)
	}
}

func TestCreateEntryRejectsInvalid(t *testing.T) {
	svc, _, q, _ := newTestService(t)
	ctx := context.Background()

	bad := validEntry()
	bad.Date = "14.03.2025"
	if _, err := svc.CreateEntry(ctx, bad); err == nil {
		t.Fatal("CreateEntry() accepted a malformed date")
	}

	pending, _ := q.ListPending(ctx)
	if len(pending) != 0 {
		t.Errorf("invalid entry reached the queue")
	}
}

func TestUpdateApprovedEntryFailsBeforeQueue(t *testing.T) {
	svc, s, q, _ := newTestService(t)
	ctx := context.Background()

	entry := validEntry()
	entry.ID = "we-1"
	entry.Approved = true
	if err := s.UpsertWorkEntry(ctx, entry); err != nil {
		t.Fatalf("UpsertWorkEntry() error = %v", err)
	}

	entry.MetersDoneM = 99
	err := svc.UpdateEntry(ctx, entry)
	if !errors.Is(err, ErrApproved) {
		t.Fatalf("error = %v, want ErrApproved", err)
	}

	pending, _ := q.ListPending(ctx)
	if len(pending) != 0 {
		t.Errorf("immutability check ran after enqueue")
	}
	got, _ := s.GetWorkEntry(ctx, "we-1")
	if got.MetersDoneM != 25 {
		t.Errorf("mirror mutated despite approval: %v", got.MetersDoneM)
	}
}

func TestResubmitClearsRejectionAndFlagsQueueItem(t *testing.T) {
	svc, s, q, _ := newTestService(t)
	ctx := context.Background()

	reason := "photos missing"
	by := "pm-1"
	at := "2025-03-15T08:00:00Z"
	entry := validEntry()
	entry.ID = "we-1"
	entry.RejectionReason = &reason
	entry.RejectedBy = &by
	entry.RejectedAt = &at
	if err := s.UpsertWorkEntry(ctx, entry); err != nil {
		t.Fatalf("UpsertWorkEntry() error = %v", err)
	}

	err := svc.ResubmitEntry(ctx, "we-1", func(e *model.WorkEntry) {
		e.MetersDoneM = 30
	})
	if err != nil {
		t.Fatalf("ResubmitEntry() error = %v", err)
	}

	got, _ := s.GetWorkEntry(ctx, "we-1")
	if got.Rejected() {
		t.Errorf("mirror still rejected: %+v", got)
	}
	if got.MetersDoneM != 30 {
		t.Errorf("amendment lost: meters = %v", got.MetersDoneM)
	}

	pending, _ := q.ListPending(ctx)
	if len(pending) != 1 {
		t.Fatalf("queue has %d items, want 1", len(pending))
	}
	if !pending[0].Payload.WorkEntry.ClearRejection {
		t.Errorf("queued mutation must carry the clear-rejection flag")
	}
}

func TestResubmitNonRejectedFails(t *testing.T) {
	svc, s, _, _ := newTestService(t)
	ctx := context.Background()

	entry := validEntry()
	entry.ID = "we-1"
	if err := s.UpsertWorkEntry(ctx, entry); err != nil {
		t.Fatalf("UpsertWorkEntry() error = %v", err)
	}

	err := svc.ResubmitEntry(ctx, "we-1", nil)
	if !errors.Is(err, ErrNotRejected) {
		t.Errorf("error = %v, want ErrNotRejected", err)
	}
}

func TestRejectEntrySetsAllThreeColumns(t *testing.T) {
	svc, s, _, r := newTestService(t)
	ctx := context.Background()

	entry := validEntry()
	entry.ID = "we-1"
	if err := s.UpsertWorkEntry(ctx, entry); err != nil {
		t.Fatalf("UpsertWorkEntry() error = %v", err)
	}

	if err := svc.RejectEntry(ctx, "we-1", "pm-1", "depth not recorded"); err != nil {
		t.Fatalf("RejectEntry() error = %v", err)
	}

	if len(r.updates) != 1 {
		t.Fatalf("updates = %d, want 1", len(r.updates))
	}
	patch := r.updates[0].patch
	if patch["rejection_reason"] != "depth not recorded" || patch["rejected_by"] != "pm-1" {
		t.Errorf("patch = %+v", patch)
	}
	if _, present := patch["rejected_at"]; !present {
		t.Errorf("rejected_at missing from patch")
	}

	got, _ := s.GetWorkEntry(ctx, "we-1")
	if !got.Rejected() || got.RejectedBy == nil || *got.RejectedBy != "pm-1" {
		t.Errorf("mirror not updated: %+v", got)
	}
}

func TestApproveEntry(t *testing.T) {
	svc, s, _, r := newTestService(t)
	ctx := context.Background()

	entry := validEntry()
	entry.ID = "we-1"
	if err := s.UpsertWorkEntry(ctx, entry); err != nil {
		t.Fatalf("UpsertWorkEntry() error = %v", err)
	}

	if err := svc.ApproveEntry(ctx, "we-1", "pm-1"); err != nil {
		t.Fatalf("ApproveEntry() error = %v", err)
	}

	if len(r.updates) != 1 || r.updates[0].patch["approved"] != true {
		t.Fatalf("updates = %+v", r.updates)
	}
	got, _ := s.GetWorkEntry(ctx, "we-1")
	if !got.Approved || got.ApprovedBy == nil {
		t.Errorf("mirror not approved: %+v", got)
	}
}

func TestDeleteApprovedEntryFails(t *testing.T) {
	svc, s, _, r := newTestService(t)
	ctx := context.Background()

	entry := validEntry()
	entry.ID = "we-1"
	entry.Approved = true
	if err := s.UpsertWorkEntry(ctx, entry); err != nil {
		t.Fatalf("UpsertWorkEntry() error = %v", err)
	}

	err := svc.DeleteEntry(ctx, "we-1")
	if !errors.Is(err, ErrApproved) {
		t.Fatalf("error = %v, want ErrApproved", err)
	}
	if len(r.deletes) != 0 {
		t.Errorf("remote delete issued for approved entry")
	}
}

func TestAddPhotoUsesPlaceholderURL(t *testing.T) {
	svc, s, q, _ := newTestService(t)
	ctx := context.Background()

	weID := "we-1"
	photo, err := svc.AddPhoto(ctx, model.Photo{WorkEntryID: &weID},
		"proj-1", []byte{0xff, 0xd8}, "image/jpeg")
	if err != nil {
		t.Fatalf("AddPhoto() error = %v", err)
	}

	if !strings.HasPrefix(photo.URL, model.PlaceholderURLPrefix) {
		t.Errorf("url = %q, want placeholder prefix", photo.URL)
	}

	mirrored, err := s.GetPhoto(ctx, photo.ID)
	if err != nil {
		t.Fatalf("GetPhoto() error = %v", err)
	}
	if mirrored.Uploaded() {
		t.Errorf("mirror claims uploaded before the binary moved")
	}

	pending, _ := q.ListPending(ctx)
	if len(pending) != 1 || pending[0].Type != queue.TypePhoto {
		t.Fatalf("queue = %+v, want one photo item", pending)
	}
	if pending[0].Payload.Photo.ProjectID != "proj-1" || len(pending[0].Payload.Photo.Data) != 2 {
		t.Errorf("payload = %+v", pending[0].Payload.Photo)
	}
}

func TestAddPhotoRequiresData(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	if _, err := svc.AddPhoto(context.Background(), model.Photo{}, "proj-1", nil, ""); err == nil {
		t.Fatal("AddPhoto() accepted empty image data")
	}
}

func TestDeleteEntryRemovesDependentPhotosFirst(t *testing.T) {
	svc, s, _, r := newTestService(t)
	ctx := context.Background()

	entry := validEntry()
	entry.ID = "we-1"
	if err := s.UpsertWorkEntry(ctx, entry); err != nil {
		t.Fatalf("UpsertWorkEntry() error = %v", err)
	}

	if err := svc.DeleteEntry(ctx, "we-1"); err != nil {
		t.Fatalf("DeleteEntry() error = %v", err)
	}

	if len(r.deletes) != 2 {
		t.Fatalf("deletes = %d, want 2", len(r.deletes))
	}
	if r.deletes[0].table != "photos" || r.deletes[0].filter["work_entry_id"] != "we-1" {
		t.Errorf("first delete = %+v, want dependent photos", r.deletes[0])
	}
	if r.deletes[1].table != "work_entries" {
		t.Errorf("second delete = %+v, want the entry row", r.deletes[1])
	}
	if _, err := s.GetWorkEntry(ctx, "we-1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("mirror still has the entry: %v", err)
	}
}

type fakeBlobRemover struct {
	removed []string
}

func (f *fakeBlobRemover) Remove(ctx context.Context, path string) error {
	f.removed = append(f.removed, path)
	return nil
}

func TestDeletePhotoCleansUpBlob(t *testing.T) {
	svc, s, _, _ := newTestService(t)
	ctx := context.Background()

	photo := model.Photo{ID: "ph-1", URL: "p1/we-1/ph-1.jpg", TS: "2025-03-14T10:00:00Z"}
	if err := s.UpsertPhoto(ctx, photo); err != nil {
		t.Fatalf("UpsertPhoto() error = %v", err)
	}

	remover := &fakeBlobRemover{}
	svc.SetBlobRemover(remover)

	if err := svc.DeletePhoto(ctx, "ph-1"); err != nil {
		t.Fatalf("DeletePhoto() error = %v", err)
	}
	if len(remover.removed) != 1 || remover.removed[0] != "p1/we-1/ph-1.jpg" {
		t.Errorf("removed = %v", remover.removed)
	}
}

func TestDeletePhotoSkipsBlobForPendingUpload(t *testing.T) {
	svc, s, _, _ := newTestService(t)
	ctx := context.Background()

	photo := model.Photo{ID: "ph-1", URL: model.PlaceholderURLPrefix + "ph-1", TS: "2025-03-14T10:00:00Z"}
	if err := s.UpsertPhoto(ctx, photo); err != nil {
		t.Fatalf("UpsertPhoto() error = %v", err)
	}

	remover := &fakeBlobRemover{}
	svc.SetBlobRemover(remover)

	if err := svc.DeletePhoto(ctx, "ph-1"); err != nil {
		t.Fatalf("DeletePhoto() error = %v", err)
	}
	if len(remover.removed) != 0 {
		t.Errorf("blob removal attempted for a never-uploaded photo: %v", remover.removed)
	}
}

func TestGetEntryRefreshesFromRemoteWhenOnline(t *testing.T) {
	svc, s, _, r := newTestService(t)
	ctx := context.Background()

	stale := validEntry()
	stale.ID = "we-1"
	if err := s.UpsertWorkEntry(ctx, stale); err != nil {
		t.Fatalf("UpsertWorkEntry() error = %v", err)
	}

	r.selects["work_entries"] = []remote.Record{
		{"id": "we-1", "project_id": "proj-1", "user_id": "user-1",
			"date": "2025-03-14", "stage_code": "stage_2_excavation",
			"meters_done_m": 40.0, "approved": true},
	}

	got, err := svc.GetEntry(ctx, "we-1")
	if err != nil {
		t.Fatalf("GetEntry() error = %v", err)
	}
	if got.MetersDoneM != 40 || !got.Approved {
		t.Errorf("entry not refreshed from remote: %+v", got)
	}
}

func TestGetEntryFallsBackToMirrorOnRemoteFailure(t *testing.T) {
	svc, s, _, r := newTestService(t)
	ctx := context.Background()

	entry := validEntry()
	entry.ID = "we-1"
	if err := s.UpsertWorkEntry(ctx, entry); err != nil {
		t.Fatalf("UpsertWorkEntry() error = %v", err)
	}
	r.err = errors.New("gateway timeout")

	got, err := svc.GetEntry(ctx, "we-1")
	if err != nil {
		t.Fatalf("GetEntry() error = %v, want mirror fallback", err)
	}
	if got.MetersDoneM != 25 {
		t.Errorf("mirror copy = %+v", got)
	}
}

func TestPullPopulatesMirror(t *testing.T) {
	svc, s, _, r := newTestService(t)
	ctx := context.Background()

	r.selects["projects"] = []remote.Record{
		{"id": "p1", "name": "North rollout", "status": "active", "total_length_m": 1200.0},
	}
	r.selects["cabinets"] = []remote.Record{
		{"id": "c1", "project_id": "p1", "code": "NVT-01", "status": "pending",
			"total_length_m": 300.0, "completed_length_m": 120.5},
	}
	r.selects["segments"] = []remote.Record{
		{"id": "s1", "cabinet_id": "c1", "length_planned_m": 80.0,
			"surface": "asphalt", "area": "roadway", "status": "open"},
	}
	r.selects["work_entries"] = []remote.Record{
		{"id": "we-1", "project_id": "p1", "user_id": "user-1",
			"date": "2025-03-14", "stage_code": "stage_2_excavation",
			"meters_done_m": 42.5,
			"photos": []any{
				map[string]any{"id": "ph-1", "work_entry_id": "we-1",
					"url": "p1/we-1/ph-1.jpg", "ts": "2025-03-14T10:00:00Z"},
			}},
	}
	r.selects["document_categories"] = []remote.Record{
		{"id": "dc1", "code": "safety", "name": "Safety", "category_type": "worker"},
	}

	res, err := svc.Pull(ctx, "user-1")
	if err != nil {
		t.Fatalf("Pull() error = %v", err)
	}
	if res.Projects != 1 || res.Cabinets != 1 || res.Segments != 1 ||
		res.WorkEntries != 1 || res.Photos != 1 || res.DocumentCategories != 1 {
		t.Errorf("result = %+v", res)
	}

	entry, err := s.GetWorkEntry(ctx, "we-1")
	if err != nil {
		t.Fatalf("GetWorkEntry() error = %v", err)
	}
	if entry.MetersDoneM != 42.5 || entry.StageCode != model.Stage2Excavation {
		t.Errorf("pulled entry = %+v", entry)
	}
	photos, err := s.ListPhotosForEntry(ctx, "we-1")
	if err != nil {
		t.Fatalf("ListPhotosForEntry() error = %v", err)
	}
	if len(photos) != 1 || photos[0].URL != "p1/we-1/ph-1.jpg" {
		t.Errorf("pulled photos = %+v", photos)
	}
}
