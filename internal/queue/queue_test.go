package queue

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/cometa-fiber/fieldsync/internal/events"
	"github.com/cometa-fiber/fieldsync/internal/model"
	"github.com/cometa-fiber/fieldsync/internal/store"
)

func newTestQueue(t *testing.T) (*Queue, *store.Store, *events.Bus) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "queue.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	bus := events.NewBus()
	return New(s, bus), s, bus
}

func testEntry(id string) model.WorkEntry {
	return model.WorkEntry{
		ID:        id,
		ProjectID: "proj-1",
		UserID:    "user-1",
		Date:      "2025-03-14",
		StageCode: model.Stage2Excavation,
	}
}

func TestEnqueuePreservesFIFO(t *testing.T) {
	q, _, _ := newTestQueue(t)
	ctx := context.Background()

	// Inject a ticking clock so created_at ordering is deterministic.
	base := time.Now()
	tick := 0
	q.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Millisecond)
	}

	var ids []string
	for _, entryID := range []string{"we-1", "we-2", "we-3"} {
		item, err := q.EnqueueWorkEntry(ctx, WorkEntryMutation{Entry: testEntry(entryID)})
		if err != nil {
			t.Fatalf("EnqueueWorkEntry(%s) error = %v", entryID, err)
		}
		ids = append(ids, item.ID)
	}

	pending, err := q.ListPending(ctx)
	if err != nil {
		t.Fatalf("ListPending() error = %v", err)
	}
	if len(pending) != 3 {
		t.Fatalf("got %d pending items, want 3", len(pending))
	}
	for i, item := range pending {
		if item.ID != ids[i] {
			t.Errorf("pending[%d].ID = %s, want %s", i, item.ID, ids[i])
		}
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	q, _, _ := newTestQueue(t)
	ctx := context.Background()

	entry := testEntry("we-1")
	reason := "photos missing"
	entry.RejectionReason = &reason

	if _, err := q.EnqueueWorkEntry(ctx, WorkEntryMutation{Entry: entry, ClearRejection: true}); err != nil {
		t.Fatalf("EnqueueWorkEntry() error = %v", err)
	}
	if _, err := q.EnqueuePhoto(ctx, PhotoUpload{
		Photo:       model.Photo{ID: "ph-1", URL: "blob:ph-1", TS: "2025-03-14T10:00:00Z"},
		ProjectID:   "proj-1",
		Data:        []byte{0xff, 0xd8, 0xff},
		ContentType: "image/jpeg",
	}); err != nil {
		t.Fatalf("EnqueuePhoto() error = %v", err)
	}

	items, err := q.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}

	we := items[0]
	if we.Type != TypeWorkEntry || we.Payload.WorkEntry == nil {
		t.Fatalf("first item is not a work entry: %+v", we)
	}
	if !we.Payload.WorkEntry.ClearRejection {
		t.Errorf("ClearRejection flag lost")
	}
	if we.Payload.WorkEntry.Entry.RejectionReason == nil {
		t.Errorf("rejection reason lost in payload")
	}

	ph := items[1]
	if ph.Type != TypePhoto || ph.Payload.Photo == nil {
		t.Fatalf("second item is not a photo: %+v", ph)
	}
	if ph.Payload.Photo.ContentType != "image/jpeg" || len(ph.Payload.Photo.Data) != 3 {
		t.Errorf("photo payload mutated: %+v", ph.Payload.Photo)
	}
}

func TestRetryBudget(t *testing.T) {
	q, _, _ := newTestQueue(t)
	ctx := context.Background()

	item, err := q.EnqueueWorkEntry(ctx, WorkEntryMutation{Entry: testEntry("we-1")})
	if err != nil {
		t.Fatalf("EnqueueWorkEntry() error = %v", err)
	}

	cause := errors.New("remote unreachable")
	for attempt := 1; attempt <= MaxRetries; attempt++ {
		if err := q.MarkInProgress(ctx, item); err != nil {
			t.Fatalf("MarkInProgress() error = %v", err)
		}
		if err := q.MarkFailed(ctx, item, cause); err != nil {
			t.Fatalf("MarkFailed() error = %v", err)
		}

		wantStatus := StatusPending
		if attempt == MaxRetries {
			wantStatus = StatusFailed
		}
		if item.Status != wantStatus {
			t.Errorf("after attempt %d: status = %s, want %s", attempt, item.Status, wantStatus)
		}
	}

	if item.RetryCount != MaxRetries {
		t.Errorf("retryCount = %d, want %d", item.RetryCount, MaxRetries)
	}
	if item.LastError != "remote unreachable" {
		t.Errorf("lastError = %q", item.LastError)
	}

	failed, err := q.ListFailed(ctx)
	if err != nil {
		t.Fatalf("ListFailed() error = %v", err)
	}
	if len(failed) != 1 {
		t.Errorf("failed count = %d, want 1", len(failed))
	}
}

func TestResetFailedToPending(t *testing.T) {
	q, _, _ := newTestQueue(t)
	ctx := context.Background()

	item, err := q.EnqueueWorkEntry(ctx, WorkEntryMutation{Entry: testEntry("we-1")})
	if err != nil {
		t.Fatalf("EnqueueWorkEntry() error = %v", err)
	}
	cause := errors.New("boom")
	for i := 0; i < MaxRetries; i++ {
		if err := q.MarkFailed(ctx, item, cause); err != nil {
			t.Fatalf("MarkFailed() error = %v", err)
		}
	}

	n, err := q.ResetFailedToPending(ctx)
	if err != nil {
		t.Fatalf("ResetFailedToPending() error = %v", err)
	}
	if n != 1 {
		t.Errorf("reset %d items, want 1", n)
	}

	pending, err := q.ListPending(ctx)
	if err != nil {
		t.Fatalf("ListPending() error = %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("pending count = %d, want 1", len(pending))
	}
	if pending[0].RetryCount != 0 || pending[0].LastError != "" {
		t.Errorf("reset item keeps stale retry state: %+v", pending[0])
	}
}

func TestRecoverStrandedReturnsInProgressToPending(t *testing.T) {
	q, _, _ := newTestQueue(t)
	ctx := context.Background()

	item, err := q.EnqueueWorkEntry(ctx, WorkEntryMutation{Entry: testEntry("we-1")})
	if err != nil {
		t.Fatalf("EnqueueWorkEntry() error = %v", err)
	}
	if err := q.MarkInProgress(ctx, item); err != nil {
		t.Fatalf("MarkInProgress() error = %v", err)
	}

	// Simulates a process death mid-drain: the row stays in_progress and
	// would match neither ListPending nor ListFailed.
	if pending, _ := q.ListPending(ctx); len(pending) != 0 {
		t.Fatalf("in_progress item listed as pending: %+v", pending)
	}

	n, err := q.RecoverStranded(ctx)
	if err != nil {
		t.Fatalf("RecoverStranded() error = %v", err)
	}
	if n != 1 {
		t.Errorf("recovered %d items, want 1", n)
	}

	pending, err := q.ListPending(ctx)
	if err != nil {
		t.Fatalf("ListPending() error = %v", err)
	}
	if len(pending) != 1 || pending[0].ID != item.ID {
		t.Fatalf("pending = %+v, want the recovered item", pending)
	}
	if pending[0].RetryCount != 0 {
		t.Errorf("recovery must not charge the retry budget: %+v", pending[0])
	}

	// Nothing stranded: a no-op.
	if n, err := q.RecoverStranded(ctx); err != nil || n != 0 {
		t.Errorf("RecoverStranded() on clean queue = (%d, %v), want (0, nil)", n, err)
	}
}

func TestPurgeCompletedKeepsRecent(t *testing.T) {
	q, _, _ := newTestQueue(t)
	ctx := context.Background()

	base := time.Now()
	q.now = func() time.Time { return base.Add(-8 * 24 * time.Hour) }
	old, err := q.EnqueueWorkEntry(ctx, WorkEntryMutation{Entry: testEntry("we-old")})
	if err != nil {
		t.Fatalf("EnqueueWorkEntry() error = %v", err)
	}
	if err := q.MarkCompleted(ctx, old); err != nil {
		t.Fatalf("MarkCompleted() error = %v", err)
	}

	q.now = func() time.Time { return base }
	fresh, err := q.EnqueueWorkEntry(ctx, WorkEntryMutation{Entry: testEntry("we-new")})
	if err != nil {
		t.Fatalf("EnqueueWorkEntry() error = %v", err)
	}
	if err := q.MarkCompleted(ctx, fresh); err != nil {
		t.Fatalf("MarkCompleted() error = %v", err)
	}

	n, err := q.PurgeCompleted(ctx)
	if err != nil {
		t.Fatalf("PurgeCompleted() error = %v", err)
	}
	if n != 1 {
		t.Errorf("purged %d items, want 1", n)
	}

	remaining, err := q.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(remaining) != 1 || remaining[0].ID != fresh.ID {
		t.Errorf("remaining = %+v, want only the fresh item", remaining)
	}
}

func TestLastSyncedAt(t *testing.T) {
	q, _, _ := newTestQueue(t)
	ctx := context.Background()

	last, err := q.LastSyncedAt(ctx)
	if err != nil {
		t.Fatalf("LastSyncedAt() error = %v", err)
	}
	if !last.IsZero() {
		t.Errorf("empty queue reports last sync %v", last)
	}

	completedAt := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)
	q.now = func() time.Time { return completedAt }
	item, err := q.EnqueueWorkEntry(ctx, WorkEntryMutation{Entry: testEntry("we-1")})
	if err != nil {
		t.Fatalf("EnqueueWorkEntry() error = %v", err)
	}
	if err := q.MarkCompleted(ctx, item); err != nil {
		t.Fatalf("MarkCompleted() error = %v", err)
	}

	last, err = q.LastSyncedAt(ctx)
	if err != nil {
		t.Fatalf("LastSyncedAt() error = %v", err)
	}
	if !last.Equal(completedAt) {
		t.Errorf("last sync = %v, want %v", last, completedAt)
	}
}

func TestQueueUpdatedPublishedOnMutation(t *testing.T) {
	q, _, bus := newTestQueue(t)
	ctx := context.Background()

	ch, cancel := bus.Subscribe(events.QueueUpdated)
	defer cancel()

	if _, err := q.EnqueueWorkEntry(ctx, WorkEntryMutation{Entry: testEntry("we-1")}); err != nil {
		t.Fatalf("EnqueueWorkEntry() error = %v", err)
	}

	select {
	case topic := <-ch:
		if topic != events.QueueUpdated {
			t.Errorf("topic = %s, want %s", topic, events.QueueUpdated)
		}
	default:
		t.Errorf("enqueue did not publish %s", events.QueueUpdated)
	}
}

func TestPersistenceAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.db")
	ctx := context.Background()
	bus := events.NewBus()

	s, err := store.Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	q := New(s, bus)
	item, err := q.EnqueueWorkEntry(ctx, WorkEntryMutation{Entry: testEntry("we-1")})
	if err != nil {
		t.Fatalf("EnqueueWorkEntry() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	s2, err := store.Open(path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer s2.Close()
	if err := s2.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() after reopen error = %v", err)
	}
	q2 := New(s2, bus)

	pending, err := q2.ListPending(ctx)
	if err != nil {
		t.Fatalf("ListPending() after reopen error = %v", err)
	}
	if len(pending) != 1 || pending[0].ID != item.ID {
		t.Fatalf("queue did not survive restart: %+v", pending)
	}
	if pending[0].Payload.WorkEntry == nil || pending[0].Payload.WorkEntry.Entry.ID != "we-1" {
		t.Errorf("payload did not survive restart: %+v", pending[0].Payload)
	}
}
