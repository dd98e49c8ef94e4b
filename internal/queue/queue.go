// Package queue implements the durable FIFO sync queue. Every local write
// that must reach the remote store is enqueued here first; the engine
// drains items in creation order and records the outcome back on the item.
//
// Items survive restarts (they are persisted through the store) and are
// retried up to MaxRetries times before being parked as failed. Failed
// items are never dropped automatically; a user action either resets them
// to pending or purges them.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cometa-fiber/fieldsync/internal/events"
	"github.com/cometa-fiber/fieldsync/internal/model"
	"github.com/cometa-fiber/fieldsync/internal/store"
)

// MaxRetries is the attempt bound per item. After the third failed attempt
// the item parks as failed and stops consuming drain cycles.
const MaxRetries = 3

// CompletedRetention is how long completed items are kept for inspection
// before the purge loop removes them.
const CompletedRetention = 7 * 24 * time.Hour

// ItemType discriminates queue payloads.
type ItemType string

const (
	TypeWorkEntry ItemType = "work_entry"
	TypePhoto     ItemType = "photo"
)

// Status is the queue item lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// WorkEntryMutation is the payload for a work-entry upsert. ClearRejection
// makes the remote write send explicit nulls for the rejection columns
// instead of leaving them untouched.
type WorkEntryMutation struct {
	Entry          model.WorkEntry `json:"entry"`
	ClearRejection bool            `json:"clearRejection,omitempty"`
}

// PhotoUpload is the payload for a photo: the record to insert plus the
// binary destined for the blob store. ProjectID scopes the storage path.
type PhotoUpload struct {
	Photo       model.Photo `json:"photo"`
	ProjectID   string      `json:"projectId"`
	Data        []byte      `json:"data"`
	ContentType string      `json:"contentType"`
}

// Payload is the tagged union carried in an item's data column. Exactly
// one variant is set, matching the item's Type.
type Payload struct {
	WorkEntry *WorkEntryMutation `json:"workEntry,omitempty"`
	Photo     *PhotoUpload       `json:"photoUpload,omitempty"`
}

// Item is a queued sync operation.
type Item struct {
	ID         string
	Type       ItemType
	Payload    Payload
	Status     Status
	RetryCount int
	LastError  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Exhausted reports whether the item has used up its retry budget.
func (i *Item) Exhausted() bool {
	return i.RetryCount >= MaxRetries
}

// Queue persists items through the store and announces every mutation on
// the event bus.
type Queue struct {
	store *store.Store
	bus   *events.Bus
	now   func() time.Time
}

// New creates a queue over the given store and bus.
func New(s *store.Store, bus *events.Bus) *Queue {
	return &Queue{store: s, bus: bus, now: time.Now}
}

// EnqueueWorkEntry adds a work-entry mutation to the queue.
func (q *Queue) EnqueueWorkEntry(ctx context.Context, m WorkEntryMutation) (*Item, error) {
	return q.enqueue(ctx, TypeWorkEntry, Payload{WorkEntry: &m})
}

// EnqueuePhoto adds a photo upload to the queue.
func (q *Queue) EnqueuePhoto(ctx context.Context, u PhotoUpload) (*Item, error) {
	return q.enqueue(ctx, TypePhoto, Payload{Photo: &u})
}

func (q *Queue) enqueue(ctx context.Context, typ ItemType, payload Payload) (*Item, error) {
	now := q.now()
	item := Item{
		ID:        uuid.NewString(),
		Type:      typ,
		Payload:   payload,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	rec, err := toRecord(item)
	if err != nil {
		return nil, err
	}
	if err := q.store.InsertQueueRecord(ctx, rec); err != nil {
		return nil, err
	}
	q.bus.Publish(events.QueueUpdated)
	return &item, nil
}

// ListPending returns pending items in creation order.
func (q *Queue) ListPending(ctx context.Context) ([]Item, error) {
	return q.list(ctx, StatusPending)
}

// ListFailed returns failed items in creation order.
func (q *Queue) ListFailed(ctx context.Context) ([]Item, error) {
	return q.list(ctx, StatusFailed)
}

// List returns every item in creation order.
func (q *Queue) List(ctx context.Context) ([]Item, error) {
	return q.list(ctx, "")
}

func (q *Queue) list(ctx context.Context, status Status) ([]Item, error) {
	records, err := q.store.ListQueueRecords(ctx, string(status))
	if err != nil {
		return nil, err
	}
	items := make([]Item, 0, len(records))
	for _, rec := range records {
		item, err := fromRecord(rec)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// MarkInProgress transitions an item to in_progress for the duration of a
// remote attempt.
func (q *Queue) MarkInProgress(ctx context.Context, item *Item) error {
	item.Status = StatusInProgress
	return q.save(ctx, item)
}

// MarkCompleted records a successful attempt.
func (q *Queue) MarkCompleted(ctx context.Context, item *Item) error {
	item.Status = StatusCompleted
	item.LastError = ""
	return q.save(ctx, item)
}

// MarkFailed records a failed attempt. The item returns to pending with an
// incremented retry count until the budget is exhausted, then parks as
// failed.
func (q *Queue) MarkFailed(ctx context.Context, item *Item, cause error) error {
	item.RetryCount++
	item.LastError = cause.Error()
	if item.Exhausted() {
		item.Status = StatusFailed
	} else {
		item.Status = StatusPending
	}
	return q.save(ctx, item)
}

// UpdatePayload rewrites an item's payload in place. Used when an attempt
// made partial progress (e.g. the blob upload landed but the record insert
// did not) so the retry can skip the finished half.
func (q *Queue) UpdatePayload(ctx context.Context, item *Item) error {
	return q.save(ctx, item)
}

// ResetFailedToPending returns all failed items to pending with a fresh
// retry budget. Returns the number of items reset.
func (q *Queue) ResetFailedToPending(ctx context.Context) (int, error) {
	failed, err := q.ListFailed(ctx)
	if err != nil {
		return 0, err
	}
	for i := range failed {
		item := &failed[i]
		item.Status = StatusPending
		item.RetryCount = 0
		item.LastError = ""
		if err := q.save(ctx, item); err != nil {
			return i, err
		}
	}
	if len(failed) > 0 {
		q.bus.Publish(events.TriggerSync)
	}
	return len(failed), nil
}

// RecoverStranded returns items left in_progress by an interrupted drain
// to pending. Their retry count is untouched; the interrupted attempt was
// never recorded as a failure. Returns the number of items recovered.
func (q *Queue) RecoverStranded(ctx context.Context) (int, error) {
	n, err := q.store.ResetQueueStatus(ctx, string(StatusInProgress), string(StatusPending), q.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		q.bus.Publish(events.QueueUpdated)
	}
	return n, nil
}

// PurgeCompleted removes completed items older than CompletedRetention.
func (q *Queue) PurgeCompleted(ctx context.Context) (int, error) {
	cutoff := q.now().Add(-CompletedRetention)
	n, err := q.store.DeleteQueueRecords(ctx, string(StatusCompleted), cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		q.bus.Publish(events.QueueUpdated)
	}
	return n, nil
}

// PurgeFailed removes all failed items. The operations they carried are
// lost; callers confirm with the user first.
func (q *Queue) PurgeFailed(ctx context.Context) (int, error) {
	n, err := q.store.DeleteQueueRecords(ctx, string(StatusFailed), time.Time{})
	if err != nil {
		return 0, err
	}
	if n > 0 {
		q.bus.Publish(events.QueueUpdated)
	}
	return n, nil
}

// Counts returns item counts per status.
func (q *Queue) Counts(ctx context.Context) (map[Status]int, error) {
	raw, err := q.store.CountQueueByStatus(ctx)
	if err != nil {
		return nil, err
	}
	counts := make(map[Status]int, len(raw))
	for s, n := range raw {
		counts[Status(s)] = n
	}
	return counts, nil
}

// LastSyncedAt returns when the most recent item completed, or the zero
// time when nothing has completed yet (or completions were purged).
func (q *Queue) LastSyncedAt(ctx context.Context) (time.Time, error) {
	return q.store.LastQueueUpdate(ctx, string(StatusCompleted))
}

func (q *Queue) save(ctx context.Context, item *Item) error {
	item.UpdatedAt = q.now()
	rec, err := toRecord(*item)
	if err != nil {
		return err
	}
	if err := q.store.UpdateQueueRecord(ctx, rec); err != nil {
		return err
	}
	q.bus.Publish(events.QueueUpdated)
	return nil
}

func toRecord(item Item) (store.QueueRecord, error) {
	data, err := json.Marshal(item.Payload)
	if err != nil {
		return store.QueueRecord{}, fmt.Errorf("failed to encode queue payload: %w", err)
	}
	return store.QueueRecord{
		ID:         item.ID,
		Type:       string(item.Type),
		Data:       data,
		Status:     string(item.Status),
		RetryCount: item.RetryCount,
		LastError:  item.LastError,
		CreatedAt:  item.CreatedAt,
		UpdatedAt:  item.UpdatedAt,
	}, nil
}

func fromRecord(rec store.QueueRecord) (Item, error) {
	var payload Payload
	if err := json.Unmarshal(rec.Data, &payload); err != nil {
		return Item{}, fmt.Errorf("failed to decode queue payload %s: %w", rec.ID, err)
	}
	return Item{
		ID:         rec.ID,
		Type:       ItemType(rec.Type),
		Payload:    payload,
		Status:     Status(rec.Status),
		RetryCount: rec.RetryCount,
		LastError:  rec.LastError,
		CreatedAt:  rec.CreatedAt,
		UpdatedAt:  rec.UpdatedAt,
	}, nil
}
