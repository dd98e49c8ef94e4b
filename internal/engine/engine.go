// Package engine drains the sync queue against the remote store. One
// drain pass walks pending items in FIFO order, pushes each operation
// remotely, and refreshes the local mirror on success.
//
// Drain is re-entrancy guarded: concurrent calls coalesce into the
// running pass plus at most one follow-up pass, so a burst of triggers
// (reconnect, enqueue, manual) never runs overlapping drains.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"os"
	"sync"
	"time"

	"github.com/cometa-fiber/fieldsync/internal/blob"
	"github.com/cometa-fiber/fieldsync/internal/queue"
	"github.com/cometa-fiber/fieldsync/internal/remote"
	"github.com/cometa-fiber/fieldsync/internal/store"
	"github.com/cometa-fiber/fieldsync/internal/transform"
)

// RemoteStore is the remote surface the engine needs.
type RemoteStore interface {
	Upsert(ctx context.Context, table string, rows []remote.Record) error
}

// BlobStore is the binary-upload surface the engine needs.
type BlobStore interface {
	Upload(ctx context.Context, path string, data []byte, contentType string) error
}

// Engine processes queued sync operations.
type Engine struct {
	queue  *queue.Queue
	store  *store.Store
	remote RemoteStore
	blobs  BlobStore
	logger *log.Logger

	mu      sync.Mutex
	running bool
	rerun   bool

	// sleep is swappable for tests.
	sleep func(ctx context.Context, d time.Duration)
}

// New creates an engine over the given queue, mirror, and remote stores.
func New(q *queue.Queue, s *store.Store, r RemoteStore, b BlobStore) *Engine {
	return &Engine{
		queue:  q,
		store:  s,
		remote: r,
		blobs:  b,
		logger: log.New(os.Stderr, "[sync] ", log.LstdFlags),
		sleep:  sleepCtx,
	}
}

// Stats summarizes one Drain call: items confirmed remotely, items
// parked as failed after exhausting their retry budget, and elapsed
// wall time. A coalesced call reports zero stats; the running call
// accounts for the work.
type Stats struct {
	Completed int
	Failed    int
	Elapsed   time.Duration
}

// Backoff returns the delay before the next attempt after retryCount
// failures: exponential from 2s, capped at 30s, with ±50% jitter so
// reconnecting clients don't stampede the remote in lockstep.
func Backoff(retryCount int) time.Duration {
	base := 2 * time.Second << uint(retryCount)
	if base > 30*time.Second {
		base = 30 * time.Second
	}
	jitter := time.Duration(rand.Int63n(int64(base)))
	return base/2 + jitter/2
}

// Drain processes pending items until the queue is empty or every
// remaining item has parked as failed, and reports the outcome. If
// called while a pass is already running it requests one follow-up pass
// and returns immediately with zero stats.
func (e *Engine) Drain(ctx context.Context) Stats {
	e.mu.Lock()
	if e.running {
		e.rerun = true
		e.mu.Unlock()
		return Stats{}
	}
	e.running = true
	e.mu.Unlock()

	start := time.Now()
	var stats Stats

	// Items left in_progress by an interrupted drain would otherwise be
	// stranded: neither pending nor failed, so never picked up again.
	if n, err := e.queue.RecoverStranded(ctx); err != nil {
		e.logger.Printf("failed to recover stranded items: %v", err)
	} else if n > 0 {
		e.logger.Printf("recovered %d item(s) from an interrupted drain", n)
	}

	for {
		completed, failed := e.drainPass(ctx)
		stats.Completed += completed
		stats.Failed += failed

		e.mu.Lock()
		if !e.rerun || ctx.Err() != nil {
			e.running = false
			e.mu.Unlock()
			stats.Elapsed = time.Since(start)
			return stats
		}
		e.rerun = false
		e.mu.Unlock()
	}
}

func (e *Engine) drainPass(ctx context.Context) (completed, failed int) {
	for attempt := 0; ; attempt++ {
		if ctx.Err() != nil {
			return completed, failed
		}

		pending, err := e.queue.ListPending(ctx)
		if err != nil {
			e.logger.Printf("failed to list pending items: %v", err)
			return completed, failed
		}
		if len(pending) == 0 {
			return completed, failed
		}
		if attempt > 0 {
			// Everything left already failed once this pass; back off
			// before burning another retry.
			e.sleep(ctx, Backoff(pending[0].RetryCount))
			if ctx.Err() != nil {
				return completed, failed
			}
		}

		var progressed bool
		for i := range pending {
			item := &pending[i]
			if err := e.queue.MarkInProgress(ctx, item); err != nil {
				e.logger.Printf("failed to mark %s in progress: %v", item.ID, err)
				return completed, failed
			}

			if err := e.process(ctx, item); err != nil {
				e.logger.Printf("item %s (%s) attempt %d failed: %v",
					item.ID, item.Type, item.RetryCount+1, err)
				if markErr := e.queue.MarkFailed(ctx, item, err); markErr != nil {
					e.logger.Printf("failed to record failure for %s: %v", item.ID, markErr)
					return completed, failed
				}
				if item.Status == queue.StatusFailed {
					failed++
				}
				var re *remote.Error
				if errors.As(err, &re) && re.Kind == remote.KindAuth {
					// A dead session fails every remaining item the same
					// way; stop instead of draining their retry budgets.
					return completed, failed
				}
				continue
			}

			if err := e.queue.MarkCompleted(ctx, item); err != nil {
				e.logger.Printf("failed to mark %s completed: %v", item.ID, err)
				return completed, failed
			}
			completed++
			progressed = true
		}

		if !progressed && attempt >= queue.MaxRetries {
			return completed, failed
		}
	}
}

func (e *Engine) process(ctx context.Context, item *queue.Item) error {
	switch item.Type {
	case queue.TypeWorkEntry:
		if item.Payload.WorkEntry == nil {
			return fmt.Errorf("work_entry item %s has no payload", item.ID)
		}
		return e.pushWorkEntry(ctx, *item.Payload.WorkEntry)
	case queue.TypePhoto:
		if item.Payload.Photo == nil {
			return fmt.Errorf("photo item %s has no payload", item.ID)
		}
		return e.pushPhoto(ctx, item)
	default:
		return fmt.Errorf("unknown item type %q", item.Type)
	}
}

func (e *Engine) pushWorkEntry(ctx context.Context, m queue.WorkEntryMutation) error {
	rec := transform.StripUnset(transform.WorkEntryToRemote(m.Entry))
	if m.ClearRejection {
		// Explicit nulls: the remote columns must be cleared, not left as
		// they were.
		rec["rejection_reason"] = nil
		rec["rejected_by"] = nil
		rec["rejected_at"] = nil
		rec["approved"] = false
	}

	if err := e.remote.Upsert(ctx, "work_entries", []remote.Record{rec}); err != nil {
		return err
	}

	entry := m.Entry
	if m.ClearRejection {
		entry.ClearRejection()
	}
	if err := e.store.UpsertWorkEntry(ctx, entry); err != nil {
		return fmt.Errorf("remote write landed but mirror refresh failed: %w", err)
	}
	return nil
}

func (e *Engine) pushPhoto(ctx context.Context, item *queue.Item) error {
	u := item.Payload.Photo

	if !u.Photo.Uploaded() {
		workEntryID := ""
		if u.Photo.WorkEntryID != nil {
			workEntryID = *u.Photo.WorkEntryID
		}
		path := blob.PhotoPath(u.ProjectID, workEntryID, u.Photo.ID)

		if err := e.blobs.Upload(ctx, path, u.Data, u.ContentType); err != nil {
			return err
		}

		// Persist the progress: if the record insert below fails, the
		// retry skips the upload. The path is id-derived, so even a lost
		// payload update just re-uploads to the same key.
		u.Photo.URL = path
		u.Data = nil
		if err := e.queue.UpdatePayload(ctx, item); err != nil {
			e.logger.Printf("failed to persist upload progress for %s: %v", item.ID, err)
		}
	}

	rec := transform.StripUnset(transform.PhotoToRemote(u.Photo))
	if err := e.remote.Upsert(ctx, "photos", []remote.Record{rec}); err != nil {
		return err
	}

	if err := e.store.UpsertPhoto(ctx, u.Photo); err != nil {
		return fmt.Errorf("remote write landed but mirror refresh failed: %w", err)
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
