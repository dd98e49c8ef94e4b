// Package service implements the application-facing operations: creating
// and amending work entries, attaching photos, the approval workflow, and
// pulling reference data into the mirror.
//
// Writes are optimistic: the mirror is updated first, then the remote
// operation is queued, so readers see their own changes immediately even
// with no connectivity. Reads refresh from the remote when online and
// fall back to the mirror on any failure.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/cometa-fiber/fieldsync/internal/events"
	"github.com/cometa-fiber/fieldsync/internal/model"
	"github.com/cometa-fiber/fieldsync/internal/queue"
	"github.com/cometa-fiber/fieldsync/internal/remote"
	"github.com/cometa-fiber/fieldsync/internal/store"
	"github.com/cometa-fiber/fieldsync/internal/transform"
)

// ErrApproved rejects mutations of approved entries. Checked before any
// queue or remote interaction so the invariant holds offline too.
var ErrApproved = errors.New("entry is approved and immutable")

// ErrNotRejected rejects resubmission of entries that carry no rejection.
var ErrNotRejected = errors.New("entry is not rejected")

// Remote is the direct (non-queued) remote surface the service uses for
// online-only operations and pulls.
type Remote interface {
	Select(ctx context.Context, table, sel string, filter map[string]string) ([]remote.Record, error)
	Update(ctx context.Context, table string, filter map[string]string, patch remote.Record) error
	Delete(ctx context.Context, table string, filter map[string]string) error
}

// Connectivity exposes the current online flag.
type Connectivity interface {
	Online() bool
}

// BlobRemover deletes an uploaded photo binary by storage path.
type BlobRemover interface {
	Remove(ctx context.Context, path string) error
}

// Service bundles the mirror, queue, and remote dependencies.
type Service struct {
	store  *store.Store
	queue  *queue.Queue
	remote Remote
	bus    *events.Bus
	online Connectivity
	blobs  BlobRemover
	logger *log.Logger
	now    func() time.Time
	newID  func() string
}

// New creates a service.
func New(s *store.Store, q *queue.Queue, r Remote, bus *events.Bus, online Connectivity) *Service {
	return &Service{
		store:  s,
		queue:  q,
		remote: r,
		bus:    bus,
		online: online,
		logger: log.New(os.Stderr, "[service] ", log.LstdFlags),
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// SetBlobRemover enables best-effort blob cleanup on photo deletion.
func (s *Service) SetBlobRemover(b BlobRemover) {
	s.blobs = b
}

// CreateEntry validates and stores a new work entry, then queues the
// remote write. Returns the entry with its assigned id.
func (s *Service) CreateEntry(ctx context.Context, entry model.WorkEntry) (*model.WorkEntry, error) {
	if entry.ID == "" {
		entry.ID = s.newID()
	}
	entry.SetDefaults()
	if err := entry.Validate(); err != nil {
		return nil, fmt.Errorf("invalid work entry: %w", err)
	}

	if err := s.store.UpsertWorkEntry(ctx, entry); err != nil {
		return nil, err
	}
	if _, err := s.queue.EnqueueWorkEntry(ctx, queue.WorkEntryMutation{Entry: entry}); err != nil {
		return nil, err
	}
	s.nudgeSync()
	return &entry, nil
}

// UpdateEntry amends an existing entry. Approved entries are immutable;
// the check runs against the mirror before anything is queued.
func (s *Service) UpdateEntry(ctx context.Context, entry model.WorkEntry) error {
	current, err := s.store.GetWorkEntry(ctx, entry.ID)
	if err != nil {
		return err
	}
	if current.Approved {
		return fmt.Errorf("work entry %s: %w", entry.ID, ErrApproved)
	}
	if err := entry.Validate(); err != nil {
		return fmt.Errorf("invalid work entry: %w", err)
	}

	if err := s.store.UpsertWorkEntry(ctx, entry); err != nil {
		return err
	}
	if _, err := s.queue.EnqueueWorkEntry(ctx, queue.WorkEntryMutation{Entry: entry}); err != nil {
		return err
	}
	s.nudgeSync()
	return nil
}

// ResubmitEntry clears an entry's rejection mark and queues a remote
// write that sends explicit nulls for the rejection columns. amend, if
// non-nil, replaces the entry's mutable fields before resubmission.
func (s *Service) ResubmitEntry(ctx context.Context, id string, amend func(*model.WorkEntry)) error {
	entry, err := s.store.GetWorkEntry(ctx, id)
	if err != nil {
		return err
	}
	if entry.Approved {
		return fmt.Errorf("work entry %s: %w", id, ErrApproved)
	}
	if !entry.Rejected() {
		return fmt.Errorf("work entry %s: %w", id, ErrNotRejected)
	}

	if amend != nil {
		amend(entry)
	}
	entry.ClearRejection()
	if err := entry.Validate(); err != nil {
		return fmt.Errorf("invalid work entry: %w", err)
	}

	if err := s.store.UpsertWorkEntry(ctx, *entry); err != nil {
		return err
	}
	if _, err := s.queue.EnqueueWorkEntry(ctx, queue.WorkEntryMutation{
		Entry:          *entry,
		ClearRejection: true,
	}); err != nil {
		return err
	}
	s.nudgeSync()
	return nil
}

// ApproveEntry marks an entry approved. Review actions run against the
// remote directly; reviewers work online.
func (s *Service) ApproveEntry(ctx context.Context, id, approverID string) error {
	entry, err := s.store.GetWorkEntry(ctx, id)
	if err != nil {
		return err
	}
	now := s.now().UTC().Format(time.RFC3339)

	patch := remote.Record{
		"approved":    true,
		"approved_by": approverID,
		"approved_at": now,
	}
	if err := s.remote.Update(ctx, "work_entries", map[string]string{"id": id}, patch); err != nil {
		return err
	}

	entry.Approved = true
	entry.ApprovedBy = &approverID
	entry.ApprovedAt = &now
	return s.store.UpsertWorkEntry(ctx, *entry)
}

// RejectEntry marks an entry rejected with a reason. Like approval this
// is a direct remote write.
func (s *Service) RejectEntry(ctx context.Context, id, reviewerID, reason string) error {
	entry, err := s.store.GetWorkEntry(ctx, id)
	if err != nil {
		return err
	}
	if entry.Approved {
		return fmt.Errorf("work entry %s: %w", id, ErrApproved)
	}
	now := s.now().UTC().Format(time.RFC3339)

	patch := remote.Record{
		"rejection_reason": reason,
		"rejected_by":      reviewerID,
		"rejected_at":      now,
		"approved":         false,
	}
	if err := s.remote.Update(ctx, "work_entries", map[string]string{"id": id}, patch); err != nil {
		return err
	}

	entry.RejectionReason = &reason
	entry.RejectedBy = &reviewerID
	entry.RejectedAt = &now
	entry.Approved = false
	return s.store.UpsertWorkEntry(ctx, *entry)
}

// DeleteEntry removes an entry remotely and from the mirror. Approved
// entries cannot be deleted. Online-only: a queued delete racing a queued
// create is not worth the ordering complexity.
func (s *Service) DeleteEntry(ctx context.Context, id string) error {
	entry, err := s.store.GetWorkEntry(ctx, id)
	if err != nil {
		return err
	}
	if entry.Approved {
		return fmt.Errorf("work entry %s: %w", id, ErrApproved)
	}

	// Dependent photo rows first; the entry row is the parent.
	if err := s.remote.Delete(ctx, "photos", map[string]string{"work_entry_id": id}); err != nil {
		return err
	}
	if err := s.remote.Delete(ctx, "work_entries", map[string]string{"id": id}); err != nil {
		return err
	}
	return s.store.DeleteWorkEntry(ctx, id)
}

// GetEntry reads one entry, refreshing the mirror copy from the remote
// when online. Remote failures fall back to the mirror silently.
func (s *Service) GetEntry(ctx context.Context, id string) (*model.WorkEntry, error) {
	if s.online != nil && s.online.Online() {
		rows, err := s.remote.Select(ctx, "work_entries", "*,photos(*)",
			map[string]string{"id": id})
		if err != nil {
			s.logger.Printf("remote read of entry %s failed, serving mirror: %v", id, err)
		} else if len(rows) > 0 {
			if err := s.cacheEntry(ctx, rows[0]); err != nil {
				return nil, err
			}
		}
	}
	return s.store.GetWorkEntry(ctx, id)
}

// ListEntries reads entries matching f. When online and filtering by
// user, the user's entries are refreshed from the remote first; the
// mirror serves the indexed query either way.
func (s *Service) ListEntries(ctx context.Context, f store.EntryFilter) ([]model.WorkEntry, error) {
	if s.online != nil && s.online.Online() && f.UserID != "" {
		rows, err := s.remote.Select(ctx, "work_entries", "*,photos(*)",
			map[string]string{"user_id": f.UserID})
		if err != nil {
			s.logger.Printf("remote read of entries failed, serving mirror: %v", err)
		} else {
			for _, row := range rows {
				if err := s.cacheEntry(ctx, row); err != nil {
					return nil, err
				}
			}
		}
	}
	return s.store.ListWorkEntries(ctx, f)
}

// cacheEntry mirrors one remote entry row and its embedded photos.
func (s *Service) cacheEntry(ctx context.Context, row remote.Record) error {
	entry := transform.WorkEntryFromRemote(row)
	if err := s.store.UpsertWorkEntry(ctx, entry); err != nil {
		return err
	}
	for _, photo := range entry.Photos {
		if err := s.store.UpsertPhoto(ctx, photo); err != nil {
			return err
		}
	}
	return nil
}

// AddPhoto stores a captured photo with a placeholder URL and queues the
// upload. The record's URL is rewritten to the storage path once the
// binary lands.
func (s *Service) AddPhoto(ctx context.Context, photo model.Photo, projectID string, data []byte, contentType string) (*model.Photo, error) {
	if photo.ID == "" {
		photo.ID = s.newID()
	}
	if photo.TS == "" {
		photo.TS = s.now().UTC().Format(time.RFC3339)
	}
	photo.URL = model.PlaceholderURLPrefix + photo.ID
	if err := photo.Validate(); err != nil {
		return nil, fmt.Errorf("invalid photo: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("photo %s has no image data", photo.ID)
	}

	if err := s.store.UpsertPhoto(ctx, photo); err != nil {
		return nil, err
	}
	if _, err := s.queue.EnqueuePhoto(ctx, queue.PhotoUpload{
		Photo:       photo,
		ProjectID:   projectID,
		Data:        data,
		ContentType: contentType,
	}); err != nil {
		return nil, err
	}
	s.nudgeSync()
	return &photo, nil
}

// LinkPhotos attaches previously unassigned photos to a work entry, in
// the mirror and remotely.
func (s *Service) LinkPhotos(ctx context.Context, photoIDs []string, workEntryID string) error {
	if err := s.store.LinkPhotos(ctx, photoIDs, workEntryID); err != nil {
		return err
	}
	for _, id := range photoIDs {
		err := s.remote.Update(ctx, "photos", map[string]string{"id": id},
			remote.Record{"work_entry_id": workEntryID})
		if err != nil {
			return fmt.Errorf("failed to link photo %s remotely: %w", id, err)
		}
	}
	return nil
}

// DeletePhoto removes a photo record remotely and from the mirror, and
// cleans up the uploaded binary when a blob remover is configured. A
// failed blob removal is logged, not returned; the row deletes are what
// matter for consistency.
func (s *Service) DeletePhoto(ctx context.Context, id string) error {
	photo, err := s.store.GetPhoto(ctx, id)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}

	if err := s.remote.Delete(ctx, "photos", map[string]string{"id": id}); err != nil {
		return err
	}
	if err := s.store.DeletePhoto(ctx, id); err != nil {
		return err
	}

	if s.blobs != nil && photo != nil && photo.Uploaded() {
		if err := s.blobs.Remove(ctx, photo.URL); err != nil {
			s.logger.Printf("failed to remove blob %s: %v", photo.URL, err)
		}
	}
	return nil
}

// ListPhotos reads a work entry's photos from the mirror.
func (s *Service) ListPhotos(ctx context.Context, workEntryID string) ([]model.Photo, error) {
	return s.store.ListPhotosForEntry(ctx, workEntryID)
}

// nudgeSync requests a drain when the remote is reachable. Offline the
// queue simply accumulates until the reconnect edge triggers the drain.
func (s *Service) nudgeSync() {
	if s.online != nil && s.online.Online() {
		s.bus.Publish(events.TriggerSync)
	}
}
