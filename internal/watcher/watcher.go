// Package watcher monitors the photo staging directory. Capture tools and
// camera syncs drop image files there; each new file is emitted as an
// event so the daemon can ingest it as a queued photo upload.
package watcher

import (
	"fmt"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// imageSuffixes are the file extensions treated as photos.
var imageSuffixes = []string{".jpg", ".jpeg"}

// PhotoEvent is a new image file appearing in the staging directory.
type PhotoEvent struct {
	// Path is the absolute path to the staged image file.
	Path string
}

// StagingWatcher watches one directory for dropped image files.
// It uses fsnotify for cross-platform file system event monitoring.
type StagingWatcher struct {
	watcher *fsnotify.Watcher
	events  chan PhotoEvent
	errors  chan error
	done    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
	dir     string
}

// New creates a watcher. It must be started with Start() before it will
// emit events.
func New() (*StagingWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &StagingWatcher{
		watcher: watcher,
		events:  make(chan PhotoEvent, 100),
		errors:  make(chan error, 10),
		done:    make(chan struct{}),
	}, nil
}

// Start begins watching dir for new image files.
func (w *StagingWatcher) Start(dir string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("watcher already running")
	}
	w.dir = dir

	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch staging directory %s: %w", dir, err)
	}

	w.running = true
	w.wg.Add(1)
	go w.processEvents()

	return nil
}

// Stop stops watching and cleans up resources. It blocks until the event
// processing goroutine has exited.
func (w *StagingWatcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.mu.Unlock()

	close(w.done)

	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}

	w.wg.Wait()
	close(w.events)
	close(w.errors)

	return nil
}

// Events returns the channel emitting staged-photo notifications.
// Closed when the watcher is stopped.
func (w *StagingWatcher) Events() <-chan PhotoEvent {
	return w.events
}

// Errors returns the channel emitting watch errors.
// Closed when the watcher is stopped.
func (w *StagingWatcher) Errors() <-chan error {
	return w.errors
}

// IsRunning reports whether the watcher is active.
func (w *StagingWatcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *StagingWatcher) processEvents() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			if photoEvent, ok := convertEvent(event); ok {
				select {
				case w.events <- photoEvent:
				case <-w.done:
					return
				}
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}

			select {
			case w.errors <- err:
			case <-w.done:
				return
			}
		}
	}
}

// convertEvent filters fsnotify events down to new image drops. Create
// and rename-into-place are the ingestion signals; writes to an already
// seen file are ignored so a photo is not ingested twice.
func convertEvent(event fsnotify.Event) (PhotoEvent, bool) {
	if !isImage(event.Name) {
		return PhotoEvent{}, false
	}

	switch {
	case event.Has(fsnotify.Create):
	case event.Has(fsnotify.Rename):
	default:
		return PhotoEvent{}, false
	}

	return PhotoEvent{Path: event.Name}, true
}

func isImage(path string) bool {
	lower := strings.ToLower(path)
	for _, suffix := range imageSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return false
}
