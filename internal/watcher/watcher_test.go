package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcherEmitsNewImages(t *testing.T) {
	dir := t.TempDir()

	w, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := w.Start(dir); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer w.Stop()

	path := filepath.Join(dir, "IMG_0001.jpg")
	if err := os.WriteFile(path, []byte{0xff, 0xd8, 0xff}, 0644); err != nil {
		t.Fatalf("failed to write image: %v", err)
	}

	select {
	case event := <-w.Events():
		if event.Path != path {
			t.Errorf("event path = %q, want %q", event.Path, path)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no event for new image")
	}
}

func TestWatcherIgnoresNonImages(t *testing.T) {
	dir := t.TempDir()

	w, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := w.Start(dir); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	select {
	case event := <-w.Events():
		t.Errorf("unexpected event for non-image: %+v", event)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWatcherStopIdempotent(t *testing.T) {
	w, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := w.Start(t.TempDir()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if err := w.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := w.Stop(); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}
	if w.IsRunning() {
		t.Errorf("watcher still reports running")
	}
}

func TestStartTwiceFails(t *testing.T) {
	w, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	dir := t.TempDir()
	if err := w.Start(dir); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer w.Stop()

	if err := w.Start(dir); err == nil {
		t.Errorf("second Start() should fail")
	}
}
