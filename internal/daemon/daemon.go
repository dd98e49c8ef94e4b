// Package daemon runs the background sync process: it probes remote
// reachability, drains the queue on reconnect and on demand, purges old
// queue items, ingests staged photos, and feeds the dashboard.
package daemon

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cometa-fiber/fieldsync/internal/dashboard"
	"github.com/cometa-fiber/fieldsync/internal/engine"
	"github.com/cometa-fiber/fieldsync/internal/events"
	"github.com/cometa-fiber/fieldsync/internal/model"
	"github.com/cometa-fiber/fieldsync/internal/netmon"
	"github.com/cometa-fiber/fieldsync/internal/service"
	"github.com/cometa-fiber/fieldsync/internal/watcher"
)

// Pinger probes remote reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Drainer drains the sync queue and reports the outcome.
type Drainer interface {
	Drain(ctx context.Context) engine.Stats
}

// Purger removes expired completed queue items.
type Purger interface {
	PurgeCompleted(ctx context.Context) (int, error)
}

// Config holds daemon settings.
type Config struct {
	// ProbeInterval is how often reachability is probed.
	ProbeInterval time.Duration

	// PurgeInterval is how often completed queue items are purged.
	PurgeInterval time.Duration

	// StagingDir is watched for dropped photo files; empty disables it.
	StagingDir string

	// StagingProjectID and StagingUserID attribute ingested photos.
	StagingProjectID string
	StagingUserID    string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ProbeInterval: 30 * time.Second,
		PurgeInterval: time.Hour,
	}
}

// Daemon wires the sync subsystem's long-running loops together.
type Daemon struct {
	cfg     Config
	bus     *events.Bus
	monitor *netmon.Monitor
	pinger  Pinger
	drainer Drainer
	purger  Purger
	svc     *service.Service
	board   *dashboard.Handler
	logger  *log.Logger

	drainReq chan struct{}

	wg     sync.WaitGroup
	cancel context.CancelFunc
	mu     sync.Mutex
}

// New creates a daemon. board may be nil when no dashboard is served.
func New(cfg Config, bus *events.Bus, monitor *netmon.Monitor, pinger Pinger,
	drainer Drainer, purger Purger, svc *service.Service, board *dashboard.Handler) *Daemon {
	if cfg.ProbeInterval <= 0 {
		cfg.ProbeInterval = DefaultConfig().ProbeInterval
	}
	if cfg.PurgeInterval <= 0 {
		cfg.PurgeInterval = DefaultConfig().PurgeInterval
	}
	return &Daemon{
		cfg:     cfg,
		bus:     bus,
		monitor: monitor,
		pinger:  pinger,
		drainer: drainer,
		purger:  purger,
		svc:     svc,
		board:   board,
		logger:  log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// Start launches the daemon's loops. Call Stop to shut down.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		return fmt.Errorf("daemon already running")
	}
	ctx, d.cancel = context.WithCancel(ctx)

	signal := make(chan bool, 1)
	d.drainReq = make(chan struct{}, 1)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.drainWorker(ctx)
	}()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.probeLoop(ctx, signal)
	}()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.monitor.Run(ctx, signal)
	}()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.eventLoop(ctx)
	}()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.purgeLoop(ctx)
	}()

	if d.cfg.StagingDir != "" {
		w, err := watcher.New()
		if err != nil {
			d.cancel()
			return err
		}
		if err := w.Start(d.cfg.StagingDir); err != nil {
			d.cancel()
			return err
		}
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			defer w.Stop()
			d.ingestLoop(ctx, w)
		}()
	}

	d.logger.Printf("started (probe every %v, purge every %v)",
		d.cfg.ProbeInterval, d.cfg.PurgeInterval)
	return nil
}

// Stop shuts the daemon down and waits for its loops.
func (d *Daemon) Stop() {
	d.mu.Lock()
	cancel := d.cancel
	d.cancel = nil
	d.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	d.wg.Wait()
	d.logger.Printf("stopped")
}

// probeLoop feeds reachability observations to the monitor.
func (d *Daemon) probeLoop(ctx context.Context, signal chan<- bool) {
	defer close(signal)

	probe := func() {
		probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := d.pinger.Ping(probeCtx)
		cancel()
		select {
		case signal <- err == nil:
		case <-ctx.Done():
		}
	}

	probe()
	ticker := time.NewTicker(d.cfg.ProbeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			probe()
		}
	}
}

// eventLoop reacts to bus events: drains on reconnect and on request,
// feeds the dashboard on queue changes and connectivity edges.
func (d *Daemon) eventLoop(ctx context.Context) {
	ch, unsubscribe := d.bus.Subscribe(
		events.OnlineRestored, events.Offline,
		events.TriggerSync, events.QueueUpdated)
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case topic, ok := <-ch:
			if !ok {
				return
			}
			switch topic {
			case events.OnlineRestored:
				if d.board != nil {
					d.board.OnConnectivityChanged(true)
				}
				d.requestDrain()
			case events.Offline:
				if d.board != nil {
					d.board.OnConnectivityChanged(false)
				}
			case events.TriggerSync:
				if d.monitor.Online() {
					d.requestDrain()
				}
			case events.QueueUpdated:
				if d.board != nil {
					d.board.OnQueueUpdated(ctx)
				}
			}
		}
	}
}

// requestDrain asks the drain worker for a pass without blocking the
// event loop. A burst of triggers collapses into the buffered request.
func (d *Daemon) requestDrain() {
	select {
	case d.drainReq <- struct{}{}:
	default:
	}
}

// drainWorker runs queue drains one at a time and feeds each outcome to
// the dashboard. Single goroutine started in Start, so Stop's wait never
// races a late drain spawn.
func (d *Daemon) drainWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.drainReq:
			stats := d.drainer.Drain(ctx)
			if stats.Completed+stats.Failed > 0 {
				d.logger.Printf("drain finished: %d synced, %d failed in %v",
					stats.Completed, stats.Failed, stats.Elapsed)
			}
			if d.board != nil && stats.Completed+stats.Failed > 0 {
				d.board.OnDrainComplete(stats.Completed, stats.Failed, stats.Elapsed)
			}
		}
	}
}

// purgeLoop removes expired completed queue items.
func (d *Daemon) purgeLoop(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.PurgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := d.purger.PurgeCompleted(ctx)
			if err != nil {
				d.logger.Printf("purge failed: %v", err)
				continue
			}
			if n > 0 {
				d.logger.Printf("purged %d completed queue items", n)
			}
		}
	}
}

// ingestLoop turns staged image files into queued photo uploads. The file
// is removed after it is safely in the durable queue.
func (d *Daemon) ingestLoop(ctx context.Context, w *watcher.StagingWatcher) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-w.Errors():
			if !ok {
				return
			}
			d.logger.Printf("staging watch error: %v", err)
		case event, ok := <-w.Events():
			if !ok {
				return
			}
			if err := d.ingest(ctx, event.Path); err != nil {
				d.logger.Printf("failed to ingest %s: %v", event.Path, err)
			}
		}
	}
}

func (d *Daemon) ingest(ctx context.Context, path string) error {
	// Writers may still be flushing when the create event fires.
	time.Sleep(200 * time.Millisecond)

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read staged photo: %w", err)
	}
	if len(data) == 0 {
		return fmt.Errorf("staged photo %s is empty", path)
	}

	contentType := "image/jpeg"
	photo := model.Photo{
		AuthorUserID: optional(d.cfg.StagingUserID),
	}
	if _, err := d.svc.AddPhoto(ctx, photo, d.cfg.StagingProjectID, data, contentType); err != nil {
		return err
	}

	if err := os.Remove(path); err != nil {
		d.logger.Printf("failed to remove staged file %s: %v", path, err)
	}
	d.logger.Printf("ingested staged photo %s (%d bytes)", filepath.Base(path), len(data))
	return nil
}

func optional(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}
