package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/cometa-fiber/fieldsync/internal/auth"
	"github.com/cometa-fiber/fieldsync/internal/blob"
	"github.com/cometa-fiber/fieldsync/internal/config"
	"github.com/cometa-fiber/fieldsync/internal/engine"
	"github.com/cometa-fiber/fieldsync/internal/events"
	"github.com/cometa-fiber/fieldsync/internal/netmon"
	"github.com/cometa-fiber/fieldsync/internal/queue"
	"github.com/cometa-fiber/fieldsync/internal/remote"
	"github.com/cometa-fiber/fieldsync/internal/service"
	"github.com/cometa-fiber/fieldsync/internal/store"
)

// app bundles the wired subsystems for one CLI invocation.
type app struct {
	cfg     *config.Config
	store   *store.Store
	bus     *events.Bus
	queue   *queue.Queue
	auth    *auth.Manager
	remote  *remote.Client
	monitor *netmon.Monitor
	svc     *service.Service
}

// openApp loads config and opens the mirror. Network subsystems are
// constructed but not probed; commands decide when to touch the remote.
func openApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	s, err := store.Open(cfg.DBPath())
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		s.Close()
		return nil, err
	}

	bus := events.NewBus()
	q := queue.New(s, bus)
	am := auth.NewManager(cfg.RemoteURL, cfg.APIKey, cfg.SessionPath())
	rc := remote.New(cfg.RemoteURL, cfg.APIKey, am)
	monitor := netmon.New(bus)
	svc := service.New(s, q, rc, bus, monitor)

	return &app{
		cfg:     cfg,
		store:   s,
		bus:     bus,
		queue:   q,
		auth:    am,
		remote:  rc,
		monitor: monitor,
		svc:     svc,
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to close mirror: %v\n", err)
	}
}

// session returns the cached session or exits with a login hint.
func (a *app) session() *auth.Session {
	session, err := a.auth.Current()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return session
}

// probe checks reachability once and records it on the monitor.
func (a *app) probe(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	err := a.remote.Ping(probeCtx)
	a.monitor.Set(err == nil)
	return err == nil
}

// drain flushes the queue if the remote is reachable. Photo uploads need
// the blob store; when it is not configured or unreachable those items
// fail their attempt and stay queued.
func (a *app) drain(ctx context.Context) {
	if !a.probe(ctx) {
		fmt.Println("offline; changes queued for later sync")
		return
	}

	var blobs engine.BlobStore
	if bs := a.openBlobs(ctx); bs != nil {
		blobs = bs
	} else {
		blobs = unavailableBlobs{err: fmt.Errorf("blob store not available")}
	}

	engine.New(a.queue, a.store, a.remote, blobs).Drain(ctx)
}

// openBlobs connects to the configured blob store, or returns nil when
// it is unconfigured or unreachable.
func (a *app) openBlobs(ctx context.Context) *blob.Store {
	if a.cfg.Blob.Endpoint == "" {
		return nil
	}
	bs, err := blob.New(ctx, blob.Config{
		Endpoint:      a.cfg.Blob.Endpoint,
		AccessKey:     a.cfg.Blob.AccessKey,
		SecretKey:     a.cfg.Blob.SecretKey,
		Bucket:        a.cfg.Blob.Bucket,
		UseSSL:        a.cfg.Blob.UseSSL,
		PublicBaseURL: a.cfg.Blob.PublicBaseURL,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: blob store unavailable: %v\n", err)
		return nil
	}
	return bs
}

type unavailableBlobs struct{ err error }

func (u unavailableBlobs) Upload(ctx context.Context, path string, data []byte, contentType string) error {
	return u.err
}
