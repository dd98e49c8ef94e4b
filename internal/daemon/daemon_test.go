package daemon

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cometa-fiber/fieldsync/internal/engine"
	"github.com/cometa-fiber/fieldsync/internal/events"
	"github.com/cometa-fiber/fieldsync/internal/netmon"
)

type fakePinger struct {
	mu  sync.Mutex
	err error
}

func (f *fakePinger) Ping(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func (f *fakePinger) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

type fakeDrainer struct {
	drains atomic.Int32
}

func (f *fakeDrainer) Drain(ctx context.Context) engine.Stats {
	f.drains.Add(1)
	return engine.Stats{Completed: 1, Elapsed: time.Millisecond}
}

type fakePurger struct {
	purges atomic.Int32
}

func (f *fakePurger) PurgeCompleted(ctx context.Context) (int, error) {
	f.purges.Add(1)
	return 0, nil
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestReconnectTriggersDrain(t *testing.T) {
	bus := events.NewBus()
	monitor := netmon.New(bus)
	pinger := &fakePinger{err: errors.New("unreachable")}
	drainer := &fakeDrainer{}
	purger := &fakePurger{}

	cfg := DefaultConfig()
	cfg.ProbeInterval = 10 * time.Millisecond
	d := New(cfg, bus, monitor, pinger, drainer, purger, nil, nil)

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer d.Stop()

	// Offline probes must not drain.
	time.Sleep(50 * time.Millisecond)
	if got := drainer.drains.Load(); got != 0 {
		t.Fatalf("drained %d times while offline", got)
	}

	// Connectivity returns; the edge should trigger a drain.
	pinger.setErr(nil)
	waitFor(t, 2*time.Second, func() bool { return drainer.drains.Load() >= 1 })
	if !monitor.Online() {
		t.Errorf("monitor should be online")
	}
}

func TestTriggerSyncDrainsOnlyWhenOnline(t *testing.T) {
	bus := events.NewBus()
	monitor := netmon.New(bus)
	pinger := &fakePinger{err: errors.New("unreachable")}
	drainer := &fakeDrainer{}

	cfg := DefaultConfig()
	cfg.ProbeInterval = time.Hour // keep probes out of the way
	d := New(cfg, bus, monitor, pinger, drainer, &fakePurger{}, nil, nil)

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer d.Stop()

	// Offline: a manual trigger is absorbed.
	bus.Publish(events.TriggerSync)
	time.Sleep(50 * time.Millisecond)
	if got := drainer.drains.Load(); got != 0 {
		t.Fatalf("drained %d times while offline", got)
	}

	// Online: the same trigger drains. Set directly; the monitor publishes
	// the reconnect edge which also drains, so expect at least one.
	monitor.Set(true)
	bus.Publish(events.TriggerSync)
	waitFor(t, 2*time.Second, func() bool { return drainer.drains.Load() >= 1 })
}

func TestPurgeLoopRuns(t *testing.T) {
	bus := events.NewBus()
	monitor := netmon.New(bus)
	purger := &fakePurger{}

	cfg := DefaultConfig()
	cfg.ProbeInterval = time.Hour
	cfg.PurgeInterval = 10 * time.Millisecond
	d := New(cfg, bus, monitor, &fakePinger{}, &fakeDrainer{}, purger, nil, nil)

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer d.Stop()

	waitFor(t, 2*time.Second, func() bool { return purger.purges.Load() >= 2 })
}

func TestStartTwiceFails(t *testing.T) {
	bus := events.NewBus()
	d := New(DefaultConfig(), bus, netmon.New(bus), &fakePinger{}, &fakeDrainer{}, &fakePurger{}, nil, nil)

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer d.Stop()

	if err := d.Start(context.Background()); err == nil {
		t.Errorf("second Start() should fail")
	}
}

func TestStopDuringTriggerBurst(t *testing.T) {
	bus := events.NewBus()
	monitor := netmon.New(bus)
	drainer := &fakeDrainer{}

	cfg := DefaultConfig()
	cfg.ProbeInterval = time.Hour
	d := New(cfg, bus, monitor, &fakePinger{}, drainer, &fakePurger{}, nil, nil)

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	monitor.Set(true)

	// Shutdown while triggers are still arriving must not race the
	// daemon's goroutine accounting.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			bus.Publish(events.TriggerSync)
		}
	}()
	time.Sleep(5 * time.Millisecond)
	d.Stop()
	<-done
}

func TestStopIdempotent(t *testing.T) {
	bus := events.NewBus()
	d := New(DefaultConfig(), bus, netmon.New(bus), &fakePinger{}, &fakeDrainer{}, &fakePurger{}, nil, nil)

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	d.Stop()
	d.Stop() // no panic, no hang
}
