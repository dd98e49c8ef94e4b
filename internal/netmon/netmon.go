// Package netmon tracks remote reachability as a two-state flag and turns
// level changes into edge events on the bus. It does no probing itself:
// callers feed it observations (probe results, request outcomes) and it
// publishes online-restored or offline exactly once per transition.
package netmon

import (
	"context"
	"log"
	"os"
	"sync"

	"github.com/cometa-fiber/fieldsync/internal/events"
)

// Monitor is the edge-triggered connectivity state holder.
type Monitor struct {
	bus    *events.Bus
	logger *log.Logger

	mu     sync.Mutex
	online bool
}

// New creates a monitor that starts offline. The first positive
// observation publishes online-restored.
func New(bus *events.Bus) *Monitor {
	return &Monitor{
		bus:    bus,
		logger: log.New(os.Stderr, "[netmon] ", log.LstdFlags),
	}
}

// Online reports the current state.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Set records an observation. Repeated observations of the same state are
// absorbed; only a transition publishes an event.
func (m *Monitor) Set(online bool) {
	m.mu.Lock()
	changed := m.online != online
	m.online = online
	m.mu.Unlock()

	if !changed {
		return
	}
	if online {
		m.logger.Printf("connectivity restored")
		m.bus.Publish(events.OnlineRestored)
	} else {
		m.logger.Printf("connectivity lost")
		m.bus.Publish(events.Offline)
	}
}

// Run consumes a stream of observations until the stream closes or the
// context ends. The signal source is injected so probing strategy stays
// outside the monitor.
func (m *Monitor) Run(ctx context.Context, signal <-chan bool) {
	for {
		select {
		case <-ctx.Done():
			return
		case online, ok := <-signal:
			if !ok {
				return
			}
			m.Set(online)
		}
	}
}
