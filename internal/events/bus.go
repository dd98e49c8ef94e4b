// Package events provides the in-process, fire-and-forget notification
// bus connecting the sync queue, the connectivity monitor, the engine,
// and status observers. Events are not persisted and carry no payload;
// observers re-read state through the store.
package events

import "sync"

// Topic names a process-wide event.
type Topic string

const (
	// QueueUpdated fires after every mutating sync-queue operation.
	QueueUpdated Topic = "sync-queue-updated"

	// OnlineRestored fires exactly once per offline-to-online transition.
	OnlineRestored Topic = "online-restored"

	// Offline fires once per online-to-offline transition.
	Offline Topic = "offline"

	// TriggerSync requests a queue drain (manual or defensive trigger).
	TriggerSync Topic = "trigger-sync"
)

// Bus fans out topics to subscribers over buffered channels. Publish never
// blocks: a subscriber that falls behind misses the edge but can recover
// state from the store, so dropped notifications are acceptable.
type Bus struct {
	mu   sync.Mutex
	next int
	subs map[int]subscription
}

type subscription struct {
	ch     chan Topic
	topics map[Topic]bool // nil means all topics
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]subscription)}
}

// Subscribe returns a channel receiving the given topics (all topics when
// none are named) and a cancel function that must be called to release the
// subscription.
func (b *Bus) Subscribe(topics ...Topic) (<-chan Topic, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var filter map[Topic]bool
	if len(topics) > 0 {
		filter = make(map[Topic]bool, len(topics))
		for _, t := range topics {
			filter[t] = true
		}
	}

	id := b.next
	b.next++
	ch := make(chan Topic, 16)
	b.subs[id] = subscription{ch: ch, topics: filter}

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub.ch)
		}
	}
	return ch, cancel
}

// Publish delivers t to every matching subscriber without blocking.
func (b *Bus) Publish(t Topic) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sub := range b.subs {
		if sub.topics != nil && !sub.topics[t] {
			continue
		}
		select {
		case sub.ch <- t:
		default:
			// Subscriber is behind; it will re-read state on its next event.
		}
	}
}
