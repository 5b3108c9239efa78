package events

import (
	"log"
	"sync"
)

// Bus fans published events out to subscribers. Publish never blocks: a
// subscriber whose buffer is full misses the event.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]chan Event
	closed bool
}

// NewBus returns an empty Bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe registers a new observer. The returned cancel func removes the
// subscription and closes the channel.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
			b.mu.Unlock()
		})
	}
}

// Subscribers returns the number of live subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Publish delivers ev to every subscriber with room in its buffer.
func (b *Bus) Publish(ev Event) {
	if b == nil || ev == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			log.Printf("events: subscriber %d full, dropping %s", id, ev.Kind())
		}
	}
}

// Close closes all subscriber channels. Later publishes are no-ops.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
