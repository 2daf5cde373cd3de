// Package events provides the in-process bus carrying flight-status
// resolutions from the oracle service to boundary subscribers.
package events

import (
	"sync"
	"time"

	"github.com/skysurety/service_layer/internal/app/domain/flight"
)

// FlightStatus is published exactly once per resolved oracle request.
type FlightStatus struct {
	Flight     flight.Key        `json:"flight"`
	Status     flight.StatusCode `json:"status"`
	Delayed    bool              `json:"delayed"`
	ResolvedAt time.Time         `json:"resolved_at"`
}

// Bus fans FlightStatus events out to subscribers. Publishing never blocks:
// a subscriber that falls behind loses events rather than stalling the
// consensus path.
type Bus struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan FlightStatus
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan FlightStatus)}
}

// Subscribe registers a buffered subscriber channel. The returned cancel
// function removes the subscription and closes the channel.
func (b *Bus) Subscribe() (<-chan FlightStatus, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan FlightStatus, 16)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if existing, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(existing)
		}
	}
	return ch, cancel
}

// Publish delivers the event to every subscriber with room in its buffer.
func (b *Bus) Publish(evt FlightStatus) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		select {
		case ch <- evt:
		default:
		}
	}
}
