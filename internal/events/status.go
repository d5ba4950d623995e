// Package events carries loop status to dashboard subscribers.
package events

import (
	"sync"
	"time"
)

// StatusEvent is published once per tick after the equity snapshot.
// Money fields are strings so UI consumers never see float rounding.
type StatusEvent struct {
	Timestamp     time.Time `json:"ts"`
	Mode          string    `json:"mode"`
	Equity        string    `json:"equity"`
	Paused        bool      `json:"paused"`
	OpenPositions int       `json:"open_positions"`
	DailyLossPct  float64   `json:"daily_loss_pct"`
	Strategy      string    `json:"strategy"`
	// Prices last close per symbol seen this tick.
	Prices map[string]string `json:"prices,omitempty"`
}

// StatusBroadcaster fans out events to all subscribers via buffered channels.
type StatusBroadcaster struct {
	mu     sync.RWMutex
	subs   map[chan StatusEvent]struct{}
	buffer int
	last   *StatusEvent
}

// NewStatusBroadcaster creates a broadcaster with the given per-subscriber buffer.
func NewStatusBroadcaster(buffer int) *StatusBroadcaster {
	if buffer < 1 {
		buffer = 64
	}
	return &StatusBroadcaster{
		subs:   make(map[chan StatusEvent]struct{}),
		buffer: buffer,
	}
}

// Publish sends the event to all subscribers, dropping it for slow readers.
func (b *StatusBroadcaster) Publish(e StatusEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.last = &e
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
			// drop slow consumer
		}
	}
}

// Last returns the most recently published event.
func (b *StatusBroadcaster) Last() (StatusEvent, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.last == nil {
		return StatusEvent{}, false
	}
	return *b.last, true
}

// Subscribe returns a channel that receives events until Unsubscribe is called.
func (b *StatusBroadcaster) Subscribe() chan StatusEvent {
	ch := make(chan StatusEvent, b.buffer)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes the channel and closes it.
func (b *StatusBroadcaster) Unsubscribe(ch chan StatusEvent) {
	b.mu.Lock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
	b.mu.Unlock()
}

// Subscribers returns the number of active subscribers.
func (b *StatusBroadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
