package ui

import (
	"sync"
	"time"

	"logdash/internal/render"
)

// EventType names a dashboard push message.
type EventType string

const (
	EventView  EventType = "view"
	EventRange EventType = "range"
)

// Event is a message pushed to websocket subscribers.
type Event struct {
	Type      EventType    `json:"type"`
	Timestamp time.Time    `json:"timestamp"`
	View      *render.View `json:"view,omitempty"`
	Range     *RangeBody   `json:"range,omitempty"`
}

// Bus fans events out to subscribers. Publishing never blocks: a full buffer
// or a slow subscriber drops the event.
type Bus struct {
	events      chan Event
	subscribers map[chan Event]struct{}
	mu          sync.RWMutex
	shutdown    chan struct{}
	once        sync.Once
}

// NewBus creates a bus with the given publish buffer.
func NewBus(bufferSize int) *Bus {
	b := &Bus{
		events:      make(chan Event, bufferSize),
		subscribers: make(map[chan Event]struct{}),
		shutdown:    make(chan struct{}),
	}
	go b.forward()
	return b
}

func (b *Bus) forward() {
	for {
		select {
		case ev, ok := <-b.events:
			if !ok {
				return
			}
			b.mu.RLock()
			for ch := range b.subscribers {
				select {
				case ch <- ev:
				default:
				}
			}
			b.mu.RUnlock()
		case <-b.shutdown:
			return
		}
	}
}

// Publish sends a view update. It satisfies refresh.Publisher.
func (b *Bus) Publish(v render.View) {
	b.send(Event{Type: EventView, Timestamp: time.Now(), View: &v})
}

// PublishRange announces a new range selection; nil means cleared.
func (b *Bus) PublishRange(r *RangeBody) {
	if r == nil {
		r = &RangeBody{}
	}
	b.send(Event{Type: EventRange, Timestamp: time.Now(), Range: r})
}

func (b *Bus) send(ev Event) {
	select {
	case <-b.shutdown:
		return
	default:
	}
	select {
	case b.events <- ev:
	default:
	}
}

// Subscribe returns a channel receiving subsequent events.
func (b *Bus) Subscribe() chan Event {
	ch := make(chan Event, 8)
	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes ch.
func (b *Bus) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	if _, ok := b.subscribers[ch]; ok {
		delete(b.subscribers, ch)
		close(ch)
	}
	b.mu.Unlock()
}

// Subscribers is the current subscriber count.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Shutdown stops forwarding and closes every subscriber channel.
func (b *Bus) Shutdown() {
	b.once.Do(func() {
		close(b.shutdown)

		b.mu.Lock()
		for ch := range b.subscribers {
			close(ch)
		}
		b.subscribers = make(map[chan Event]struct{})
		b.mu.Unlock()
	})
}
