// Package stream provides the broadcast observation stream the manager
// republishes every completed round trip on. It is an explicit,
// constructor-injected primitive with a defined lifecycle: created with the
// manager, closed by its dispose.
package stream

import (
	"sync"
	"sync/atomic"

	"github.com/discoverlab/enginekit/engine"
)

// Event is one observation: a completed response, an out-of-band message
// from the worker, or an asynchronous transport-level error.
type Event struct {
	// Response is set for completed round trips and decoded out-of-band
	// messages.
	Response *engine.Response

	// Err is set for transport-level and broadcast conversion failures.
	Err error

	// OutOfBand marks events that did not answer a pending request.
	OutOfBand bool
}

// Broadcast fans every published event out to all active subscriptions in
// publish order. Subscribers each get a buffered channel; a subscriber that
// stops draining loses events rather than blocking the publisher.
type Broadcast struct {
	mu      sync.Mutex
	subs    []*Subscription
	closed  bool
	dropped atomic.Uint64
}

// Subscription is one subscriber's view of the stream. Its channel closes
// when the subscription is canceled or the broadcast closes.
type Subscription struct {
	ch     chan Event
	b      *Broadcast
	closed atomic.Bool
}

// DefaultSubscriberBuffer is the per-subscriber channel capacity.
const DefaultSubscriberBuffer = 64

// New creates an open broadcast stream.
func New() *Broadcast {
	return &Broadcast{}
}

// Subscribe registers a new subscriber. Returns nil if the stream already
// closed.
func (b *Broadcast) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	sub := &Subscription{
		ch: make(chan Event, DefaultSubscriberBuffer),
		b:  b,
	}
	b.subs = append(b.subs, sub)
	return sub
}

// Publish delivers an event to every active subscriber. Returns false once
// the stream is closed.
func (b *Broadcast) Publish(ev Event) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return false
	}
	// Deliveries are non-blocking, so holding the lock keeps publish order
	// and close mutually exclusive without stalling publishers.
	for _, sub := range b.subs {
		select {
		case sub.ch <- ev:
		default:
			b.dropped.Add(1)
		}
	}
	return true
}

// Dropped reports events lost to full subscriber buffers.
func (b *Broadcast) Dropped() uint64 {
	return b.dropped.Load()
}

// Close shuts the stream down and closes every subscriber channel.
// Idempotent; no events are emitted afterwards.
func (b *Broadcast) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for _, sub := range b.subs {
		if !sub.closed.Swap(true) {
			close(sub.ch)
		}
	}
	b.subs = nil
}

// Events returns the subscriber's channel.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Cancel removes the subscription and closes its channel.
func (s *Subscription) Cancel() {
	if s.closed.Swap(true) {
		return
	}

	s.b.mu.Lock()
	for i, sub := range s.b.subs {
		if sub == s {
			s.b.subs = append(s.b.subs[:i], s.b.subs[i+1:]...)
			break
		}
	}
	s.b.mu.Unlock()

	close(s.ch)
}
