// Package eventbus implements the in-process publish/subscribe bus that
// decouples the workflow runner and robot poller from whatever is
// watching the fleet (a CLI tail, a websocket bridge, tests). Delivery is
// best-effort: a subscriber that cannot keep up is disconnected rather
// than allowed to stall a publisher.
package eventbus

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Envelope is the shape of every event published on the bus.
type Envelope struct {
	Type          string                 `json:"type"`
	Timestamp     time.Time              `json:"timestamp"`
	Data          map[string]interface{} `json:"data"`
	Source        string                 `json:"source"`
	CorrelationID string                 `json:"correlation_id"`
}

// subscriberBufferSize bounds how far a subscriber may lag before it is
// dropped.
const subscriberBufferSize = 64

type subscriber struct {
	id   uint64
	ch   chan Envelope
	done chan struct{}
}

// Bus is a topic-less fan-out event bus: every subscriber receives every
// published envelope. Callers filter by Envelope.Type if they only care
// about a subset of topics.
type Bus struct {
	mu       sync.RWMutex
	subs     map[uint64]*subscriber
	nextID   uint64
	source   string
}

// New returns a Bus that stamps Source on every envelope it publishes.
func New(source string) *Bus {
	return &Bus{
		subs:   make(map[uint64]*subscriber),
		source: source,
	}
}

// Subscribe registers a new listener and returns a receive channel along
// with an unsubscribe function. The channel is closed once Unsubscribe is
// called or the bus disconnects the subscriber for falling behind.
func (b *Bus) Subscribe() (<-chan Envelope, func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	sub := &subscriber{
		id:   id,
		ch:   make(chan Envelope, subscriberBufferSize),
		done: make(chan struct{}),
	}
	b.subs[id] = sub
	b.mu.Unlock()

	unsubscribe := func() {
		b.removeSubscriber(id)
	}
	return sub.ch, unsubscribe
}

func (b *Bus) removeSubscriber(id uint64) {
	b.mu.Lock()
	sub, ok := b.subs[id]
	if ok {
		delete(b.subs, id)
	}
	b.mu.Unlock()

	if ok {
		closeOnce(sub)
	}
}

func closeOnce(sub *subscriber) {
	select {
	case <-sub.done:
	default:
		close(sub.done)
		close(sub.ch)
	}
}

func (b *Bus) snapshotSubscribers() []*subscriber {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]*subscriber, 0, len(b.subs))
	for _, sub := range b.subs {
		out = append(out, sub)
	}
	return out
}

// Publish delivers env to every current subscriber, blocking until each
// has accepted it or been dropped for being full. Returns the number of
// subscribers the envelope was actually delivered to.
func (b *Bus) Publish(eventType string, data map[string]interface{}) int {
	env := b.buildEnvelope(eventType, data)

	delivered := 0
	for _, sub := range b.snapshotSubscribers() {
		select {
		case sub.ch <- env:
			delivered++
		default:
			b.removeSubscriber(sub.id)
		}
	}
	return delivered
}

// PublishAsync schedules delivery without waiting for it, returning
// immediately. Slow subscribers are still disconnected, just off the
// publisher's goroutine.
func (b *Bus) PublishAsync(eventType string, data map[string]interface{}) {
	env := b.buildEnvelope(eventType, data)

	go func() {
		for _, sub := range b.snapshotSubscribers() {
			select {
			case sub.ch <- env:
			default:
				b.removeSubscriber(sub.id)
			}
		}
	}()
}

func (b *Bus) buildEnvelope(eventType string, data map[string]interface{}) Envelope {
	return Envelope{
		Type:          eventType,
		Timestamp:     time.Now(),
		Data:          data,
		Source:        b.source,
		CorrelationID: uuid.NewString(),
	}
}

// SubscriberCount returns the number of currently connected subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
