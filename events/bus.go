// Package events implements the engine's event bus (§4.7/J): subscribe/
// publish for the `request`, `response`, `abort`, `tls-client-error`,
// `client-error`, and `passthrough-websocket-connect` topics, fanning out to
// any number of subscribers (the admin channel, the console logger).
//
// Grounded on the teacher's debugRequestsHandler.go background log-aggregator
// goroutine (one `logChannel` fed by a single producer, drained by one
// consumer) generalized from "one log channel" to "N topic subscribers".
package events

import "sync"

// Event is one observability notification (§6: "Event stream: JSON messages
// {topic, payload}").
type Event struct {
	Topic   string
	Payload interface{}
}

// Bus fans out published events to every current subscriber. Publish never
// blocks the publisher on a slow subscriber: each subscriber gets its own
// buffered channel, and a full buffer drops the oldest pending event rather
// than stalling the request path.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]chan Event
	next int
}

func NewBus() *Bus {
	return &Bus{subs: map[int]chan Event{}}
}

// Subscribe registers a new listener and returns its event channel plus an
// unsubscribe func.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		if c, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(c)
		}
		b.mu.Unlock()
	}
}

// Publish implements steps.EventPublisher, letting the step executor and
// pass-through forwarders report directly onto the bus without importing it.
func (b *Bus) Publish(topic string, payload interface{}) {
	ev := Event{Topic: topic, Payload: payload}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			// Slow subscriber: drop the oldest queued event to make room
			// rather than block the request path.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- ev:
			default:
			}
		}
	}
}
