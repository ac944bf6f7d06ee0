// Package hub fans accepted timeline records out to connected push
// clients. It is presentation plumbing: the synchronizer feeds it, browser
// websockets drain it.
package hub

import "log/slog"

// Subscriber represents a single connected client receiving encoded
// timeline records.
type Subscriber struct {
	// Send is a buffered channel of outbound payloads. The Hub writes to
	// it; the client's websocket writer drains it.
	Send chan []byte
}

// Hub maintains the set of active subscribers and broadcasts each accepted
// record to all of them.
type Hub struct {
	subscribers map[*Subscriber]bool

	// Broadcast receives encoded records from the session listener.
	Broadcast chan []byte

	// Register is a channel for new subscribers to register with the hub.
	Register chan *Subscriber

	// Unregister is a channel for subscribers to unregister from the hub.
	Unregister chan *Subscriber
}

// NewHub creates and returns a new Hub instance.
func NewHub() *Hub {
	return &Hub{
		Broadcast:   make(chan []byte),
		Register:    make(chan *Subscriber),
		Unregister:  make(chan *Subscriber),
		subscribers: make(map[*Subscriber]bool),
	}
}

// Run starts the Hub's loop. It must be run in a separate goroutine.
func (h *Hub) Run() {
	for {
		select {
		case subscriber := <-h.Register:
			h.subscribers[subscriber] = true
			slog.Debug("Push subscriber registered", "total_subscribers", len(h.subscribers))

		case subscriber := <-h.Unregister:
			if _, ok := h.subscribers[subscriber]; ok {
				delete(h.subscribers, subscriber)
				close(subscriber.Send)
				slog.Debug("Push subscriber unregistered", "total_subscribers", len(h.subscribers))
			}

		case payload := <-h.Broadcast:
			for subscriber := range h.subscribers {
				// Non-blocking send: a full buffer means the client is
				// lagging or gone, so it is dropped.
				select {
				case subscriber.Send <- payload:
				default:
					close(subscriber.Send)
					delete(h.subscribers, subscriber)
					slog.Warn("Unregistering slow push subscriber", "total_subscribers", len(h.subscribers))
				}
			}
		}
	}
}
