package transport

import (
	"context"

	"github.com/roomtalk/roomtalk/internal/message"
)

// HistoryLimit caps how many records a history fetch returns.
const HistoryLimit = 200

// Batch is a group of records delivered together by a subscription.
// Push events carry a single record; poll re-reads may carry several.
type Batch []message.Record

// BatchHandler processes records delivered by an active subscription.
// Delivery is at-least-once on every transport: the same record may arrive
// through more than one path, and the consumer is responsible for dedup.
type BatchHandler func(ctx context.Context, batch Batch)

// Subscription is a handle to an active room subscription.
type Subscription interface {
	// Unsubscribe stops delivery and releases every resource the
	// subscription holds (watchers, pollers, live queries). It returns
	// synchronously; no deliveries follow it.
	Unsubscribe()
}

// Transport is the pluggable delivery mechanism used to publish and receive
// records. The implementation is chosen once at startup from configuration
// and injected; transport methods never consult ambient globals.
type Transport interface {
	// Publish durably appends the record. The result is awaited only to
	// surface storage errors; callers treat it as fire-and-forget.
	Publish(ctx context.Context, rec message.Record) error

	// Subscribe starts pushing records for the given room to the handler.
	// Records are filtered to the room at delivery time.
	Subscribe(ctx context.Context, roomCode string, h BatchHandler) (Subscription, error)

	// History returns up to limit records for the room, ordered by
	// created_at ascending at the source. No re-sort happens downstream.
	History(ctx context.Context, roomCode string, limit int) ([]message.Record, error)

	// Close releases the transport's resources.
	Close() error
}
