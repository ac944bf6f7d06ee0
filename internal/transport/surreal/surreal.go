// Package surreal implements the realtime backend transport on SurrealDB:
// durable inserts into the message table, ordered history queries, and a
// LIVE SELECT push subscription.
package surreal

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/surrealdb/surrealdb.go"
	"github.com/surrealdb/surrealdb.go/pkg/connection"
	"github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/roomtalk/roomtalk/internal/config"
	"github.com/roomtalk/roomtalk/internal/message"
	"github.com/roomtalk/roomtalk/internal/transport"
)

// NewDB creates and configures a new SurrealDB connection.
func NewDB(ctx context.Context, cfg *config.Config) (*surrealdb.DB, error) {
	db, err := surrealdb.FromEndpointURLString(ctx, cfg.DBUrl)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to surrealdb: %w", err)
	}

	if cfg.DBUser != "" {
		authData := &surrealdb.Auth{
			Username: cfg.DBUser,
			Password: cfg.DBPass,
		}
		if _, err = db.SignIn(ctx, authData); err != nil {
			db.Close(ctx)
			return nil, fmt.Errorf("failed to sign in: %w", err)
		}
	}

	if err = db.Use(ctx, cfg.DBNs, cfg.DBDb); err != nil {
		db.Close(ctx)
		return nil, fmt.Errorf("failed to use namespace/db: %w", err)
	}

	slog.Info("Successfully signed in to SurrealDB")
	return db, nil
}

// Transport is the realtime backend implementation of transport.Transport.
type Transport struct {
	db *surrealdb.DB

	// reconcileInterval > 0 turns on periodic re-fetch-and-diff as a
	// hardening against missed pushes. Dedup downstream makes it safe.
	reconcileInterval time.Duration

	// onDegraded is invoked when the push subscription drops. The session
	// stays joined; this only surfaces the degraded state.
	onDegraded func()
}

// Option configures a Transport.
type Option func(*Transport)

// WithReconcileInterval enables periodic history re-fetch on subscriptions.
func WithReconcileInterval(d time.Duration) Option {
	return func(t *Transport) {
		t.reconcileInterval = d
	}
}

// WithDegradedFunc registers a callback fired when the subscription drops.
func WithDegradedFunc(f func()) Option {
	return func(t *Transport) {
		t.onDegraded = f
	}
}

// New creates a Transport on an established SurrealDB connection.
func New(db *surrealdb.DB, opts ...Option) *Transport {
	t := &Transport{db: db}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Publish durably inserts the record. The caller awaits only to surface
// storage errors; delivery confirmation is the subscription's job.
func (t *Transport) Publish(ctx context.Context, rec message.Record) error {
	q := "CREATE message CONTENT $data"
	params := map[string]any{"data": toRow(rec)}
	if err := execute(ctx, t.db, q, params); err != nil {
		slog.Error("Failed to publish record", "room", rec.RoomCode, "error", err)
		return fmt.Errorf("failed to publish record: %w", err)
	}
	return nil
}

// History returns up to limit records for the room ordered by created_at
// ascending at the source.
func (t *Transport) History(ctx context.Context, roomCode string, limit int) ([]message.Record, error) {
	if limit <= 0 || limit > transport.HistoryLimit {
		limit = transport.HistoryLimit
	}

	q := `SELECT msg_id, room_code, content, message_type, session_id, created_at
		FROM message WHERE room_code = $room ORDER BY created_at ASC LIMIT $limit`
	params := map[string]any{"room": roomCode, "limit": limit}

	rows, err := query[row](ctx, t.db, q, params)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch history: %w", err)
	}

	records := make([]message.Record, 0, len(rows))
	for _, r := range rows {
		records = append(records, fromRow(r))
	}
	return records, nil
}

// subscription is the handle for one live query.
type subscription struct {
	cancel context.CancelFunc
	once   sync.Once
}

func (s *subscription) Unsubscribe() {
	s.once.Do(s.cancel)
}

// Subscribe opens a LIVE SELECT on the message table and delivers each
// insert for the room as a single-record batch. The room filter runs at
// delivery time, so an in-flight event for a previously joined room is
// silently discarded.
func (t *Transport) Subscribe(ctx context.Context, roomCode string, h transport.BatchHandler) (transport.Subscription, error) {
	liveID, err := t.startLiveQuery(ctx)
	if err != nil {
		return nil, err
	}

	notifications, err := t.db.LiveNotifications(liveID)
	if err != nil {
		return nil, fmt.Errorf("failed to get notification channel: %w", err)
	}

	subCtx, cancel := context.WithCancel(context.Background())
	sub := &subscription{cancel: cancel}

	go t.listen(subCtx, roomCode, liveID, notifications, h)

	if t.reconcileInterval > 0 {
		go t.reconcile(subCtx, roomCode, h)
	}

	// Kill the live query on the database side once the subscription ends.
	go func() {
		<-subCtx.Done()
		cleanupCtx, cleanupCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cleanupCancel()

		if err := t.db.CloseLiveNotifications(liveID); err != nil {
			slog.Warn("Failed to close live notifications", "error", err, "liveQueryID", liveID)
		}
		if err := execute(cleanupCtx, t.db, "KILL $liveQueryID", map[string]any{"liveQueryID": liveID}); err != nil {
			slog.Warn("Failed to kill live query", "error", err, "liveQueryID", liveID)
		}
	}()

	slog.Info("Live query subscription established", "room", roomCode, "liveQueryID", liveID)
	return sub, nil
}

// startLiveQuery issues the LIVE SELECT and extracts the live query UUID.
func (t *Transport) startLiveQuery(ctx context.Context) (string, error) {
	results, err := surrealdb.Query[any](ctx, t.db, "LIVE SELECT * FROM message", nil)
	if err != nil {
		return "", fmt.Errorf("failed to execute live query: %w", err)
	}
	if results == nil || len(*results) == 0 {
		return "", fmt.Errorf("live query returned no results")
	}

	result := (*results)[0]
	if result.Status != "OK" {
		return "", fmt.Errorf("live query failed with status: %s", result.Status)
	}

	switch v := result.Result.(type) {
	case string:
		return v, nil
	case models.UUID:
		return v.String(), nil
	default:
		return "", fmt.Errorf("unexpected live query result type: %T", result.Result)
	}
}

func (t *Transport) listen(ctx context.Context, roomCode, liveID string, notifications <-chan connection.Notification, h transport.BatchHandler) {
	for {
		select {
		case <-ctx.Done():
			slog.Debug("Live query listener stopped", "liveQueryID", liveID)
			return

		case notification, ok := <-notifications:
			if !ok {
				// Channel closed without an unsubscribe: the push path is
				// gone but the session stays joined.
				slog.Warn("Live query notification channel closed", "liveQueryID", liveID)
				if t.onDegraded != nil {
					t.onDegraded()
				}
				return
			}

			if notification.Action != connection.CreateAction {
				continue
			}

			rec, ok := fromNotification(notification.Result)
			if !ok {
				slog.Debug("Ignoring malformed live notification", "liveQueryID", liveID)
				continue
			}
			if rec.RoomCode != roomCode {
				continue
			}

			h(ctx, transport.Batch{rec})
		}
	}
}

// reconcile periodically re-fetches history and re-delivers it. Duplicate
// records are absorbed by the consumer's dedup guard.
func (t *Transport) reconcile(ctx context.Context, roomCode string, h transport.BatchHandler) {
	ticker := time.NewTicker(t.reconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			records, err := t.History(ctx, roomCode, transport.HistoryLimit)
			if err != nil {
				slog.Warn("Reconcile fetch failed", "room", roomCode, "error", err)
				continue
			}
			if len(records) > 0 {
				h(ctx, transport.Batch(records))
			}
		}
	}
}

// Close shuts down the underlying database connection.
func (t *Transport) Close() error {
	return t.db.Close(context.Background())
}
