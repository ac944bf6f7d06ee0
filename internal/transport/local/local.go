// Package local implements the same-device fallback transport used when no
// backend is configured. Records live in a shared list file under a fixed
// channel name; peers learn about writes through a filesystem notification
// (which the writer's own context cannot rely on seeing), a direct
// in-process delivery, and a fixed-interval poll as a correctness backstop.
// Every path is at-least-once: the consumer's dedup guard does the rest.
package local

import (
	"context"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmmessage "github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/fsnotify/fsnotify"

	"github.com/roomtalk/roomtalk/internal/message"
	"github.com/roomtalk/roomtalk/internal/transport"
)

// DefaultPollInterval is the shared-list re-read backstop. It catches
// writes whose filesystem notification never reached this context.
const DefaultPollInterval = 600 * time.Millisecond

// localTopic is the in-process direct-delivery channel. The cross-context
// notification does not fire in the originating context, so every publish
// is also handed straight to local subscribers.
const localTopic = "local.records"

// Transport is the fallback implementation of transport.Transport.
type Transport struct {
	store *Store
	goch  *gochannel.GoChannel

	pollInterval time.Duration

	// watch enables the fsnotify path. Off for in-memory filesystems,
	// where only the direct delivery and the poll apply.
	watch bool
}

// Option configures a Transport.
type Option func(*Transport)

// WithPollInterval overrides the 600ms poll backstop.
func WithPollInterval(d time.Duration) Option {
	return func(t *Transport) {
		if d > 0 {
			t.pollInterval = d
		}
	}
}

// WithWatcher toggles the filesystem notification path.
func WithWatcher(enabled bool) Option {
	return func(t *Transport) {
		t.watch = enabled
	}
}

// New creates a fallback transport over the shared store.
func New(store *Store, opts ...Option) *Transport {
	t := &Transport{
		store:        store,
		pollInterval: DefaultPollInterval,
		watch:        true,
		goch: gochannel.NewGoChannel(
			gochannel.Config{},
			watermill.NewStdLogger(false, false),
		),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Publish appends the record to the shared list and notifies listeners
// twice: the file write raises the cross-context notification for other
// contexts, and the in-process channel delivers to this context directly.
func (t *Transport) Publish(ctx context.Context, rec message.Record) error {
	if err := t.store.Append(rec); err != nil {
		slog.Error("Failed to append to shared list", "room", rec.RoomCode, "error", err)
		return err
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return t.goch.Publish(localTopic, wmmessage.NewMessage(watermill.NewUUID(), payload))
}

// History reads the shared list synchronously, filtered to the room and
// ordered by created_at ascending.
func (t *Transport) History(ctx context.Context, roomCode string, limit int) ([]message.Record, error) {
	if limit <= 0 || limit > transport.HistoryLimit {
		limit = transport.HistoryLimit
	}

	all, err := t.store.ReadAll()
	if err != nil {
		return nil, err
	}

	records := filterRoom(all, roomCode)
	sortByCreatedAt(records)
	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// subscription tears down the direct-delivery consumer, the watcher and the
// poll ticker together.
type subscription struct {
	cancel context.CancelFunc
	once   sync.Once
}

func (s *subscription) Unsubscribe() {
	s.once.Do(s.cancel)
}

// Subscribe starts all three delivery paths for the room.
func (t *Transport) Subscribe(ctx context.Context, roomCode string, h transport.BatchHandler) (transport.Subscription, error) {
	subCtx, cancel := context.WithCancel(context.Background())

	messages, err := t.goch.Subscribe(subCtx, localTopic)
	if err != nil {
		cancel()
		return nil, err
	}

	go t.consumeDirect(subCtx, roomCode, messages, h)
	go t.poll(subCtx, roomCode, h)

	if t.watch {
		if err := t.startWatcher(subCtx, roomCode, h); err != nil {
			// The poll backstop keeps the subscription correct without it.
			slog.Warn("Shared list watcher unavailable, relying on poll", "error", err)
		}
	}

	return &subscription{cancel: cancel}, nil
}

// consumeDirect handles same-context publishes pushed through the
// in-process channel.
func (t *Transport) consumeDirect(ctx context.Context, roomCode string, messages <-chan *wmmessage.Message, h transport.BatchHandler) {
	for wmMsg := range messages {
		var rec message.Record
		if err := json.Unmarshal(wmMsg.Payload, &rec); err != nil {
			slog.Error("Failed to decode direct delivery", "msg_id", wmMsg.UUID, "error", err)
			wmMsg.Ack()
			continue
		}
		wmMsg.Ack()

		if rec.RoomCode != roomCode {
			continue
		}
		h(ctx, transport.Batch{rec})
	}
	slog.Debug("Direct delivery loop ended", "room", roomCode)
}

// poll re-reads the full shared list on a fixed interval. Redundant with
// the other paths most of the time; the dedup guard downstream absorbs the
// replays.
func (t *Transport) poll(ctx context.Context, roomCode string, h transport.BatchHandler) {
	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.deliverAll(ctx, roomCode, h)
		}
	}
}

// startWatcher listens for cross-context writes to the shared list file.
func (t *Transport) startWatcher(ctx context.Context, roomCode string, h transport.BatchHandler) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(t.store.Path())); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Name != t.store.Path() {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				t.deliverAll(ctx, roomCode, h)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("Shared list watcher error", "error", err)
			}
		}
	}()
	return nil
}

// deliverAll re-reads the shared list and hands the room's records to the
// handler as one batch.
func (t *Transport) deliverAll(ctx context.Context, roomCode string, h transport.BatchHandler) {
	all, err := t.store.ReadAll()
	if err != nil {
		slog.Warn("Failed to re-read shared list", "error", err)
		return
	}
	records := filterRoom(all, roomCode)
	if len(records) > 0 {
		h(ctx, transport.Batch(records))
	}
}

// Close shuts down the in-process channel.
func (t *Transport) Close() error {
	return t.goch.Close()
}

func filterRoom(records []message.Record, roomCode string) []message.Record {
	out := make([]message.Record, 0, len(records))
	for _, rec := range records {
		if rec.RoomCode == roomCode {
			out = append(out, rec)
		}
	}
	return out
}

func sortByCreatedAt(records []message.Record) {
	// Stable keeps append order for identical timestamps.
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
}
