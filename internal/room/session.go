// Package room owns the joined room's state: the ordered message timeline,
// the active transport subscription, and the join/leave lifecycle. The
// synchronizer merge loop lives here too, because the timeline and its
// dedup index are one piece of state with one owner.
package room

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/roomtalk/roomtalk/internal/message"
	"github.com/roomtalk/roomtalk/internal/speech"
	"github.com/roomtalk/roomtalk/internal/transport"
)

// ErrEmptyRoomCode rejects a join with no room code. The session state is
// unchanged when it is returned.
var ErrEmptyRoomCode = errors.New("room code must not be empty")

// State is the lifecycle phase of a Session.
type State int

const (
	StateIdle State = iota
	StateJoining
	StateJoined
)

func (s State) String() string {
	switch s {
	case StateJoining:
		return "joining"
	case StateJoined:
		return "joined"
	default:
		return "idle"
	}
}

// Listener observes records as the synchronizer accepts them into the
// timeline. Used by the push surface; never called for duplicates.
type Listener func(rec message.Record)

// Session is one client instance's view of a joined room. A session joins
// one room at a time; its id survives leave/rejoin for the process lifetime.
type Session struct {
	tr        transport.Transport
	speaker   speech.Speaker
	sessionID string

	// lifecycle serializes Join and Leave. Join suspends on the history
	// fetch and the subscribe call without holding mu, so two concurrent
	// joins could otherwise both subscribe and strand the loser's
	// subscription. Held across the whole lifecycle call; mu alone still
	// guards the timeline for merge.
	lifecycle sync.Mutex

	mu        sync.Mutex
	state     State
	roomCode  string
	timeline  []message.Record
	seen      map[string]struct{}
	sub       transport.Subscription
	degraded  bool
	listeners []Listener
}

// Option configures a Session.
type Option func(*Session)

// WithSessionID pins the session id instead of generating one.
func WithSessionID(id string) Option {
	return func(s *Session) {
		s.sessionID = id
	}
}

// New creates an idle session on the given transport. The session id is
// generated once and reused across rooms.
func New(tr transport.Transport, speaker speech.Speaker, opts ...Option) *Session {
	s := &Session{
		tr:        tr,
		speaker:   speaker,
		sessionID: message.NewSessionID(),
		seen:      make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SessionID returns the identifier records authored here carry.
func (s *Session) SessionID() string {
	return s.sessionID
}

// State returns the current lifecycle phase.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Room returns the joined room code, empty when idle.
func (s *Session) Room() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomCode
}

// Degraded reports whether a transport failure has been observed since
// joining. The session stays joined regardless.
func (s *Session) Degraded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degraded
}

// MarkDegraded flags the session after a transport failure.
func (s *Session) MarkDegraded() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.degraded = true
}

// AddListener registers a timeline observer.
func (s *Session) AddListener(fn Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Timeline returns a copy of the ordered timeline.
func (s *Session) Timeline() []message.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]message.Record, len(s.timeline))
	copy(out, s.timeline)
	return out
}

// Join enters the room: the timeline is replaced wholesale by a history
// fetch, then a subscription starts delivering to the synchronizer.
// Joining while already joined tears the previous subscription down first;
// concurrent Join and Leave calls run one at a time.
func (s *Session) Join(ctx context.Context, roomCode string) error {
	if roomCode == "" {
		return ErrEmptyRoomCode
	}

	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.Lock()
	if s.state != StateIdle {
		s.teardownLocked()
	}
	s.state = StateJoining
	s.roomCode = roomCode
	s.mu.Unlock()

	// History fetch is a suspension point; the lock is not held across it.
	history, err := s.tr.History(ctx, roomCode, transport.HistoryLimit)
	if err != nil {
		// Terminal for the fetch only: the session joins with an empty
		// timeline and surfaces the degraded state.
		slog.Error("History fetch failed", "room", roomCode, "error", err)
		history = nil
	}

	s.mu.Lock()
	s.timeline = make([]message.Record, 0, len(history))
	s.seen = make(map[string]struct{}, len(history))
	for _, rec := range history {
		if rec.RoomCode != roomCode {
			continue
		}
		if _, dup := s.seen[rec.ID]; dup {
			continue
		}
		s.timeline = append(s.timeline, rec)
		s.seen[rec.ID] = struct{}{}
	}
	s.degraded = err != nil
	s.mu.Unlock()

	sub, subErr := s.tr.Subscribe(ctx, roomCode, s.merge)
	if subErr != nil {
		slog.Error("Subscription failed", "room", roomCode, "error", subErr)
		s.mu.Lock()
		s.resetLocked()
		s.mu.Unlock()
		return subErr
	}

	s.mu.Lock()
	s.sub = sub
	s.state = StateJoined
	s.mu.Unlock()

	slog.Info("Joined room", "room", roomCode, "history", len(history))
	return nil
}

// Leave exits the room. The subscription is torn down synchronously; no
// poller or watcher outlives the call. A Leave issued while a Join is in
// flight waits for it and then tears it down, never the other way around.
// The session id is kept.
func (s *Session) Leave() {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateIdle {
		return
	}
	room := s.roomCode
	s.teardownLocked()
	slog.Info("Left room", "room", room)
}

// teardownLocked unsubscribes and resets room state. Callers hold s.mu.
func (s *Session) teardownLocked() {
	if s.sub != nil {
		s.sub.Unsubscribe()
	}
	s.resetLocked()
}

func (s *Session) resetLocked() {
	s.sub = nil
	s.timeline = nil
	s.seen = make(map[string]struct{})
	s.roomCode = ""
	s.degraded = false
	s.state = StateIdle
}

// merge is the synchronizer: it folds a delivered batch into the timeline.
// Per record: drop if it belongs to another room (checked at delivery time,
// so in-flight events for a previously joined room vanish silently), drop
// silently if its id was already seen, otherwise append in arrival order.
// Accepted records from a remote session trigger speech playback.
func (s *Session) merge(ctx context.Context, batch transport.Batch) {
	s.mu.Lock()
	if s.state != StateJoined && s.state != StateJoining {
		s.mu.Unlock()
		return
	}

	accepted := make([]message.Record, 0, len(batch))
	for _, rec := range batch {
		if rec.RoomCode != s.roomCode {
			continue
		}
		if _, dup := s.seen[rec.ID]; dup {
			continue
		}
		s.timeline = append(s.timeline, rec)
		s.seen[rec.ID] = struct{}{}
		accepted = append(accepted, rec)
	}
	listeners := make([]Listener, len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()

	// Side effects run outside the lock so a slow listener or speech
	// engine never blocks timeline mutation.
	for _, rec := range accepted {
		for _, fn := range listeners {
			fn(rec)
		}
		if rec.Type == message.TypeText && rec.SessionID != s.sessionID {
			s.speaker.Speak(ctx, rec.Content)
		}
	}
}
