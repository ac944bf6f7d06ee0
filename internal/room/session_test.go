package room

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roomtalk/roomtalk/internal/message"
	"github.com/roomtalk/roomtalk/internal/transport"
)

// fakeTransport scripts history responses and lets tests push batches
// straight into the session's merge handler.
type fakeTransport struct {
	mu        sync.Mutex
	history   []message.Record
	histErr   error
	subErr    error
	published []message.Record
	handler   transport.BatchHandler
	subbed    int
	unsubbed  int

	// onHistory runs outside the fake's lock at the start of History,
	// letting tests stretch the fetch to overlap lifecycle calls.
	onHistory func()
}

type fakeSub struct {
	tr *fakeTransport
}

func (s *fakeSub) Unsubscribe() {
	s.tr.mu.Lock()
	defer s.tr.mu.Unlock()
	s.tr.unsubbed++
	s.tr.handler = nil
}

func (f *fakeTransport) Publish(_ context.Context, rec message.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, rec)
	return nil
}

func (f *fakeTransport) Subscribe(_ context.Context, _ string, h transport.BatchHandler) (transport.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subErr != nil {
		return nil, f.subErr
	}
	f.subbed++
	f.handler = h
	return &fakeSub{tr: f}, nil
}

func (f *fakeTransport) History(_ context.Context, roomCode string, _ int) ([]message.Record, error) {
	if f.onHistory != nil {
		f.onHistory()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.histErr != nil {
		return nil, f.histErr
	}
	out := make([]message.Record, 0, len(f.history))
	for _, rec := range f.history {
		if rec.RoomCode == roomCode {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *fakeTransport) Close() error { return nil }

// deliver pushes a batch through the captured subscription handler.
func (f *fakeTransport) deliver(t *testing.T, batch ...message.Record) {
	t.Helper()
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	require.NotNil(t, h, "no active subscription")
	h(context.Background(), transport.Batch(batch))
}

// fakeSpeaker counts playback invocations.
type fakeSpeaker struct {
	mu     sync.Mutex
	spoken []string
}

func (s *fakeSpeaker) Speak(_ context.Context, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spoken = append(s.spoken, text)
}

func (s *fakeSpeaker) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.spoken)
}

func newJoinedSession(t *testing.T, tr *fakeTransport, sp *fakeSpeaker) *Session {
	t.Helper()
	s := New(tr, sp, WithSessionID("local-session"))
	require.NoError(t, s.Join(context.Background(), "room123"))
	return s
}

func remote(roomCode, content string) message.Record {
	rec := message.New(roomCode, content, "remote-session")
	return rec
}

func TestJoin_EmptyRoomCodeRejected(t *testing.T) {
	s := New(&fakeTransport{}, &fakeSpeaker{})

	err := s.Join(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyRoomCode)
	assert.Equal(t, StateIdle, s.State())
	assert.Empty(t, s.Timeline())
}

func TestJoin_ReplacesTimelineWithHistory(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	r1 := remote("room123", "first")
	r1.CreatedAt = base
	r2 := remote("room123", "second")
	r2.CreatedAt = base.Add(time.Second)

	tr := &fakeTransport{history: []message.Record{r1, r2}}
	s := newJoinedSession(t, tr, &fakeSpeaker{})

	timeline := s.Timeline()
	require.Len(t, timeline, 2)
	assert.Equal(t, "first", timeline[0].Content)
	assert.Equal(t, "second", timeline[1].Content)
	assert.Equal(t, StateJoined, s.State())
	assert.Equal(t, "room123", s.Room())
}

func TestJoin_HistoryFailureStillJoinsDegraded(t *testing.T) {
	tr := &fakeTransport{histErr: errors.New("backend down")}
	s := New(tr, &fakeSpeaker{})

	require.NoError(t, s.Join(context.Background(), "room123"))
	assert.Equal(t, StateJoined, s.State())
	assert.True(t, s.Degraded())
	assert.Empty(t, s.Timeline())
}

func TestJoin_SubscribeFailureRevertsToIdle(t *testing.T) {
	tr := &fakeTransport{subErr: errors.New("no subscription")}
	s := New(tr, &fakeSpeaker{})

	err := s.Join(context.Background(), "room123")
	assert.Error(t, err)
	assert.Equal(t, StateIdle, s.State())
}

func TestJoin_WhileJoinedTearsDownPrevious(t *testing.T) {
	tr := &fakeTransport{}
	s := newJoinedSession(t, tr, &fakeSpeaker{})

	require.NoError(t, s.Join(context.Background(), "room456"))

	tr.mu.Lock()
	unsubbed := tr.unsubbed
	tr.mu.Unlock()
	assert.Equal(t, 1, unsubbed)
	assert.Equal(t, "room456", s.Room())
	assert.Empty(t, s.Timeline())
}

func TestLeave_ClearsTimelineKeepsSessionID(t *testing.T) {
	tr := &fakeTransport{history: []message.Record{remote("room123", "hello")}}
	s := newJoinedSession(t, tr, &fakeSpeaker{})
	id := s.SessionID()

	s.Leave()

	assert.Equal(t, StateIdle, s.State())
	assert.Empty(t, s.Timeline())
	assert.Empty(t, s.Room())
	assert.Equal(t, id, s.SessionID())

	tr.mu.Lock()
	defer tr.mu.Unlock()
	assert.Equal(t, 1, tr.unsubbed)
}

func TestLeave_WhenIdleIsNoop(t *testing.T) {
	s := New(&fakeTransport{}, &fakeSpeaker{})
	assert.NotPanics(t, s.Leave)
}

func TestMerge_Dedup(t *testing.T) {
	tr := &fakeTransport{}
	s := newJoinedSession(t, tr, &fakeSpeaker{})

	rec := remote("room123", "hi")
	tr.deliver(t, rec)
	tr.deliver(t, rec) // replay across batches
	tr.deliver(t, rec)

	assert.Len(t, s.Timeline(), 1)
}

func TestMerge_DuplicateIDsInOneBatch(t *testing.T) {
	tr := &fakeTransport{}
	s := newJoinedSession(t, tr, &fakeSpeaker{})
	before := len(s.Timeline())

	rec := remote("room123", "hi")
	tr.deliver(t, rec, rec)

	assert.Len(t, s.Timeline(), before+1)
}

func TestMerge_RoomIsolation(t *testing.T) {
	tr := &fakeTransport{}
	sp := &fakeSpeaker{}
	s := newJoinedSession(t, tr, sp)

	tr.deliver(t, remote("room456", "wrong room"))

	assert.Empty(t, s.Timeline())
	assert.Zero(t, sp.count(), "records for other rooms never trigger playback")
}

func TestMerge_SelfEchoSuppressed(t *testing.T) {
	tr := &fakeTransport{}
	sp := &fakeSpeaker{}
	s := newJoinedSession(t, tr, sp)

	// A self-published record legitimately round-trips through the
	// subscription. It lands in the timeline but never plays back.
	own := message.New("room123", "my own words", s.SessionID())
	tr.deliver(t, own)

	assert.Len(t, s.Timeline(), 1)
	assert.Zero(t, sp.count())
}

func TestMerge_RemoteTextTriggersPlaybackOnce(t *testing.T) {
	tr := &fakeTransport{}
	sp := &fakeSpeaker{}
	s := newJoinedSession(t, tr, sp)

	rec := remote("room123", "hi")
	tr.deliver(t, rec)
	tr.deliver(t, rec) // dual delivery replay

	assert.Len(t, s.Timeline(), 1)
	assert.Equal(t, 1, sp.count())

	sp.mu.Lock()
	defer sp.mu.Unlock()
	assert.Equal(t, []string{"hi"}, sp.spoken)
}

func TestMerge_AppendsInArrivalOrder(t *testing.T) {
	tr := &fakeTransport{}
	s := newJoinedSession(t, tr, &fakeSpeaker{})

	a := remote("room123", "a")
	b := remote("room123", "b")
	c := remote("room123", "c")
	tr.deliver(t, a)
	tr.deliver(t, b, c)

	timeline := s.Timeline()
	require.Len(t, timeline, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{
		timeline[0].Content, timeline[1].Content, timeline[2].Content,
	})
}

func TestMerge_HistoryPrefixPreserved(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	var hist []message.Record
	for i, content := range []string{"one", "two", "three"} {
		rec := remote("room123", content)
		rec.CreatedAt = base.Add(time.Duration(i) * time.Second)
		hist = append(hist, rec)
	}

	tr := &fakeTransport{history: hist}
	s := newJoinedSession(t, tr, &fakeSpeaker{})

	tr.deliver(t, remote("room123", "four"))

	timeline := s.Timeline()
	require.Len(t, timeline, 4)
	for i, want := range []string{"one", "two", "three"} {
		assert.Equal(t, want, timeline[i].Content)
	}
}

func TestListeners_NotifiedOncePerAcceptedRecord(t *testing.T) {
	tr := &fakeTransport{}
	s := New(tr, &fakeSpeaker{}, WithSessionID("local-session"))

	var mu sync.Mutex
	var notified []string
	s.AddListener(func(rec message.Record) {
		mu.Lock()
		defer mu.Unlock()
		notified = append(notified, rec.Content)
	})

	require.NoError(t, s.Join(context.Background(), "room123"))

	rec := remote("room123", "hi")
	tr.deliver(t, rec)
	tr.deliver(t, rec)             // duplicate: no second notification
	tr.deliver(t, remote("room456", "other")) // wrong room: none

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"hi"}, notified)
}

func TestJoin_ConcurrentJoinsLeaveNoOrphanedSubscription(t *testing.T) {
	tr := &fakeTransport{
		// Stretch the history fetch so overlapping joins pile up on the
		// suspension point instead of finishing one after another.
		onHistory: func() { time.Sleep(10 * time.Millisecond) },
	}
	s := New(tr, &fakeSpeaker{})

	rooms := []string{"room123", "room456", "room123", "room789"}
	var wg sync.WaitGroup
	for _, roomCode := range rooms {
		wg.Add(1)
		go func(code string) {
			defer wg.Done()
			assert.NoError(t, s.Join(context.Background(), code))
		}(roomCode)
	}
	wg.Wait()

	s.Leave()

	assert.Equal(t, StateIdle, s.State())
	tr.mu.Lock()
	defer tr.mu.Unlock()
	assert.Equal(t, len(rooms), tr.subbed)
	assert.Equal(t, tr.subbed, tr.unsubbed,
		"every subscription opened by a join must be torn down")
}

func TestLeave_DuringJoinIsNotOverridden(t *testing.T) {
	joinStarted := make(chan struct{})
	tr := &fakeTransport{}
	tr.onHistory = func() {
		close(joinStarted)
		time.Sleep(10 * time.Millisecond)
	}
	s := New(tr, &fakeSpeaker{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.NoError(t, s.Join(context.Background(), "room123"))
	}()

	<-joinStarted
	s.Leave() // serialized behind the join, then tears it down
	<-done

	assert.Equal(t, StateIdle, s.State())
	assert.Empty(t, s.Room())
	tr.mu.Lock()
	defer tr.mu.Unlock()
	assert.Equal(t, tr.subbed, tr.unsubbed)
}

func TestMerge_AfterLeaveIsDiscarded(t *testing.T) {
	tr := &fakeTransport{}
	s := newJoinedSession(t, tr, &fakeSpeaker{})

	tr.mu.Lock()
	h := tr.handler
	tr.mu.Unlock()

	s.Leave()

	// A push already in flight when the room was left lands after the
	// teardown. It must vanish silently.
	h(context.Background(), transport.Batch{remote("room123", "late")})
	assert.Empty(t, s.Timeline())
}
