package progress

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type collectingSink struct {
	mu     sync.Mutex
	events []Event
	closed bool
}

func (s *collectingSink) Consume(_ context.Context, batch []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, batch...)
	return nil
}

func (s *collectingSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *collectingSink) snapshot() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

func validEvent(stage Stage) Event {
	evt := Event{RunID: "run-1", TS: time.Now(), Stage: stage}
	if stage == StagePageFetched || stage == StagePageFailed || stage == StagePageIndexed {
		evt.URL = "https://example.org/"
		evt.Host = "example.org"
	}
	return evt
}

func TestHubDeliversEventsToSinks(t *testing.T) {
	t.Parallel()

	sink := &collectingSink{}
	hub := NewHub(Config{MaxWait: 10 * time.Millisecond}, sink)

	hub.Emit(validEvent(StageRunStarted))
	hub.Emit(validEvent(StagePageFetched))
	hub.Emit(validEvent(StageRunFinished))

	require.NoError(t, hub.Close(context.Background()))

	got := sink.snapshot()
	require.Len(t, got, 3)
	require.Equal(t, StageRunStarted, got[0].Stage)
	require.Equal(t, StagePageFetched, got[1].Stage)
	require.Equal(t, StageRunFinished, got[2].Stage)
	require.True(t, sink.closed)
}

func TestHubCloseDrainsBufferedEvents(t *testing.T) {
	t.Parallel()

	sink := &collectingSink{}
	// Long MaxWait so nothing flushes before Close.
	hub := NewHub(Config{MaxWait: time.Hour}, sink)

	for i := 0; i < 50; i++ {
		hub.Emit(validEvent(StagePageFetched))
	}
	require.NoError(t, hub.Close(context.Background()))
	require.Len(t, sink.snapshot(), 50)
}

func TestHubDropsInvalidEvents(t *testing.T) {
	t.Parallel()

	sink := &collectingSink{}
	hub := NewHub(Config{}, sink)

	hub.Emit(Event{Stage: StageRunStarted})                             // missing run id
	hub.Emit(Event{RunID: "r", TS: time.Now(), Stage: Stage("BOGUS")})  // unknown stage
	hub.Emit(Event{RunID: "r", TS: time.Now(), Stage: StagePageFailed}) // missing url

	require.NoError(t, hub.Close(context.Background()))
	require.Empty(t, sink.snapshot())
}

func TestHubEmitAfterCloseIsNoOp(t *testing.T) {
	t.Parallel()

	sink := &collectingSink{}
	hub := NewHub(Config{}, sink)
	require.NoError(t, hub.Close(context.Background()))

	hub.Emit(validEvent(StageRunStarted))
	require.Empty(t, sink.snapshot())

	// Close is idempotent.
	require.NoError(t, hub.Close(context.Background()))
}

func TestNilHubEmitIsSafe(t *testing.T) {
	t.Parallel()

	var hub *Hub
	hub.Emit(validEvent(StageRunStarted))
	require.NoError(t, hub.Close(context.Background()))
}

func TestEventValidate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		evt  Event
		ok   bool
	}{
		{"run started", validEvent(StageRunStarted), true},
		{"page fetched", validEvent(StagePageFetched), true},
		{"missing run id", Event{TS: time.Now(), Stage: StageRunStarted}, false},
		{"missing timestamp", Event{RunID: "r", Stage: StageRunStarted}, false},
		{"page event without url", Event{RunID: "r", TS: time.Now(), Stage: StagePageIndexed}, false},
		{"unknown stage", Event{RunID: "r", TS: time.Now(), Stage: Stage("NOPE")}, false},
		{"negative duration", Event{RunID: "r", TS: time.Now(), Stage: StageRunFinished, Dur: -time.Second}, false},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.evt.Validate()
			if tc.ok {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
			}
		})
	}
}
