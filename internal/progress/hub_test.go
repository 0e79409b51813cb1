package progress

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/comic-archiver/internal/comics"
)

func TestHubBatchBySize(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{BufferSize: 8, MaxBatchEvents: 2, MaxBatchWait: time.Minute}, sink)
	defer func() { require.NoError(t, hub.Close(context.Background())) }()

	hub.Emit(itemEvent("2000-01-01", comics.ItemCompleted))
	hub.Emit(itemEvent("2000-01-02", comics.ItemCompleted))
	require.Eventually(t, func() bool {
		batches := sink.Batches()
		return len(batches) == 1 && len(batches[0]) == 2
	}, time.Second, 10*time.Millisecond)
}

func TestHubBatchByTimer(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{BufferSize: 4, MaxBatchEvents: 10, MaxBatchWait: 20 * time.Millisecond}, sink)
	defer func() { require.NoError(t, hub.Close(context.Background())) }()

	hub.Emit(runEvent(StageRunStart))
	require.Eventually(t, func() bool {
		return len(sink.Batches()) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestHubEmitDropsWhenFull(t *testing.T) {
	t.Parallel()

	hub := &Hub{cfg: Config{}.withDefaults(), events: make(chan Event)}
	start := time.Now()
	hub.Emit(runEvent(StageRunStart))
	require.Less(t, time.Since(start), 50*time.Millisecond)
	require.EqualValues(t, 0, hub.Dropped(), "first drop is logged and reset")
}

func TestHubFlushOnClose(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{BufferSize: 4, MaxBatchEvents: 100, MaxBatchWait: time.Minute}, sink)
	hub.Emit(runEvent(StageRunStart))
	hub.Emit(itemEvent("2000-01-01", comics.ItemFailed))
	require.NoError(t, hub.Close(context.Background()))

	batches := sink.Batches()
	require.Len(t, batches, 1)
	require.Len(t, batches[0], 2)
	require.True(t, sink.Closed())

	// Emit after close is ignored and Close is idempotent.
	hub.Emit(runEvent(StageRunDone))
	require.NoError(t, hub.Close(context.Background()))
	require.Len(t, sink.Batches(), 1)
}

func TestHubDiscardsInvalidEvents(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{MaxBatchEvents: 1}, sink)
	hub.Emit(Event{Stage: StageRunStart})
	hub.Emit(itemEvent("", comics.ItemCompleted))
	require.NoError(t, hub.Close(context.Background()))
	require.Empty(t, sink.Batches())
}

func TestHubSinkErrorDoesNotStopOthers(t *testing.T) {
	t.Parallel()

	failing := newStubSink()
	failing.err = errors.New("sink down")
	healthy := newStubSink()
	hub := NewHub(Config{MaxBatchEvents: 1}, failing, nil, healthy)
	hub.Emit(runEvent(StageRunStart))
	require.NoError(t, hub.Close(context.Background()))
	require.Len(t, healthy.Batches(), 1)
}

func TestEventValidate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		evt     Event
		wantErr bool
	}{
		{name: "run start", evt: runEvent(StageRunStart)},
		{name: "item", evt: itemEvent("2000-01-01", comics.ItemAssetMissing)},
		{name: "missing run id", evt: Event{TS: time.Now(), Stage: StageRunDone}, wantErr: true},
		{name: "missing ts", evt: Event{RunID: testRunID, Stage: StageRunDone}, wantErr: true},
		{name: "unknown stage", evt: Event{RunID: testRunID, TS: time.Now(), Stage: "NOPE"}, wantErr: true},
		{name: "unknown outcome", evt: itemEvent("2000-01-01", "bogus"), wantErr: true},
		{name: "negative dur", evt: func() Event { e := runEvent(StageRunDone); e.Dur = -1; return e }(), wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.evt.Validate()
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestUUIDRoundTrip(t *testing.T) {
	t.Parallel()
	id := uuid.MustParse("01890000-0000-7000-8000-000000000001")
	evt := Event{RunID: UUIDToBytes(id)}
	require.Equal(t, id, evt.RunUUID())
}

var testRunID = UUIDToBytes(uuid.MustParse("00000000-0000-0000-0000-0000000000aa"))

func runEvent(stage Stage) Event {
	return Event{RunID: testRunID, TS: time.Unix(100, 0).UTC(), Stage: stage, Total: 3}
}

func itemEvent(date string, outcome comics.ItemOutcome) Event {
	return Event{
		RunID:   testRunID,
		TS:      time.Unix(100, 0).UTC(),
		Stage:   StageItemDone,
		Date:    date,
		Outcome: outcome,
	}
}

type stubSink struct {
	mu      sync.Mutex
	batches [][]Event
	closed  bool
	err     error
}

func newStubSink() *stubSink {
	return &stubSink{}
}

func (s *stubSink) Consume(_ context.Context, batch []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, append([]Event(nil), batch...))
	return s.err
}

func (s *stubSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *stubSink) Batches() [][]Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]Event(nil), s.batches...)
}

func (s *stubSink) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
