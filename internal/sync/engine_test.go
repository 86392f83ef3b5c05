package sync

import (
	"context"
	"errors"
	"fmt"
	stdsync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/fissurewatch/internal/fissure"
)

// testEngineConfig uses distinct values for every delay so recorded waits
// identify which branch scheduled them.
func testEngineConfig() EngineConfig {
	return EngineConfig{
		FastRepoll:     100 * time.Millisecond,
		NormalRepoll:   700 * time.Millisecond,
		ImmediateRetry: 2 * time.Second,
		BackoffBase:    1 * time.Second,
		BackoffCap:     30 * time.Second,
	}
}

type engineHarness struct {
	engine   *Engine
	fetcher  *mockFetcher
	notifier *recordingNotifier
	sleeps   *sleepRecorder
	settled  chan fissure.Criteria
	updates  chan Update
	cancel   context.CancelFunc
	runErr   chan error
}

// startEngine runs an engine over fetcher in the background. The returned
// harness is torn down at test cleanup.
func startEngine(t *testing.T, fetcher *mockFetcher, initial fissure.Criteria) *engineHarness {
	t.Helper()

	h := &engineHarness{
		fetcher:  fetcher,
		notifier: &recordingNotifier{},
		sleeps:   &sleepRecorder{},
		settled:  make(chan fissure.Criteria, 4),
		updates:  make(chan Update, 256),
		runErr:   make(chan error, 1),
	}

	h.engine = NewEngine(fetcher, h.notifier, testEngineConfig(), testLogger(t))
	h.engine.sleepFunc = h.sleeps.sleep

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel

	h.settled <- initial

	go func() {
		h.runErr <- h.engine.Run(ctx, h.settled, h.updates)
	}()

	t.Cleanup(func() {
		h.stop(t)
	})

	return h
}

func (h *engineHarness) stop(t *testing.T) {
	t.Helper()

	h.cancel()

	select {
	case err, open := <-h.runErr:
		if open {
			assert.NoError(t, err)
			close(h.runErr)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("engine did not stop")
	}
}

func TestEngine_EndToEndScenario(t *testing.T) {
	fetcher := &mockFetcher{
		immediate: []fetchResult{
			okResult(snapshotOf("Survival", "1", "2")),
			okResult(snapshotOf("Survival", "9")),
		},
		polls: []fetchResult{
			okResult(snapshotOf("Survival", "1", "2")),
			okResult(snapshotOf("Survival", "1", "2", "3")),
		},
	}

	survival := fissure.NewCriteria(fissure.HardModeAny, "Survival")
	h := startEngine(t, fetcher, survival)

	first := waitForUpdate(t, h.updates, func(u Update) bool {
		return u.Status == StatusConnecting && !u.Loading
	})
	assert.Equal(t, []string{"1", "2"}, idsOfUpdate(first))
	assert.False(t, first.Changed)

	unchanged := waitForUpdate(t, h.updates, func(u Update) bool { return u.Status == StatusConnected })
	assert.False(t, unchanged.Changed)
	assert.Equal(t, first.SessionID, unchanged.SessionID)

	changed := waitForUpdate(t, h.updates, func(u Update) bool { return u.Status == StatusConnected })
	assert.True(t, changed.Changed)
	assert.Equal(t, []string{"1", "2", "3"}, idsOfUpdate(changed))

	require.Eventually(t, func() bool { return len(h.sleeps.recorded()) >= 2 }, 5*time.Second, time.Millisecond)
	cfg := testEngineConfig()
	assert.Equal(t, []time.Duration{cfg.NormalRepoll, cfg.FastRepoll}, h.sleeps.recorded()[:2])

	notes := h.notifier.notifications()
	require.Len(t, notes, 1)
	assert.Equal(t, 3, notes[0].Count)
	assert.Equal(t, "There are now 3 fissures.", notes[0].Body)

	polls := fetcher.callsOf("poll")
	require.GreaterOrEqual(t, len(polls), 2)
	assert.Equal(t, []string{"1", "2"}, polls[0].known)
	assert.Equal(t, []string{"1", "2"}, polls[1].known)
	assert.True(t, polls[0].criteria.Equal(survival))

	// Wait for the third poll to be held open before changing the filter.
	require.Eventually(t, func() bool { return len(fetcher.callsOf("poll")) >= 3 }, 5*time.Second, time.Millisecond)

	// Filter change restarts the session with an empty baseline.
	hard := fissure.NewCriteria(fissure.HardModeOnly, "Survival")
	h.settled <- hard

	restarted := waitForUpdate(t, h.updates, func(u Update) bool {
		return u.SessionID != first.SessionID && u.Status == StatusConnecting && !u.Loading
	})
	assert.True(t, restarted.Criteria.Equal(hard))
	assert.Equal(t, []string{"9"}, idsOfUpdate(restarted))
	assert.False(t, restarted.Changed)

	require.Eventually(t, func() bool { return len(fetcher.callsOf("poll")) >= 4 }, 5*time.Second, time.Millisecond)
	polls = fetcher.callsOf("poll")
	assert.True(t, polls[3].criteria.Equal(hard))
	assert.Equal(t, []string{"9"}, polls[3].known, "known ids come only from the new session's first fetch")

	immediates := fetcher.callsOf("immediate")
	require.Len(t, immediates, 2)
	assert.True(t, immediates[1].criteria.Equal(hard))

	assert.Len(t, h.notifier.notifications(), 1, "first fetch after restart never notifies")
	assert.Equal(t, int64(2), h.engine.Stats().Sessions)
}

func TestEngine_ImmediateFetchNeverCountsAsChange(t *testing.T) {
	fetcher := &mockFetcher{
		immediate: []fetchResult{okResult(snapshotOf("Spy", "a", "b", "c"))},
	}

	h := startEngine(t, fetcher, fissure.Criteria{})

	u := waitForUpdate(t, h.updates, func(u Update) bool { return !u.Loading })
	assert.False(t, u.Changed)
	assert.Equal(t, StatusConnecting, u.Status)

	waitForUpdate(t, h.updates, func(u Update) bool { return u.Status == StatusWaiting })
	assert.Empty(t, h.notifier.notifications())
	assert.Equal(t, int64(0), h.engine.Stats().Changes)
}

func TestEngine_RepollDelaySelection(t *testing.T) {
	fetcher := &mockFetcher{
		immediate: []fetchResult{okResult(snapshotOf("Spy", "1"))},
		polls: []fetchResult{
			okResult(snapshotOf("Spy", "1", "2")), // changed
			okResult(snapshotOf("Spy", "1", "2")), // unchanged
			okResult(snapshotOf("Spy", "2")),      // changed (shrunk)
			okResult(snapshotOf("Spy", "3")),      // changed (swapped)
			okResult(snapshotOf("Spy", "3")),      // unchanged
		},
	}

	h := startEngine(t, fetcher, fissure.Criteria{})

	require.Eventually(t, func() bool { return len(h.sleeps.recorded()) >= 5 }, 5*time.Second, time.Millisecond)

	cfg := testEngineConfig()
	assert.Equal(t, []time.Duration{
		cfg.FastRepoll, cfg.NormalRepoll, cfg.FastRepoll, cfg.FastRepoll, cfg.NormalRepoll,
	}, h.sleeps.recorded()[:5])

	for _, d := range h.sleeps.recorded()[:5] {
		assert.Less(t, d, cfg.BackoffCap)
	}
}

func TestEngine_BackoffGrowthCapAndReset(t *testing.T) {
	transient := &fissure.APIError{StatusCode: 503, Err: fissure.ErrServerError}

	fetcher := &mockFetcher{
		immediate: []fetchResult{okResult(snapshotOf("Spy", "1"))},
		polls: []fetchResult{
			failResult(transient),
			failResult(transient),
			failResult(transient),
			failResult(transient),
			failResult(transient),
			failResult(transient),
			okResult(snapshotOf("Spy", "1")),
			failResult(transient),
		},
	}

	h := startEngine(t, fetcher, fissure.Criteria{})

	require.Eventually(t, func() bool { return len(h.sleeps.recorded()) >= 8 }, 5*time.Second, time.Millisecond)

	assert.Equal(t, []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second,
		testEngineConfig().NormalRepoll,
		1 * time.Second, // counter reset by the success
	}, h.sleeps.recorded()[:8])

	assert.Equal(t, int64(7), h.engine.Stats().Errors)
}

func TestEngine_ErrorThenReconnectingStatus(t *testing.T) {
	fetcher := &mockFetcher{
		immediate: []fetchResult{okResult(snapshotOf("Spy", "1", "2"))},
		polls: []fetchResult{
			failResult(fmt.Errorf("%w: connection reset", fissure.ErrTransport)),
			okResult(snapshotOf("Spy", "1", "2")),
		},
	}

	h := startEngine(t, fetcher, fissure.Criteria{})

	errUpdate := waitForUpdate(t, h.updates, func(u Update) bool { return u.Status == StatusError })
	assert.ErrorIs(t, errUpdate.Err, fissure.ErrTransport)
	assert.Equal(t, time.Second, errUpdate.RetryIn)
	assert.Equal(t, []string{"1", "2"}, idsOfUpdate(errUpdate), "last snapshot stays visible during errors")

	reconnecting := waitForUpdate(t, h.updates, func(u Update) bool { return u.Status == StatusReconnecting })
	assert.Error(t, reconnecting.Err, "error stays visible while reconnecting")

	connected := waitForUpdate(t, h.updates, func(u Update) bool { return u.Status == StatusConnected })
	assert.NoError(t, connected.Err)
	assert.Empty(t, connected.ErrorMessage())
	assert.False(t, connected.Changed)

	next := waitForUpdate(t, h.updates, func(u Update) bool { return true })
	assert.Equal(t, StatusWaiting, next.Status, "a success resets the loop to plain waiting")

	polls := fetcher.callsOf("poll")
	require.GreaterOrEqual(t, len(polls), 2)
	assert.Equal(t, polls[0].known, polls[1].known, "retries keep the session's known ids")
}

func TestEngine_MalformedResponseIsRetried(t *testing.T) {
	fetcher := &mockFetcher{
		immediate: []fetchResult{okResult(snapshotOf("Spy", "1"))},
		polls: []fetchResult{
			failResult(fmt.Errorf("%w: body is neither a list nor an envelope", fissure.ErrMalformedResponse)),
			okResult(snapshotOf("Spy", "1")),
		},
	}

	h := startEngine(t, fetcher, fissure.Criteria{})

	u := waitForUpdate(t, h.updates, func(u Update) bool { return u.Status == StatusError })
	assert.ErrorIs(t, u.Err, fissure.ErrMalformedResponse)

	waitForUpdate(t, h.updates, func(u Update) bool { return u.Status == StatusConnected })
}

func TestEngine_FailuresEndLoading(t *testing.T) {
	fetcher := &mockFetcher{
		immediate: []fetchResult{failResult(&fissure.APIError{StatusCode: 502, Err: fissure.ErrServerError})},
		polls: []fetchResult{
			failResult(&fissure.APIError{StatusCode: 502, Err: fissure.ErrServerError}),
			failResult(&fissure.APIError{StatusCode: 502, Err: fissure.ErrServerError}),
		},
	}

	h := startEngine(t, fetcher, fissure.Criteria{})

	connecting := waitForUpdate(t, h.updates, func(u Update) bool { return u.Status == StatusConnecting })
	assert.True(t, connecting.Loading)

	for i := range 3 {
		u := waitForUpdate(t, h.updates, func(u Update) bool { return u.Status == StatusError })
		assert.False(t, u.Loading, "error update %d", i+1)
		assert.ErrorIs(t, u.Err, fissure.ErrServerError)
	}
}

func TestEnginePublish_CanceledSessionSendsNothing(t *testing.T) {
	e := NewEngine(&mockFetcher{}, nil, testEngineConfig(), testLogger(t))
	l := NewLifecycle(context.Background(), testLogger(t))
	sess := l.Start(fissure.Criteria{})

	updates := make(chan Update, 1)

	// The restart lands after the state was committed but before the send.
	sent := e.publish(l, sess, updates, func(u *Update) {
		u.Status = StatusConnected
		sess.cancel()
	})

	assert.False(t, sent)
	assert.Empty(t, updates, "a ready consumer must not receive the canceled session's update")
}

func TestEngine_ImmediateFailureStillStartsLoop(t *testing.T) {
	fetcher := &mockFetcher{
		immediate: []fetchResult{failResult(&fissure.APIError{StatusCode: 500, Err: fissure.ErrServerError})},
		polls:     []fetchResult{okResult(snapshotOf("Spy", "1"))},
	}

	h := startEngine(t, fetcher, fissure.Criteria{})

	errUpdate := waitForUpdate(t, h.updates, func(u Update) bool { return u.Status == StatusError })
	assert.ErrorIs(t, errUpdate.Err, fissure.ErrServerError)
	assert.False(t, errUpdate.Loading, "a failed response still ends loading")

	connected := waitForUpdate(t, h.updates, func(u Update) bool { return u.Status == StatusConnected })
	assert.True(t, connected.Changed, "first poll after a failed first fetch compares against an empty baseline")
	assert.False(t, connected.Loading)

	sleeps := h.sleeps.recorded()
	require.NotEmpty(t, sleeps)
	assert.Equal(t, testEngineConfig().ImmediateRetry, sleeps[0])

	polls := fetcher.callsOf("poll")
	require.NotEmpty(t, polls)
	assert.Empty(t, polls[0].known)
}

// heldFetcher answers the first Immediate call only when released, and
// ignores cancellation while holding it: a late response from a session
// that has already been superseded.
type heldFetcher struct {
	*mockFetcher

	once    stdsync.Once
	entered chan struct{}
	release chan struct{}
	late    *fissure.Snapshot
}

func (f *heldFetcher) Immediate(ctx context.Context, criteria fissure.Criteria) (*fissure.Snapshot, error) {
	held := false
	f.once.Do(func() { held = true })

	if held {
		close(f.entered)
		<-f.release

		return f.late, nil
	}

	return f.mockFetcher.Immediate(ctx, criteria)
}

func TestEngine_LateResponseFromSupersededSessionIgnored(t *testing.T) {
	fetcher := &heldFetcher{
		mockFetcher: &mockFetcher{
			immediate: []fetchResult{okResult(snapshotOf("Capture", "fresh"))},
		},
		entered: make(chan struct{}),
		release: make(chan struct{}),
		late:    snapshotOf("Spy", "stale"),
	}

	updates := make(chan Update, 256)
	settled := make(chan fissure.Criteria, 2)
	engine := NewEngine(fetcher, &recordingNotifier{}, testEngineConfig(), testLogger(t))
	engine.sleepFunc = (&sleepRecorder{}).sleep

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	settled <- fissure.NewCriteria(fissure.HardModeAny, "Spy")

	runErr := make(chan error, 1)
	go func() { runErr <- engine.Run(ctx, settled, updates) }()

	<-fetcher.entered

	settled <- fissure.NewCriteria(fissure.HardModeAny, "Capture")

	// Give the engine time to start the restart before the stale answer lands.
	time.Sleep(20 * time.Millisecond)
	close(fetcher.release)

	fresh := waitForUpdate(t, updates, func(u Update) bool { return !u.Loading })
	assert.Equal(t, []string{"fresh"}, idsOfUpdate(fresh))

	cancel()
	require.NoError(t, <-runErr)

	close(updates)

	for u := range updates {
		assert.NotEqual(t, []string{"stale"}, idsOfUpdate(u), "superseded session must not publish")
	}

	assert.Equal(t, []string{"fresh"}, idsOfFissures(engine.Fissures()))
}

func idsOfFissures(list []fissure.Fissure) []string {
	return idsOfUpdate(Update{Fissures: list})
}

func TestEngine_TeardownStopsEverything(t *testing.T) {
	fetcher := &mockFetcher{
		immediate: []fetchResult{okResult(snapshotOf("Spy", "1"))},
	}

	updates := make(chan Update, 256)
	settled := make(chan fissure.Criteria, 1)
	engine := NewEngine(fetcher, nil, testEngineConfig(), testLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	settled <- fissure.Criteria{}

	runErr := make(chan error, 1)
	go func() { runErr <- engine.Run(ctx, settled, updates) }()

	waitForUpdate(t, updates, func(u Update) bool { return u.Status == StatusWaiting })

	cancel()

	select {
	case err := <-runErr:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	assert.Equal(t, StatusDisconnected, engine.Status().Status)

	select {
	case u := <-updates:
		t.Fatalf("unexpected update after teardown: %+v", u)
	default:
	}
}

func TestEngine_ClosedSettledChannelStops(t *testing.T) {
	engine := NewEngine(&mockFetcher{}, nil, testEngineConfig(), testLogger(t))

	settled := make(chan fissure.Criteria)
	close(settled)

	require.NoError(t, engine.Run(context.Background(), settled, nil))
}

func TestEngine_MissionTypesPublishedOnlyOnChange(t *testing.T) {
	fetcher := &mockFetcher{
		immediate: []fetchResult{okResult(snapshotOf("Survival", "1"))},
		polls: []fetchResult{
			okResult(snapshotOf("Netracells", "1")),
			okResult(snapshotOf("Netracells", "1")),
		},
	}

	h := startEngine(t, fetcher, fissure.Criteria{})

	first := waitForUpdate(t, h.updates, func(u Update) bool { return !u.Loading })
	assert.Nil(t, first.MissionTypes, "catalog type adds nothing new")

	withNew := waitForUpdate(t, h.updates, func(u Update) bool { return u.Status == StatusConnected })
	assert.Contains(t, withNew.MissionTypes, "Netracells")

	again := waitForUpdate(t, h.updates, func(u Update) bool { return u.Status == StatusConnected })
	assert.Nil(t, again.MissionTypes)

	assert.Contains(t, h.engine.MissionTypes(), "Netracells")
}

func TestEngine_NotifierFailureDoesNotStopLoop(t *testing.T) {
	fetcher := &mockFetcher{
		immediate: []fetchResult{okResult(snapshotOf("Spy", "1"))},
		polls: []fetchResult{
			okResult(snapshotOf("Spy", "1", "2")),
			okResult(snapshotOf("Spy", "1", "2", "3")),
		},
	}

	h := startEngine(t, fetcher, fissure.Criteria{})
	h.notifier.mu.Lock()
	h.notifier.err = errors.New("no display")
	h.notifier.mu.Unlock()

	waitForUpdate(t, h.updates, func(u Update) bool { return u.Changed && len(u.Fissures) == 3 })

	require.Eventually(t, func() bool {
		stats := h.engine.Stats()
		return stats.Changes == 2 && stats.PollsCompleted == 2
	}, 5*time.Second, time.Millisecond)
	assert.False(t, h.engine.LastActivity().IsZero())
}

func TestEngineConfig_Defaults(t *testing.T) {
	t.Parallel()

	cfg := EngineConfig{FastRepoll: 5 * time.Millisecond}.withDefaults()

	assert.Equal(t, 5*time.Millisecond, cfg.FastRepoll)
	assert.Equal(t, DefaultNormalRepoll, cfg.NormalRepoll)
	assert.Equal(t, DefaultImmediateRetry, cfg.ImmediateRetry)
	assert.Equal(t, DefaultBackoffBase, cfg.BackoffBase)
	assert.Equal(t, DefaultBackoffCap, cfg.BackoffCap)
}
