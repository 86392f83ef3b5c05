package sync

import (
	"context"
	"fmt"
	"log/slog"
	stdsync "sync"
	"testing"
	"time"

	"github.com/tonimelisma/fissurewatch/internal/fissure"
)

// testLogger routes slog output through t.Log.
func testLogger(t *testing.T) *slog.Logger {
	t.Helper()

	return slog.New(slog.NewTextHandler(testLogWriter{t: t}, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

// testLogWriter adapts testing.T.Log to io.Writer for slog output.
type testLogWriter struct {
	t *testing.T
}

func (w testLogWriter) Write(p []byte) (int, error) {
	w.t.Helper()
	w.t.Log(string(p))

	return len(p), nil
}

// ---------------------------------------------------------------------------
// Mock FissureFetcher
// ---------------------------------------------------------------------------

type fetchResult struct {
	snap *fissure.Snapshot
	err  error
}

type fetchCall struct {
	kind     string // "immediate" or "poll"
	criteria fissure.Criteria
	known    []string
}

// mockFetcher replays scripted results in order, separately for immediate
// and poll calls. Once a script is exhausted the call blocks until its
// context is canceled.
type mockFetcher struct {
	mu        stdsync.Mutex
	immediate []fetchResult
	polls     []fetchResult
	calls     []fetchCall
}

func (m *mockFetcher) Immediate(ctx context.Context, criteria fissure.Criteria) (*fissure.Snapshot, error) {
	return m.next(ctx, fetchCall{kind: "immediate", criteria: criteria}, &m.immediate)
}

func (m *mockFetcher) Poll(ctx context.Context, criteria fissure.Criteria, known []string) (*fissure.Snapshot, error) {
	return m.next(ctx, fetchCall{kind: "poll", criteria: criteria, known: known}, &m.polls)
}

func (m *mockFetcher) next(ctx context.Context, call fetchCall, script *[]fetchResult) (*fissure.Snapshot, error) {
	m.mu.Lock()
	m.calls = append(m.calls, call)

	if len(*script) == 0 {
		m.mu.Unlock()
		<-ctx.Done()

		return nil, fmt.Errorf("mock: request canceled: %w", ctx.Err())
	}

	r := (*script)[0]
	*script = (*script)[1:]
	m.mu.Unlock()

	return r.snap, r.err
}

func (m *mockFetcher) callsOf(kind string) []fetchCall {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []fetchCall
	for _, c := range m.calls {
		if c.kind == kind {
			out = append(out, c)
		}
	}

	return out
}

// snapshotOf builds a snapshot whose fissures carry the given ids.
func snapshotOf(missionType string, ids ...string) *fissure.Snapshot {
	snap := &fissure.Snapshot{IDs: ids}
	for _, id := range ids {
		snap.Fissures = append(snap.Fissures, fissure.Fissure{ID: id, MissionType: missionType})
	}

	return snap
}

func okResult(snap *fissure.Snapshot) fetchResult { return fetchResult{snap: snap} }

func failResult(err error) fetchResult { return fetchResult{err: err} }

// ---------------------------------------------------------------------------
// Sleep and notifier recorders
// ---------------------------------------------------------------------------

// sleepRecorder records every requested wait and returns at once unless
// the context is already canceled.
type sleepRecorder struct {
	mu        stdsync.Mutex
	durations []time.Duration
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.durations = append(r.durations, d)
	r.mu.Unlock()

	return ctx.Err()
}

func (r *sleepRecorder) recorded() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]time.Duration(nil), r.durations...)
}

type recordingNotifier struct {
	mu    stdsync.Mutex
	sent  []Notification
	err   error
	calls int
}

func (n *recordingNotifier) Notify(_ context.Context, note Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.calls++
	if n.err != nil {
		return n.err
	}

	n.sent = append(n.sent, note)

	return nil
}

func (n *recordingNotifier) notifications() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()

	return append([]Notification(nil), n.sent...)
}

type staticPermission struct {
	current   Permission
	requested Permission
	asked     int
}

func (p *staticPermission) Permission() Permission { return p.current }

func (p *staticPermission) RequestPermission() Permission {
	p.asked++

	return p.requested
}

// ---------------------------------------------------------------------------
// Update helpers
// ---------------------------------------------------------------------------

// waitForUpdate reads updates until pred matches, failing after a timeout.
func waitForUpdate(t *testing.T, updates <-chan Update, pred func(Update) bool) Update {
	t.Helper()

	timeout := time.After(5 * time.Second)

	for {
		select {
		case u := <-updates:
			if pred(u) {
				return u
			}
		case <-timeout:
			t.Fatal("timed out waiting for update")

			return Update{}
		}
	}
}

func idsOfUpdate(u Update) []string {
	ids := make([]string, 0, len(u.Fissures))
	for _, f := range u.Fissures {
		ids = append(ids, f.ID)
	}

	return ids
}
