package sync

import (
	"context"
	"log/slog"
	"slices"
	stdsync "sync"
	"sync/atomic"
	"time"

	"github.com/tonimelisma/fissurewatch/internal/fissure"
)

// Default engine timings.
const (
	DefaultFastRepoll     = 100 * time.Millisecond
	DefaultNormalRepoll   = 1 * time.Second
	DefaultImmediateRetry = 2 * time.Second
	DefaultBackoffBase    = 1 * time.Second
	DefaultBackoffCap     = 30 * time.Second
)

// EngineConfig holds the engine's time-based controls. Zero fields take
// the defaults.
type EngineConfig struct {
	// FastRepoll is the wait after a poll that changed the data.
	FastRepoll time.Duration
	// NormalRepoll is the wait after a poll that changed nothing.
	NormalRepoll time.Duration
	// ImmediateRetry is the wait after a failed first fetch before the
	// long-poll loop starts.
	ImmediateRetry time.Duration
	// BackoffBase and BackoffCap bound the retry delay after a failed poll.
	BackoffBase time.Duration
	BackoffCap  time.Duration
}

// DefaultEngineConfig returns the default timings.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		FastRepoll:     DefaultFastRepoll,
		NormalRepoll:   DefaultNormalRepoll,
		ImmediateRetry: DefaultImmediateRetry,
		BackoffBase:    DefaultBackoffBase,
		BackoffCap:     DefaultBackoffCap,
	}
}

func (c EngineConfig) withDefaults() EngineConfig {
	d := DefaultEngineConfig()

	if c.FastRepoll <= 0 {
		c.FastRepoll = d.FastRepoll
	}

	if c.NormalRepoll <= 0 {
		c.NormalRepoll = d.NormalRepoll
	}

	if c.ImmediateRetry <= 0 {
		c.ImmediateRetry = d.ImmediateRetry
	}

	if c.BackoffBase <= 0 {
		c.BackoffBase = d.BackoffBase
	}

	if c.BackoffCap <= 0 {
		c.BackoffCap = d.BackoffCap
	}

	return c
}

// engineCounters holds atomic counters for engine metrics.
type engineCounters struct {
	sessions       atomic.Int64
	pollsCompleted atomic.Int64
	changes        atomic.Int64
	errors         atomic.Int64
}

// EngineStats is a snapshot of engine metrics returned by Stats().
type EngineStats struct {
	Sessions       int64
	PollsCompleted int64
	Changes        int64
	Errors         int64
}

// Engine keeps a snapshot of the remote fissure collection in sync with
// the server. Each settled criteria starts a session: one immediate fetch,
// then a long-poll loop that re-polls quickly after a change, normally
// otherwise, and with exponential backoff after a failure. A new settled
// criteria cancels the running session before the next one starts.
type Engine struct {
	fetcher   FissureFetcher
	notifier  Notifier
	cfg       EngineConfig
	logger    *slog.Logger
	sleepFunc func(ctx context.Context, d time.Duration) error
	nowFunc   func() time.Time

	tracker  *StatusTracker
	registry *MissionTypeRegistry

	// mu protects the published view of the active session.
	mu       stdsync.Mutex
	fissures []fissure.Fissure
	loading  bool
	lastErr  error

	lastActivityNano atomic.Int64
	stats            engineCounters
}

// NewEngine creates an Engine. notifier may be nil to disable alerts.
func NewEngine(fetcher FissureFetcher, notifier Notifier, cfg EngineConfig, logger *slog.Logger) *Engine {
	return &Engine{
		fetcher:   fetcher,
		notifier:  notifier,
		cfg:       cfg.withDefaults(),
		logger:    logger,
		sleepFunc: timeSleep,
		nowFunc:   time.Now,
		tracker:   NewStatusTracker(),
		registry:  NewMissionTypeRegistry(DefaultMissionTypes),
	}
}

// Run consumes settled criteria and drives one session per value until ctx
// is canceled or settled is closed, then tears the active session down and
// returns nil. Every state change of the active session is sent on updates
// (which may be nil). No Update is sent after Run returns. Run must not be
// called concurrently with itself.
//
// A restart that races a send in flight may let one Update of the
// superseded session through. It carries state committed before the
// restart and always precedes the first Update of the next session, whose
// goroutine starts only after the previous one has returned. Consumers tell
// the two apart by SessionID.
func (e *Engine) Run(ctx context.Context, settled <-chan fissure.Criteria, updates chan<- Update) error {
	lifecycle := NewLifecycle(ctx, e.logger)

	var done chan struct{}

	defer func() {
		lifecycle.Stop()

		if done != nil {
			<-done
		}

		e.tracker.Set(StatusDisconnected, nil)
		e.logger.Info("sync engine stopped")
	}()

	e.logger.Info("sync engine starting",
		slog.Duration("fast_repoll", e.cfg.FastRepoll),
		slog.Duration("normal_repoll", e.cfg.NormalRepoll),
		slog.Duration("backoff_cap", e.cfg.BackoffCap),
	)

	for {
		select {
		case <-ctx.Done():
			return nil

		case criteria, ok := <-settled:
			if !ok {
				return nil
			}

			sess := lifecycle.Start(criteria)

			// The superseded session is already canceled; wait for its
			// goroutine so two sessions never run side by side.
			if done != nil {
				<-done
			}

			done = make(chan struct{})
			go e.runSession(lifecycle, sess, updates, done)
		}
	}
}

// runSession performs the immediate fetch and then the long-poll loop for
// one session.
func (e *Engine) runSession(l *Lifecycle, sess *Session, updates chan<- Update, done chan<- struct{}) {
	defer close(done)

	e.stats.sessions.Add(1)

	// The previous snapshot stays visible until the first response arrives.
	if !e.publish(l, sess, updates, func(u *Update) {
		u.Status = StatusConnecting
		u.Loading = true
		u.Err = nil
	}) {
		return
	}

	if !e.immediateFetch(l, sess, updates) {
		if !sess.Active() {
			return
		}

		if err := e.sleepFunc(sess.ctx, e.cfg.ImmediateRetry); err != nil {
			return
		}
	}

	e.pollLoop(l, sess, updates)
}

// immediateFetch requests the current matches without known ids. Its
// result never counts as a change. Returns false on failure.
func (e *Engine) immediateFetch(l *Lifecycle, sess *Session, updates chan<- Update) bool {
	snap, err := e.fetcher.Immediate(sess.ctx, sess.criteria)
	if err != nil {
		if !sess.Active() {
			e.logger.Debug("immediate fetch canceled", slog.String("session_id", sess.id))

			return false
		}

		e.stats.errors.Add(1)
		e.logger.Warn("immediate fetch failed",
			slog.String("session_id", sess.id),
			slog.String("error", err.Error()),
			slog.Duration("retry_in", e.cfg.ImmediateRetry),
		)

		e.publish(l, sess, updates, func(u *Update) {
			u.Status = StatusError
			u.Loading = false
			u.Err = err
			u.RetryIn = e.cfg.ImmediateRetry
		})

		return false
	}

	incoming := NewIDSet(snap.IDs...)

	e.publish(l, sess, updates, func(u *Update) {
		// No baseline exists yet, so a difference here is not a change.
		if Detect(sess.known, incoming) {
			e.logger.Debug("first fetch of session, change suppressed",
				slog.String("session_id", sess.id),
				slog.Int("ids", incoming.Len()),
			)
		}

		sess.known = incoming

		u.Status = StatusConnecting
		u.Fissures = snap.Fissures
		u.Loading = false
		u.Err = nil
		u.MissionTypes = e.observeMissionTypes(snap)
	})

	e.recordActivity()

	return true
}

// pollLoop issues long-poll requests until the session is canceled. Each
// iteration has exactly one request and one wait.
func (e *Engine) pollLoop(l *Lifecycle, sess *Session, updates chan<- Update) {
	for sess.Active() {
		status := StatusWaiting
		if sess.retries > 0 {
			status = StatusReconnecting
		}

		if !e.publish(l, sess, updates, func(u *Update) {
			u.Status = status
		}) {
			return
		}

		snap, err := e.fetcher.Poll(sess.ctx, sess.criteria, sess.known.Sorted())

		var delay time.Duration
		var ok bool

		if err != nil {
			delay, ok = e.handlePollError(l, sess, updates, err)
		} else {
			delay, ok = e.handlePollSuccess(l, sess, updates, snap)
		}

		if !ok {
			return
		}

		if err := e.sleepFunc(sess.ctx, delay); err != nil {
			return
		}
	}
}

// handlePollSuccess runs change detection, publishes the snapshot, and
// returns the delay before the next poll.
func (e *Engine) handlePollSuccess(
	l *Lifecycle, sess *Session, updates chan<- Update, snap *fissure.Snapshot,
) (time.Duration, bool) {
	incoming := NewIDSet(snap.IDs...)

	var changed bool

	if !e.publish(l, sess, updates, func(u *Update) {
		changed = Detect(sess.known, incoming)
		sess.known = incoming

		u.Status = StatusConnected
		u.Fissures = snap.Fissures
		u.Changed = changed
		u.Loading = false
		u.Err = nil
		u.MissionTypes = e.observeMissionTypes(snap)
	}) {
		return 0, false
	}

	sess.retries = 0

	e.recordActivity()
	e.stats.pollsCompleted.Add(1)

	if !changed {
		e.logger.Debug("poll unchanged",
			slog.String("session_id", sess.id),
			slog.Int("fissures", len(snap.Fissures)),
		)

		return e.cfg.NormalRepoll, true
	}

	e.stats.changes.Add(1)
	e.logger.Info("fissures updated",
		slog.String("session_id", sess.id),
		slog.Int("fissures", len(snap.Fissures)),
	)

	e.notify(sess.ctx, len(snap.Fissures))

	return e.cfg.FastRepoll, true
}

// handlePollError publishes the failure and returns the backoff delay.
// A failure caused by the session's own cancellation is dropped.
func (e *Engine) handlePollError(l *Lifecycle, sess *Session, updates chan<- Update, err error) (time.Duration, bool) {
	if !sess.Active() {
		e.logger.Debug("poll canceled", slog.String("session_id", sess.id))

		return 0, false
	}

	delay := BackoffDelay(e.cfg.BackoffBase, e.cfg.BackoffCap, sess.retries)
	sess.retries++

	e.stats.errors.Add(1)
	e.logger.Warn("poll failed, backing off",
		slog.String("session_id", sess.id),
		slog.String("error", err.Error()),
		slog.Duration("backoff", delay),
		slog.Int("consecutive_errors", sess.retries),
	)

	if !e.publish(l, sess, updates, func(u *Update) {
		u.Status = StatusError
		u.Loading = false
		u.Err = err
		u.RetryIn = delay
	}) {
		return 0, false
	}

	return delay, true
}

// publish applies mutate to the current view through the session
// checkpoint and sends the resulting Update. It returns false when the
// session is no longer current, in which case nothing was changed.
func (e *Engine) publish(l *Lifecycle, sess *Session, updates chan<- Update, mutate func(u *Update)) bool {
	var u Update

	if !l.Commit(sess, func() {
		e.mu.Lock()
		defer e.mu.Unlock()

		u = Update{
			SessionID: sess.id,
			Criteria:  sess.criteria,
			Status:    e.tracker.Get(),
			Fissures:  e.fissures,
			Loading:   e.loading,
			Err:       e.lastErr,
		}

		mutate(&u)

		e.fissures = u.Fissures
		e.loading = u.Loading
		e.lastErr = u.Err
		e.tracker.Set(u.Status, u.Err)

		u.At = e.nowFunc()
	}) {
		return false
	}

	if updates == nil {
		return true
	}

	// Cancellation observed before the send wins over a ready consumer.
	if !sess.Active() {
		return false
	}

	select {
	case updates <- u:
		return true
	case <-sess.ctx.Done():
		return false
	}
}

// observeMissionTypes feeds the registry and returns the new union only
// when it changed.
func (e *Engine) observeMissionTypes(snap *fissure.Snapshot) []string {
	types, changed := e.registry.Observe(snap.MissionTypes())
	if !changed {
		return nil
	}

	return types
}

// notify fires the "data updated" alert. Best effort.
func (e *Engine) notify(ctx context.Context, count int) {
	if e.notifier == nil {
		return
	}

	if err := e.notifier.Notify(ctx, newUpdateNotification(count)); err != nil {
		e.logger.Debug("notification dropped", slog.String("error", err.Error()))
	}
}

// Status returns the connection status last set by the engine.
func (e *Engine) Status() StatusInfo {
	return e.tracker.Info()
}

// Fissures returns the last published snapshot.
func (e *Engine) Fissures() []fissure.Fissure {
	e.mu.Lock()
	defer e.mu.Unlock()

	return slices.Clone(e.fissures)
}

// MissionTypes returns the catalog merged with every observed mission type.
func (e *Engine) MissionTypes() []string {
	return e.registry.Types()
}

// LastActivity returns the time of the most recent successful response.
// Returns zero time if none has completed.
func (e *Engine) LastActivity() time.Time {
	nano := e.lastActivityNano.Load()
	if nano == 0 {
		return time.Time{}
	}

	return time.Unix(0, nano)
}

// Stats returns a snapshot of engine metrics. Thread-safe.
func (e *Engine) Stats() EngineStats {
	return EngineStats{
		Sessions:       e.stats.sessions.Load(),
		PollsCompleted: e.stats.pollsCompleted.Load(),
		Changes:        e.stats.changes.Load(),
		Errors:         e.stats.errors.Load(),
	}
}

func (e *Engine) recordActivity() {
	e.lastActivityNano.Store(e.nowFunc().UnixNano())
}
