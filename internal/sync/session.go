package sync

import (
	"context"
	"log/slog"
	stdsync "sync"

	"github.com/google/uuid"

	"github.com/tonimelisma/fissurewatch/internal/fissure"
)

// Session is one synchronization lifetime under a fixed settled criteria.
// It owns its cancellation token and its known-id set. The retry counter
// and known ids are only touched by the goroutine running the session.
type Session struct {
	id       string
	criteria fissure.Criteria
	ctx      context.Context
	cancel   context.CancelFunc

	known   IDSet
	retries int
}

// ID returns the session identifier used in logs and Updates.
func (s *Session) ID() string {
	return s.id
}

// Criteria returns the settled criteria the session was started for.
func (s *Session) Criteria() fissure.Criteria {
	return s.criteria
}

// Context returns the session's cancellation token. Every request and
// timer of the session waits on it.
func (s *Session) Context() context.Context {
	return s.ctx
}

// Active reports whether the session has not been canceled.
func (s *Session) Active() bool {
	return s.ctx.Err() == nil
}

// Known returns the session's current known-id set.
func (s *Session) Known() IDSet {
	return s.known
}

// Lifecycle hands out sessions. At most one session is live: Start cancels
// the previous one before returning the new one. Commit is the single
// checkpoint through which a session mutates shared state.
type Lifecycle struct {
	mu      stdsync.Mutex
	parent  context.Context
	current *Session
	logger  *slog.Logger
}

// NewLifecycle creates a Lifecycle whose sessions derive from parent.
// Canceling parent cancels every session.
func NewLifecycle(parent context.Context, logger *slog.Logger) *Lifecycle {
	return &Lifecycle{
		parent: parent,
		logger: logger,
	}
}

// Start cancels the current session, if any, and opens a new one with an
// empty known-id set.
func (l *Lifecycle) Start(criteria fissure.Criteria) *Session {
	ctx, cancel := context.WithCancel(l.parent)

	s := &Session{
		id:       uuid.NewString(),
		criteria: criteria,
		ctx:      ctx,
		cancel:   cancel,
		known:    IDSet{},
	}

	l.mu.Lock()
	prev := l.current
	l.current = s

	if prev != nil {
		prev.cancel()
	}
	l.mu.Unlock()

	if prev != nil {
		l.logger.Debug("session superseded",
			slog.String("session_id", prev.id),
			slog.String("next_session_id", s.id),
		)
	}

	l.logger.Info("session started",
		slog.String("session_id", s.id),
		slog.String("criteria", criteria.String()),
	)

	return s
}

// Current returns the live session, or nil after Stop.
func (l *Lifecycle) Current() *Session {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.current
}

// Stop cancels the current session. Safe to call repeatedly.
func (l *Lifecycle) Stop() {
	l.mu.Lock()
	prev := l.current
	l.current = nil

	if prev != nil {
		prev.cancel()
	}
	l.mu.Unlock()

	if prev != nil {
		l.logger.Info("session stopped", slog.String("session_id", prev.id))
	}
}

// Commit runs fn only if s is still the current, uncanceled session, and
// reports whether it ran. fn runs under the lifecycle lock, so a concurrent
// Start either happens entirely before fn (and fn is skipped) or entirely
// after it.
func (l *Lifecycle) Commit(s *Session, fn func()) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if s != l.current || !s.Active() {
		return false
	}

	fn()

	return true
}
