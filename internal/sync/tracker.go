package sync

import (
	stdsync "sync"
	"time"
)

// StatusInfo is a point-in-time view of the connection status.
type StatusInfo struct {
	Status    Status
	Since     time.Time
	LastError string
}

// StatusTracker holds the connection status last set by the engine. It is
// derived state for the view; nothing in the engine reads it back to make
// decisions. Safe for concurrent use.
type StatusTracker struct {
	mu      stdsync.RWMutex
	status  Status
	since   time.Time
	lastErr string
	nowFunc func() time.Time
}

// NewStatusTracker creates a tracker in StatusDisconnected.
func NewStatusTracker() *StatusTracker {
	return &StatusTracker{
		status:  StatusDisconnected,
		since:   time.Now(),
		nowFunc: time.Now,
	}
}

// Set records a new status and reports whether it differs from the
// previous one. A non-nil err is kept as the last error; entering
// StatusConnected clears it.
func (t *StatusTracker) Set(s Status, err error) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err != nil {
		t.lastErr = err.Error()
	} else if s == StatusConnected {
		t.lastErr = ""
	}

	if s == t.status {
		return false
	}

	t.status = s
	t.since = t.nowFunc()

	return true
}

// Get returns the current status.
func (t *StatusTracker) Get() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.status
}

// Info returns the status, when it was entered, and the last error.
func (t *StatusTracker) Info() StatusInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return StatusInfo{
		Status:    t.status,
		Since:     t.since,
		LastError: t.lastErr,
	}
}
