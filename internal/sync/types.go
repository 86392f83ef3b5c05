// Package sync implements the fissure synchronization engine: debounced
// filter transitions, the session lifecycle, change detection, the long-poll
// loop with reconnect backoff, and the derived status and mission-type views.
package sync

import (
	"context"
	"time"

	"github.com/tonimelisma/fissurewatch/internal/fissure"
)

// FissureFetcher is the transport consumed by the engine. Defined at the
// consumer; *fissure.Client satisfies it. Both calls must honor ctx
// cancellation.
type FissureFetcher interface {
	Immediate(ctx context.Context, criteria fissure.Criteria) (*fissure.Snapshot, error)
	Poll(ctx context.Context, criteria fissure.Criteria, known []string) (*fissure.Snapshot, error)
}

// Status is the connection status shown to the view. It is derived from
// engine events and never drives behavior.
type Status int

// Connection statuses.
const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusWaiting
	StatusReconnecting
	StatusError
	StatusConnected
)

func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusWaiting:
		return "waiting"
	case StatusReconnecting:
		return "reconnecting"
	case StatusError:
		return "error"
	case StatusConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// MarshalText renders the status as its lowercase name in JSON output.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Update is one element of the engine's output stream. Every state change
// of the active session produces an Update carrying the full current view:
// the latest snapshot, the status, and the last error if any.
type Update struct {
	SessionID string
	Criteria  fissure.Criteria
	Status    Status
	Fissures  []fissure.Fissure

	// Changed marks the "data updated" event: a long-poll response whose
	// ids differ from the previously known set. Never set for the first
	// fetch of a session.
	Changed bool

	// Loading is true until the session has received its first response,
	// successful or not.
	Loading bool

	// Err is the most recent failure, cleared by the next success.
	Err error

	// RetryIn is the scheduled backoff delay when Status is StatusError.
	RetryIn time.Duration

	// MissionTypes is non-nil only when the known mission types changed.
	MissionTypes []string

	At time.Time
}

// ErrorMessage returns Err's text, or "" when there is no error.
func (u *Update) ErrorMessage() string {
	if u.Err == nil {
		return ""
	}

	return u.Err.Error()
}
