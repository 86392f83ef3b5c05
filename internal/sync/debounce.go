package sync

import (
	"context"
	"log/slog"
	stdsync "sync"
	"time"

	"github.com/tonimelisma/fissurewatch/internal/fissure"
)

// DefaultDebounce is the quiet period after the last filter edit before the
// edit settles.
const DefaultDebounce = 500 * time.Millisecond

// Debouncer coalesces rapid filter edits. Submit records the pending
// criteria and restarts the quiet timer; when the timer fires the pending
// value becomes the settled value. Settled is always a value pending held
// at some point. All methods are safe for concurrent use.
type Debouncer struct {
	mu      stdsync.Mutex
	pending fissure.Criteria
	settled fissure.Criteria
	notify  chan struct{}
	quiet   time.Duration
	logger  *slog.Logger
}

// NewDebouncer creates a Debouncer whose pending and settled criteria both
// start at initial.
func NewDebouncer(initial fissure.Criteria, quiet time.Duration, logger *slog.Logger) *Debouncer {
	if quiet <= 0 {
		quiet = DefaultDebounce
	}

	initial = initial.Normalize()

	return &Debouncer{
		pending: initial,
		settled: initial,
		notify:  make(chan struct{}, 1),
		quiet:   quiet,
		logger:  logger,
	}
}

// Submit records criteria as the latest pending value and restarts the
// quiet period.
func (d *Debouncer) Submit(criteria fissure.Criteria) {
	criteria = criteria.Normalize()

	d.mu.Lock()
	d.pending = criteria
	d.mu.Unlock()

	d.logger.Debug("filter edit submitted", slog.String("criteria", criteria.String()))

	select {
	case d.notify <- struct{}{}:
	default:
		// Already signaled; the loop hasn't consumed yet.
	}
}

// Pending returns the most recently submitted criteria.
func (d *Debouncer) Pending() fissure.Criteria {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.pending
}

// Settled returns the criteria currently driving requests.
func (d *Debouncer) Settled() fissure.Criteria {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.settled
}

// Run returns a channel that first yields the initial settled criteria and
// then one value per settled transition. A quiet period that ends with the
// pending value equal to the settled one emits nothing. The channel is
// closed when ctx is canceled.
func (d *Debouncer) Run(ctx context.Context) <-chan fissure.Criteria {
	out := make(chan fissure.Criteria, 1)
	out <- d.Settled()

	go d.debounceLoop(ctx, out)

	return out
}

// debounceLoop waits for submit signals, resets the quiet timer on each,
// and settles when the timer expires.
func (d *Debouncer) debounceLoop(ctx context.Context, out chan<- fissure.Criteria) {
	defer close(out)

	timer := time.NewTimer(d.quiet)
	timer.Stop() // start idle: nothing submitted yet
	defer timer.Stop()

	timerActive := false

	for {
		select {
		case <-ctx.Done():
			return

		case <-d.notify:
			if !timer.Stop() && timerActive {
				<-timer.C
			}

			timer.Reset(d.quiet)
			timerActive = true

		case <-timer.C:
			timerActive = false

			settled, ok := d.settle()
			if !ok {
				continue
			}

			select {
			case out <- settled:
			case <-ctx.Done():
				return
			}
		}
	}
}

// settle promotes pending to settled. Returns false when nothing changed.
func (d *Debouncer) settle() (fissure.Criteria, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.pending.Equal(d.settled) {
		d.logger.Debug("filter settled unchanged", slog.String("criteria", d.pending.String()))

		return d.settled, false
	}

	d.settled = d.pending

	d.logger.Info("filter settled", slog.String("criteria", d.settled.String()))

	return d.settled, true
}
