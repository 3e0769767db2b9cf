package chat

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	// minWaitInterval is the shortest sleep between capacity checks while
	// a request is parked waiting for the window to open.
	minWaitInterval = 500 * time.Millisecond
	// waitSlack is added past the oldest entry's expiry so a wake-up lands
	// after the window has actually moved.
	waitSlack = 200 * time.Millisecond
)

// RequestLedger is a sliding-window admission controller. It tracks request
// timestamps over a fixed window and admits a new request only while usage
// stays below the effective per-window ceiling. One request of headroom is
// reserved so a side-channel call (follow-up generation, balance probe) never
// consumes the last slot.
type RequestLedger struct {
	logger zerolog.Logger
	rpm    int
	window time.Duration

	mu      sync.Mutex
	entries []time.Time

	// now and sleep are replaceable in tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRequestLedger creates a ledger admitting up to rpm requests per window.
func NewRequestLedger(logger zerolog.Logger, rpm int, window time.Duration) *RequestLedger {
	return &RequestLedger{
		logger: logger.With().Str("component", "requestLedger").Logger(),
		rpm:    rpm,
		window: window,
		now:    time.Now,
		sleep:  sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// limit is the admission ceiling: one below the configured rate, floored at
// one so a rate of one still makes progress.
func (l *RequestLedger) limit() int {
	limit := l.rpm - 1
	if limit < 1 {
		limit = 1
	}
	return limit
}

// prune drops entries older than the window. Caller holds l.mu.
func (l *RequestLedger) prune(now time.Time) {
	cutoff := now.Add(-l.window)
	kept := l.entries[:0]
	for _, t := range l.entries {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	l.entries = kept
}

// RPM returns the configured per-window request rate.
func (l *RequestLedger) RPM() int {
	return l.rpm
}

// Stats returns the current window usage, the configured per-window rate,
// and how long until the oldest recorded request ages out of the window.
// resetsIn is zero when the window is empty. The one-request admission
// margin is not reflected here.
func (l *RequestLedger) Stats() (used, limit int, resetsIn time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	l.prune(now)
	used = len(l.entries)
	limit = l.rpm
	if used > 0 {
		resetsIn = l.entries[0].Add(l.window).Sub(now)
	}
	return used, limit, resetsIn
}

// Usage returns the number of requests recorded inside the current window.
func (l *RequestLedger) Usage() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prune(l.now())
	return len(l.entries)
}

// HasCapacity reports whether a request would be admitted right now.
func (l *RequestLedger) HasCapacity() bool {
	return l.Usage() < l.limit()
}

// Record charges one request to the window.
func (l *RequestLedger) Record() {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	l.prune(now)
	l.entries = append(l.entries, now)
}

// Wait blocks until the window has capacity or ctx is cancelled. Capacity is
// re-validated after every wake-up since other callers may have admitted
// requests in the meantime. Wait does not record; callers record once the
// request is actually issued.
func (l *RequestLedger) Wait(ctx context.Context) error {
	for {
		l.mu.Lock()
		now := l.now()
		l.prune(now)
		if len(l.entries) < l.limit() {
			l.mu.Unlock()
			return nil
		}
		oldest := l.entries[0]
		l.mu.Unlock()

		delay := oldest.Add(l.window).Sub(now) + waitSlack
		if delay < minWaitInterval {
			delay = minWaitInterval
		}
		l.logger.Debug().
			Dur("delay", delay).
			Int("limit", l.limit()).
			Msg("Rate window full, waiting for capacity")
		if err := l.sleep(ctx, delay); err != nil {
			return err
		}
	}
}
