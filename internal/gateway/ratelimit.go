package gateway

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// RateLimiter enforces the per-(connection, channel) message budgets.
// Implementations must only consume budget when the action is allowed.
type RateLimiter interface {
	// CheckAndConsume reports whether the connection may act on the channel
	// right now. Both the per-minute and per-hour budgets must have room;
	// only then is one unit consumed from each.
	CheckAndConsume(connectionID string, channel *Channel) bool

	// Forget drops all counters for a disconnected connection.
	Forget(connectionID string)
}

type limiterKey struct {
	connectionID string
	channel      string
}

type limiterWindow struct {
	minute []time.Time
	hour   []time.Time
}

// SlidingWindowLimiter counts actions over trailing one-minute and one-hour
// windows, measured from the moment of the check. Both budgets are evaluated
// against the same captured "now", so a widening window can never
// retroactively un-deny an action within a call.
type SlidingWindowLimiter struct {
	mu      sync.Mutex
	clock   clock.Clock
	windows map[limiterKey]*limiterWindow
}

func NewSlidingWindowLimiter(clk clock.Clock) *SlidingWindowLimiter {
	if clk == nil {
		clk = clock.New()
	}
	return &SlidingWindowLimiter{
		clock:   clk,
		windows: make(map[limiterKey]*limiterWindow),
	}
}

func pruneWindow(entries []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(entries) && !entries[i].After(cutoff) {
		i++
	}
	return entries[i:]
}

// CheckAndConsume implements RateLimiter. A non-positive budget on the
// channel disables that budget.
func (l *SlidingWindowLimiter) CheckAndConsume(connectionID string, channel *Channel) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	key := limiterKey{connectionID: connectionID, channel: channel.Name}
	w := l.windows[key]
	if w == nil {
		w = &limiterWindow{}
		l.windows[key] = w
	}
	w.minute = pruneWindow(w.minute, now.Add(-time.Minute))
	w.hour = pruneWindow(w.hour, now.Add(-time.Hour))

	if channel.MessagesPerMinute > 0 && len(w.minute) >= channel.MessagesPerMinute {
		return false
	}
	if channel.MessagesPerHour > 0 && len(w.hour) >= channel.MessagesPerHour {
		return false
	}
	w.minute = append(w.minute, now)
	w.hour = append(w.hour, now)
	return true
}

// Forget implements RateLimiter.
func (l *SlidingWindowLimiter) Forget(connectionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key := range l.windows {
		if key.connectionID == connectionID {
			delete(l.windows, key)
		}
	}
}
