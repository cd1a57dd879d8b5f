// Package ratelimit throttles repetitive log lines.
package ratelimit

import (
	"sync"
	"time"
)

// Counter lets one event through per interval and counts the ones it holds
// back. It is safe for concurrent use.
type Counter struct {
	mu         sync.Mutex
	interval   time.Duration
	last       time.Time
	suppressed uint64
	now        func() time.Time
}

// NewCounter returns a Counter allowing one event per interval. A zero or
// negative interval allows every event.
func NewCounter(interval time.Duration) *Counter {
	return &Counter{interval: interval, now: time.Now}
}

// Allow reports whether the current event may be logged and, if so, how
// many events were suppressed since the previous one that was.
func (c *Counter) Allow() (suppressed uint64, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if c.interval > 0 && !c.last.IsZero() && now.Sub(c.last) < c.interval {
		c.suppressed++
		return 0, false
	}
	suppressed = c.suppressed
	c.suppressed = 0
	c.last = now
	return suppressed, true
}
