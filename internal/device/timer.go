package device

import "time"

// Clock returns the current time
type Clock func() time.Time

// Timer is a polled countdown. It never fires on its own; callers check Expired.
type Timer struct {
	duration time.Duration
	start    time.Time
	now      Clock
}

// NewTimer creates a timer that starts counting now
func NewTimer(d time.Duration, now Clock) *Timer {
	return &Timer{duration: d, start: now(), now: now}
}

// Reset restarts the countdown
func (t *Timer) Reset() {
	t.start = t.now()
}

// Expired reports whether the duration has passed since the last reset
func (t *Timer) Expired() bool {
	return t.Elapsed() >= t.duration
}

// ForceExpire makes the timer read as expired right away
func (t *Timer) ForceExpire() {
	t.start = t.now().Add(-t.duration)
}

// Elapsed is the time since the last reset
func (t *Timer) Elapsed() time.Duration {
	return t.now().Sub(t.start)
}
