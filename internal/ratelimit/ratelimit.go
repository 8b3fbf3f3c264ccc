// Package ratelimit implements a sliding-window admission limiter.
package ratelimit

import (
	"sync"
	"time"

	"k8s.io/utils/clock"
)

const (
	DefaultLimit  = 10
	DefaultWindow = time.Minute
)

// Limiter admits at most Limit calls in any trailing Window. Rejection is
// immediate; nothing is reserved for later.
//
// It is safe for concurrent use.
type Limiter struct {
	limit  int
	window time.Duration
	clock  clock.PassiveClock

	mu    sync.Mutex
	times []time.Time
}

// New returns a limiter. Non-positive values fall back to the defaults and a
// nil clock uses real time.
func New(limit int, window time.Duration, clk clock.PassiveClock) *Limiter {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if window <= 0 {
		window = DefaultWindow
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Limiter{limit: limit, window: window, clock: clk}
}

// Allow reports whether a call made now is admitted, recording it if so.
func (l *Limiter) Allow() bool {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.pruneLocked(now)
	if len(l.times) >= l.limit {
		return false
	}
	l.times = append(l.times, now)
	return true
}

// InWindow returns the number of admissions still inside the window.
func (l *Limiter) InWindow() int {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.pruneLocked(now)
	return len(l.times)
}

func (l *Limiter) Limit() int             { return l.limit }
func (l *Limiter) Window() time.Duration { return l.window }

// pruneLocked drops admissions whose age has reached the window. Timestamps
// are appended in order, so the kept ones are a suffix.
func (l *Limiter) pruneLocked(now time.Time) {
	i := 0
	for i < len(l.times) && now.Sub(l.times[i]) >= l.window {
		i++
	}
	if i == 0 {
		return
	}
	n := copy(l.times, l.times[i:])
	l.times = l.times[:n]
}
