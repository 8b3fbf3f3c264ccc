// Package breaker implements the per-provider circuit breaker.
//
// A breaker starts CLOSED. Reaching the failure threshold opens it. Once the
// recovery timeout has elapsed since the breaker opened, the next Allow call
// moves it to HALF_OPEN and grants a single trial; a success closes it, a
// failure opens it again and restarts the timer.
package breaker

import (
	"sync"
	"time"

	"k8s.io/utils/clock"
)

const (
	DefaultFailureThreshold = 3
	DefaultRecoveryTimeout  = 10 * time.Second
)

type State int

const (
	Closed State = iota
	HalfOpen
	Open
)

func (s State) String() string {
	switch s {
	case Closed:
		return "CLOSED"
	case HalfOpen:
		return "HALF_OPEN"
	case Open:
		return "OPEN"
	default:
		return "UNKNOWN"
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

type Config struct {
	FailureThreshold int
	RecoveryTimeout  time.Duration
}

// WithDefaults fills unset fields.
func (c Config) WithDefaults() Config {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = DefaultFailureThreshold
	}
	if c.RecoveryTimeout <= 0 {
		c.RecoveryTimeout = DefaultRecoveryTimeout
	}
	return c
}

// Snapshot is a point-in-time copy of a breaker's state.
type Snapshot struct {
	Name         string    `json:"name"`
	State        State     `json:"state"`
	FailureCount int       `json:"failure_count"`
	LastFailure  time.Time `json:"last_failure,omitempty"`
}

// Breaker is safe for concurrent use.
type Breaker struct {
	name  string
	cfg   Config
	clock clock.PassiveClock

	mu          sync.Mutex
	state       State
	failures    int
	lastFailure time.Time
	// trial is set while the single HALF_OPEN permit is outstanding.
	trial bool
}

// New returns a CLOSED breaker. A nil clock uses real time.
func New(name string, cfg Config, clk clock.PassiveClock) *Breaker {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Breaker{name: name, cfg: cfg.WithDefaults(), clock: clk}
}

func (b *Breaker) Name() string { return b.name }

// Allow reports whether a request may be sent now. The OPEN to HALF_OPEN
// transition happens here, and the caller that triggers it holds the only
// trial permit until RecordSuccess or RecordFailure.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		if b.clock.Since(b.lastFailure) > b.cfg.RecoveryTimeout {
			b.state = HalfOpen
			b.trial = true
			return true
		}
		return false
	case HalfOpen:
		if b.trial {
			return false
		}
		b.trial = true
		return true
	default:
		return true
	}
}

// RecordSuccess closes the breaker from any state.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	b.failures = 0
	b.state = Closed
	b.trial = false
	b.mu.Unlock()
}

// RecordFailure counts a failure and opens the breaker once the threshold is
// reached. A failed HALF_OPEN trial is already at the threshold, so it
// reopens the breaker and restarts the recovery timer.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.trial = false
	if b.failures >= b.cfg.FailureThreshold {
		b.state = Open
		b.lastFailure = b.clock.Now()
	}
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{
		Name:         b.name,
		State:        b.state,
		FailureCount: b.failures,
		LastFailure:  b.lastFailure,
	}
}

// Release returns an outstanding HALF_OPEN trial permit without recording
// a result, for callers that were interrupted before the trial completed.
func (b *Breaker) Release() {
	b.mu.Lock()
	b.trial = false
	b.mu.Unlock()
}
