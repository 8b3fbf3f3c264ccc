// Package queue feeds submitted messages to the dispatcher one at a time.
package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"k8s.io/utils/clock"

	"github.com/WesleyKishore-2054/Resilient-Email-Service/dispatch"
	"github.com/WesleyKishore-2054/Resilient-Email-Service/internal/metrics"
)

const DefaultInterval = 2 * time.Second

// Dispatcher is the part of *dispatch.Dispatcher the queue needs.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg dispatch.Message) (dispatch.Outcome, error)
}

type Option func(*Manager)

// WithClock replaces the timer source.
func WithClock(c clock.Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// Manager is an in-memory FIFO drained by a single worker. Exactly one
// message is dispatched per interval. A failed message goes back to the
// head, ahead of anything submitted after it, and is retried indefinitely.
// Messages the dispatcher rejects as invalid are dropped, since no retry
// can fix them.
type Manager struct {
	dispatcher Dispatcher
	interval   time.Duration
	clock      clock.Clock
	log        zerolog.Logger
	metrics    *metrics.Recorder

	mu     sync.Mutex
	queue  []Entry
	wake   chan struct{}
	cancel context.CancelFunc
	done   chan struct{}
}

// NewManager creates a stopped queue; call Start to run the worker.
func NewManager(d Dispatcher, interval time.Duration, log zerolog.Logger, rec *metrics.Recorder, opts ...Option) *Manager {
	if interval <= 0 {
		interval = DefaultInterval
	}
	m := &Manager{
		dispatcher: d,
		interval:   interval,
		clock:      clock.RealClock{},
		log:        log.With().Str("comp", "queue").Logger(),
		metrics:    rec,
		wake:       make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Submit appends msg to the tail and wakes the worker. It never blocks on
// delivery.
func (m *Manager) Submit(msg dispatch.Message) Entry {
	e := Entry{
		ID:          uuid.NewString(),
		Message:     msg,
		Fingerprint: dispatch.Fingerprint(msg),
		EnqueuedAt:  m.clock.Now(),
	}

	m.mu.Lock()
	m.queue = append(m.queue, e)
	depth := len(m.queue)
	m.mu.Unlock()

	m.metrics.IncSubmitted()
	m.metrics.SetQueueDepth(depth)
	m.log.Info().Str("id", e.ID).Str("fingerprint", e.Fingerprint).Int("depth", depth).Msg("queued message")

	select {
	case m.wake <- struct{}{}:
	default:
	}
	return e
}

// Start launches the worker. Calling Start on a running queue is a no-op.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	go m.run(ctx, m.done)
}

// Stop cancels the worker and waits for it to exit. An in-flight dispatch
// is interrupted and its message stays at the head of the queue.
func (m *Manager) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Depth returns the number of waiting messages.
func (m *Manager) Depth() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// Snapshot returns the waiting messages in processing order.
func (m *Manager) Snapshot() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Entry(nil), m.queue...)
}

func (m *Manager) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		if m.Depth() == 0 {
			select {
			case <-ctx.Done():
				return
			case <-m.wake:
			}
		} else {
			// Work is already waiting; a pending wake would only cause an
			// extra empty drain later.
			select {
			case <-m.wake:
			default:
			}
		}
		m.drain(ctx)
		if ctx.Err() != nil {
			return
		}
	}
}

// drain processes one message per interval until it finds the queue empty.
func (m *Manager) drain(ctx context.Context) {
	for {
		t := m.clock.NewTimer(m.interval)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C():
		}
		if !m.processNext(ctx) {
			m.log.Debug().Msg("queue empty, worker idle")
			return
		}
	}
}

// processNext dispatches the head message. It reports false when the queue
// was empty.
func (m *Manager) processNext(ctx context.Context) bool {
	m.mu.Lock()
	if len(m.queue) == 0 {
		m.mu.Unlock()
		return false
	}
	e := m.queue[0]
	m.queue = m.queue[1:]
	m.mu.Unlock()

	out, err := m.dispatcher.Dispatch(ctx, e.Message)
	if errors.Is(err, dispatch.ErrInvalidMessage) {
		m.metrics.IncDropped()
		m.metrics.SetQueueDepth(m.Depth())
		m.log.Error().Str("id", e.ID).Str("fingerprint", e.Fingerprint).Err(err).Msg("invalid message dropped")
		return true
	}
	if err != nil {
		e.Attempts++
		e.LastError = err.Error()

		m.mu.Lock()
		m.queue = append([]Entry{e}, m.queue...)
		depth := len(m.queue)
		m.mu.Unlock()

		m.metrics.IncRequeued()
		m.metrics.SetQueueDepth(depth)
		m.log.Warn().Str("id", e.ID).Str("fingerprint", e.Fingerprint).Int("attempts", e.Attempts).Err(err).Msg("dispatch failed, requeued at head")
		return true
	}

	m.metrics.SetQueueDepth(m.Depth())
	m.log.Info().Str("id", e.ID).Str("fingerprint", e.Fingerprint).Str("result", out.String()).Msg("message processed")
	return true
}
