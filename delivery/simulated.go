package delivery

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/WesleyKishore-2054/Resilient-Email-Service/dispatch"
)

// Simulated is a stand-in provider that succeeds with a fixed probability
// after a fixed latency. It is the default provider set when no provider
// file is configured.
type Simulated struct {
	name        string
	successRate float64
	latency     time.Duration

	mu  sync.Mutex
	rnd *rand.Rand
}

var _ dispatch.Provider = (*Simulated)(nil)

type SimulatedOption func(*Simulated)

// WithSeed makes the success sequence deterministic.
func WithSeed(seed int64) SimulatedOption {
	return func(s *Simulated) {
		s.rnd = rand.New(rand.NewSource(seed)) // #nosec G404 -- simulation only.
	}
}

// NewSimulated clamps successRate to [0, 1] and negative latency to zero.
func NewSimulated(name string, successRate float64, latency time.Duration, opts ...SimulatedOption) *Simulated {
	if successRate < 0 {
		successRate = 0
	}
	if successRate > 1 {
		successRate = 1
	}
	if latency < 0 {
		latency = 0
	}
	s := &Simulated{
		name:        name,
		successRate: successRate,
		latency:     latency,
		rnd:         rand.New(rand.NewSource(time.Now().UnixNano())), // #nosec G404 -- simulation only.
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Simulated) Name() string { return s.name }

func (s *Simulated) Send(ctx context.Context, _ dispatch.Message) (string, error) {
	s.mu.Lock()
	ok := s.rnd.Float64() < s.successRate
	s.mu.Unlock()

	if s.latency > 0 {
		t := time.NewTimer(s.latency)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	if !ok {
		return "", fmt.Errorf("Failed to send email by %s", s.name)
	}
	return "Email sent successfully by " + s.name, nil
}
