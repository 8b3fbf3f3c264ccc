// Package dispatch sends messages through an ordered list of providers,
// applying idempotency, a shared rate limit, per-provider circuit breakers
// and per-provider retries.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"k8s.io/utils/clock"

	"github.com/WesleyKishore-2054/Resilient-Email-Service/internal/breaker"
	"github.com/WesleyKishore-2054/Resilient-Email-Service/internal/metrics"
	"github.com/WesleyKishore-2054/Resilient-Email-Service/internal/ratelimit"
	"github.com/WesleyKishore-2054/Resilient-Email-Service/internal/retry"
)

type Config struct {
	RateLimit  int
	RateWindow time.Duration
	Breaker    breaker.Config
	Retry      retry.Policy
	// Clock drives the rate limiter and the breakers. Nil uses real time.
	Clock clock.PassiveClock
}

type OutcomeKind int

const (
	OutcomeDuplicate OutcomeKind = iota + 1
	OutcomeSent
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeSent:
		return "sent"
	default:
		return "unknown"
	}
}

// Outcome is a successful dispatch result. Duplicates are not errors.
type Outcome struct {
	Kind         OutcomeKind
	Fingerprint  string
	Provider     string
	Confirmation string
}

func (o Outcome) String() string {
	if o.Kind == OutcomeDuplicate {
		return "duplicate email, already sent"
	}
	return o.Confirmation
}

// Dispatcher owns the status ledger, the sent ledger, one breaker per
// provider and the shared rate limiter. It is safe for concurrent use.
type Dispatcher struct {
	log       zerolog.Logger
	metrics   *metrics.Recorder
	providers []Provider
	breakers  map[string]*breaker.Breaker
	limiter   *ratelimit.Limiter
	retry     retry.Policy

	statusMu sync.RWMutex
	statuses map[string]Status

	sentMu sync.RWMutex
	sent   map[string]struct{}
}

// New builds a Dispatcher over providers, which must have distinct
// non-empty names.
func New(cfg Config, providers []Provider, log zerolog.Logger, rec *metrics.Recorder) (*Dispatcher, error) {
	if len(providers) == 0 {
		return nil, errors.New("dispatch: at least one provider is required")
	}

	d := &Dispatcher{
		log:       log.With().Str("comp", "dispatcher").Logger(),
		metrics:   rec,
		providers: append([]Provider(nil), providers...),
		breakers:  make(map[string]*breaker.Breaker, len(providers)),
		limiter:   ratelimit.New(cfg.RateLimit, cfg.RateWindow, cfg.Clock),
		statuses:  make(map[string]Status),
		sent:      make(map[string]struct{}),
	}

	d.retry = cfg.Retry.WithDefaults()
	d.retry.Log = d.log

	for _, p := range providers {
		name := p.Name()
		if strings.TrimSpace(name) == "" {
			return nil, errors.New("dispatch: provider with empty name")
		}
		if _, dup := d.breakers[name]; dup {
			return nil, fmt.Errorf("dispatch: duplicate provider name %q", name)
		}
		b := breaker.New(name, cfg.Breaker, cfg.Clock)
		d.breakers[name] = b
		rec.SetBreakerState(name, b.State())
	}
	return d, nil
}

// Dispatch sends msg through the first provider that accepts it.
//
// A message whose fingerprint was already delivered yields an
// OutcomeDuplicate without contacting any provider. Other failures are
// ErrRateLimited, an *ExhaustedError, or the context's error if ctx ends
// mid-attempt.
func (d *Dispatcher) Dispatch(ctx context.Context, msg Message) (Outcome, error) {
	if err := msg.Validate(); err != nil {
		return Outcome{}, err
	}

	fp := Fingerprint(msg)
	log := d.log.With().Str("fingerprint", fp).Str("from", msg.From).Str("to", msg.To).Logger()
	log.Info().Msg("attempting to send email")

	if d.alreadySent(fp) {
		log.Info().Msg("email already sent, skipping duplicate")
		d.setStatus(fp, Status{Kind: StatusDuplicate})
		d.metrics.Outcome("duplicate")
		return Outcome{Kind: OutcomeDuplicate, Fingerprint: fp}, nil
	}

	if !d.limiter.Allow() {
		log.Warn().Msg("rate limit exceeded")
		d.setStatus(fp, Status{Kind: StatusRateLimited})
		d.metrics.Outcome("rate_limited")
		return Outcome{}, ErrRateLimited
	}

	exhausted := &ExhaustedError{Fingerprint: fp}
	for _, p := range d.providers {
		name := p.Name()
		b := d.breakers[name]
		plog := log.With().Str("provider", name).Logger()

		if !b.Allow() {
			plog.Warn().Msg("provider skipped, circuit open")
			d.setStatus(fp, Status{Kind: StatusSkipped, Provider: name})
			d.metrics.ProviderResult(name, "skipped")
			exhausted.Skipped = append(exhausted.Skipped, name)
			continue
		}
		d.metrics.SetBreakerState(name, b.State())

		plog.Debug().Msg("trying provider")
		confirmation, err := retry.Do(ctx, d.retry, func(ctx context.Context) (string, error) {
			return p.Send(ctx, msg)
		})
		if err == nil {
			d.markSent(fp)
			d.setStatus(fp, Status{Kind: StatusSent, Provider: name})
			b.RecordSuccess()
			d.metrics.SetBreakerState(name, b.State())
			d.metrics.ProviderResult(name, "sent")
			d.metrics.Outcome("sent")
			plog.Info().Str("confirmation", confirmation).Msg("email sent")
			return Outcome{Kind: OutcomeSent, Fingerprint: fp, Provider: name, Confirmation: confirmation}, nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			// Interrupted, not a provider verdict.
			b.Release()
			d.metrics.Outcome("canceled")
			plog.Warn().Err(ctxErr).Msg("dispatch interrupted")
			return Outcome{}, fmt.Errorf("dispatch %s via %s: %w", fp, name, ctxErr)
		}

		plog.Warn().Err(err).Msg("provider failed")
		d.setStatus(fp, Status{Kind: StatusFailed, Provider: name, Reason: err.Error()})
		b.RecordFailure()
		d.metrics.SetBreakerState(name, b.State())
		d.metrics.ProviderResult(name, "failed")
		exhausted.Failures = append(exhausted.Failures, &ProviderError{Provider: name, Err: err})
	}

	log.Error().Msg("all providers failed")
	d.setStatus(fp, Status{Kind: StatusExhausted})
	d.metrics.Outcome("exhausted")
	return Outcome{}, exhausted
}

// Status returns the latest status recorded for a fingerprint.
func (d *Dispatcher) Status(fingerprint string) (Status, bool) {
	d.statusMu.RLock()
	defer d.statusMu.RUnlock()
	s, ok := d.statuses[fingerprint]
	return s, ok
}

// Breaker returns the named provider's breaker, or nil.
func (d *Dispatcher) Breaker(provider string) *breaker.Breaker {
	return d.breakers[provider]
}

// Providers lists provider names in failover order.
func (d *Dispatcher) Providers() []string {
	names := make([]string, 0, len(d.providers))
	for _, p := range d.providers {
		names = append(names, p.Name())
	}
	return names
}

// Limiter returns the shared rate limiter.
func (d *Dispatcher) Limiter() *ratelimit.Limiter { return d.limiter }

// BreakerSnapshot returns every breaker's state in failover order.
func (d *Dispatcher) BreakerSnapshot() []breaker.Snapshot {
	out := make([]breaker.Snapshot, 0, len(d.providers))
	for _, p := range d.providers {
		out = append(out, d.breakers[p.Name()].Snapshot())
	}
	return out
}

func (d *Dispatcher) alreadySent(fp string) bool {
	d.sentMu.RLock()
	defer d.sentMu.RUnlock()
	_, ok := d.sent[fp]
	return ok
}

func (d *Dispatcher) markSent(fp string) {
	d.sentMu.Lock()
	d.sent[fp] = struct{}{}
	d.sentMu.Unlock()
}

func (d *Dispatcher) setStatus(fp string, s Status) {
	d.statusMu.Lock()
	d.statuses[fp] = s
	d.statusMu.Unlock()
}
