package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/WesleyKishore-2054/Resilient-Email-Service/internal/breaker"
)

const namespace = "dispatch"

// Recorder owns the service's collectors. A nil *Recorder is valid and
// records nothing, so components can run without metrics in tests.
type Recorder struct {
	Registry *prometheus.Registry

	Outcomes        *prometheus.CounterVec
	ProviderResults *prometheus.CounterVec
	BreakerState    *prometheus.GaugeVec
	QueueDepth      prometheus.Gauge
	Submitted       prometheus.Counter
	Requeued        prometheus.Counter
	Dropped         prometheus.Counter
}

// New creates a Recorder registered on a fresh registry.
func New() *Recorder {
	r := &Recorder{
		Registry: prometheus.NewRegistry(),
		Outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outcomes_total",
			Help:      "Dispatch results by outcome.",
		}, []string{"outcome"}),
		ProviderResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_results_total",
			Help:      "Per-provider attempt results (sent, failed, skipped).",
		}, []string{"provider", "result"}),
		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "breaker_state",
			Help:      "Circuit breaker state per provider: 0 closed, 1 half-open, 2 open.",
		}, []string{"provider"}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Messages waiting in the delivery queue.",
		}),
		Submitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_submitted_total",
			Help:      "Messages submitted to the delivery queue.",
		}),
		Requeued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_requeued_total",
			Help:      "Failed dispatches put back at the head of the queue.",
		}),
		Dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_dropped_total",
			Help:      "Invalid messages removed from the queue without delivery.",
		}),
	}
	r.Registry.MustRegister(
		r.Outcomes,
		r.ProviderResults,
		r.BreakerState,
		r.QueueDepth,
		r.Submitted,
		r.Requeued,
		r.Dropped,
	)
	return r
}

func (r *Recorder) Outcome(outcome string) {
	if r == nil {
		return
	}
	r.Outcomes.WithLabelValues(outcome).Inc()
}

func (r *Recorder) ProviderResult(provider, result string) {
	if r == nil {
		return
	}
	r.ProviderResults.WithLabelValues(provider, result).Inc()
}

func (r *Recorder) SetBreakerState(provider string, s breaker.State) {
	if r == nil {
		return
	}
	r.BreakerState.WithLabelValues(provider).Set(float64(s))
}

// SetQueueDepth records the current queue depth.
func (r *Recorder) SetQueueDepth(n int) {
	if r == nil {
		return
	}
	r.QueueDepth.Set(float64(n))
}

func (r *Recorder) IncSubmitted() {
	if r == nil {
		return
	}
	r.Submitted.Inc()
}

func (r *Recorder) IncRequeued() {
	if r == nil {
		return
	}
	r.Requeued.Inc()
}

func (r *Recorder) IncDropped() {
	if r == nil {
		return
	}
	r.Dropped.Inc()
}
