package observability

import (
	"context"

	"github.com/aretw0/turnstile/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the engine's Prometheus collectors.
type Metrics struct {
	Transitions       *prometheus.CounterVec
	Rejections        *prometheus.CounterVec
	Conflicts         *prometheus.CounterVec
	CascadeFailures   *prometheus.CounterVec
	DispatchFailures  *prometheus.CounterVec
	TransitionSeconds *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "turnstile_transitions_total",
				Help: "Applied transitions.",
			},
			[]string{"kind", "from", "to"},
		),
		Rejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "turnstile_transition_rejections_total",
				Help: "Transitions refused by a guard or the state machine.",
			},
			[]string{"kind", "to", "reason"},
		),
		Conflicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "turnstile_conflicts_total",
				Help: "Transitions that lost a compare-and-set.",
			},
			[]string{"kind"},
		),
		CascadeFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "turnstile_cascade_failures_total",
				Help: "Cascades that failed after the parent transition was stored.",
			},
			[]string{"kind", "to"},
		),
		DispatchFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "turnstile_dispatch_failures_total",
				Help: "Notification jobs that could not be delivered.",
			},
			[]string{"channel"},
		),
		TransitionSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "turnstile_transition_duration_seconds",
				Help:    "Duration of applied transitions, cascades included.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
	}

	for _, c := range []prometheus.Collector{
		m.Transitions, m.Rejections, m.Conflicts,
		m.CascadeFailures, m.DispatchFailures, m.TransitionSeconds,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Hooks records engine events into the collectors.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnTransition: func(_ context.Context, e *domain.TransitionEvent) {
			m.Transitions.WithLabelValues(string(e.Kind), string(e.From), string(e.To)).Inc()
			m.TransitionSeconds.WithLabelValues(string(e.Kind)).Observe(e.Duration.Seconds())
		},
		OnRejected: func(_ context.Context, e *domain.TransitionEvent) {
			reason := string(domain.ReasonOf(e.Err))
			if reason == "" {
				reason = "unknown"
			}
			m.Rejections.WithLabelValues(string(e.Kind), string(e.To), reason).Inc()
		},
		OnConflict: func(_ context.Context, e *domain.TransitionEvent) {
			m.Conflicts.WithLabelValues(string(e.Kind)).Inc()
		},
		OnCascadeFailure: func(_ context.Context, e *domain.TransitionEvent) {
			m.CascadeFailures.WithLabelValues(string(e.Kind), string(e.To)).Inc()
		},
		OnDispatchFailure: func(_ context.Context, e *domain.DispatchError) {
			m.DispatchFailures.WithLabelValues(string(e.Job.Channel)).Inc()
		},
	}
}
