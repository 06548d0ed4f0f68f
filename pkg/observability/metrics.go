package observability

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aretw0/callflow/pkg/domain"
)

// Metrics records session activity as Prometheus metrics.
type Metrics struct {
	StepEntries      *prometheus.CounterVec
	Messages         *prometheus.CounterVec
	Listens          *prometheus.CounterVec
	ListenWait       prometheus.Histogram
	Branches         *prometheus.CounterVec
	ActiveDispatches prometheus.Gauge
	Dispatches       *prometheus.CounterVec
	DispatchDuration prometheus.Histogram

	mu     sync.Mutex
	starts map[string]time.Time // session id -> dispatch start
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		StepEntries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callflow_step_entries_total",
				Help: "Total number of step entries",
			},
			[]string{"step"},
		),
		Messages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callflow_messages_total",
				Help: "Total number of queued output messages",
			},
			[]string{"kind"},
		),
		Listens: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callflow_listens_total",
				Help: "Total number of finished Listen waits",
			},
			[]string{"outcome"},
		),
		ListenWait: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "callflow_listen_wait_seconds",
				Help:    "Time spent waiting for caller input",
				Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
		),
		Branches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callflow_branches_total",
				Help: "Total number of Branch evaluations",
			},
			[]string{"matched"},
		),
		ActiveDispatches: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "callflow_dispatches_active",
				Help: "Number of running control loops",
			},
		),
		Dispatches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callflow_dispatches_total",
				Help: "Total number of ended dispatches",
			},
			[]string{"reason"},
		),
		DispatchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "callflow_dispatch_duration_seconds",
				Help:    "Lifetime of a dispatch",
				Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
			},
		),
		starts: make(map[string]time.Time),
	}

	for _, c := range []prometheus.Collector{
		m.StepEntries, m.Messages, m.Listens, m.ListenWait, m.Branches,
		m.ActiveDispatches, m.Dispatches, m.DispatchDuration,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Hooks returns lifecycle hooks that update the metrics.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnStepEnter: func(_ context.Context, e *domain.StepEvent) {
			m.StepEntries.WithLabelValues(e.StepID).Inc()
		},
		OnSpeak: func(_ context.Context, e *domain.SpeakEvent) {
			m.Messages.WithLabelValues(string(e.Message.Kind)).Inc()
		},
		OnListen: func(_ context.Context, e *domain.ListenEvent) {
			outcome := "input"
			if e.TimedOut {
				outcome = "timeout"
			}
			m.Listens.WithLabelValues(outcome).Inc()
			m.ListenWait.Observe(e.Waited.Seconds())
		},
		OnBranch: func(_ context.Context, e *domain.BranchEvent) {
			matched := "false"
			if e.Matched {
				matched = "true"
			}
			m.Branches.WithLabelValues(matched).Inc()
		},
		OnDispatchStart: func(_ context.Context, e *domain.DispatchEvent) {
			m.ActiveDispatches.Inc()
			m.mu.Lock()
			m.starts[e.SessionID] = e.Timestamp
			m.mu.Unlock()
		},
		OnDispatchEnd: func(_ context.Context, e *domain.DispatchEvent) {
			m.ActiveDispatches.Dec()
			m.Dispatches.WithLabelValues(string(e.Reason)).Inc()

			m.mu.Lock()
			start, ok := m.starts[e.SessionID]
			delete(m.starts, e.SessionID)
			m.mu.Unlock()
			if ok {
				m.DispatchDuration.Observe(e.Timestamp.Sub(start).Seconds())
			}
		},
	}
}
