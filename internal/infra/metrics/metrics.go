package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "spendguard"

type Metrics struct {
	SessionsLive     prometheus.Gauge
	Confirmations    *prometheus.CounterVec // result: opened|failed
	Decisions        *prometheus.CounterVec // decision: confirm|cancel
	Persists         *prometheus.CounterVec // result: ok|error|rejected|expired
	SnapshotFallback prometheus.Counter
	MonthlyResets    prometheus.Counter
	Intercepts       *prometheus.CounterVec // result: intercepted|timeout|error
}

// New регистрирует коллекторы в reg. Для /metrics это prometheus.DefaultRegisterer,
// в тестах свежий prometheus.NewRegistry().
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SessionsLive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_live",
			Help:      "Checkout confirmations currently in flight.",
		}),
		Confirmations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "confirmations_total",
			Help:      "Confirmation windows requested, by result.",
		}, []string{"result"}),
		Decisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "User decisions relayed, by decision.",
		}, []string{"decision"}),
		Persists: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_total",
			Help:      "Spend persistence attempts, by result.",
		}, []string{"result"}),
		SnapshotFallback: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_fallback_total",
			Help:      "Snapshot reads served from the bundled dataset.",
		}),
		MonthlyResets: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "monthly_resets_total",
			Help:      "Monthly spending resets performed.",
		}),
		Intercepts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "intercepts_total",
			Help:      "Checkout pages scanned, by result.",
		}, []string{"result"}),
	}
}
