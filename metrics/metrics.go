// Package metrics exposes prometheus instrumentation for the intake pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Intake holds the collectors for the intake pipeline.
type Intake struct {
	TasksCreated         prometheus.Counter
	CreateFailures       prometheus.Counter
	ValidationRejections *prometheus.CounterVec
	StaleEvents          prometheus.Counter
	SessionsStarted      prometheus.Counter
	SessionsExpired      prometheus.Counter
	ActiveSessions       prometheus.Gauge
}

// NewNop returns collectors registered on a private registry, for
// callers that do not export metrics.
func NewNop() *Intake {
	return New(prometheus.NewRegistry())
}

// New registers the intake collectors with reg and returns them.
func New(reg prometheus.Registerer) *Intake {
	factory := promauto.With(reg)
	return &Intake{
		TasksCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "taskintake_tasks_created_total",
			Help: "Tasks persisted through completed intake conversations.",
		}),
		CreateFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "taskintake_task_create_failures_total",
			Help: "Store failures surfaced during intake completion.",
		}),
		ValidationRejections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "taskintake_deadline_rejections_total",
			Help: "Deadline inputs rejected by the validator, by reason.",
		}, []string{"reason"}),
		StaleEvents: factory.NewCounter(prometheus.CounterOpts{
			Name: "taskintake_stale_events_total",
			Help: "Events received for conversations with no active intake.",
		}),
		SessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "taskintake_sessions_started_total",
			Help: "Intake conversations started.",
		}),
		SessionsExpired: factory.NewCounter(prometheus.CounterOpts{
			Name: "taskintake_sessions_expired_total",
			Help: "Intake sessions evicted by the idle sweep.",
		}),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "taskintake_active_sessions",
			Help: "Intake sessions currently in progress.",
		}),
	}
}
