package metrics

import "github.com/prometheus/client_golang/prometheus"

// Billing counters exposed alongside the HTTP metrics.
var (
	ChargeAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: "billing",
			Name:      "charge_attempts_total",
			Help:      "Charge attempts by final transaction status.",
		},
		[]string{"status"},
	)

	JobRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: "billing",
			Name:      "job_runs_total",
			Help:      "Scheduled job runs by job name and result.",
		},
		[]string{"job", "result"},
	)

	JobItems = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: "billing",
			Name:      "job_items_total",
			Help:      "Per-subscription outcomes inside job runs.",
		},
		[]string{"job", "result"},
	)
)

func init() {
	prometheus.MustRegister(ChargeAttempts, JobRuns, JobItems)
}
