package dispatch

import "github.com/prometheus/client_golang/prometheus"

var (
	outcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bulkmail_dispatch_outcomes_total",
			Help: "Total number of dispatched tasks by outcome",
		},
		[]string{"model", "status"},
	)

	pendingTimers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bulkmail_dispatch_pending_timers",
			Help: "Number of armed timers that have not fired yet",
		},
	)

	droppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bulkmail_dispatch_dropped_total",
			Help: "Total number of tasks dropped because their target time had passed",
		},
	)
)

func init() {
	prometheus.MustRegister(outcomesTotal)
	prometheus.MustRegister(pendingTimers)
	prometheus.MustRegister(droppedTotal)
}
