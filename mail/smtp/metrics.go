package smtp

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/pure-golang/bulkmail/mail"
)

var (
	attemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bulkmail_smtp_attempts_total",
			Help: "Total number of SMTP attempts",
		},
		[]string{"operation", "status"},
	)

	attemptDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bulkmail_smtp_attempt_duration_seconds",
			Help:    "SMTP attempt duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "status"},
	)
)

func init() {
	prometheus.MustRegister(attemptsTotal)
	prometheus.MustRegister(attemptDuration)
}

func observe(operation string, res mail.Result) {
	status := res.Status()
	attemptsTotal.WithLabelValues(operation, status).Inc()
	attemptDuration.WithLabelValues(operation, status).Observe(res.Duration.Seconds())
}
