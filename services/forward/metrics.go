package forward

import "github.com/prometheus/client_golang/prometheus"

var (
	attemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lead_forward_attempts_total",
		Help: "Delivery attempts by outcome.",
	}, []string{"outcome"})

	attemptDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "lead_forward_duration_seconds",
		Help:    "Wall time of one delivery attempt.",
		Buckets: prometheus.DefBuckets,
	})

	terminalTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lead_forward_terminal_total",
		Help: "Leads reaching a terminal forwarding status.",
	}, []string{"status"})
)

func init() {
	prometheus.MustRegister(attemptsTotal, attemptDuration, terminalTotal)
}
