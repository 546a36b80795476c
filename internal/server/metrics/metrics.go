package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	Logins = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "cairos", Name: "logins_total", Help: "Completed and failed logins by flow."},
		[]string{"flow", "result"},
	)
	AuthRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "cairos", Name: "auth_rejected_total", Help: "Requests rejected by the bearer or cookie guard."},
		[]string{"reason"},
	)
	EventsCaptured = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "cairos", Name: "events_captured_total", Help: "Editor events persisted."},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "cairos", Name: "rate_limit_rejected_total", Help: "Requests rejected by the rate limiter."},
		[]string{"route"},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(Logins)
	reg.MustRegister(AuthRejected)
	reg.MustRegister(EventsCaptured)
	reg.MustRegister(RateLimitRejected)
}

// Result labels a login outcome.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
