package entitlement

import "github.com/prometheus/client_golang/prometheus"

var (
	transitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "entitlement_transitions_total",
		Help: "Entitlement store operations by kind, operation and result.",
	}, []string{"kind", "op", "result"})

	refreshRepublishedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "entitlement_refresh_republished_total",
		Help: "Statuses republished because time moved an owner to a new state.",
	}, []string{"kind"})

	checkoutsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "entitlement_checkouts_total",
		Help: "Checkout sessions by kind and outcome.",
	}, []string{"kind", "result"})

	chargeAttemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "entitlement_charge_attempts_total",
		Help: "Payment gateway charge attempts by kind.",
	}, []string{"kind"})
)

func init() {
	prometheus.MustRegister(transitionsTotal, refreshRepublishedTotal, checkoutsTotal, chargeAttemptsTotal)
}

const (
	resultOK       = "ok"
	resultNoop     = "noop"
	resultRejected = "rejected"
	resultError    = "error"
)
