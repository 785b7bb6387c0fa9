package metric

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "storefront"
	subsystem = "cart"
)

var (
	Mutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "mutations_total",
		Help:      "Cart mutations applied in memory.",
	}, []string{"operation", "identity"})

	PersistAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "persist_attempts_total",
		Help:      "Remote cart writes by outcome.",
	}, []string{"outcome"})

	RemoteNotifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "remote_notifications_total",
		Help:      "Remote cart notifications by how the engine handled them.",
	}, []string{"outcome"})

	LocalReadFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "local_read_failures_total",
		Help:      "Local cart slot reads that degraded to an empty cart.",
	})

	OpenEngines = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "open_engines",
		Help:      "Cart engines currently bound to an identity.",
	})
)

func IdentityLabel(authenticated bool) string {
	if authenticated {
		return "authenticated"
	}
	return "anonymous"
}
