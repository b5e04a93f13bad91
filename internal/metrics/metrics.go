package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ticketsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qline_tickets_created_total",
			Help: "Tickets admitted per service",
		},
		[]string{"service_id"},
	)

	transitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qline_transitions_total",
			Help: "Ticket transition attempts by action and outcome",
		},
		[]string{"action", "outcome"},
	)

	queueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "qline_queue_depth",
			Help: "Waiting tickets per service",
		},
		[]string{"service_id"},
	)

	broadcastFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "qline_broadcast_failures_total",
			Help: "Event fanout deliveries that failed",
		},
	)

	relayLag = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "qline_relay_lag_seconds",
			Help: "Age of the newest outbox event fanned out",
		},
	)
)

func TicketCreated(serviceID string) {
	ticketsCreated.WithLabelValues(serviceID).Inc()
}

func Transition(action, outcome string) {
	transitions.WithLabelValues(action, outcome).Inc()
}

func SetQueueDepth(serviceID string, depth float64) {
	queueDepth.WithLabelValues(serviceID).Set(depth)
}

func BroadcastFailure() {
	broadcastFailures.Inc()
}

func SetRelayLag(seconds float64) {
	relayLag.Set(seconds)
}
