package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		chatTurnsTotal,
		chatUtilizationPct,
		routedMessagesTotal,
	)
}

var (
	chatTurnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_turns_total",
			Help: "Conversation turns by outcome.",
		},
		[]string{"outcome"}, // 'ok', 'reset', 'service_error', 'storage_error'
	)

	chatUtilizationPct = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chat_context_utilization_pct",
			Help:    "Context-window utilization reported at the end of each turn.",
			Buckets: []float64{10, 25, 50, 75, 90, 95, 99, 100},
		},
	)

	routedMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "routed_messages_total",
			Help: "Inbound messages by routing decision.",
		},
		[]string{"kind", "command"}, // kind: 'ignore', 'command', 'utterance'
	)
)

func IncTurn(outcome string) {
	chatTurnsTotal.WithLabelValues(norm(outcome)).Inc()
}

func ObserveUtilization(pct float64) {
	chatUtilizationPct.Observe(pct)
}

func IncRouted(kind, command string) {
	routedMessagesTotal.WithLabelValues(norm(kind), norm(command)).Inc()
}
