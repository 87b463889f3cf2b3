package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		usersFirstContactTotal,
		telegramUpdatesReceivedTotal,
		telegramRateLimitTriggeredTotal,
	)
}

var (
	usersFirstContactTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "users_first_contact_total",
			Help: "Total number of users seen for the first time.",
		},
	)

	telegramUpdatesReceivedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telegram_updates_received_total",
			Help: "Counts incoming updates from users by message type.",
		},
		[]string{"type"}, // 'text', 'voice', 'other'
	)

	telegramRateLimitTriggeredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "telegram_rate_limit_triggered_total",
			Help: "Total number of times users have been rate-limited.",
		},
	)
)

func IncFirstContact() {
	usersFirstContactTotal.Inc()
}

func IncTelegramUpdate(kind string) {
	telegramUpdatesReceivedTotal.WithLabelValues(norm(kind)).Inc()
}

func IncRateLimitTriggered() {
	telegramRateLimitTriggeredTotal.Inc()
}
