// Package metrics holds the bot's prometheus collectors.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	MessagesSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "motivbot_messages_sent_total",
		Help: "Motivational messages delivered to the destination chat",
	})
	RemindersSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "motivbot_reminders_sent_total",
		Help: "Weekly reminders delivered to the destination chat",
	})
	DeliveryFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "motivbot_delivery_failures_total",
		Help: "Scheduled sends that failed at the transport",
	}, []string{"kind"})
	GenerationFallbacks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "motivbot_generation_fallbacks_total",
		Help: "Remote generation failures that degraded to a static quote",
	})
	JobsSkipped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "motivbot_jobs_skipped_total",
		Help: "Due jobs skipped because no destination chat is configured",
	})
)

func MustRegister(r prometheus.Registerer) {
	r.MustRegister(
		MessagesSent,
		RemindersSent,
		DeliveryFailures,
		GenerationFallbacks,
		JobsSkipped,
	)
}
