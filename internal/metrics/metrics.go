package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WebhooksReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sendconsult_webhooks_received_total",
		Help: "Webhook deliveries received, by provider.",
	}, []string{"provider"})

	WebhooksRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sendconsult_webhooks_rejected_total",
		Help: "Webhook deliveries rejected before processing, by provider.",
	}, []string{"provider"})

	WebhookFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sendconsult_webhook_failures_total",
		Help: "Webhook deliveries acknowledged despite an internal failure, by provider.",
	}, []string{"provider"})

	PurchasesRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sendconsult_purchases_recorded_total",
		Help: "Purchases persisted from payment webhooks.",
	})

	BookingsLinked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sendconsult_bookings_linked_total",
		Help: "Bookings linked to a package purchase.",
	})

	NotificationsConsumed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sendconsult_notifications_consumed_total",
		Help: "Notification events consumed from Kafka, by topic.",
	}, []string{"topic"})

	NotificationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sendconsult_notification_failures_total",
		Help: "Notification events whose handling failed, by topic.",
	}, []string{"topic"})
)
