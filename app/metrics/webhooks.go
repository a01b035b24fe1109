package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		webhookDeliveriesTotal,
		webhookProcessingSeconds,
		subscriptionsIssuedTotal,
		paymentsCreatedTotal,
		notifyDispatchTotal,
		paymentsExpiredTotal,
	)
}

var (
	webhookDeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pix_webhook_deliveries_total",
			Help: "Inbound webhook deliveries by reconciliation outcome.",
		},
		[]string{"outcome"},
	)

	webhookProcessingSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pix_webhook_processing_seconds",
			Help:    "Time spent handling one webhook delivery.",
			Buckets: prometheus.DefBuckets,
		},
	)

	subscriptionsIssuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pix_subscriptions_issued_total",
			Help: "Subscriptions issued on confirmed payments, by plan.",
		},
		[]string{"plan"},
	)

	paymentsCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pix_payments_created_total",
			Help: "Outbound create-payment calls by result.",
		},
		[]string{"result"},
	)

	notifyDispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pix_notify_dispatch_total",
			Help: "Subscriber notification attempts by result.",
		},
		[]string{"result"},
	)

	paymentsExpiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pix_payments_expired_total",
			Help: "Pending payments moved to EXPIRED.",
		},
	)
)

func IncWebhookOutcome(outcome string) {
	webhookDeliveriesTotal.WithLabelValues(norm(outcome)).Inc()
}

func ObserveWebhookDuration(d time.Duration) {
	webhookProcessingSeconds.Observe(d.Seconds())
}

func IncSubscriptionIssued(planID string) {
	subscriptionsIssuedTotal.WithLabelValues(norm(planID)).Inc()
}

func IncPaymentCreated(result string) {
	paymentsCreatedTotal.WithLabelValues(norm(result)).Inc()
}

func IncNotifyDispatch(result string) {
	notifyDispatchTotal.WithLabelValues(norm(result)).Inc()
}

func AddPaymentsExpired(n int) {
	paymentsExpiredTotal.Add(float64(n))
}

func norm(label string) string {
	label = strings.ToLower(strings.TrimSpace(label))
	if label == "" {
		return "unknown"
	}
	return label
}
