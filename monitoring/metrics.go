package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	purchaseOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boxoffice_purchase_outcomes_total",
			Help: "Purchase attempts by outcome",
		},
		[]string{"outcome"},
	)

	confirmOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boxoffice_confirm_outcomes_total",
			Help: "Payment confirmations by outcome",
		},
		[]string{"outcome"},
	)

	gatewayCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "boxoffice_gateway_call_duration_seconds",
			Help:    "Duration of payment gateway calls",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		},
		[]string{"operation", "status"},
	)

	ticketsIssued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "boxoffice_tickets_issued_total",
			Help: "Tickets committed to the ticket ledger",
		},
	)
)

func RecordPurchaseOutcome(outcome string) {
	purchaseOutcomes.WithLabelValues(outcome).Inc()
}

func RecordConfirmOutcome(outcome string) {
	confirmOutcomes.WithLabelValues(outcome).Inc()
}

func ObserveGatewayCall(operation string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	gatewayCallDuration.WithLabelValues(operation, status).Observe(time.Since(start).Seconds())
}

func RecordTicketsIssued(n int) {
	ticketsIssued.Add(float64(n))
}
