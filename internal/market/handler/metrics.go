package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jmerrifield20/cropledger/internal/ledger"
	"github.com/jmerrifield20/cropledger/internal/market/model"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cropledger_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cropledger_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	mutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cropledger_audit_entries_appended_total",
		Help: "Audit entries appended by event type.",
	}, []string{"event_type"})

	settlementVolume = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cropledger_settlement_volume_total",
		Help: "Sum of settled total_amount values.",
	})

	walletDebitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cropledger_wallet_debits_total",
		Help: "Settlements that debited the buyer's wallet.",
	})

	verificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cropledger_audit_verifications_total",
		Help: "Audit chain verifications by result.",
	}, []string{"result"})

	webhookDeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cropledger_webhook_deliveries_total",
		Help: "Webhook delivery attempts by result.",
	}, []string{"result"})
)

// PrometheusMiddleware returns a Gin middleware that records per-request metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		method := c.Request.Method
		requestsTotal.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()
		requestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordMutation counts one appended audit entry.
func RecordMutation(event ledger.EventType) {
	mutationsTotal.WithLabelValues(string(event)).Inc()
}

// RecordSettlement counts a completed settlement and its value.
func RecordSettlement(s *model.Settlement) {
	RecordMutation(ledger.EventSettlementExecuted)
	settlementVolume.Add(s.TotalAmount.InexactFloat64())
	if s.WalletDebited {
		walletDebitsTotal.Inc()
	}
}

// RecordVerify records the outcome of a chain verification.
func RecordVerify(valid bool) {
	if valid {
		verificationsTotal.WithLabelValues("valid").Inc()
	} else {
		verificationsTotal.WithLabelValues("broken").Inc()
	}
}

// RecordWebhookDelivery records one webhook delivery attempt.
func RecordWebhookDelivery(success bool) {
	if success {
		webhookDeliveriesTotal.WithLabelValues("success").Inc()
	} else {
		webhookDeliveriesTotal.WithLabelValues("failure").Inc()
	}
}
