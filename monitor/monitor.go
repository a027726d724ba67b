// Package monitor exposes the gateway's Prometheus metrics: relay outcomes
// per provider/model, credential degradations, and ledger failures.
package monitor

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	relayRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shinway",
		Name:      "relay_requests_total",
		Help:      "Relay requests by provider, model, and status code.",
	}, []string{"provider", "model", "status"})

	relayLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "shinway",
		Name:      "relay_request_duration_seconds",
		Help:      "End-to-end relay latency including failover attempts.",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"provider", "model"})

	credentialDegradations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shinway",
		Name:      "credential_degradations_total",
		Help:      "Managed credentials sidelined after upstream auth failures.",
	}, []string{"provider"})

	ledgerFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "shinway",
		Name:      "ledger_failures_total",
		Help:      "Usage charges that exhausted their retries.",
	})

	logQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "shinway",
		Name:      "log_queue_depth",
		Help:      "Envelopes waiting in the redis log queue.",
	})
)

// RelayRequest records one finished relay request.
func RelayRequest(provider, model string, status int, latency time.Duration) {
	if provider == "" {
		provider = "none"
	}
	relayRequests.WithLabelValues(provider, model, strconv.Itoa(status)).Inc()
	relayLatency.WithLabelValues(provider, model).Observe(latency.Seconds())
}

// CredentialDegraded counts a managed credential entering its cooldown.
func CredentialDegraded(provider string) {
	credentialDegradations.WithLabelValues(provider).Inc()
}

// LedgerFailure counts a charge that could not be persisted.
func LedgerFailure() {
	ledgerFailures.Inc()
}

// SetLogQueueDepth reports the current queue backlog.
func SetLogQueueDepth(n int64) {
	logQueueDepth.Set(float64(n))
}

// MetricsHandler serves the Prometheus scrape endpoint.
func MetricsHandler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
