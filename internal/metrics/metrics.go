// Package metrics registers the Prometheus collectors shared by the
// gateway and the backend services.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// GatewayRequestDuration observes the full edge latency per route,
	// including validation and the downstream call.
	GatewayRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "shopmesh",
		Subsystem: "gateway",
		Name:      "request_duration_seconds",
		Help:      "Edge request latency by route and status code.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "method", "status"})

	// GatewayProxyFailures counts downstream calls that never produced a
	// response, by target and failure class.
	GatewayProxyFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shopmesh",
		Subsystem: "gateway",
		Name:      "proxy_failures_total",
		Help:      "Downstream calls failed before a response arrived.",
	}, []string{"target", "reason"})

	// GatewayRateLimited counts requests rejected at the edge before any
	// routing happened.
	GatewayRateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "shopmesh",
		Subsystem: "gateway",
		Name:      "rate_limited_total",
		Help:      "Requests rejected by the per-client rate limiter.",
	})

	// OutboxPublished counts staged events successfully handed to the
	// broker by the drainer.
	OutboxPublished = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "shopmesh",
		Subsystem: "outbox",
		Name:      "published_total",
		Help:      "Outbox events published to the broker.",
	})

	// OutboxPublishFailures counts drain attempts that could not reach
	// the broker.
	OutboxPublishFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "shopmesh",
		Subsystem: "outbox",
		Name:      "publish_failures_total",
		Help:      "Outbox publish attempts that failed.",
	})

	// CartProvisioned counts carts created by the registration consumer.
	CartProvisioned = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "shopmesh",
		Subsystem: "cart",
		Name:      "provisioned_total",
		Help:      "Carts created from registration events.",
	})

	// CartDuplicateEvents counts redelivered registration events that
	// were absorbed by the idempotent insert.
	CartDuplicateEvents = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "shopmesh",
		Subsystem: "cart",
		Name:      "duplicate_events_total",
		Help:      "Registration events skipped because the cart already existed.",
	})
)

// Handler exposes the default registry for scraping.
func Handler() http.Handler {
	return promhttp.Handler()
}
