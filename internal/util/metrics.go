package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CheckoutsStartedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checkouts_started_total",
		Help: "Total number of checkouts that reached the provider approval step",
	})

	CheckoutsRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkouts_rejected_total",
		Help: "Total number of checkout requests rejected before any provider call",
	}, []string{"reason"})

	PaymentCreationsFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_creations_failed_total",
		Help: "Total number of provider payment creations that failed",
	})

	PaymentExecutionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_executions_total",
		Help: "Total number of payment execution attempts",
	})

	PaymentExecutionsFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_executions_failed_total",
		Help: "Total number of payment executions the provider rejected",
	})

	OrdersCompletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_completed_total",
		Help: "Total number of orders persisted with status completed",
	})

	OrdersUnrecordedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_unrecorded_total",
		Help: "Payments captured by the provider whose order write failed",
	})

	OrdersReconciledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_reconciled_total",
		Help: "Orders re-inserted by the reconciliation worker",
	})

	CheckoutsCancelledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checkouts_cancelled_total",
		Help: "Total number of checkouts cancelled at the provider",
	})

	PaymentGatewayLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payment_gateway_latency_seconds",
		Help:    "Latency of payment gateway calls",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	CatalogCacheHitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_cache_hits_total",
		Help: "Catalog cache lookups by outcome",
	}, []string{"outcome"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
