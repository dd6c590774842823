package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fullsound_orders_created_total",
		Help: "Total number of orders created",
	})

	OrdersFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fullsound_orders_failed_total",
		Help: "Total number of rejected order creations",
	}, []string{"reason"})

	OrderTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fullsound_order_transitions_total",
		Help: "Total number of committed order status transitions",
	}, []string{"from", "to"})

	BeatsSoldTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fullsound_beats_sold_total",
		Help: "Total number of beats marked sold",
	})

	BeatsReleasedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fullsound_beats_released_total",
		Help: "Total number of beats returned to the catalog",
	})

	PaymentIntentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fullsound_payment_intents_total",
		Help: "Total number of payment intent attempts",
	}, []string{"result"})

	PaymentConfirmationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fullsound_payment_confirmations_total",
		Help: "Total number of payment confirmations by resulting payment status",
	}, []string{"status"})

	GatewayRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fullsound_gateway_request_duration_seconds",
		Help:    "Latency of payment gateway calls",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	GatewayErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fullsound_gateway_errors_total",
		Help: "Total number of failed payment gateway calls",
	}, []string{"operation"})

	WebhooksReceivedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fullsound_webhooks_received_total",
		Help: "Total number of gateway webhooks by outcome",
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
