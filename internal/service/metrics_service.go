package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for HTTP traffic, cache usage and marketplace events.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter

	bookingTransitions *prometheus.CounterVec
	enrollmentEvents   *prometheus.CounterVec
	paymentSettlements *prometheus.CounterVec
	webhookEvents      *prometheus.CounterVec
	tradeDecisions     *prometheus.CounterVec
	notifications      *prometheus.CounterVec
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	bookingTransitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "skillswap_booking_transitions_total",
		Help: "Booking state changes by resulting status",
	}, []string{"status"})

	enrollmentEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "skillswap_enrollment_events_total",
		Help: "Enrollment grants, revocations and refunds",
	}, []string{"event", "via"})

	paymentSettlements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "skillswap_payment_settlements_total",
		Help: "Checkout sessions settled by source",
	}, []string{"source", "result"})

	webhookEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "skillswap_webhook_events_total",
		Help: "Payment provider webhook events by type and outcome",
	}, []string{"type", "result"})

	tradeDecisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "skillswap_trade_offers_total",
		Help: "Trade offer transitions by resulting status",
	}, []string{"status"})

	notifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "skillswap_notifications_total",
		Help: "Counterparty notifications by outcome",
	}, []string{"result"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHits, cacheMisses,
		bookingTransitions, enrollmentEvents, paymentSettlements, webhookEvents, tradeDecisions, notifications, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:           registry,
		handler:            handler,
		requestDuration:    requestDuration,
		requestTotal:       requestTotal,
		cacheLatency:       cacheLatency,
		cacheWrite:         cacheWrite,
		cacheHits:          cacheHits,
		cacheMisses:        cacheMisses,
		bookingTransitions: bookingTransitions,
		enrollmentEvents:   enrollmentEvents,
		paymentSettlements: paymentSettlements,
		webhookEvents:      webhookEvents,
		tradeDecisions:     tradeDecisions,
		notifications:      notifications,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registry returns the underlying registry, mainly for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records cache hit/miss metrics.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
	} else {
		m.cacheMisses.Inc()
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// BookingTransition counts a booking reaching status.
func (m *MetricsService) BookingTransition(status string) {
	if m == nil {
		return
	}
	m.bookingTransitions.WithLabelValues(status).Inc()
}

// EnrollmentEvent counts grants, revocations and refunds.
func (m *MetricsService) EnrollmentEvent(event, via string) {
	if m == nil {
		return
	}
	m.enrollmentEvents.WithLabelValues(event, via).Inc()
}

// PaymentSettlement counts settlement attempts by source (webhook or reconcile).
func (m *MetricsService) PaymentSettlement(source, result string) {
	if m == nil {
		return
	}
	m.paymentSettlements.WithLabelValues(source, result).Inc()
}

// WebhookEvent counts processed provider events.
func (m *MetricsService) WebhookEvent(eventType, result string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(eventType, result).Inc()
}

// TradeDecision counts trade offers reaching status.
func (m *MetricsService) TradeDecision(status string) {
	if m == nil {
		return
	}
	m.tradeDecisions.WithLabelValues(status).Inc()
}

// Notification counts notification deliveries.
func (m *MetricsService) Notification(result string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(result).Inc()
}
