package service

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/studyspot/checkin-api/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	checkinTotal    *prometheus.CounterVec
	paymentTotal    *prometheus.CounterVec
	gatewayLatency  *prometheus.HistogramVec
	cacheLatency    prometheus.Observer
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
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

	checkinTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkin_toggles_total",
		Help: "Total check-in toggles by resulting state",
	}, []string{"state"})

	paymentTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_total",
		Help: "Total payment records reaching a terminal status",
	}, []string{"status"})

	gatewayLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gateway_call_duration_seconds",
		Help:    "Latency of outbound payment gateway calls",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache operations",
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

	registry.MustRegister(requestDuration, requestTotal, checkinTotal, paymentTotal, gatewayLatency, cacheLatency, cacheHits, cacheMisses)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		checkinTotal:    checkinTotal,
		paymentTotal:    paymentTotal,
		gatewayLatency:  gatewayLatency,
		cacheLatency:    cacheLatency,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
	}
}

// Handler exposes the Prometheus scrape endpoint.
func (s *MetricsService) Handler() http.Handler {
	return s.handler
}

// ObserveHTTPRequest records request metrics.
func (s *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	labels := []string{method, path, strconv.Itoa(status)}
	s.requestDuration.WithLabelValues(labels...).Observe(duration.Seconds())
	s.requestTotal.WithLabelValues(labels...).Inc()
}

// RecordCheckin counts a toggle by its resulting state.
func (s *MetricsService) RecordCheckin(state models.AttendanceState) {
	s.checkinTotal.WithLabelValues(string(state)).Inc()
}

// RecordPayment counts a payment reaching a terminal status.
func (s *MetricsService) RecordPayment(status models.PaymentStatus) {
	s.paymentTotal.WithLabelValues(string(status)).Inc()
}

// ObserveGatewayCall records an outbound gateway call.
func (s *MetricsService) ObserveGatewayCall(duration time.Duration, success bool) {
	outcome := "ok"
	if !success {
		outcome = "error"
	}
	s.gatewayLatency.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordCacheOperation records a cache lookup.
func (s *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	s.cacheLatency.Observe(duration.Seconds())
	if hit {
		s.cacheHits.Inc()
	} else {
		s.cacheMisses.Inc()
	}
}
