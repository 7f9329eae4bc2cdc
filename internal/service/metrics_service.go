package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/moneyquiz/routing-gateway/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation for the routing
// control loop plus lightweight in-process session counters. The session
// counters feed the end-of-request summary only; health checks always read
// the durable store.
type MetricsService struct {
	registry         *prometheus.Registry
	handler          http.Handler
	dispatchDuration *prometheus.HistogramVec
	dispatchTotal    *prometheus.CounterVec
	fallbackTotal    *prometheus.CounterVec
	rollbackTotal    *prometheus.CounterVec
	rolloutFraction  *prometheus.GaugeVec
	httpDuration     *prometheus.HistogramVec

	requestCount  uint64
	errorCount    uint64
	durationTotal uint64
	peakMemory    uint64
}

// NewMetricsService registers the routing collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	dispatchDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "routing_dispatch_duration_seconds",
		Help:    "Duration of routed action dispatches in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"system", "action"})

	dispatchTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "routing_dispatch_total",
		Help: "Total number of routed action dispatches",
	}, []string{"system", "action", "status"})

	fallbackTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "routing_fallback_total",
		Help: "Dispatches that fell back to the legacy handler after a fault",
	}, []string{"action"})

	rollbackTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "routing_rollback_total",
		Help: "Rollback executions by type",
	}, []string{"type"})

	rolloutFraction := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "routing_rollout_fraction",
		Help: "Current rollout fraction per action",
	}, []string{"action"})

	httpDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(dispatchDuration, dispatchTotal, fallbackTotal, rollbackTotal, rolloutFraction, httpDuration, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:         registry,
		handler:          handler,
		dispatchDuration: dispatchDuration,
		dispatchTotal:    dispatchTotal,
		fallbackTotal:    fallbackTotal,
		rollbackTotal:    rollbackTotal,
		rolloutFraction:  rolloutFraction,
		httpDuration:     httpDuration,
	}
}

// ObserveHTTPRequest records one HTTP request served by the gateway.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpDuration.WithLabelValues(method, path, fmt.Sprintf("%d", status)).Observe(duration.Seconds())
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

// ObserveDispatch records one routed dispatch outcome.
func (m *MetricsService) ObserveDispatch(system models.System, action string, status models.MetricStatus, duration time.Duration, memory int64) {
	if m == nil {
		return
	}
	m.dispatchDuration.WithLabelValues(string(system), action).Observe(duration.Seconds())
	m.dispatchTotal.WithLabelValues(string(system), action, string(status)).Inc()

	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.durationTotal, uint64(duration.Nanoseconds()))
	if status == models.MetricStatusError {
		atomic.AddUint64(&m.errorCount, 1)
	}
	if memory > 0 {
		for {
			current := atomic.LoadUint64(&m.peakMemory)
			if uint64(memory) <= current {
				break
			}
			if atomic.CompareAndSwapUint64(&m.peakMemory, current, uint64(memory)) {
				break
			}
		}
	}
}

// ObserveFallback counts a legacy fallback after a handler fault.
func (m *MetricsService) ObserveFallback(action string) {
	if m == nil {
		return
	}
	m.fallbackTotal.WithLabelValues(action).Inc()
}

// ObserveRollback counts a rollback execution.
func (m *MetricsService) ObserveRollback(rollbackType models.RollbackType) {
	if m == nil {
		return
	}
	m.rollbackTotal.WithLabelValues(string(rollbackType)).Inc()
}

// SetRolloutFraction publishes the current fraction for an action.
func (m *MetricsService) SetRolloutFraction(action string, fraction float64) {
	if m == nil {
		return
	}
	m.rolloutFraction.WithLabelValues(action).Set(fraction)
}

// SessionSummary reports the in-process counters since startup.
type SessionSummary struct {
	Requests      uint64  `json:"requests"`
	Errors        uint64  `json:"errors"`
	AvgDurationMs float64 `json:"avg_duration_ms"`
	PeakMemoryMB  float64 `json:"peak_memory_mb"`
}

// Summary returns the aggregated session counters.
func (m *MetricsService) Summary() SessionSummary {
	if m == nil {
		return SessionSummary{}
	}
	requests := atomic.LoadUint64(&m.requestCount)
	errors := atomic.LoadUint64(&m.errorCount)
	duration := atomic.LoadUint64(&m.durationTotal)
	peak := atomic.LoadUint64(&m.peakMemory)

	summary := SessionSummary{
		Requests:     requests,
		Errors:       errors,
		PeakMemoryMB: float64(peak) / (1 << 20),
	}
	if requests > 0 {
		summary.AvgDurationMs = float64(duration) / float64(requests) / float64(time.Millisecond)
	}
	return summary
}
