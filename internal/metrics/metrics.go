package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "flux",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of requests handled, by transport.",
		},
		[]string{"transport", "method", "route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "flux",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of requests, by transport.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"transport", "method", "route"},
	)

	bridgeOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "flux",
			Subsystem: "socket",
			Name:      "bridged_requests_total",
			Help:      "Socket messages dispatched through the HTTP pipeline, by outcome.",
		},
		[]string{"outcome"},
	)

	liveSockets = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "flux",
			Subsystem: "socket",
			Name:      "connections",
			Help:      "Currently open realtime connections.",
		},
	)

	pushedEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "flux",
			Subsystem: "socket",
			Name:      "pushed_events_total",
			Help:      "Entity change notifications pushed to rooms.",
		},
		[]string{"event"},
	)

	authzDenials = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "flux",
			Subsystem: "authz",
			Name:      "denials_total",
			Help:      "Authorization checks that failed.",
		},
		[]string{"entity", "action"},
	)
)

// Bridge outcomes.
const (
	OutcomeCompleted = "completed"
	OutcomeTimeout   = "timeout"
	OutcomeAborted   = "aborted"
)

func init() {
	Registry.MustRegister(
		httpRequests,
		httpDuration,
		bridgeOutcomes,
		liveSockets,
		pushedEvents,
		authzDenials,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// Instrument records request counts and durations. socket reports whether the request was bridged.
func Instrument(socket func(*gin.Context) bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		transport := "http"
		if socket != nil && socket(c) {
			transport = "socket"
		}
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := strings.ToUpper(c.Request.Method)
		httpRequests.WithLabelValues(transport, method, route, strconv.Itoa(c.Writer.Status())).Inc()
		httpDuration.WithLabelValues(transport, method, route).Observe(time.Since(start).Seconds())
	}
}

// RecordBridge counts one bridged socket message.
func RecordBridge(outcome string) {
	bridgeOutcomes.WithLabelValues(outcome).Inc()
}

// SocketOpened increments the live socket gauge.
func SocketOpened() { liveSockets.Inc() }

// SocketClosed decrements the live socket gauge.
func SocketClosed() { liveSockets.Dec() }

// RecordPush counts a pushed entity event.
func RecordPush(event string) {
	pushedEvents.WithLabelValues(event).Inc()
}

// RecordDenial counts a failed authorization check.
func RecordDenial(entity, action string) {
	authzDenials.WithLabelValues(entity, action).Inc()
}
