package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	DirectionIn  = "in"
	DirectionOut = "out"

	ResultOK       = "ok"
	ResultFailed   = "failed"
	ResultRejected = "rejected"
)

var (
	registerOnce sync.Once

	frames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "faktory",
			Subsystem: "client",
			Name:      "frames_total",
			Help:      "Protocol frames sent and received.",
		},
		[]string{"direction", "verb"},
	)
	handshakes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "faktory",
			Subsystem: "client",
			Name:      "handshakes_total",
			Help:      "Handshake attempts by result.",
		},
		[]string{"result"},
	)
	heartbeats = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "faktory",
			Subsystem: "client",
			Name:      "heartbeats_total",
			Help:      "Heartbeat sends by result.",
		},
		[]string{"result"},
	)
	activeConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "faktory",
			Subsystem: "client",
			Name:      "connections_active",
			Help:      "Connections that completed the handshake and are not yet disposed.",
		},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "faktory",
			Subsystem: "admin_http",
			Name:      "requests_total",
			Help:      "Admin HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "faktory",
			Subsystem: "admin_http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(frames, handshakes, heartbeats, activeConnections, httpRequests, httpDuration)
	})
}

func RecordFrame(direction, verb string) {
	RegisterMetrics()
	frames.WithLabelValues(direction, verb).Inc()
}

func RecordHandshake(result string) {
	RegisterMetrics()
	handshakes.WithLabelValues(result).Inc()
}

func RecordHeartbeat(result string) {
	RegisterMetrics()
	heartbeats.WithLabelValues(result).Inc()
}

func ConnectionOpened() {
	RegisterMetrics()
	activeConnections.Inc()
}

func ConnectionClosed() {
	RegisterMetrics()
	activeConnections.Dec()
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}
