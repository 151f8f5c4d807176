package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "benchd_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"service", "method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "benchd_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "method", "endpoint"},
	)

	HTTPResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "benchd_http_response_size_bytes",
			Help:    "HTTP response size in bytes",
			Buckets: []float64{100, 1000, 10000, 100000, 1000000},
		},
		[]string{"service", "method", "endpoint"},
	)

	HTTPRateLimited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "benchd_http_rate_limited_total",
			Help: "Total number of requests rejected by the rate limiter",
		},
		[]string{"endpoint"},
	)

	// Snapshot metrics
	SnapshotDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "benchd_snapshot_duration_seconds",
			Help:    "Time taken to assemble one snapshot",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
	)

	ProbeOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "benchd_probe_outcomes_total",
			Help: "Total number of probe results by outcome",
		},
		[]string{"probe", "outcome"},
	)

	// CommandBreakerState is 0 closed, 1 open, 2 half-open
	CommandBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "benchd_command_breaker_state",
			Help: "Circuit breaker state per external command",
		},
		[]string{"command"},
	)

	// Stream metrics
	StreamClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "benchd_stream_clients",
			Help: "Number of connected stream subscribers",
		},
	)

	StreamMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "benchd_stream_messages_total",
			Help: "Total number of stream messages by result",
		},
		[]string{"result"},
	)

	// Latest readings
	CPUUsagePercent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "benchd_cpu_usage_percent",
			Help: "Most recent CPU utilisation",
		},
	)

	MemoryUsagePercent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "benchd_memory_usage_percent",
			Help: "Most recent memory utilisation",
		},
	)

	TemperatureCelsius = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "benchd_temperature_celsius",
			Help: "Most recent SoC temperature",
		},
	)

	ThrottledBits = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "benchd_throttled_bits",
			Help: "Most recent throttle bitmask reported by the firmware",
		},
	)

	ProcessCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "benchd_process_count",
			Help: "Most recent number of live processes",
		},
	)
)

// RecordHTTPRequest records HTTP request metrics
func RecordHTTPRequest(service, method, endpoint, status string, duration float64, respSize float64) {
	HTTPRequestsTotal.WithLabelValues(service, method, endpoint, status).Inc()
	HTTPRequestDuration.WithLabelValues(service, method, endpoint).Observe(duration)
	if respSize > 0 {
		HTTPResponseSize.WithLabelValues(service, method, endpoint).Observe(respSize)
	}
}

// RecordProbe records the outcome of one probe call
func RecordProbe(probe, outcome string) {
	ProbeOutcomesTotal.WithLabelValues(probe, outcome).Inc()
}

// RecordStreamMessage records one attempted stream send
func RecordStreamMessage(ok bool) {
	result := "sent"
	if !ok {
		result = "failed"
	}
	StreamMessagesTotal.WithLabelValues(result).Inc()
}
