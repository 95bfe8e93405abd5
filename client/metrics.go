package client

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/net/http2"
)

// Metrics holds the Prometheus collectors for dispatched requests.
// A nil *Metrics records nothing.
type Metrics struct {
	RequestsTotal     *prometheus.CounterVec
	RequestDuration   *prometheus.HistogramVec
	InFlight          prometheus.Gauge
	BodyBytesSent     prometheus.Counter
	BodyBytesReceived prometheus.Counter
}

// NewMetrics creates and registers all metrics with the given registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		RequestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "httpengine",
				Name:      "requests_total",
				Help:      "Total number of dispatched requests by completion reason",
			},
			[]string{"reason", "code"}, // reason=success/error/aborted
		),
		RequestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "httpengine",
				Name:      "request_duration_seconds",
				Help:      "Time from dispatch to the terminal callback in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"reason"},
		),
		InFlight: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "httpengine",
				Name:      "requests_in_flight",
				Help:      "Number of dispatch tasks that have not completed",
			},
		),
		BodyBytesSent: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "httpengine",
				Name:      "body_bytes_sent_total",
				Help:      "Request body bytes accepted by WriteBody",
			},
		),
		BodyBytesReceived: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "httpengine",
				Name:      "body_bytes_received_total",
				Help:      "Response body bytes delivered to the data callback",
			},
		),
	}
}

func (m *Metrics) dispatched() {
	if m == nil {
		return
	}
	m.InFlight.Inc()
}

func (m *Metrics) completed(reason CompletionReason, code uint32, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.InFlight.Dec()
	m.RequestsTotal.WithLabelValues(reason.String(), codeLabel(code)).Inc()
	m.RequestDuration.WithLabelValues(reason.String()).Observe(elapsed.Seconds())
}

func (m *Metrics) bodyBytesSent(n int) {
	if m == nil {
		return
	}
	m.BodyBytesSent.Add(float64(n))
}

func (m *Metrics) bodyBytesReceived(n int) {
	if m == nil {
		return
	}
	m.BodyBytesReceived.Add(float64(n))
}

func codeLabel(code uint32) string {
	if code == 0 {
		return "none"
	}
	return http2.ErrCode(code).String()
}
