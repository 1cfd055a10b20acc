package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the fax gateway.
type Metrics struct {
	RequestTotal        *prometheus.CounterVec
	ProviderDurationMs  *prometheus.HistogramVec
	ConversionTotal     *prometheus.CounterVec
	RecordsSkippedTotal *prometheus.CounterVec
	ContentBytesServed  *prometheus.CounterVec
}

// Conversion outcomes recorded per content request.
const (
	ConversionConverted   = "converted"
	ConversionDegraded    = "degraded"
	ConversionPassthrough = "passthrough"
)

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		RequestTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "faxgw_request_total",
			Help: "Total number of gateway operations processed.",
		}, []string{"operation", "direction", "status"}),

		ProviderDurationMs: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "faxgw_provider_duration_ms",
			Help:    "Remote provider call duration in milliseconds.",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		}, []string{"operation"}),

		ConversionTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "faxgw_conversion_total",
			Help: "Document format conversion outcomes.",
		}, []string{"outcome"}),

		RecordsSkippedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "faxgw_records_skipped_total",
			Help: "Provider list records dropped during normalization.",
		}, []string{"direction"}),

		ContentBytesServed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "faxgw_content_bytes_served_total",
			Help: "Total document bytes served to callers.",
		}, []string{"mime_type"}),
	}
}

func (m *Metrics) RecordRequest(operation, direction, status string) {
	m.RequestTotal.WithLabelValues(operation, direction, status).Inc()
}

func (m *Metrics) RecordProviderDuration(operation string, ms float64) {
	m.ProviderDurationMs.WithLabelValues(operation).Observe(ms)
}

func (m *Metrics) RecordConversion(outcome string) {
	m.ConversionTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordSkipped(direction string) {
	m.RecordsSkippedTotal.WithLabelValues(direction).Inc()
}

func (m *Metrics) RecordContentServed(mimeType string, bytes int) {
	m.ContentBytesServed.WithLabelValues(mimeType).Add(float64(bytes))
}
