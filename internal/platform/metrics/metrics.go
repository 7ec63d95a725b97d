package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the fiscal worker.
type Metrics struct {
	DocumentsTransmitted *prometheus.CounterVec
	TransmissionRetries  prometheus.Counter
	CertActivations      prometheus.Counter
	EndpointLatency      *prometheus.HistogramVec
}

// New creates and registers all metrics on the given registerer. Production
// passes prometheus.DefaultRegisterer; tests pass a fresh registry.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		DocumentsTransmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "prospera_fiscal_documents_transmitted_total",
			Help: "Transmission outcomes by terminal result (authorized, rejected, failed).",
		}, []string{"outcome"}),
		TransmissionRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "prospera_fiscal_transmission_retries_total",
			Help: "Transient transmission failures that were scheduled for retry.",
		}),
		CertActivations: factory.NewCounter(prometheus.CounterOpts{
			Name: "prospera_fiscal_certificate_activations_total",
			Help: "Successful certificate activations.",
		}),
		EndpointLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "prospera_fiscal_endpoint_latency_seconds",
			Help:    "Government endpoint call latency by provider tag.",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider"}),
	}
}

// ObserveEndpoint records one endpoint round trip.
func (m *Metrics) ObserveEndpoint(provider string, d time.Duration) {
	m.EndpointLatency.WithLabelValues(provider).Observe(d.Seconds())
}
