package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	PrescriptionsCreated prometheus.Counter
	CredentialsSigned    prometheus.Counter
	SigningFailures      *prometheus.CounterVec
	EndpointLatency      *prometheus.HistogramVec

	// Verification metrics
	VerificationsPassed prometheus.Counter
	VerificationsFailed *prometheus.CounterVec
	VerificationLatency prometheus.Histogram
	TrustCacheHits      prometheus.Counter
	TrustCacheMisses    prometheus.Counter
	RegistryBreakerOpen prometheus.Gauge

	// Lifecycle metrics
	PrescriptionsDispensed prometheus.Counter
	PrescriptionsRevoked   prometheus.Counter
	PrescriptionsExpired   prometheus.Counter

	// QR metrics
	QREncoded *prometheus.CounterVec
}

// New creates and registers all Prometheus metrics
func New() *Metrics {
	return &Metrics{
		PrescriptionsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rxcred_prescriptions_created_total",
			Help: "Total number of prescription drafts created",
		}),
		CredentialsSigned: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rxcred_credentials_signed_total",
			Help: "Total number of credentials signed",
		}),
		SigningFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "rxcred_signing_failures_total",
			Help: "Total number of signing failures, labeled by reason",
		}, []string{"reason"}),
		EndpointLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rxcred_endpoint_latency_seconds",
			Help:    "Latency of endpoints in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
		VerificationsPassed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rxcred_verifications_passed_total",
			Help: "Total number of credential verifications that passed all checks",
		}),
		VerificationsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "rxcred_verifications_failed_total",
			Help: "Total number of credential verifications that failed, labeled by check",
		}, []string{"check"}),
		VerificationLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "rxcred_verification_latency_seconds",
			Help:    "Latency of the full verification pipeline in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		TrustCacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rxcred_trust_cache_hits_total",
			Help: "Total number of trust registry decisions served from cache",
		}),
		TrustCacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rxcred_trust_cache_misses_total",
			Help: "Total number of trust registry lookups that missed the cache",
		}),
		RegistryBreakerOpen: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "rxcred_registry_breaker_open",
			Help: "Whether the trust registry circuit breaker is open (0=closed, 1=open)",
		}),
		PrescriptionsDispensed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rxcred_prescriptions_dispensed_total",
			Help: "Total number of prescriptions dispensed",
		}),
		PrescriptionsRevoked: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rxcred_prescriptions_revoked_total",
			Help: "Total number of prescriptions revoked",
		}),
		PrescriptionsExpired: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rxcred_prescriptions_expired_total",
			Help: "Total number of prescriptions observed as expired",
		}),
		QREncoded: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "rxcred_qr_encoded_total",
			Help: "Total number of QR payloads encoded, labeled by mode",
		}, []string{"mode"}),
	}
}

// IncrementPrescriptionsCreated increments the prescriptions created counter by 1
func (m *Metrics) IncrementPrescriptionsCreated() {
	m.PrescriptionsCreated.Inc()
}

func (m *Metrics) IncrementCredentialsSigned() {
	m.CredentialsSigned.Inc()
}

// IncrementSigningFailures increments the signing failures counter with reason label
func (m *Metrics) IncrementSigningFailures(reason string) {
	m.SigningFailures.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncrementVerificationsPassed() {
	m.VerificationsPassed.Inc()
}

// IncrementVerificationsFailed increments the failed verifications counter with check label
func (m *Metrics) IncrementVerificationsFailed(check string) {
	m.VerificationsFailed.WithLabelValues(check).Inc()
}

// ObserveVerificationLatency records the latency for the verification pipeline
func (m *Metrics) ObserveVerificationLatency(durationSeconds float64) {
	m.VerificationLatency.Observe(durationSeconds)
}

func (m *Metrics) IncrementTrustCacheHits() {
	m.TrustCacheHits.Inc()
}

func (m *Metrics) IncrementTrustCacheMisses() {
	m.TrustCacheMisses.Inc()
}

// SetRegistryBreakerOpen sets the registry breaker gauge
func (m *Metrics) SetRegistryBreakerOpen(open bool) {
	if open {
		m.RegistryBreakerOpen.Set(1)
	} else {
		m.RegistryBreakerOpen.Set(0)
	}
}

func (m *Metrics) IncrementPrescriptionsDispensed() {
	m.PrescriptionsDispensed.Inc()
}

func (m *Metrics) IncrementPrescriptionsRevoked() {
	m.PrescriptionsRevoked.Inc()
}

func (m *Metrics) IncrementPrescriptionsExpired() {
	m.PrescriptionsExpired.Inc()
}

// IncrementQREncoded increments the QR encoded counter with mode label
func (m *Metrics) IncrementQREncoded(mode string) {
	m.QREncoded.WithLabelValues(mode).Inc()
}

// ObserveEndpointLatency records the latency for a given endpoint
func (m *Metrics) ObserveEndpointLatency(endpoint string, durationSeconds float64) {
	m.EndpointLatency.WithLabelValues(endpoint).Observe(durationSeconds)
}
