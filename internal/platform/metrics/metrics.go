package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	IdentitiesRegistered prometheus.Counter
	IdentitiesRevoked    prometheus.Counter
	IdentitiesRenewed    prometheus.Counter
	IdentitiesSwept      prometheus.Counter
	EndpointLatency      *prometheus.HistogramVec

	// Verification metrics
	RequestsCreated       prometheus.Counter
	ProofsSubmitted       prometheus.Counter
	RequestsCompleted     *prometheus.CounterVec
	ActiveRequests        prometheus.Gauge
	RequestsRejected      *prometheus.CounterVec
	DecryptionLatency     prometheus.Histogram
	OracleJobsOutstanding prometheus.Gauge
}

// New creates and registers all Prometheus metrics
func New() *Metrics {
	return &Metrics{
		IdentitiesRegistered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "attestor_identities_registered_total",
			Help: "Total number of identity proof registrations",
		}),
		IdentitiesRevoked: promauto.NewCounter(prometheus.CounterOpts{
			Name: "attestor_identities_revoked_total",
			Help: "Total number of identities revoked by verifiers",
		}),
		IdentitiesRenewed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "attestor_identities_renewed_total",
			Help: "Total number of identity proof renewals",
		}),
		IdentitiesSwept: promauto.NewCounter(prometheus.CounterOpts{
			Name: "attestor_identities_swept_total",
			Help: "Total number of expired identities deactivated by cleanup",
		}),
		EndpointLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "attestor_endpoint_latency_seconds",
			Help:    "Latency of endpoints in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
		RequestsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "attestor_verification_requests_total",
			Help: "Total number of verification requests created",
		}),
		ProofsSubmitted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "attestor_proofs_submitted_total",
			Help: "Total number of proofs submitted for decryption",
		}),
		RequestsCompleted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "attestor_verification_completed_total",
			Help: "Total number of completed verification requests, labeled by outcome",
		}, []string{"outcome"}),
		ActiveRequests: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "attestor_active_verification_requests",
			Help: "Current number of requests created but not yet completed",
		}),
		RequestsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "attestor_requests_rejected_total",
			Help: "Total number of rejected mutating calls, labeled by error code",
		}, []string{"code"}),
		DecryptionLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "attestor_decryption_latency_seconds",
			Help:    "Latency between proof submission and decryption callback in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		OracleJobsOutstanding: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "attestor_oracle_jobs_outstanding",
			Help: "Current number of decryption jobs queued but not yet delivered",
		}),
	}
}

// IncrementIdentitiesRegistered increments the registrations counter by 1
func (m *Metrics) IncrementIdentitiesRegistered() {
	m.IdentitiesRegistered.Inc()
}

func (m *Metrics) IncrementIdentitiesRevoked() {
	m.IdentitiesRevoked.Inc()
}
func (m *Metrics) IncrementIdentitiesRenewed() {
	m.IdentitiesRenewed.Inc()
}
func (m *Metrics) AddIdentitiesSwept(count int) {
	m.IdentitiesSwept.Add(float64(count))
}
func (m *Metrics) IncrementRequestsCreated() {
	m.RequestsCreated.Inc()
}
func (m *Metrics) IncrementProofsSubmitted() {
	m.ProofsSubmitted.Inc()
}

// IncrementRequestsCompleted records a completed request with its outcome label
// ("approved" or "rejected").
func (m *Metrics) IncrementRequestsCompleted(outcome string) {
	m.RequestsCompleted.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncrementActiveRequests() {
	m.ActiveRequests.Inc()
}
func (m *Metrics) DecrementActiveRequests() {
	m.ActiveRequests.Dec()
}

// IncrementRequestsRejected records a precondition rejection by domain error code.
func (m *Metrics) IncrementRequestsRejected(code string) {
	m.RequestsRejected.WithLabelValues(code).Inc()
}

// ObserveEndpointLatency records the latency for a given endpoint
func (m *Metrics) ObserveEndpointLatency(endpoint string, durationSeconds float64) {
	m.EndpointLatency.WithLabelValues(endpoint).Observe(durationSeconds)
}

// ObserveDecryptionLatency records submission-to-callback latency.
func (m *Metrics) ObserveDecryptionLatency(durationSeconds float64) {
	m.DecryptionLatency.Observe(durationSeconds)
}

func (m *Metrics) IncrementOracleJobs() {
	m.OracleJobsOutstanding.Inc()
}
func (m *Metrics) DecrementOracleJobs() {
	m.OracleJobsOutstanding.Dec()
}
