package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Metrics holds all Prometheus metrics of the gateway.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	ProviderRequestDuration *prometheus.HistogramVec
	Operations              *prometheus.CounterVec
	RegistrationFailures    *prometheus.CounterVec
	Compensations           *prometheus.CounterVec
	AdminCredentials        *prometheus.CounterVec
	PendingUsers            *prometheus.CounterVec
	RateLimited             *prometheus.CounterVec
}

// New creates all metrics and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ProviderRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "idm_gateway_provider_request_duration_seconds",
			Help:    "Latency of requests sent to the identity provider",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint", "status"}),
		Operations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "idm_gateway_operations_total",
			Help: "Gateway operations by outcome",
		}, []string{"operation", "outcome"}),
		RegistrationFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "idm_gateway_registration_failures_total",
			Help: "Registration failures by the stage that failed",
		}, []string{"stage"}),
		Compensations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "idm_gateway_compensations_total",
			Help: "Compensating actions run after a failed registration",
		}, []string{"action", "outcome"}),
		AdminCredentials: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "idm_gateway_admin_credentials_total",
			Help: "Administrative credentials served, by source",
		}, []string{"source"}),
		PendingUsers: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "idm_gateway_pending_users_total",
			Help: "Users left without a role, by reconciliation event",
		}, []string{"event"}),
		RateLimited: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "idm_gateway_rate_limited_total",
			Help: "Requests rejected by the rate limiter",
		}, []string{"scope"}),
	}
}

// ObserveProviderRequest records one provider round trip. status 0 means no response.
func (m *Metrics) ObserveProviderRequest(endpoint string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	label := "transport_error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	m.ProviderRequestDuration.WithLabelValues(endpoint, label).Observe(elapsed.Seconds())
}

// IncOperation counts a finished facade operation.
func (m *Metrics) IncOperation(operation string, err error) {
	if m == nil {
		return
	}
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
	}
	m.Operations.WithLabelValues(operation, outcome).Inc()
}

func (m *Metrics) IncRegistrationFailure(stage string) {
	if m == nil {
		return
	}
	m.RegistrationFailures.WithLabelValues(stage).Inc()
}

func (m *Metrics) IncCompensation(action string, err error) {
	if m == nil {
		return
	}
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
	}
	m.Compensations.WithLabelValues(action, outcome).Inc()
}

// IncAdminCredential counts a credential served from "grant" or "cache".
func (m *Metrics) IncAdminCredential(source string) {
	if m == nil {
		return
	}
	m.AdminCredentials.WithLabelValues(source).Inc()
}

// IncPendingUser counts a reconciliation event: "recorded", "resolved" or "dropped".
func (m *Metrics) IncPendingUser(event string) {
	if m == nil {
		return
	}
	m.PendingUsers.WithLabelValues(event).Inc()
}

func (m *Metrics) IncRateLimited(scope string) {
	if m == nil {
		return
	}
	m.RateLimited.WithLabelValues(scope).Inc()
}
