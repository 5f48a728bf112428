package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"ShopPlatform/pkg/metrics"
)

// Исходы для метки outcome
const (
	OutcomeProvisioned        = "provisioned"
	OutcomeAlreadyProvisioned = "already_provisioned"
	OutcomeRejected           = "rejected"
	OutcomeFailed             = "failed"

	OutcomeResolved = "resolved"
	OutcomeNotFound = "not_found"
	OutcomeCrypto   = "crypto_failure"
	OutcomeNoSecret = "credential_unavailable"
	OutcomeError    = "unavailable"
)

// BrokerMetrics метрики подготовки арендаторов, выдачи токенов и разрешения контекста
type BrokerMetrics struct {
	provisioningTotal  *prometheus.CounterVec
	stepFailures       *prometheus.CounterVec
	rollbacks          *prometheus.CounterVec
	tokensIssued       *prometheus.CounterVec
	loginFailures      *prometheus.CounterVec
	contextResolutions *prometheus.CounterVec

	tracer trace.Tracer
}

// NewBrokerMetrics регистрирует метрики в глобальном реестре
func NewBrokerMetrics(serviceName string) *BrokerMetrics {
	return NewBrokerMetricsWithRegistry(serviceName, prometheus.DefaultRegisterer)
}

// NewBrokerMetricsWithRegistry регистрирует метрики в переданном реестре
func NewBrokerMetricsWithRegistry(serviceName string, reg prometheus.Registerer) *BrokerMetrics {
	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return metrics.MustRegister(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace(serviceName),
			Subsystem: "broker",
			Name:      name,
			Help:      help,
		}, labels))
	}

	return &BrokerMetrics{
		provisioningTotal:  counter("provisioning_total", "Provisioning attempts by outcome", "outcome"),
		stepFailures:       counter("provisioning_step_failures_total", "Provisioning failures by step", "step"),
		rollbacks:          counter("rollbacks_total", "Registry compensations by result", "result"),
		tokensIssued:       counter("tokens_issued_total", "Issued session tokens by role", "role"),
		loginFailures:      counter("login_failures_total", "Rejected logins by reason", "reason"),
		contextResolutions: counter("context_resolutions_total", "Tenant context resolutions by outcome", "outcome"),
		tracer:             otel.Tracer(serviceName),
	}
}

func namespace(serviceName string) string {
	out := []byte(serviceName)
	for i, c := range out {
		if c == '-' || c == '.' || c == ' ' {
			out[i] = '_'
		}
	}
	return string(out)
}

// Tracer трассировщик шагов подготовки
func (m *BrokerMetrics) Tracer() trace.Tracer {
	return m.tracer
}

func (m *BrokerMetrics) ProvisioningOutcome(outcome string) {
	m.provisioningTotal.WithLabelValues(outcome).Inc()
}

func (m *BrokerMetrics) StepFailure(step string) {
	m.stepFailures.WithLabelValues(step).Inc()
}

// Rollback результат компенсации: ok или failed
func (m *BrokerMetrics) Rollback(ok bool) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.rollbacks.WithLabelValues(result).Inc()
}

func (m *BrokerMetrics) TokenIssued(role string) {
	m.tokensIssued.WithLabelValues(role).Inc()
}

func (m *BrokerMetrics) LoginFailure(reason string) {
	m.loginFailures.WithLabelValues(reason).Inc()
}

func (m *BrokerMetrics) ContextResolution(outcome string) {
	m.contextResolutions.WithLabelValues(outcome).Inc()
}
