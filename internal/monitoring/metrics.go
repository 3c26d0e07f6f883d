package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Guardrail outcomes recorded by RecordRepair.
const (
	RepairLocal  = "local"
	RepairRemote = "remote"
	RepairFailed = "failed"
)

// Metrics tracks guardrail and scoring outcomes. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	// JSON repairs by chain and outcome (local, remote, failed)
	Repairs *prometheus.CounterVec

	// Deterministic fallbacks substituted by chain
	Fallbacks *prometheus.CounterVec

	// Number-audit mismatches by chain
	AuditFailures *prometheus.CounterVec

	// Validation rules that failed to evaluate, by rule id
	RuleErrors *prometheus.CounterVec

	// Generation calls by chain and status
	Generations *prometheus.CounterVec

	// Distribution of final risk scores
	RiskScores prometheus.Histogram
}

// NewMetrics registers the clearance metrics on reg. Passing nil registers
// on the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		Repairs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "clearance_guardrail_json_repairs_total",
			Help: "JSON repairs attempted on generated output by chain and outcome",
		}, []string{"chain", "outcome"}),

		Fallbacks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "clearance_guardrail_fallbacks_total",
			Help: "Deterministic fallback payloads substituted for generated output",
		}, []string{"chain"}),

		AuditFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "clearance_guardrail_number_audit_failures_total",
			Help: "Generated outputs citing numbers not found in source data",
		}, []string{"chain"}),

		RuleErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "clearance_validation_rule_errors_total",
			Help: "Validation rules skipped because their evaluation failed",
		}, []string{"rule_id"}),

		Generations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "clearance_generation_requests_total",
			Help: "Text-generation requests by chain and status",
		}, []string{"chain", "status"}),

		RiskScores: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "clearance_risk_score",
			Help:    "Final clamped risk scores",
			Buckets: []float64{10, 25, 40, 50, 60, 75, 90, 100},
		}),
	}
}

// RecordRepair counts a JSON repair outcome for chain.
func (m *Metrics) RecordRepair(chain, outcome string) {
	if m != nil {
		m.Repairs.WithLabelValues(chain, outcome).Inc()
	}
}

// RecordFallback counts a fallback payload for chain.
func (m *Metrics) RecordFallback(chain string) {
	if m != nil {
		m.Fallbacks.WithLabelValues(chain).Inc()
	}
}

// RecordAuditFailure counts a number-audit mismatch for chain.
func (m *Metrics) RecordAuditFailure(chain string) {
	if m != nil {
		m.AuditFailures.WithLabelValues(chain).Inc()
	}
}

// RecordRuleError counts a validation rule that could not be evaluated.
func (m *Metrics) RecordRuleError(ruleID string) {
	if m != nil {
		m.RuleErrors.WithLabelValues(ruleID).Inc()
	}
}

// RecordGeneration counts a generation call; status is "ok" or "error".
func (m *Metrics) RecordGeneration(chain, status string) {
	if m != nil {
		m.Generations.WithLabelValues(chain, status).Inc()
	}
}

// ObserveRiskScore records a final risk score.
func (m *Metrics) ObserveRiskScore(score int) {
	if m != nil {
		m.RiskScores.Observe(float64(score))
	}
}
