package model

import "encoding/json"

// RiskLevel is the categorical bucket a score falls into.
type RiskLevel string

// Risk levels, lowest first.
const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

var riskRank = map[RiskLevel]int{
	RiskLow:      0,
	RiskMedium:   1,
	RiskHigh:     2,
	RiskCritical: 3,
}

// Rank returns the ordinal of l, or -1 for unknown levels.
func (l RiskLevel) Rank() int {
	r, ok := riskRank[l]
	if !ok {
		return -1
	}
	return r
}

// RequiresReview reports whether a human reviewer must look at the case.
func (l RiskLevel) RequiresReview() bool {
	return l == RiskHigh || l == RiskCritical
}

// Thresholds are the score boundaries between risk levels. Critical is
// recorded for audit but the level function does not branch on it.
type Thresholds struct {
	Low      int `json:"low" yaml:"low" mapstructure:"low" validate:"gte=0,lte=100"`
	Medium   int `json:"medium" yaml:"medium" mapstructure:"medium" validate:"gtefield=Low,lte=100"`
	High     int `json:"high" yaml:"high" mapstructure:"high" validate:"gtefield=Medium,lte=100"`
	Critical int `json:"critical" yaml:"critical" mapstructure:"critical" validate:"gtefield=High,lte=100"`
}

// DefaultThresholds returns the standard level boundaries.
func DefaultThresholds() Thresholds {
	return Thresholds{Low: 25, Medium: 50, High: 75, Critical: 90}
}

// Level maps a score to its risk level.
func (t Thresholds) Level(score int) RiskLevel {
	switch {
	case score < t.Low:
		return RiskLow
	case score < t.Medium:
		return RiskMedium
	case score < t.High:
		return RiskHigh
	default:
		return RiskCritical
	}
}

// Scoring factor identifiers.
const (
	FactorInvoiceMismatch  = "invoice_total_declared_mismatch"
	FactorShipmentMismatch = "shipment_id_inconsistency"
	FactorDateSequence     = "date_sequence_violation"
	FactorMissingDoc       = "missing_required_doc"
	FactorCurrencyMismatch = "currency_mismatch"
	FactorPriorFlag        = "prior_flag_present"
	FactorHSCodeMismatch   = "hs_code_mismatch"
)

// RiskFactor is one catalogued contributor to a risk score.
type RiskFactor struct {
	FactorID    string     `json:"factor_id"`
	Description string     `json:"description"`
	InputValue  FieldValue `json:"input_value"`
	Points      int        `json:"points_added"`
}

// RiskScoreResult is the scoring engine's output for one assessment.
type RiskScoreResult struct {
	Score      int          `json:"score"`
	Level      RiskLevel    `json:"level"`
	Factors    []RiskFactor `json:"factors"`
	Thresholds Thresholds   `json:"threshold_config"`
	// RawTotal is the factor sum before clamping.
	RawTotal int `json:"raw_total"`
}

// ReviewRequired reports whether the level demands human review.
func (r RiskScoreResult) ReviewRequired() bool {
	return r.Level.RequiresReview()
}

// MarshalJSON adds the derived review and confidence markers.
func (r RiskScoreResult) MarshalJSON() ([]byte, error) {
	type plain RiskScoreResult
	return json.Marshal(struct {
		plain
		Confidence     string `json:"confidence"`
		ReviewRequired bool   `json:"review_required"`
	}{plain: plain(r), Confidence: "HIGH", ReviewRequired: r.ReviewRequired()})
}

// Explanation is the citizen-facing narrative for a risk score.
type Explanation struct {
	ExecutiveSummary       string   `json:"executive_summary"`
	Bullets                []string `json:"explanation_bullets"`
	RecommendedNextActions []string `json:"recommended_next_actions"`
	RiskReductionActions   []string `json:"risk_reduction_actions,omitempty"`
	// Fallback is set when the text was built from the factors rather than
	// generated.
	Fallback bool `json:"fallback"`
}

// Assessment bundles the output of one risk-assessment step.
type Assessment struct {
	ID          string             `json:"assessment_id"`
	CaseID      string             `json:"case_id"`
	Validations []ValidationResult `json:"validations"`
	Risk        RiskScoreResult    `json:"risk"`
	Explanation *Explanation       `json:"explanation,omitempty"`
}
