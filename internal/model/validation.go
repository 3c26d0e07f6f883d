package model

// Severity grades a validation outcome.
type Severity string

// Severity levels, lowest first.
const (
	SeverityInfo     Severity = "info"
	SeverityWarn     Severity = "warn"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityInfo:     0,
	SeverityWarn:     1,
	SeverityHigh:     2,
	SeverityCritical: 3,
}

// Rank returns the ordinal of s. Unknown severities rank below info.
func (s Severity) Rank() int {
	r, ok := severityRank[s]
	if !ok {
		return -1
	}
	return r
}

// IsAtLeast reports whether s is as severe as other.
func (s Severity) IsAtLeast(other Severity) bool {
	return s.Rank() >= other.Rank()
}

// Validation rule identifiers.
const (
	RuleInvoiceVsDeclared = "invoice_total_vs_declared_value"
	RuleShipmentIDs       = "shipment_id_consistency"
	RuleCurrencySanity    = "currency_sanity"
	RuleDateOrder         = "date_order_sanity"
	RuleRequiredDocs      = "required_docs_check"
	RuleHSCodeConsistency = "hs_code_consistency"
)

// Evidence records the values that drove a validation decision.
type Evidence map[string]any

// ValidationResult is the outcome of one rule evaluation.
type ValidationResult struct {
	RuleID   string   `json:"rule_id"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	Evidence Evidence `json:"evidence"`
	Passed   bool     `json:"passed"`
}

// FirstFailed returns the first failed result for ruleID, or nil. Later
// results for the same rule are ignored.
func FirstFailed(results []ValidationResult, ruleID string) *ValidationResult {
	for i := range results {
		if results[i].RuleID == ruleID && !results[i].Passed {
			return &results[i]
		}
	}
	return nil
}
