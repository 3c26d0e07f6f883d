// Package validation runs deterministic cross-document consistency rules
// over the extractions of one case.
package validation

import (
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/clearance-cli/internal/model"
	"github.com/sells-group/clearance-cli/internal/monitoring"
	"github.com/sells-group/clearance-cli/internal/refdata"
)

// Input is what every rule sees.
type Input struct {
	Case        *model.Case
	Extractions []model.Extraction
	ProcedureID string
}

// Rule evaluates one consistency check. A nil result with a nil error means
// the rule does not apply to this input.
type Rule struct {
	ID    string
	Check func(in Input) (*model.ValidationResult, error)
}

// DocRequirements resolves the documents a procedure needs.
type DocRequirements interface {
	RequiredDocs(procedureID string) []refdata.RequiredDoc
}

// Engine evaluates the rule catalogue in a fixed order.
type Engine struct {
	rules   []Rule
	metrics *monitoring.Metrics
}

// Option configures an Engine.
type Option func(*Engine)

// WithMetrics records rule failures on m.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithRules replaces the rule catalogue.
func WithRules(rules ...Rule) Option {
	return func(e *Engine) { e.rules = rules }
}

// NewEngine builds an engine with the standard six rules. docs may be nil,
// in which case no procedure has required documents.
func NewEngine(docs DocRequirements, opts ...Option) *Engine {
	e := &Engine{rules: DefaultRules(docs)}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// DefaultRules returns the standard catalogue in evaluation order.
func DefaultRules(docs DocRequirements) []Rule {
	return []Rule{
		{ID: model.RuleInvoiceVsDeclared, Check: InvoiceVsDeclared},
		{ID: model.RuleShipmentIDs, Check: ShipmentIDConsistency},
		{ID: model.RuleCurrencySanity, Check: CurrencySanity},
		{ID: model.RuleDateOrder, Check: DateOrderSanity},
		{ID: model.RuleRequiredDocs, Check: RequiredDocs(docs)},
		{ID: model.RuleHSCodeConsistency, Check: HSCodeConsistency},
	}
}

// RuleIDs lists the configured rules in evaluation order.
func (e *Engine) RuleIDs() []string {
	ids := make([]string, 0, len(e.rules))
	for _, r := range e.rules {
		ids = append(ids, r.ID)
	}
	return ids
}

// ValidateAll runs every rule and collects the results of those that
// apply. A rule that errors or panics is logged and skipped; it never
// appears in the output, so its absence must not be read as a pass.
func (e *Engine) ValidateAll(c *model.Case, extractions []model.Extraction, procedureID string) []model.ValidationResult {
	in := Input{Case: c, Extractions: extractions, ProcedureID: procedureID}
	results := make([]model.ValidationResult, 0, len(e.rules))

	for _, rule := range e.rules {
		res, err := runRule(rule, in)
		if err != nil {
			zap.L().Error("validation: rule failed",
				zap.String("rule_id", rule.ID),
				zap.String("procedure_id", procedureID),
				zap.Error(err),
			)
			e.metrics.RecordRuleError(rule.ID)
			continue
		}
		if res == nil {
			continue
		}
		if res.RuleID == "" {
			res.RuleID = rule.ID
		}
		results = append(results, *res)
	}
	return results
}

func runRule(rule Rule, in Input) (res *model.ValidationResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = eris.New(fmt.Sprintf("validation: rule %s panicked: %v", rule.ID, r))
		}
	}()
	return rule.Check(in)
}
