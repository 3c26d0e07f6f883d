package scorer

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/clearance-cli/internal/model"
	"github.com/sells-group/clearance-cli/internal/monitoring"
	"github.com/sells-group/clearance-cli/internal/validation"
)

// Input is everything a score is computed from.
type Input struct {
	Case        *model.Case
	Validations []model.ValidationResult
	Extractions []model.Extraction
}

// Engine computes risk scores from a fixed factor catalogue.
type Engine struct {
	cfg     Config
	metrics *monitoring.Metrics
}

// NewEngine validates cfg and returns an engine. metrics may be nil.
func NewEngine(cfg Config, metrics *monitoring.Metrics) (*Engine, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return &Engine{cfg: cfg, metrics: metrics}, nil
}

// Config returns the engine's configuration.
func (e *Engine) Config() Config { return e.cfg }

// Level maps a score to a risk level using the configured thresholds.
func (e *Engine) Level(score int) model.RiskLevel {
	return e.cfg.Thresholds.Level(score)
}

// Compute evaluates the seven factors in order, sums their points, clamps
// the total to 0..100 and assigns a level.
func (e *Engine) Compute(in Input) model.RiskScoreResult {
	rules := []func(Input) *model.RiskFactor{
		e.invoiceMismatch,
		e.shipmentMismatch,
		e.dateSequence,
		e.missingDocs,
		e.currencyMismatch,
		e.priorFlags,
		e.hsCodeMismatch,
	}

	factors := make([]model.RiskFactor, 0, len(rules))
	total := 0
	for _, rule := range rules {
		if f := rule(in); f != nil {
			factors = append(factors, *f)
			total += f.Points
		}
	}

	score := min(max(total, 0), 100)
	result := model.RiskScoreResult{
		Score:      score,
		Level:      e.Level(score),
		Factors:    factors,
		Thresholds: e.cfg.Thresholds,
		RawTotal:   total,
	}

	e.metrics.ObserveRiskScore(score)
	zap.L().Debug("scorer: risk computed",
		zap.Int("score", score),
		zap.Int("raw_total", total),
		zap.String("level", string(result.Level)),
		zap.Int("factors", len(factors)),
	)
	return result
}

func (e *Engine) fromValidation(in Input, ruleID, factorID, evidenceKey, fallbackDesc string) *model.RiskFactor {
	v := model.FirstFailed(in.Validations, ruleID)
	if v == nil {
		return nil
	}
	desc := v.Message
	if desc == "" {
		desc = fallbackDesc
	}
	return &model.RiskFactor{
		FactorID:    factorID,
		Description: desc,
		InputValue:  model.ValueOf(v.Evidence[evidenceKey]),
		Points:      e.cfg.Points[factorID],
	}
}

func (e *Engine) invoiceMismatch(in Input) *model.RiskFactor {
	f := e.fromValidation(in, model.RuleInvoiceVsDeclared, model.FactorInvoiceMismatch,
		"difference_percent", "Invoice total differs from declared value")
	if f != nil && f.InputValue.IsNull() {
		f.InputValue = model.Number(0)
	}
	return f
}

func (e *Engine) shipmentMismatch(in Input) *model.RiskFactor {
	f := e.fromValidation(in, model.RuleShipmentIDs, model.FactorShipmentMismatch,
		"distinct_ids", "Shipment IDs are inconsistent")
	if f != nil && f.InputValue.IsNull() {
		f.InputValue = model.List()
	}
	return f
}

func (e *Engine) dateSequence(in Input) *model.RiskFactor {
	f := e.fromValidation(in, model.RuleDateOrder, model.FactorDateSequence,
		"issues", "Document dates violate logical sequence")
	if f != nil && f.InputValue.IsNull() {
		f.InputValue = model.List()
	}
	return f
}

// missingDocs awards points per missing document up to the cap. A failed
// check that lists no documents awards nothing.
func (e *Engine) missingDocs(in Input) *model.RiskFactor {
	v := model.FirstFailed(in.Validations, model.RuleRequiredDocs)
	if v == nil {
		return nil
	}
	missing := model.ValueOf(v.Evidence["missing"]).Strings()
	// Only the first failed result is consulted, even when it lists nothing.
	if len(missing) == 0 {
		return nil
	}
	points := min(e.cfg.Points[model.FactorMissingDoc]*len(missing), e.cfg.MissingDocCap)
	return &model.RiskFactor{
		FactorID:    model.FactorMissingDoc,
		Description: fmt.Sprintf("Missing %d required document(s): %s", len(missing), strings.Join(missing, ", ")),
		InputValue:  model.List(missing...),
		Points:      points,
	}
}

func (e *Engine) currencyMismatch(in Input) *model.RiskFactor {
	f := e.fromValidation(in, model.RuleCurrencySanity, model.FactorCurrencyMismatch,
		"currencies", "Multiple currencies without conversion")
	if f != nil && f.InputValue.IsNull() {
		f.InputValue = model.List()
	}
	return f
}

func (e *Engine) priorFlags(in Input) *model.RiskFactor {
	flags := in.Case.PriorFlags()
	if !flags.Truthy() {
		return nil
	}
	return &model.RiskFactor{
		FactorID:    model.FactorPriorFlag,
		Description: "Entity has prior compliance flags",
		InputValue:  flags,
		Points:      e.cfg.Points[model.FactorPriorFlag],
	}
}

// hsCodeMismatch looks at the extractions directly: the validation rule
// never fails on multiple codes, but divergence still carries weight here.
func (e *Engine) hsCodeMismatch(in Input) *model.RiskFactor {
	codes := validation.HSCodes(in.Extractions)
	if len(codes) <= 1 {
		return nil
	}
	return &model.RiskFactor{
		FactorID:    model.FactorHSCodeMismatch,
		Description: "Different HS codes found across documents: " + strings.Join(codes, ", "),
		InputValue:  model.List(codes...),
		Points:      e.cfg.Points[model.FactorHSCodeMismatch],
	}
}
