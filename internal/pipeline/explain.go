package pipeline

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/clearance-cli/internal/guardrail"
	"github.com/sells-group/clearance-cli/internal/llm"
	"github.com/sells-group/clearance-cli/internal/model"
)

// DefaultLanguage is used when no explanation language is requested.
const DefaultLanguage = "en"

// Explainer drafts the citizen-facing explanation of a risk score.
type Explainer struct {
	r runner
}

// NewExplainer returns an explanation chain.
func NewExplainer(deps Deps) *Explainer {
	return &Explainer{r: runner{Deps: deps}}
}

// Explain generates an explanation of result in language. A generation
// failure, unrepairable output or any number not traceable to the score
// yields the deterministic explanation instead; Explain never fails.
func (e *Explainer) Explain(ctx context.Context, result model.RiskScoreResult, language string) model.Explanation {
	if language == "" {
		language = DefaultLanguage
	}

	raw, err := e.r.generate(ctx, ChainExplain, llm.Request{
		System:      fmt.Sprintf(explainPrompt, result.Score, result.Level, factorTable(result.Factors), language),
		Messages:    llm.UserPrompt(explainUser),
		Model:       e.r.WriterModel,
		Temperature: explainTemperature,
		JSONMode:    true,
	})
	if err != nil {
		e.r.fallback(ChainExplain, err.Error())
		return FallbackExplanation(result)
	}

	out, ok := e.r.parse(ctx, ChainExplain, raw, guardrail.SchemaTriage)
	if ok {
		if err := guardrail.ValidateRiskExplanation(out); err != nil {
			zap.L().Warn("pipeline: explanation rejected", zap.Error(err))
			ok = false
		}
	}
	if !ok {
		e.r.fallback(ChainExplain, "unparseable explanation")
		return FallbackExplanation(result)
	}

	summary, _ := out["executive_summary"].(string)
	expl := model.Explanation{
		ExecutiveSummary:       summary,
		Bullets:                stringSlice(out["explanation_bullets"]),
		RecommendedNextActions: stringSlice(out["recommended_next_actions"]),
		RiskReductionActions:   stringSlice(out["risk_reduction_actions"]),
	}

	if ok, issues := e.r.Numbers.VerifyRiskScoreNumbers(expl, result); !ok {
		e.r.Metrics.RecordAuditFailure(ChainExplain)
		zap.L().Warn("pipeline: explanation number audit failed", zap.Strings("issues", issues))
		e.r.fallback(ChainExplain, "number audit")
		return FallbackExplanation(result)
	}
	return expl
}

// FallbackExplanation builds an explanation from the factors alone.
func FallbackExplanation(result model.RiskScoreResult) model.Explanation {
	bullets := make([]string, 0, len(result.Factors))
	for _, f := range result.Factors {
		bullets = append(bullets, fmt.Sprintf("[%s] %s", f.FactorID, f.Description))
	}
	return model.Explanation{
		ExecutiveSummary: fmt.Sprintf("Risk assessment complete. Score: %d/100 (%s). %s", result.Score, result.Level, Disclaimer),
		Bullets:          bullets,
		RecommendedNextActions: []string{
			"Review all documents for accuracy",
			"Ensure all required fields are complete",
			"Address any flagged inconsistencies",
		},
		RiskReductionActions: []string{
			"Correct any data mismatches",
			"Provide missing documentation",
			"Add explanatory notes for any discrepancies",
		},
		Fallback: true,
	}
}

func factorTable(factors []model.RiskFactor) string {
	if len(factors) == 0 {
		return "- none"
	}
	lines := make([]string, 0, len(factors))
	for _, f := range factors {
		lines = append(lines, fmt.Sprintf("- [%s] %s: +%d points", f.FactorID, f.Description, f.Points))
	}
	return strings.Join(lines, "\n")
}
