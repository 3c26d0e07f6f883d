// Package pipeline runs the guardrail-wrapped generation chains: document
// classification and extraction, intake classification, and risk
// explanation. Every chain validates model output against a schema, spends
// at most one repair call, and falls back to a deterministic payload.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/sells-group/clearance-cli/internal/config"
	"github.com/sells-group/clearance-cli/internal/guardrail"
	"github.com/sells-group/clearance-cli/internal/jsonrepair"
	"github.com/sells-group/clearance-cli/internal/llm"
	"github.com/sells-group/clearance-cli/internal/monitoring"
)

// Chain names used for logs, metrics and cost attribution.
const (
	ChainClassify = "classification"
	ChainExtract  = "extraction"
	ChainIntake   = "intake"
	ChainExplain  = "explanation"
	ChainFix      = "json_fix"
)

// Generation temperatures per chain.
const (
	classifyTemperature = 0.2
	extractTemperature  = 0.1
	intakeTemperature   = 0.3
	explainTemperature  = 0.7
	fixTemperature      = 0.1
)

// Deps are the collaborators shared by every chain.
type Deps struct {
	Generator llm.Generator
	Schemas   *guardrail.OutputValidator
	Numbers   *guardrail.NumberChecker
	Metrics   *monitoring.Metrics

	// ReasonerModel handles extraction, classification and repair;
	// WriterModel drafts explanations. Empty uses the generator default.
	ReasonerModel string
	WriterModel   string

	Limits config.GuardrailConfig
}

// NewDeps builds Deps from configuration.
func NewDeps(gen llm.Generator, schemas *guardrail.OutputValidator, metrics *monitoring.Metrics, cfg *config.Config) Deps {
	return Deps{
		Generator:     gen,
		Schemas:       schemas,
		Numbers:       guardrail.NewNumberChecker(cfg.Guardrail.NumberTolerance),
		Metrics:       metrics,
		ReasonerModel: cfg.Anthropic.ReasonerModel,
		WriterModel:   cfg.Anthropic.WriterModel,
		Limits:        cfg.Guardrail,
	}
}

// runner owns the generate, validate and repair loop.
type runner struct {
	Deps
}

// generate makes one generation call and counts it.
func (r *runner) generate(ctx context.Context, chain string, req llm.Request) (string, error) {
	req.Phase = chain
	out, err := r.Generator.Chat(ctx, req)
	if err != nil {
		r.Metrics.RecordGeneration(chain, "error")
		return "", err
	}
	r.Metrics.RecordGeneration(chain, "ok")
	return out, nil
}

// parse decodes raw and validates it against schema. Malformed text goes
// through local repair first; anything still invalid gets exactly one
// remote fix call. ok is false when every attempt failed.
func (r *runner) parse(ctx context.Context, chain, raw, schema string) (map[string]any, bool) {
	data, err := r.Schemas.ValidateJSON(raw, schema)
	if err == nil {
		if obj, isObj := data.(map[string]any); isObj {
			return obj, true
		}
		err = &guardrail.SchemaError{Path: "root", Constraint: "expected a JSON object"}
	}

	var parseErr *guardrail.ParseError
	if errors.As(err, &parseErr) {
		if obj, ok := r.repairLocal(raw, schema); ok {
			r.Metrics.RecordRepair(chain, monitoring.RepairLocal)
			zap.L().Debug("pipeline: repaired output locally", zap.String("chain", chain))
			return obj, true
		}
	}

	zap.L().Warn("pipeline: output failed validation, requesting fix",
		zap.String("chain", chain),
		zap.String("schema", schema),
		zap.Error(err),
	)
	obj, ok := r.fixRemote(ctx, raw, err, schema)
	if ok {
		r.Metrics.RecordRepair(chain, monitoring.RepairRemote)
		return obj, true
	}
	r.Metrics.RecordRepair(chain, monitoring.RepairFailed)
	return nil, false
}

func (r *runner) repairLocal(raw, schema string) (map[string]any, bool) {
	res, err := jsonrepair.Repair(raw, jsonrepair.Options{
		ExpectedKeys: r.Schemas.RequiredKeys(schema),
		Strict:       true,
	})
	if err != nil {
		return nil, false
	}
	obj, ok := res.Data.(map[string]any)
	if !ok || r.Schemas.Validate(obj, schema) != nil {
		return nil, false
	}
	return obj, true
}

// fixRemote asks the model to correct raw once. The reply may itself need
// local repair but is never sent back for a second fix.
func (r *runner) fixRemote(ctx context.Context, raw string, cause error, schema string) (map[string]any, bool) {
	prompt := fmt.Sprintf(fixPrompt, cause.Error(), r.Schemas.Describe(schema), truncate(raw, r.Limits.FixInputChars))
	fixed, err := r.generate(ctx, ChainFix, llm.Request{
		Messages:    llm.UserPrompt(prompt),
		Model:       r.ReasonerModel,
		Temperature: fixTemperature,
		JSONMode:    true,
	})
	if err != nil {
		zap.L().Warn("pipeline: json fix call failed", zap.String("schema", schema), zap.Error(err))
		return nil, false
	}

	data, err := r.Schemas.ValidateJSON(fixed, schema)
	if err == nil {
		obj, ok := data.(map[string]any)
		return obj, ok
	}
	return r.repairLocal(fixed, schema)
}

// fallback logs and counts a chain falling back to its default payload.
func (r *runner) fallback(chain, reason string) {
	r.Metrics.RecordFallback(chain)
	zap.L().Warn("pipeline: using fallback output", zap.String("chain", chain), zap.String("reason", reason))
}

// truncate cuts s to at most n runes. n <= 0 leaves s unchanged.
func truncate(s string, n int) string {
	if n <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func stringSlice(raw any) []string {
	items, _ := raw.([]any)
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func floatValue(raw any) float64 {
	f, _ := raw.(float64)
	return f
}
