package main

import (
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/clearance-cli/internal/config"
	"github.com/sells-group/clearance-cli/internal/guardrail"
	"github.com/sells-group/clearance-cli/internal/llm"
	"github.com/sells-group/clearance-cli/internal/monitoring"
	"github.com/sells-group/clearance-cli/internal/ocr"
	"github.com/sells-group/clearance-cli/internal/pipeline"
	"github.com/sells-group/clearance-cli/internal/refdata"
	"github.com/sells-group/clearance-cli/internal/resilience"
	"github.com/sells-group/clearance-cli/internal/scorer"
	"github.com/sells-group/clearance-cli/internal/validation"
	anthropicpkg "github.com/sells-group/clearance-cli/pkg/anthropic"
)

// coreEnv holds the deterministic engines every command needs.
type coreEnv struct {
	Catalogue  *refdata.Catalogue
	Schemas    *guardrail.OutputValidator
	Registry   *prometheus.Registry
	Metrics    *monitoring.Metrics
	Validation *validation.Engine
	Scorer     *scorer.Engine
}

// chainEnv adds the generation chains and OCR on top of coreEnv.
type chainEnv struct {
	*coreEnv
	Deps       pipeline.Deps
	OCR        ocr.Extractor
	Extractor  *pipeline.Extractor
	Classifier *pipeline.Classifier
	Explainer  *pipeline.Explainer
}

// newGenerator builds the generation provider. Tests replace it.
var newGenerator = func(c *config.Config) llm.Generator {
	client := anthropicpkg.New(c.Anthropic.Key)
	retry := resilience.NewRetryConfig(c.LLM.Retry.MaxAttempts, c.LLM.Retry.InitialBackoffMs, c.LLM.Retry.MaxBackoffMs)
	return llm.NewAnthropicGenerator(client, c.Anthropic.ReasonerModel,
		llm.WithRequestsPerMinute(c.LLM.RequestsPerMinute),
		llm.WithRetry(retry),
		llm.WithMaxTokens(c.Anthropic.MaxTokens),
	)
}

// initCore loads reference data and schemas and builds the validation and
// scoring engines. Reference data problems surface here, at startup.
func initCore(c *config.Config) (*coreEnv, error) {
	if err := c.Validate(config.ModeOffline); err != nil {
		return nil, err
	}

	cat, err := loadCatalogue(c.Refdata)
	if err != nil {
		return nil, err
	}

	schemaFS := guardrail.DefaultSchemas()
	if c.Guardrail.SchemaDir != "" {
		schemaFS = os.DirFS(c.Guardrail.SchemaDir)
	}
	schemas, err := guardrail.NewOutputValidator(schemaFS)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(reg)

	scoreCfg := scorer.ConfigFromRefdata(cat.Scoring())
	if s := c.Scoring; s.IsSet() {
		scoreCfg.Thresholds.Low = s.Low
		scoreCfg.Thresholds.Medium = s.Medium
		scoreCfg.Thresholds.High = s.High
		scoreCfg.Thresholds.Critical = s.Critical
	}
	engine, err := scorer.NewEngine(scoreCfg, metrics)
	if err != nil {
		return nil, err
	}

	return &coreEnv{
		Catalogue:  cat,
		Schemas:    schemas,
		Registry:   reg,
		Metrics:    metrics,
		Validation: validation.NewEngine(cat, validation.WithMetrics(metrics)),
		Scorer:     engine,
	}, nil
}

func loadCatalogue(rc config.RefdataConfig) (*refdata.Catalogue, error) {
	if rc.Dir != "" {
		return refdata.LoadDir(rc.Dir)
	}
	return refdata.Default()
}

// initChains builds everything initCore does plus the generation chains.
// It requires provider credentials.
func initChains(c *config.Config) (*chainEnv, error) {
	if err := c.Validate(config.ModeLLM); err != nil {
		return nil, err
	}
	core, err := initCore(c)
	if err != nil {
		return nil, err
	}

	extractor, err := ocr.NewExtractor(c.OCR)
	if err != nil {
		return nil, err
	}

	deps := pipeline.NewDeps(newGenerator(c), core.Schemas, core.Metrics, c)
	return &chainEnv{
		coreEnv:    core,
		Deps:       deps,
		OCR:        extractor,
		Extractor:  pipeline.NewExtractor(deps),
		Classifier: pipeline.NewClassifier(deps, core.Catalogue),
		Explainer:  pipeline.NewExplainer(deps),
	}, nil
}

// flushMetrics writes the run's metrics in the Prometheus text format when
// path is set, for pickup by a node exporter textfile collector.
func (e *coreEnv) flushMetrics(path string) {
	if path == "" {
		return
	}
	if err := prometheus.WriteToTextfile(path, e.Registry); err != nil {
		zap.L().Warn("write metrics file failed", zap.String("path", path), zap.Error(eris.Wrap(err, "metrics")))
	}
}
