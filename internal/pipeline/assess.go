package pipeline

import (
	"context"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/clearance-cli/internal/model"
	"github.com/sells-group/clearance-cli/internal/scorer"
	"github.com/sells-group/clearance-cli/internal/validation"
)

// Assessor runs the risk step for a case: extraction of any documents not
// yet extracted, validation, scoring and an optional explanation.
type Assessor struct {
	validator   *validation.Engine
	scorer      *scorer.Engine
	extractor   *Extractor
	explainer   *Explainer
	concurrency int
}

// AssessorOption configures an Assessor.
type AssessorOption func(*Assessor)

// WithExtractor extracts case documents that carry OCR text when the case
// has no extractions yet.
func WithExtractor(e *Extractor, concurrency int) AssessorOption {
	return func(a *Assessor) {
		a.extractor = e
		a.concurrency = concurrency
	}
}

// WithExplainer enables explanations.
func WithExplainer(e *Explainer) AssessorOption {
	return func(a *Assessor) { a.explainer = e }
}

// NewAssessor wires the validation and scoring engines.
func NewAssessor(v *validation.Engine, s *scorer.Engine, opts ...AssessorOption) *Assessor {
	a := &Assessor{validator: v, scorer: s}
	for _, o := range opts {
		o(a)
	}
	return a
}

// AssessOptions control a single assessment.
type AssessOptions struct {
	Explain  bool
	Language string
}

// Assess validates and scores c. The case's extraction and validation lists
// are updated in place.
func (a *Assessor) Assess(ctx context.Context, c *model.Case, opts AssessOptions) (*model.Assessment, error) {
	if c == nil {
		return nil, eris.New("pipeline: assess: nil case")
	}

	if len(c.Extractions) == 0 && a.extractor != nil {
		docs := make([]model.Document, 0, len(c.Documents))
		for _, d := range c.Documents {
			if d.OCRText != "" {
				docs = append(docs, d)
			}
		}
		if len(docs) > 0 {
			exts, err := a.extractor.ExtractAll(ctx, docs, a.concurrency)
			if err != nil {
				return nil, eris.Wrapf(err, "pipeline: assess %s", c.ID)
			}
			c.Extractions = exts
		}
	}

	validations := a.validator.ValidateAll(c, c.Extractions, c.ProcedureID)
	c.Validations = validations

	risk := a.scorer.Compute(scorer.Input{Case: c, Validations: validations, Extractions: c.Extractions})

	assessment := &model.Assessment{
		ID:          uuid.NewString(),
		CaseID:      c.ID,
		Validations: validations,
		Risk:        risk,
	}
	if opts.Explain && a.explainer != nil {
		expl := a.explainer.Explain(ctx, risk, opts.Language)
		assessment.Explanation = &expl
	}

	zap.L().Info("pipeline: case assessed",
		zap.String("case_id", c.ID),
		zap.String("assessment_id", assessment.ID),
		zap.Int("score", risk.Score),
		zap.String("level", string(risk.Level)),
		zap.Bool("review_required", risk.ReviewRequired()),
	)
	return assessment, nil
}
