package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/clearance-cli/internal/model"
	"github.com/sells-group/clearance-cli/internal/refdata"
	"github.com/sells-group/clearance-cli/internal/scorer"
	"github.com/sells-group/clearance-cli/internal/validation"
)

func newTestAssessor(t *testing.T, opts ...AssessorOption) *Assessor {
	t.Helper()
	cat, err := refdata.Default()
	require.NoError(t, err)
	s, err := scorer.NewEngine(scorer.ConfigFromRefdata(cat.Scoring()), nil)
	require.NoError(t, err)
	return NewAssessor(validation.NewEngine(cat), s, opts...)
}

func mismatchCase() *model.Case {
	return &model.Case{
		ID:          "case-1",
		ProcedureID: "import-regular",
		Extractions: []model.Extraction{
			{DocID: "inv", DocType: model.DocInvoice, Fields: model.Fields{
				"total_amount": model.Number(80000),
				"currency":     model.String("USD"),
				"shipment_id":  model.String("CN-1"),
			}},
			{DocID: "dec", DocType: model.DocDeclaration, Fields: model.Fields{
				"declared_value": model.Number(50000),
				"currency":       model.String("USD"),
				"shipment_id":    model.String("CN-1"),
			}},
		},
	}
}

func factorIDs(r model.RiskScoreResult) []string {
	ids := make([]string, 0, len(r.Factors))
	for _, f := range r.Factors {
		ids = append(ids, f.FactorID)
	}
	return ids
}

func TestAssessor_Assess(t *testing.T) {
	t.Parallel()

	a := newTestAssessor(t)
	c := mismatchCase()

	got, err := a.Assess(context.Background(), c, AssessOptions{})
	require.NoError(t, err)

	assert.NotEmpty(t, got.ID)
	assert.Equal(t, "case-1", got.CaseID)
	assert.Equal(t, []string{model.FactorInvoiceMismatch, model.FactorMissingDoc}, factorIDs(got.Risk))
	assert.Equal(t, 55, got.Risk.Score)
	assert.Equal(t, model.RiskHigh, got.Risk.Level)
	assert.True(t, got.Risk.ReviewRequired())
	assert.Nil(t, got.Explanation)
	assert.Equal(t, got.Validations, c.Validations, "case validations are updated")
}

func TestAssessor_Assess_WithExplanation(t *testing.T) {
	t.Parallel()

	gen := new(mockGenerator)
	gen.On("Chat", mock.Anything, phase(ChainExplain)).Return("", errors.New("offline"))
	deps, _ := newTestDeps(t, gen)

	a := newTestAssessor(t, WithExplainer(NewExplainer(deps)))
	got, err := a.Assess(context.Background(), mismatchCase(), AssessOptions{Explain: true, Language: "en"})
	require.NoError(t, err)
	require.NotNil(t, got.Explanation)
	assert.True(t, got.Explanation.Fallback)
	assert.Contains(t, got.Explanation.ExecutiveSummary, "Score: 55/100 (HIGH)")
}

func TestAssessor_Assess_ExtractsDocuments(t *testing.T) {
	t.Parallel()

	gen := new(mockGenerator)
	gen.On("Chat", mock.Anything, phase(ChainExtract)).
		Return(`{"fields": {"hs_codes": ["8471.30"]}, "confidence": 0.9}`, nil).Once()
	deps, _ := newTestDeps(t, gen)

	a := newTestAssessor(t, WithExtractor(NewExtractor(deps), 2))
	c := &model.Case{
		ID:          "case-2",
		ProcedureID: "courier-import",
		Documents: []model.Document{
			{DocID: "inv", DocType: model.DocInvoice, OCRText: "HS 8471.30"},
			{DocID: "scan", DocType: model.DocInvoice},
		},
	}

	got, err := a.Assess(context.Background(), c, AssessOptions{})
	require.NoError(t, err)
	require.Len(t, c.Extractions, 1)
	assert.Equal(t, "inv", c.Extractions[0].DocID)
	assert.Zero(t, got.Risk.Score)
	assert.Equal(t, model.RiskLow, got.Risk.Level)
	gen.AssertExpectations(t)
}

func TestAssessor_Assess_ExtractionError(t *testing.T) {
	t.Parallel()

	gen := new(mockGenerator)
	gen.On("Chat", mock.Anything, phase(ChainExtract)).Return("", errors.New("down"))
	deps, _ := newTestDeps(t, gen)

	a := newTestAssessor(t, WithExtractor(NewExtractor(deps), 1))
	c := &model.Case{ID: "case-3", Documents: []model.Document{{DocID: "d", DocType: model.DocInvoice, OCRText: "x"}}}
	_, err := a.Assess(context.Background(), c, AssessOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pipeline: assess case-3")
}

func TestAssessor_Assess_NilCase(t *testing.T) {
	t.Parallel()

	_, err := newTestAssessor(t).Assess(context.Background(), nil, AssessOptions{})
	assert.Error(t, err)
}
