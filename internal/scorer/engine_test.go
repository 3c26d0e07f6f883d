package scorer

import (
	"encoding/json"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/clearance-cli/internal/model"
	"github.com/sells-group/clearance-cli/internal/monitoring"
	"github.com/sells-group/clearance-cli/internal/refdata"
	"github.com/sells-group/clearance-cli/internal/validation"
)

func newEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(DefaultConfig(), nil)
	require.NoError(t, err)
	return e
}

func failed(ruleID string, evidence model.Evidence) model.ValidationResult {
	return model.ValidationResult{RuleID: ruleID, Severity: model.SeverityHigh, Message: ruleID + " failed", Evidence: evidence}
}

func passed(ruleID string) model.ValidationResult {
	return model.ValidationResult{RuleID: ruleID, Severity: model.SeverityInfo, Message: "ok", Passed: true}
}

func factorIDs(r model.RiskScoreResult) []string {
	ids := make([]string, 0, len(r.Factors))
	for _, f := range r.Factors {
		ids = append(ids, f.FactorID)
	}
	return ids
}

func TestLevel(t *testing.T) {
	t.Parallel()

	e := newEngine(t)
	tests := []struct {
		score int
		want  model.RiskLevel
	}{
		{0, model.RiskLow},
		{24, model.RiskLow},
		{25, model.RiskMedium},
		{49, model.RiskMedium},
		{50, model.RiskHigh},
		{74, model.RiskHigh},
		{75, model.RiskCritical},
		{90, model.RiskCritical},
		{100, model.RiskCritical},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, e.Level(tt.score), "score %d", tt.score)
	}
}

func TestLevel_Monotonic(t *testing.T) {
	t.Parallel()

	e := newEngine(t)
	prev := e.Level(0).Rank()
	for s := 1; s <= 100; s++ {
		r := e.Level(s).Rank()
		assert.GreaterOrEqual(t, r, prev, "score %d", s)
		prev = r
	}
}

func TestCompute_NoSignals(t *testing.T) {
	t.Parallel()

	r := newEngine(t).Compute(Input{})
	assert.Equal(t, 0, r.Score)
	assert.Equal(t, model.RiskLow, r.Level)
	assert.Empty(t, r.Factors)
	assert.False(t, r.ReviewRequired())
	assert.Equal(t, model.DefaultThresholds(), r.Thresholds)
}

func TestCompute_FixedPoints(t *testing.T) {
	t.Parallel()

	e := newEngine(t)
	tests := []struct {
		name   string
		vr     model.ValidationResult
		factor string
		points int
		input  model.FieldValue
	}{
		{"invoice", failed(model.RuleInvoiceVsDeclared, model.Evidence{"difference_percent": 60.0}), model.FactorInvoiceMismatch, 25, model.Number(60)},
		{"shipment", failed(model.RuleShipmentIDs, model.Evidence{"distinct_ids": []string{"A", "B"}}), model.FactorShipmentMismatch, 20, model.List("A", "B")},
		{"dates", failed(model.RuleDateOrder, model.Evidence{"issues": []string{"x"}}), model.FactorDateSequence, 10, model.List("x")},
		{"currency", failed(model.RuleCurrencySanity, model.Evidence{"currencies": []string{"EUR", "USD"}}), model.FactorCurrencyMismatch, 10, model.List("EUR", "USD")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := e.Compute(Input{Validations: []model.ValidationResult{tt.vr}})
			require.Len(t, r.Factors, 1)
			f := r.Factors[0]
			assert.Equal(t, tt.factor, f.FactorID)
			assert.Equal(t, tt.points, f.Points)
			assert.Equal(t, tt.points, r.Score)
			assert.Equal(t, tt.input, f.InputValue)
			assert.Equal(t, tt.vr.Message, f.Description)
		})
	}
}

func TestCompute_PassedValidationsAwardNothing(t *testing.T) {
	t.Parallel()

	r := newEngine(t).Compute(Input{Validations: []model.ValidationResult{
		passed(model.RuleInvoiceVsDeclared),
		passed(model.RuleShipmentIDs),
		passed(model.RuleRequiredDocs),
		passed(model.RuleCurrencySanity),
		passed(model.RuleDateOrder),
	}})
	assert.Zero(t, r.Score)
	assert.Empty(t, r.Factors)
}

func TestCompute_PriorFlags(t *testing.T) {
	t.Parallel()

	c := &model.Case{Intake: model.Intake{CollectedFields: model.Fields{"prior_flags": model.List("fraud_2023")}}}
	r := newEngine(t).Compute(Input{Case: c})
	assert.GreaterOrEqual(t, r.Score, 30)
	assert.Equal(t, []string{model.FactorPriorFlag}, factorIDs(r))
	assert.Equal(t, model.List("fraud_2023"), r.Factors[0].InputValue)

	empty := &model.Case{Intake: model.Intake{CollectedFields: model.Fields{"prior_flags": model.List()}}}
	assert.Zero(t, newEngine(t).Compute(Input{Case: empty}).Score)
}

func TestCompute_PriorFlagsFalsyJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		flags string
		want  int
	}{
		{"false", `false`, 0},
		{"empty object", `{}`, 0},
		{"empty list", `[]`, 0},
		{"null", `null`, 0},
		{"true", `true`, 30},
		{"object", `{"seizure": 2022}`, 30},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var c model.Case
			require.NoError(t, json.Unmarshal([]byte(`{"intake": {"collected_fields": {"prior_flags": `+tt.flags+`}}}`), &c))
			r := newEngine(t).Compute(Input{Case: &c})
			assert.Equal(t, tt.want, r.Score)
		})
	}
}

func TestCompute_MissingDocs(t *testing.T) {
	t.Parallel()

	e := newEngine(t)
	tests := []struct {
		missing []string
		points  int
	}{
		{[]string{"Bill of lading"}, 15},
		{[]string{"Bill of lading", "Packing list"}, 30},
		{[]string{"a", "b", "c"}, 45},
		{[]string{"a", "b", "c", "d"}, 45},
	}
	for _, tt := range tests {
		r := e.Compute(Input{Validations: []model.ValidationResult{
			failed(model.RuleRequiredDocs, model.Evidence{"missing": tt.missing}),
		}})
		require.Len(t, r.Factors, 1)
		assert.Equal(t, model.FactorMissingDoc, r.Factors[0].FactorID)
		assert.Equal(t, tt.points, r.Factors[0].Points)
		assert.Equal(t, tt.points, r.Score)
	}

	r := e.Compute(Input{Validations: []model.ValidationResult{
		failed(model.RuleRequiredDocs, model.Evidence{"missing": []string{"Bill of lading", "Packing list"}}),
	}})
	assert.Equal(t, "Missing 2 required document(s): Bill of lading, Packing list", r.Factors[0].Description)

	r = e.Compute(Input{Validations: []model.ValidationResult{failed(model.RuleRequiredDocs, model.Evidence{})}})
	assert.Empty(t, r.Factors)
}

func TestCompute_FirstFailedResultWins(t *testing.T) {
	t.Parallel()

	first := failed(model.RuleInvoiceVsDeclared, model.Evidence{"difference_percent": 40.0})
	second := failed(model.RuleInvoiceVsDeclared, model.Evidence{"difference_percent": 90.0})
	r := newEngine(t).Compute(Input{Validations: []model.ValidationResult{passed(model.RuleInvoiceVsDeclared), first, second}})
	require.Len(t, r.Factors, 1)
	assert.Equal(t, model.Number(40), r.Factors[0].InputValue)
}

func TestCompute_MissingDocsUsesFirstFailedOnly(t *testing.T) {
	t.Parallel()

	empty := failed(model.RuleRequiredDocs, model.Evidence{"missing": []string{}})
	later := failed(model.RuleRequiredDocs, model.Evidence{"missing": []string{"invoice"}})
	r := newEngine(t).Compute(Input{Validations: []model.ValidationResult{empty, later}})
	assert.Zero(t, r.Score)
	assert.Empty(t, r.Factors)
}

func TestCompute_HSCodeMismatch(t *testing.T) {
	t.Parallel()

	r := newEngine(t).Compute(Input{Extractions: []model.Extraction{
		{DocID: "a", DocType: model.DocInvoice, Fields: model.Fields{"hs_codes": model.List("8471.30")}},
		{DocID: "b", DocType: model.DocDeclaration, Fields: model.Fields{"hs_codes": model.String("8517.62")}},
	}})
	require.Len(t, r.Factors, 1)
	assert.Equal(t, model.FactorHSCodeMismatch, r.Factors[0].FactorID)
	assert.Equal(t, 15, r.Score)
	assert.Equal(t, model.List("8471.30", "8517.62"), r.Factors[0].InputValue)
}

func TestCompute_ClampsAndSums(t *testing.T) {
	t.Parallel()

	c := &model.Case{Intake: model.Intake{CollectedFields: model.Fields{"prior_flags": model.String("seizure")}}}
	in := Input{
		Case: c,
		Validations: []model.ValidationResult{
			failed(model.RuleInvoiceVsDeclared, model.Evidence{"difference_percent": 60.0}),
			failed(model.RuleShipmentIDs, nil),
			failed(model.RuleDateOrder, nil),
			failed(model.RuleRequiredDocs, model.Evidence{"missing": []string{"a", "b", "c"}}),
			failed(model.RuleCurrencySanity, nil),
		},
		Extractions: []model.Extraction{
			{Fields: model.Fields{"hs_codes": model.List("1", "2")}},
		},
	}
	r := newEngine(t).Compute(in)
	assert.Equal(t, []string{
		model.FactorInvoiceMismatch,
		model.FactorShipmentMismatch,
		model.FactorDateSequence,
		model.FactorMissingDoc,
		model.FactorCurrencyMismatch,
		model.FactorPriorFlag,
		model.FactorHSCodeMismatch,
	}, factorIDs(r))
	assert.Equal(t, 155, r.RawTotal)
	assert.Equal(t, 100, r.Score)
	assert.Equal(t, model.RiskCritical, r.Level)
	assert.True(t, r.ReviewRequired())
}

func TestCompute_SumEqualsScoreWithinRange(t *testing.T) {
	t.Parallel()

	e := newEngine(t)
	all := []model.ValidationResult{
		failed(model.RuleInvoiceVsDeclared, nil),
		failed(model.RuleShipmentIDs, nil),
		failed(model.RuleDateOrder, nil),
		failed(model.RuleRequiredDocs, model.Evidence{"missing": []string{"a"}}),
		failed(model.RuleCurrencySanity, nil),
	}
	// Every subset of the validation-driven factors.
	for mask := 0; mask < 1<<len(all); mask++ {
		var vs []model.ValidationResult
		for i := range all {
			if mask&(1<<i) != 0 {
				vs = append(vs, all[i])
			}
		}
		r := e.Compute(Input{Validations: vs})
		sum := 0
		for _, f := range r.Factors {
			sum += f.Points
		}
		assert.Equal(t, sum, r.RawTotal)
		if sum <= 100 {
			assert.Equal(t, sum, r.Score)
		} else {
			assert.Equal(t, 100, r.Score)
		}
		assert.GreaterOrEqual(t, r.Score, 0)
		assert.LessOrEqual(t, r.Score, 100)
		assert.Equal(t, e.Level(r.Score), r.Level)
	}
}

func TestCompute_RecordsScoreMetric(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	e, err := NewEngine(DefaultConfig(), monitoring.NewMetrics(reg))
	require.NoError(t, err)
	e.Compute(Input{})

	families, err := reg.Gather()
	require.NoError(t, err)
	var found bool
	for _, mf := range families {
		if mf.GetName() == "clearance_risk_score" {
			found = true
			assert.Equal(t, uint64(1), mf.GetMetric()[0].GetHistogram().GetSampleCount())
		}
	}
	assert.True(t, found)
}

// Scenario tests run extractions through the validation engine and score
// the results, the way an assessment does.
func scenario(t *testing.T, c *model.Case, exts []model.Extraction) model.RiskScoreResult {
	t.Helper()
	cat, err := refdata.Default()
	require.NoError(t, err)
	vs := validation.NewEngine(cat).ValidateAll(c, exts, c.ProcedureID)
	return newEngine(t).Compute(Input{Case: c, Validations: vs, Extractions: exts})
}

func TestScenario_HappyPath(t *testing.T) {
	t.Parallel()

	c := &model.Case{ID: "happy", ProcedureID: "import-regular"}
	r := scenario(t, c, []model.Extraction{
		{DocID: "inv", DocType: model.DocInvoice, Fields: model.Fields{
			"total_amount": model.Number(50000), "currency": model.String("USD"),
			"shipment_id": model.String("CN-2024-12345"), "invoice_date": model.String("2024-03-01"),
			"hs_codes": model.List("8471.30"),
		}},
		{DocID: "bl", DocType: model.DocBillOfLading, Fields: model.Fields{
			"bl_number": model.String("CN-2024-12345"), "bl_date": model.String("2024-03-05"),
		}},
		{DocID: "pl", DocType: model.DocPackingList, Fields: model.Fields{}},
		{DocID: "dec", DocType: model.DocDeclaration, Fields: model.Fields{
			"declared_value": model.Number(50000), "currency": model.String("USD"),
			"declaration_date": model.String("2024-03-10"), "hs_codes": model.List("8471.30"),
		}},
	})
	assert.Equal(t, model.RiskLow, r.Level)
	assert.Zero(t, r.Score)
}

func TestScenario_Fraudish(t *testing.T) {
	t.Parallel()

	c := &model.Case{ID: "fraud", ProcedureID: "import-regular"}
	r := scenario(t, c, []model.Extraction{
		{DocID: "inv", DocType: model.DocInvoice, Fields: model.Fields{
			"total_amount": model.Number(80000), "shipment_id": model.String("CN-2024-12345"),
		}},
		{DocID: "bl", DocType: model.DocBillOfLading, Fields: model.Fields{
			"bl_number": model.String("CN-2024-99999"),
		}},
		{DocID: "dec", DocType: model.DocDeclaration, Fields: model.Fields{
			"declared_value": model.Number(50000),
		}},
	})
	assert.GreaterOrEqual(t, r.Score, 50)
	assert.Contains(t, []model.RiskLevel{model.RiskHigh, model.RiskCritical}, r.Level)
	assert.Equal(t, []string{model.FactorInvoiceMismatch, model.FactorShipmentMismatch, model.FactorMissingDoc}, factorIDs(r))
	assert.Equal(t, 60, r.Score)
}

func TestScenario_MissingDocs(t *testing.T) {
	t.Parallel()

	c := &model.Case{ID: "missing", ProcedureID: "import-regular"}
	r := scenario(t, c, []model.Extraction{
		{DocID: "inv", DocType: model.DocInvoice, Fields: model.Fields{"total_amount": model.Number(100)}},
		{DocID: "pl", DocType: model.DocPackingList, Fields: model.Fields{}},
	})
	assert.GreaterOrEqual(t, r.Score, 25)
	require.Len(t, r.Factors, 1)
	assert.Equal(t, 30, r.Factors[0].Points)
}
