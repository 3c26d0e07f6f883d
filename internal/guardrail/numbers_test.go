package guardrail

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/clearance-cli/internal/model"
)

func TestExtractNumbers(t *testing.T) {
	t.Parallel()

	got := ExtractNumbers("Total $1,234.50 due 2025-01-15, 15% off")
	assert.Equal(t, []Number{
		{Value: 1, Context: ContextNumber},
		{Value: 15, Context: ContextNumber},
		{Value: 1234.5, Context: ContextNumber},
		{Value: 2025, Context: ContextNumber},
		{Value: 2025, Context: ContextYear},
	}, got)

	assert.Empty(t, ExtractNumbers("no digits here"))
}

func TestVerifyNumbers(t *testing.T) {
	t.Parallel()

	c := NewNumberChecker(0)
	assert.InDelta(t, DefaultTolerance, c.Tolerance(), 1e-9)

	tests := []struct {
		name    string
		text    string
		allowed NumberSet
		ctx     map[string]any
		wantOK  bool
	}{
		{"exact and tolerant", "Score 60 with 80,000 and 49,600", NewNumberSet(60, 80000, 50000), nil, true},
		{"outside tolerance", "Score 61.5", NewNumberSet(60), nil, false},
		{"always allowed", "1 2 3 4 5 10 25 50 75 100 0", NewNumberSet(), nil, true},
		{"nested context", "value 777", NewNumberSet(), map[string]any{"a": map[string]any{"b": 777.0}}, true},
		{"context list", "value 12.5", NewNumberSet(), map[string]any{"a": []any{"x", 12.5}}, true},
		{"no numbers", "all clear", NewNumberSet(), nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ok, discrepancies := c.VerifyNumbers(tt.text, tt.allowed, tt.ctx)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantOK, len(discrepancies) == 0)
		})
	}
}

func TestVerifyNumbers_DiscrepancyShape(t *testing.T) {
	t.Parallel()

	ok, d := NewNumberChecker(0.01).VerifyNumbers("Amount 999", NewNumberSet(60), nil)
	require.False(t, ok)
	require.Len(t, d, 1)
	assert.Equal(t, Discrepancy{Number: 999, Context: ContextNumber, Type: "disallowed_number"}, d[0])
}

func sampleRisk() model.RiskScoreResult {
	return model.RiskScoreResult{
		Score:      60,
		Level:      model.RiskHigh,
		Thresholds: model.DefaultThresholds(),
		Factors: []model.RiskFactor{
			{
				FactorID:    model.FactorInvoiceMismatch,
				Description: "Invoice total (80000) differs from declared value (50000) by 60%",
				InputValue:  model.Number(60),
				Points:      25,
			},
			{
				FactorID:    model.FactorShipmentMismatch,
				Description: "Multiple different shipment IDs found across documents",
				InputValue:  model.List("CN-2024-12345", "CN-2024-99999"),
				Points:      20,
			},
			{
				FactorID:    model.FactorHSCodeMismatch,
				Description: "Different HS codes found across documents",
				InputValue:  model.List("8471.30", "8517.62"),
				Points:      15,
			},
		},
	}
}

func TestVerifyRiskScoreNumbers(t *testing.T) {
	t.Parallel()

	c := NewNumberChecker(0.01)
	risk := sampleRisk()

	good := model.Explanation{
		ExecutiveSummary: "Risk score 60/100 (HIGH). Advisory only, subject to qualified review.",
		Bullets: []string{
			"Invoice total 80,000 differs from declared 50,000 (60%): +25 points",
			"Shipment CN-2024-12345 conflicts with CN-2024-99999: +20 points",
			"HS codes 8471.30 and 8517.62 differ: +15 points",
		},
		RecommendedNextActions: []string{"Request corrected invoice"},
	}
	ok, issues := c.VerifyRiskScoreNumbers(good, risk)
	assert.True(t, ok, issues)
	assert.Empty(t, issues)

	bad := good
	bad.Bullets = append([]string{}, good.Bullets...)
	bad.Bullets = append(bad.Bullets, "Prior seizure of 999 units")
	ok, issues = c.VerifyRiskScoreNumbers(bad, risk)
	assert.False(t, ok)
	assert.Contains(t, issues, "Number 999 (number) not found in source data")
}

func TestVerifyExtractionNumbers(t *testing.T) {
	t.Parallel()

	c := NewNumberChecker(0.01)
	ocr := "COMMERCIAL INVOICE INV-1\nTOTAL: 50,000.00 USD\nWeight 1200 kg"

	ext := model.Extraction{Fields: model.Fields{
		"total_amount":   model.Number(50000),
		"gross_weight":   model.Number(1200),
		"invoice_number": model.String("INV-1"),
		"supplier_name":  model.String("Acme 777 Ltd"),
	}}
	ok, issues := c.VerifyExtractionNumbers(ext, ocr)
	assert.True(t, ok)
	assert.Empty(t, issues)

	ext.Fields["total_amount"] = model.Number(52000)
	ok, issues = c.VerifyExtractionNumbers(ext, ocr)
	assert.False(t, ok)
	assert.Equal(t, []string{"Field total_amount: value 52000 not found in OCR text"}, issues)
}

func TestSanitizeDisallowedNumbers(t *testing.T) {
	t.Parallel()

	got := SanitizeDisallowedNumbers("Paid 500 of 1200 units, 15 left", NewNumberSet(500), "")
	assert.Equal(t, "Paid 500 of [VALUE] units, [VALUE] left", got)

	got = SanitizeDisallowedNumbers("Total 12,500 vs 125", NewNumberSet(125), "#")
	assert.Equal(t, "Total # vs 125", got)
}

func TestCheckPercentageValues(t *testing.T) {
	t.Parallel()

	got := CheckPercentageValues("-5% and 150% and 0% and 50%")
	require.Len(t, got, 3)
	assert.Equal(t, "negative_percentage", got[0].Issue)
	assert.Equal(t, "Negative percentage: -5%", got[0].Message)
	assert.Equal(t, "excessive_percentage", got[1].Issue)
	assert.Equal(t, "Percentage over 100%: 150%", got[1].Message)
	assert.Equal(t, "zero_percentage", got[2].Issue)
	assert.Equal(t, "Zero percentage may indicate missing data: 0%", got[2].Message)

	assert.Empty(t, CheckPercentageValues("growth of 12.5 % is fine"))
}
