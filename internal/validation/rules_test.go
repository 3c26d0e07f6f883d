package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/clearance-cli/internal/model"
	"github.com/sells-group/clearance-cli/internal/refdata"
)

func ext(id string, dt model.DocType, fields model.Fields) model.Extraction {
	return model.Extraction{DocID: id, DocType: dt, Fields: fields, Confidence: 0.9}
}

func TestInvoiceVsDeclared(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		invoice  model.FieldValue
		declared model.FieldValue
		passed   bool
		severity model.Severity
		pct      float64
	}{
		{"within threshold", model.Number(50000), model.String("$52,000.00"), true, model.SeverityInfo, 3.85},
		{"exact", model.String("10,000"), model.Number(10000), true, model.SeverityInfo, 0},
		{"mismatch", model.Number(80000), model.Number(50000), false, model.SeverityHigh, 60},
		{"declared zero", model.Number(80000), model.Number(0), true, model.SeverityInfo, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			res, err := InvoiceVsDeclared(Input{Extractions: []model.Extraction{
				ext("inv", model.DocInvoice, model.Fields{"total_amount": tt.invoice}),
				ext("dec", model.DocDeclaration, model.Fields{"declared_value": tt.declared}),
			}})
			require.NoError(t, err)
			require.NotNil(t, res)
			assert.Equal(t, model.RuleInvoiceVsDeclared, res.RuleID)
			assert.Equal(t, tt.passed, res.Passed)
			assert.Equal(t, tt.severity, res.Severity)
			assert.InDelta(t, tt.pct, res.Evidence["difference_percent"], 0.001)
		})
	}
}

func TestInvoiceVsDeclared_Message(t *testing.T) {
	t.Parallel()

	res, err := InvoiceVsDeclared(Input{Extractions: []model.Extraction{
		ext("inv-1", model.DocInvoice, model.Fields{"total_amount": model.Number(80000)}),
		ext("dec-1", model.DocDeclaration, model.Fields{"declared_value": model.Number(50000)}),
	}})
	require.NoError(t, err)
	assert.Equal(t, "Invoice total (80000) differs from declared value (50000) by 60%", res.Message)
	assert.Equal(t, []string{"inv-1", "dec-1"}, res.Evidence["doc_ids"])
}

func TestInvoiceVsDeclared_Abstains(t *testing.T) {
	t.Parallel()

	res, err := InvoiceVsDeclared(Input{Extractions: []model.Extraction{
		ext("inv", model.DocInvoice, model.Fields{"total_amount": model.Number(100)}),
	}})
	require.NoError(t, err)
	assert.Nil(t, res)

	// Only the first invoice is consulted.
	res, err = InvoiceVsDeclared(Input{Extractions: []model.Extraction{
		ext("inv-a", model.DocInvoice, model.Fields{}),
		ext("inv-b", model.DocInvoice, model.Fields{"total_amount": model.Number(100)}),
		ext("dec", model.DocDeclaration, model.Fields{"declared_value": model.Number(100)}),
	}})
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestInvoiceVsDeclared_FormatIssue(t *testing.T) {
	t.Parallel()

	res, err := InvoiceVsDeclared(Input{Extractions: []model.Extraction{
		ext("inv", model.DocInvoice, model.Fields{"total_amount": model.String("N/A")}),
		ext("dec", "customs_declaration", model.Fields{"declared_value": model.Number(100)}),
	}})
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.False(t, res.Passed)
	assert.Equal(t, model.SeverityWarn, res.Severity)
	assert.Equal(t, "N/A", res.Evidence["invoice_total"])
}

func TestShipmentIDConsistency(t *testing.T) {
	t.Parallel()

	res, err := ShipmentIDConsistency(Input{Extractions: []model.Extraction{
		ext("inv", model.DocInvoice, model.Fields{"shipment_id": model.String("ABC")}),
		ext("bl", model.DocBillOfLading, model.Fields{"bl_number": model.String("ABC")}),
	}})
	require.NoError(t, err)
	assert.True(t, res.Passed)
	assert.Equal(t, model.SeverityInfo, res.Severity)
	assert.Equal(t, []string{"ABC"}, res.Evidence["shipment_ids"])

	res, err = ShipmentIDConsistency(Input{Extractions: []model.Extraction{
		ext("inv", model.DocInvoice, model.Fields{"shipment_id": model.String("CN-2024-12345")}),
		ext("bl", model.DocBillOfLading, model.Fields{"bl_number": model.String("CN-2024-99999")}),
		ext("dec", model.DocDeclaration, model.Fields{"shipment_id": model.String("CN-2024-12345")}),
	}})
	require.NoError(t, err)
	assert.False(t, res.Passed)
	assert.Equal(t, model.SeverityHigh, res.Severity)
	assert.Equal(t, []string{"CN-2024-12345", "CN-2024-99999"}, res.Evidence["distinct_ids"])

	sources, ok := res.Evidence["shipment_ids"].(map[string][]ShipmentSource)
	require.True(t, ok)
	assert.Len(t, sources["CN-2024-12345"], 2)
	assert.Equal(t, ShipmentSource{DocID: "bl", DocType: model.DocBillOfLading, Field: "bl_number"}, sources["CN-2024-99999"][0])

	res, err = ShipmentIDConsistency(Input{})
	require.NoError(t, err)
	assert.True(t, res.Passed)
}

func TestCurrencySanity(t *testing.T) {
	t.Parallel()

	res, err := CurrencySanity(Input{Extractions: []model.Extraction{
		ext("a", model.DocInvoice, model.Fields{"currency": model.String("usd")}),
		ext("b", model.DocDeclaration, model.Fields{"currency": model.String("USD")}),
	}})
	require.NoError(t, err)
	assert.True(t, res.Passed)
	assert.Equal(t, []string{"USD"}, res.Evidence["currencies"])
	assert.NotContains(t, res.Evidence, "unrecognized")

	res, err = CurrencySanity(Input{Extractions: []model.Extraction{
		ext("a", model.DocInvoice, model.Fields{"currency": model.String("USD")}),
		ext("b", model.DocDeclaration, model.Fields{"currency": model.String("EUR")}),
		ext("c", model.DocPackingList, model.Fields{"currency": model.String("Dollars")}),
	}})
	require.NoError(t, err)
	assert.False(t, res.Passed)
	assert.Equal(t, model.SeverityWarn, res.Severity)
	assert.Equal(t, []string{"DOLLARS", "EUR", "USD"}, res.Evidence["currencies"])
	assert.Equal(t, []string{"DOLLARS"}, res.Evidence["unrecognized"])
	assert.Equal(t, "Multiple currencies found: DOLLARS, EUR, USD - verify conversion is documented", res.Message)
}

func TestParseDate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"2024-03-10", "2024-03-10", true},
		{"2024-03-10T08:30:00Z", "2024-03-10", true},
		{"01/03/2024", "2024-03-01", true},
		{"12/31/2024", "2024-12-31", true},
		{"15-06-2024", "2024-06-15", true},
		{"March 3rd", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, ok := ParseDate(tt.in)
			assert.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.want, got.Format("2006-01-02"))
			}
		})
	}
}

func TestDateOrderSanity(t *testing.T) {
	t.Parallel()

	res, err := DateOrderSanity(Input{Extractions: []model.Extraction{
		ext("inv", model.DocInvoice, model.Fields{"invoice_date": model.String("2024-03-10")}),
		ext("bl", model.DocBillOfLading, model.Fields{"bl_date": model.String("01/03/2024")}),
	}})
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.False(t, res.Passed)
	assert.Equal(t, model.SeverityWarn, res.Severity)
	assert.Equal(t, []string{"invoice date (2024-03-10) is after bill_of_lading date (2024-03-01)"}, res.Evidence["issues"])

	res, err = DateOrderSanity(Input{Extractions: []model.Extraction{
		ext("inv", model.DocInvoice, model.Fields{"invoice_date": model.String("2024-03-01")}),
		ext("bl", model.DocBillOfLading, model.Fields{"bl_date": model.String("2024-03-05T10:00:00")}),
		ext("dec", model.DocDeclaration, model.Fields{"declaration_date": model.String("2024-03-20")}),
	}})
	require.NoError(t, err)
	assert.True(t, res.Passed)
	assert.Equal(t, model.SeverityInfo, res.Severity)
}

func TestDateOrderSanity_Abstains(t *testing.T) {
	t.Parallel()

	res, err := DateOrderSanity(Input{Extractions: []model.Extraction{
		ext("inv", model.DocInvoice, model.Fields{"invoice_date": model.String("2024-03-10")}),
		ext("pl", model.DocPackingList, model.Fields{"pl_date": model.String("2024-03-01")}),
		ext("bl", model.DocBillOfLading, model.Fields{"bl_date": model.String("not a date")}),
	}})
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestRequiredDocs(t *testing.T) {
	t.Parallel()

	cat, err := refdata.Default()
	require.NoError(t, err)
	rule := RequiredDocs(cat)

	res, err := rule(Input{ProcedureID: "import-regular", Extractions: []model.Extraction{
		ext("1", model.DocInvoice, nil),
		ext("2", model.DocBillOfLading, nil),
		ext("3", model.DocPackingList, nil),
		ext("4", "customs_declaration", nil),
	}})
	require.NoError(t, err)
	assert.True(t, res.Passed)
	assert.Equal(t, model.SeverityInfo, res.Severity)

	res, err = rule(Input{ProcedureID: "import-regular", Extractions: []model.Extraction{
		ext("1", model.DocInvoice, nil),
		ext("2", model.DocPackingList, nil),
	}})
	require.NoError(t, err)
	assert.False(t, res.Passed)
	assert.Equal(t, model.SeverityHigh, res.Severity)
	assert.Equal(t, "Missing required documents: Bill of lading, Customs declaration", res.Message)
	assert.Equal(t, []string{"Bill of lading", "Customs declaration"}, res.Evidence["missing"])
	assert.Equal(t, []string{"invoice", "packing_list"}, res.Evidence["found"])

	res, err = rule(Input{ProcedureID: "no-such-procedure"})
	require.NoError(t, err)
	assert.True(t, res.Passed)

	res, err = RequiredDocs(nil)(Input{ProcedureID: "import-regular"})
	require.NoError(t, err)
	assert.True(t, res.Passed)
}

func TestHSCodeConsistency(t *testing.T) {
	t.Parallel()

	res, err := HSCodeConsistency(Input{Extractions: []model.Extraction{ext("a", model.DocInvoice, nil)}})
	require.NoError(t, err)
	assert.Nil(t, res)

	res, err = HSCodeConsistency(Input{Extractions: []model.Extraction{
		ext("a", model.DocInvoice, model.Fields{"hs_codes": model.String("8471.30")}),
		ext("b", model.DocDeclaration, model.Fields{"hs_codes": model.List("8471.30")}),
	}})
	require.NoError(t, err)
	assert.True(t, res.Passed)
	assert.Equal(t, "HS code is consistent: 8471.30", res.Message)

	res, err = HSCodeConsistency(Input{Extractions: []model.Extraction{
		ext("a", model.DocInvoice, model.Fields{"hs_codes": model.List("8471.30", "8517.62")}),
	}})
	require.NoError(t, err)
	assert.True(t, res.Passed)
	assert.Equal(t, model.SeverityInfo, res.Severity)
	assert.Equal(t, []string{"8471.30", "8517.62"}, res.Evidence["hs_codes"])
}
