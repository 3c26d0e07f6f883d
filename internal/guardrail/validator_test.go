package guardrail

import (
	"errors"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/clearance-cli/internal/model"
)

func newValidator(t *testing.T) *OutputValidator {
	t.Helper()
	v, err := NewOutputValidator(DefaultSchemas())
	require.NoError(t, err)
	return v
}

func TestNewOutputValidator_Catalogue(t *testing.T) {
	t.Parallel()

	v := newValidator(t)
	assert.Equal(t, []string{
		SchemaClassification,
		SchemaBillOfLading,
		SchemaDeclaration,
		SchemaInvoice,
		SchemaPackingList,
		SchemaIntake,
		SchemaTriage,
	}, v.Names())
	for _, dt := range []model.DocType{model.DocInvoice, model.DocBillOfLading, model.DocPackingList, model.DocDeclaration} {
		assert.True(t, v.Has(ExtractionSchema(dt)), dt)
	}
	assert.Empty(t, ExtractionSchema(model.DocOther))
}

func TestNewOutputValidator_BadSchema(t *testing.T) {
	t.Parallel()

	_, err := NewOutputValidator(fstest.MapFS{
		"broken.json": {Data: []byte(`{"type": 12}`)},
	})
	assert.Error(t, err)
}

func TestValidateJSON(t *testing.T) {
	t.Parallel()

	v := newValidator(t)

	_, err := v.ValidateJSON("not json", "")
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Contains(t, err.Error(), "Invalid JSON: ")

	data, err := v.ValidateJSON(`{"a": 1}`, "")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": float64(1)}, data)

	data, err = v.ValidateJSON(`{"a": 1}`, "no_such_schema")
	require.NoError(t, err)
	assert.NotNil(t, data)
}

func TestValidateJSON_SchemaErrors(t *testing.T) {
	t.Parallel()

	v := newValidator(t)

	tests := []struct {
		name   string
		output string
		schema string
		path   string
	}{
		{"missing required at root", `{"executive_summary": "Short"}`, SchemaTriage, "root"},
		{"confidence out of range", `{"fields": {"total_amount": 100}, "confidence": 1.5}`, SchemaInvoice, "confidence"},
		{"nested field type", `{"fields": {"invoice_number": 5}, "confidence": 0.9}`, SchemaInvoice, "fields -> invoice_number"},
		{"bad procedure type", `{"procedure_id": 7, "confidence": 0.5, "rationale": "x"}`, SchemaIntake, "procedure_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			data, err := v.ValidateJSON(tt.output, tt.schema)
			var serr *SchemaError
			require.True(t, errors.As(err, &serr), "got %v", err)
			assert.Equal(t, tt.path, serr.Path)
			assert.Contains(t, err.Error(), "Schema validation failed at "+tt.path+": ")
			assert.NotNil(t, data)
		})
	}
}

func TestValidateJSON_Valid(t *testing.T) {
	t.Parallel()

	v := newValidator(t)
	_, err := v.ValidateJSON(`{
		"fields": {"invoice_number": "INV-1", "total_amount": "50,000.00", "hs_codes": ["8471.30"], "currency": null},
		"confidence": 0.92,
		"low_confidence_fields": [],
		"missing_fields": ["buyer_name"]
	}`, SchemaInvoice)
	assert.NoError(t, err)

	_, err = v.ValidateJSON(`{"procedure_id": null, "confidence": 0, "rationale": "unclear"}`, SchemaIntake)
	assert.NoError(t, err)
}

func TestDescribeAndRequiredKeys(t *testing.T) {
	t.Parallel()

	v := newValidator(t)
	desc := v.Describe(SchemaTriage)
	assert.Contains(t, desc, "- executive_summary: string\n")
	assert.Contains(t, desc, "- explanation_bullets: array\n")
	assert.Empty(t, v.Describe("missing"))

	assert.Equal(t, []string{"executive_summary", "explanation_bullets", "recommended_next_actions"}, v.RequiredKeys(SchemaTriage))
	assert.Contains(t, v.Describe(SchemaIntake), "- procedure_id: string|null\n")
	assert.Nil(t, v.RequiredKeys("missing"))
}
