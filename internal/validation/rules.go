package validation

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"

	"github.com/sells-group/clearance-cli/internal/model"
)

var (
	mismatchThreshold = decimal.RequireFromString("0.10")
	hundred           = decimal.NewFromInt(100)
)

// InvoiceVsDeclared compares the first invoice total with the first
// declaration's declared value. It abstains unless both are present.
func InvoiceVsDeclared(in Input) (*model.ValidationResult, error) {
	invoice, invoiceDoc, ok := firstField(in.Extractions, model.DocInvoice, "total_amount")
	if !ok {
		return nil, nil
	}
	declared, declDoc, ok := firstField(in.Extractions, model.DocDeclaration, "declared_value")
	if !ok {
		return nil, nil
	}

	inv, errInv := parseAmount(invoice)
	decl, errDecl := parseAmount(declared)
	if errInv != nil || errDecl != nil {
		return &model.ValidationResult{
			RuleID:   model.RuleInvoiceVsDeclared,
			Severity: model.SeverityWarn,
			Message:  "Could not compare invoice total to declared value due to format issues",
			Evidence: model.Evidence{
				"invoice_total":  invoice.Raw(),
				"declared_value": declared.Raw(),
			},
		}, nil
	}

	diff := decimal.Zero
	if decl.IsPositive() {
		diff = inv.Sub(decl).Abs().Div(decl)
	}
	pct := diff.Mul(hundred)
	pctRounded, _ := pct.Round(2).Float64()

	if diff.GreaterThan(mismatchThreshold) {
		return &model.ValidationResult{
			RuleID:   model.RuleInvoiceVsDeclared,
			Severity: model.SeverityHigh,
			Message: fmt.Sprintf("Invoice total (%s) differs from declared value (%s) by %s%%",
				invoice.Text(), declared.Text(), pct.Round(1).String()),
			Evidence: model.Evidence{
				"invoice_total":      invoice.Raw(),
				"declared_value":     declared.Raw(),
				"difference_percent": pctRounded,
				"doc_ids":            []string{invoiceDoc, declDoc},
			},
		}, nil
	}
	return &model.ValidationResult{
		RuleID:   model.RuleInvoiceVsDeclared,
		Severity: model.SeverityInfo,
		Message:  "Invoice total matches declared value within threshold",
		Evidence: model.Evidence{
			"invoice_total":      invoice.Raw(),
			"declared_value":     declared.Raw(),
			"difference_percent": pctRounded,
		},
		Passed: true,
	}, nil
}

// firstField returns field from the first extraction of docType. Later
// extractions of the same type are not consulted even when the first one
// lacks the field.
func firstField(exts []model.Extraction, docType model.DocType, field string) (model.FieldValue, string, bool) {
	for _, ext := range exts {
		if canonical(ext.DocType) != docType {
			continue
		}
		v := ext.Fields.Get(field)
		if v.IsNull() {
			return v, ext.DocID, false
		}
		return v, ext.DocID, true
	}
	return model.FieldValue{}, "", false
}

// parseAmount coerces a monetary value, dropping thousands separators and a
// leading currency symbol.
func parseAmount(v model.FieldValue) (decimal.Decimal, error) {
	switch v.Kind {
	case model.KindNumber:
		return decimal.NewFromFloat(v.Num), nil
	case model.KindString:
		s := strings.TrimSpace(v.Str)
		s = strings.TrimLeft(s, "$€£¥ ")
		s = strings.ReplaceAll(s, ",", "")
		d, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.Zero, eris.Wrapf(err, "validation: parse amount %q", v.Str)
		}
		return d, nil
	default:
		return decimal.Zero, eris.Errorf("validation: amount has unsupported shape %q", v.Text())
	}
}

// ShipmentSource records where a shipment identifier was seen.
type ShipmentSource struct {
	DocID   string        `json:"doc_id"`
	DocType model.DocType `json:"doc_type"`
	Field   string        `json:"field"`
}

var shipmentFields = []string{"shipment_id", "bl_number", "pl_number"}

// ShipmentIDConsistency requires every shipment reference across the case
// to carry the same value.
func ShipmentIDConsistency(in Input) (*model.ValidationResult, error) {
	sources := make(map[string][]ShipmentSource)
	var order []string

	for _, ext := range in.Extractions {
		for _, field := range shipmentFields {
			v := ext.Fields.Get(field)
			if !v.Truthy() {
				continue
			}
			id := v.Text()
			if _, seen := sources[id]; !seen {
				order = append(order, id)
			}
			sources[id] = append(sources[id], ShipmentSource{DocID: ext.DocID, DocType: ext.DocType, Field: field})
		}
	}

	if len(order) <= 1 {
		return &model.ValidationResult{
			RuleID:   model.RuleShipmentIDs,
			Severity: model.SeverityInfo,
			Message:  "Shipment IDs are consistent across documents",
			Evidence: model.Evidence{"shipment_ids": nonNil(order)},
			Passed:   true,
		}, nil
	}
	return &model.ValidationResult{
		RuleID:   model.RuleShipmentIDs,
		Severity: model.SeverityHigh,
		Message:  "Multiple different shipment IDs found across documents: " + strings.Join(order, ", "),
		Evidence: model.Evidence{
			"shipment_ids": sources,
			"distinct_ids": order,
		},
	}, nil
}

// CurrencySanity flags cases whose documents quote more than one currency.
// Codes that are not ISO 4217 are listed in the evidence.
func CurrencySanity(in Input) (*model.ValidationResult, error) {
	seen := make(map[string]bool)
	var currencies []string
	for _, ext := range in.Extractions {
		v := ext.Fields.Get("currency")
		if !v.Truthy() {
			continue
		}
		code := strings.ToUpper(strings.TrimSpace(v.Text()))
		if code == "" || seen[code] {
			continue
		}
		seen[code] = true
		currencies = append(currencies, code)
	}
	sort.Strings(currencies)

	evidence := model.Evidence{"currencies": nonNil(currencies)}
	var unknown []string
	for _, code := range currencies {
		if _, err := currency.ParseISO(code); err != nil {
			unknown = append(unknown, code)
		}
	}
	if len(unknown) > 0 {
		evidence["unrecognized"] = unknown
	}

	if len(currencies) <= 1 {
		return &model.ValidationResult{
			RuleID:   model.RuleCurrencySanity,
			Severity: model.SeverityInfo,
			Message:  "Currency is consistent across documents",
			Evidence: evidence,
			Passed:   true,
		}, nil
	}
	return &model.ValidationResult{
		RuleID:   model.RuleCurrencySanity,
		Severity: model.SeverityWarn,
		Message:  fmt.Sprintf("Multiple currencies found: %s - verify conversion is documented", strings.Join(currencies, ", ")),
		Evidence: evidence,
	}, nil
}

var (
	dateFields = []string{"invoice_date", "bl_date", "pl_date", "declaration_date"}

	// Tried in order against the first ten characters, so timestamps are
	// read by their date part.
	dateLayouts = []string{
		"2006-01-02",
		"02/01/2006",
		"01/02/2006",
		"02-01-2006",
	}

	dateSequence = []model.DocType{model.DocInvoice, model.DocBillOfLading, model.DocDeclaration}
)

// DatedDoc is the date found for one sequence bucket.
type DatedDoc struct {
	Date  string `json:"date"`
	DocID string `json:"doc_id"`
	Field string `json:"field"`

	t time.Time
}

// ParseDate reads s with the fixed layout list. ok is false when no layout
// matches.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if len(s) > 10 {
		s = s[:10]
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// DateOrderSanity checks that the invoice predates the bill of lading,
// which predates the declaration. It abstains with fewer than two dated
// buckets.
func DateOrderSanity(in Input) (*model.ValidationResult, error) {
	dates := make(map[model.DocType]DatedDoc)
	for _, ext := range in.Extractions {
		bucket := canonical(ext.DocType)
		if !inSequence(bucket) {
			continue
		}
		if _, have := dates[bucket]; have {
			continue
		}
		for _, field := range dateFields {
			v := ext.Fields.Get(field)
			if v.Kind != model.KindString || v.Str == "" {
				continue
			}
			t, ok := ParseDate(v.Str)
			if !ok {
				continue
			}
			dates[bucket] = DatedDoc{Date: t.Format("2006-01-02"), DocID: ext.DocID, Field: field, t: t}
			break
		}
	}
	if len(dates) < 2 {
		return nil, nil
	}

	var issues []string
	for i := 0; i < len(dateSequence)-1; i++ {
		first, okA := dates[dateSequence[i]]
		second, okB := dates[dateSequence[i+1]]
		if !okA || !okB {
			continue
		}
		if first.t.After(second.t) {
			issues = append(issues, fmt.Sprintf("%s date (%s) is after %s date (%s)",
				dateSequence[i], first.Date, dateSequence[i+1], second.Date))
		}
	}

	evidence := model.Evidence{"dates": dates}
	if len(issues) > 0 {
		evidence["issues"] = issues
		return &model.ValidationResult{
			RuleID:   model.RuleDateOrder,
			Severity: model.SeverityWarn,
			Message:  "Document dates may be out of logical sequence: " + strings.Join(issues, "; "),
			Evidence: evidence,
		}, nil
	}
	return &model.ValidationResult{
		RuleID:   model.RuleDateOrder,
		Severity: model.SeverityInfo,
		Message:  "Document dates follow logical sequence",
		Evidence: evidence,
		Passed:   true,
	}, nil
}

func inSequence(dt model.DocType) bool {
	for _, s := range dateSequence {
		if s == dt {
			return true
		}
	}
	return false
}

// RequiredDocs builds the rule that checks the case holds every document
// its procedure requires. Unknown procedures have no requirements.
func RequiredDocs(docs DocRequirements) func(Input) (*model.ValidationResult, error) {
	return func(in Input) (*model.ValidationResult, error) {
		found := make(map[model.DocType]bool)
		for _, ext := range in.Extractions {
			found[canonical(ext.DocType)] = true
		}
		foundList := make([]string, 0, len(found))
		for dt := range found {
			foundList = append(foundList, string(dt))
		}
		sort.Strings(foundList)

		var required []string
		var missing []string
		if docs != nil {
			for _, req := range docs.RequiredDocs(in.ProcedureID) {
				required = append(required, string(req.DocType))
				if !found[req.DocType] {
					missing = append(missing, req.Description)
				}
			}
		}

		if len(missing) > 0 {
			return &model.ValidationResult{
				RuleID:   model.RuleRequiredDocs,
				Severity: model.SeverityHigh,
				Message:  "Missing required documents: " + strings.Join(missing, ", "),
				Evidence: model.Evidence{
					"missing":  missing,
					"found":    foundList,
					"required": required,
				},
			}, nil
		}
		return &model.ValidationResult{
			RuleID:   model.RuleRequiredDocs,
			Severity: model.SeverityInfo,
			Message:  "All required documents are present",
			Evidence: model.Evidence{"found": foundList},
			Passed:   true,
		}, nil
	}
}

// HSCodes returns the distinct HS codes across exts in first-seen order.
// The hs_codes field may hold one code or a list.
func HSCodes(exts []model.Extraction) []string {
	seen := make(map[string]bool)
	var codes []string
	for _, ext := range exts {
		for _, code := range ext.Fields.Get("hs_codes").Strings() {
			code = strings.TrimSpace(code)
			if code == "" || seen[code] {
				continue
			}
			seen[code] = true
			codes = append(codes, code)
		}
	}
	return codes
}

// HSCodeConsistency reports the HS codes in play. Several codes are noted
// but never fail the rule.
func HSCodeConsistency(in Input) (*model.ValidationResult, error) {
	codes := HSCodes(in.Extractions)
	if len(codes) == 0 {
		return nil, nil
	}
	msg := "HS code is consistent: " + codes[0]
	if len(codes) > 1 {
		msg = "Multiple HS codes found: " + strings.Join(codes, ", ")
	}
	return &model.ValidationResult{
		RuleID:   model.RuleHSCodeConsistency,
		Severity: model.SeverityInfo,
		Message:  msg,
		Evidence: model.Evidence{"hs_codes": codes},
		Passed:   true,
	}, nil
}

func canonical(dt model.DocType) model.DocType {
	parsed, _ := model.ParseDocType(string(dt))
	return parsed
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
