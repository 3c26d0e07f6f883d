// Package guardrail constrains generated output before the pipeline trusts
// it: number audits, schema validation, semantic checks and safety filters.
package guardrail

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/clearance-cli/internal/model"
)

// DefaultTolerance is the relative tolerance used when comparing numbers.
const DefaultTolerance = 0.01

// Number contexts reported by ExtractNumbers.
const (
	ContextNumber = "number"
	ContextYear   = "year"
)

// alwaysAllowed are small constants and level thresholds that may appear in
// any output.
var alwaysAllowed = []float64{0, 1, 2, 3, 4, 5, 10, 25, 50, 75, 100}

var (
	numberRe  = regexp.MustCompile(`[$€£]?(\d{1,3}(?:,\d{3})+(?:\.\d+)?|\d+(?:\.\d+)?)%?`)
	yearRe    = regexp.MustCompile(`\b(\d{4})-\d{2}-\d{2}\b`)
	percentRe = regexp.MustCompile(`(^|[^\d.])(-?\d+(?:\.\d+)?)\s*%`)
)

// Number is a numeric literal found in text.
type Number struct {
	Value   float64
	Context string
}

// NumberSet is a set of allowed numeric values.
type NumberSet map[float64]struct{}

// NewNumberSet builds a set from vals.
func NewNumberSet(vals ...float64) NumberSet {
	s := make(NumberSet, len(vals))
	s.Add(vals...)
	return s
}

// Add inserts vals into the set.
func (s NumberSet) Add(vals ...float64) {
	for _, v := range vals {
		s[v] = struct{}{}
	}
}

// Contains reports exact membership.
func (s NumberSet) Contains(v float64) bool {
	_, ok := s[v]
	return ok
}

// Discrepancy is a number in output that could not be traced to source data.
type Discrepancy struct {
	Number  float64 `json:"number"`
	Context string  `json:"context"`
	Type    string  `json:"type"`
}

// PercentFinding flags a suspicious percentage literal.
type PercentFinding struct {
	Value   float64 `json:"value"`
	Issue   string  `json:"issue"`
	Message string  `json:"message"`
}

// ExtractNumbers returns every distinct (value, context) pair in text,
// ordered by value. Thousands separators are accepted; signs are not.
func ExtractNumbers(text string) []Number {
	seen := make(map[Number]struct{})
	for _, m := range numberRe.FindAllStringSubmatch(text, -1) {
		if v, err := parseNumber(m[1]); err == nil {
			seen[Number{Value: v, Context: ContextNumber}] = struct{}{}
		}
	}
	for _, m := range yearRe.FindAllStringSubmatch(text, -1) {
		if v, err := parseNumber(m[1]); err == nil {
			seen[Number{Value: v, Context: ContextYear}] = struct{}{}
		}
	}

	out := make([]Number, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Value != out[j].Value {
			return out[i].Value < out[j].Value
		}
		return out[i].Context < out[j].Context
	})
	return out
}

func parseNumber(s string) (float64, error) {
	return strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// NumberChecker verifies that numbers in generated text are grounded in
// source data.
type NumberChecker struct {
	tolerance float64
}

// NewNumberChecker creates a checker. A non-positive tolerance selects
// DefaultTolerance.
func NewNumberChecker(tolerance float64) *NumberChecker {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &NumberChecker{tolerance: tolerance}
}

// Tolerance returns the relative tolerance in use.
func (c *NumberChecker) Tolerance() float64 { return c.tolerance }

func (c *NumberChecker) close(a, b float64) bool {
	if a == b {
		return true
	}
	return math.Abs(a-b) <= math.Max(math.Abs(a), math.Abs(b))*c.tolerance
}

func (c *NumberChecker) inSet(v float64, set NumberSet) bool {
	if set.Contains(v) {
		return true
	}
	for allowed := range set {
		if c.close(v, allowed) {
			return true
		}
	}
	return false
}

func (c *NumberChecker) allowed(v float64, set NumberSet, ctx map[string]any) bool {
	if c.inSet(v, set) {
		return true
	}
	for _, cv := range contextNumbers(ctx) {
		if c.close(v, cv) {
			return true
		}
	}
	for _, a := range alwaysAllowed {
		if v == a {
			return true
		}
	}
	return false
}

// contextNumbers collects every numeric value nested anywhere in ctx.
func contextNumbers(ctx map[string]any) []float64 {
	var out []float64
	var walk func(v any)
	walk = func(v any) {
		switch t := v.(type) {
		case float64:
			out = append(out, t)
		case float32:
			out = append(out, float64(t))
		case int:
			out = append(out, float64(t))
		case int64:
			out = append(out, float64(t))
		case model.FieldValue:
			if t.Kind == model.KindNumber {
				out = append(out, t.Num)
			}
		case map[string]any:
			for _, inner := range t {
				walk(inner)
			}
		case []any:
			for _, inner := range t {
				walk(inner)
			}
		case []float64:
			out = append(out, t...)
		}
	}
	for _, v := range ctx {
		walk(v)
	}
	return out
}

// VerifyNumbers checks every number in output against allowed, any numeric
// value nested in allowedContext, and the always-allowed constants. It
// returns true when no discrepancies were found.
func (c *NumberChecker) VerifyNumbers(output string, allowed NumberSet, allowedContext map[string]any) (bool, []Discrepancy) {
	var out []Discrepancy
	for _, n := range ExtractNumbers(output) {
		if c.allowed(n.Value, allowed, allowedContext) {
			continue
		}
		out = append(out, Discrepancy{Number: n.Value, Context: n.Context, Type: "disallowed_number"})
		zap.L().Debug("guardrail: disallowed number in output",
			zap.Float64("number", n.Value),
			zap.String("context", n.Context),
		)
	}
	return len(out) == 0, out
}

// RiskAllowedNumbers builds the set of numbers an explanation of result may
// cite: the score, every factor's points and numeric input, numbers quoted
// in factor descriptions and string inputs, and the level thresholds.
func RiskAllowedNumbers(result model.RiskScoreResult) NumberSet {
	set := NewNumberSet(float64(result.Score), 0, 25, 50, 75, 100)
	th := result.Thresholds
	set.Add(float64(th.Low), float64(th.Medium), float64(th.High), float64(th.Critical))
	for _, f := range result.Factors {
		set.Add(float64(f.Points))
		switch f.InputValue.Kind {
		case model.KindNumber:
			set.Add(f.InputValue.Num)
		case model.KindString, model.KindList:
			for _, n := range ExtractNumbers(f.InputValue.Text()) {
				set.Add(n.Value)
			}
		}
		for _, n := range ExtractNumbers(f.Description) {
			set.Add(n.Value)
		}
	}
	return set
}

// ExplanationText flattens an explanation into the text the audit scans.
func ExplanationText(e model.Explanation) string {
	parts := make([]string, 0, 1+len(e.Bullets)+len(e.RecommendedNextActions)+len(e.RiskReductionActions))
	parts = append(parts, e.ExecutiveSummary)
	parts = append(parts, e.Bullets...)
	parts = append(parts, e.RecommendedNextActions...)
	parts = append(parts, e.RiskReductionActions...)
	return strings.Join(parts, "\n")
}

// VerifyRiskScoreNumbers audits an explanation against the score it
// explains.
func (c *NumberChecker) VerifyRiskScoreNumbers(e model.Explanation, result model.RiskScoreResult) (bool, []string) {
	ok, discrepancies := c.VerifyNumbers(ExplanationText(e), RiskAllowedNumbers(result), nil)
	issues := make([]string, 0, len(discrepancies))
	for _, d := range discrepancies {
		issues = append(issues, fmt.Sprintf("Number %s (%s) not found in source data", formatNumber(d.Number), d.Context))
	}
	return ok, issues
}

// VerifyExtractionNumbers checks that every numeric field value appears in
// the OCR text, exactly or within tolerance. Non-numeric values are skipped.
func (c *NumberChecker) VerifyExtractionNumbers(ext model.Extraction, ocrText string) (bool, []string) {
	source := NewNumberSet()
	for _, n := range ExtractNumbers(ocrText) {
		source.Add(n.Value)
	}

	names := make([]string, 0, len(ext.Fields))
	for name := range ext.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	var issues []string
	for _, name := range names {
		v := ext.Fields[name]
		if v.Kind != model.KindNumber {
			continue
		}
		if !c.inSet(v.Num, source) {
			issues = append(issues, fmt.Sprintf("Field %s: value %s not found in OCR text", name, formatNumber(v.Num)))
		}
	}
	return len(issues) == 0, issues
}

// SanitizeDisallowedNumbers replaces each number token in text whose value
// is not in allowed with replacement. Tokens are matched whole, so a longer
// literal is never partially rewritten by a shorter one.
func SanitizeDisallowedNumbers(text string, allowed NumberSet, replacement string) string {
	if replacement == "" {
		replacement = "[VALUE]"
	}
	return numberRe.ReplaceAllStringFunc(text, func(tok string) string {
		m := numberRe.FindStringSubmatch(tok)
		v, err := parseNumber(m[1])
		if err != nil || allowed.Contains(v) {
			return tok
		}
		return replacement
	})
}

// CheckPercentageValues flags negative, over-100 and zero percentages.
func CheckPercentageValues(text string) []PercentFinding {
	var out []PercentFinding
	for _, m := range percentRe.FindAllStringSubmatch(text, -1) {
		v, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			continue
		}
		lit := formatNumber(v)
		switch {
		case v < 0:
			out = append(out, PercentFinding{Value: v, Issue: "negative_percentage", Message: "Negative percentage: " + lit + "%"})
		case v > 100:
			out = append(out, PercentFinding{Value: v, Issue: "excessive_percentage", Message: "Percentage over 100%: " + lit + "%"})
		case v == 0:
			out = append(out, PercentFinding{Value: v, Issue: "zero_percentage", Message: "Zero percentage may indicate missing data: " + lit + "%"})
		}
	}
	return out
}
