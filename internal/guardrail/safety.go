package guardrail

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// DefaultMaxLength is the longest text CheckSafety accepts.
const DefaultMaxLength = 50000

var dangerousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`),
	regexp.MustCompile(`(?i)javascript:`),
	regexp.MustCompile(`(?i)vbscript:`),
	regexp.MustCompile(`(?i)\bdata:[\w.+-]+/[\w.+-]+`),
	regexp.MustCompile(`(?i)\bon\w+\s*=`),
}

// SanitizeOutput strips script blocks, script protocols, data URIs and
// inline event handlers from output. When allowed is non-empty only the
// segments matching one of its patterns are kept, joined by newlines.
func SanitizeOutput(output string, allowed ...*regexp.Regexp) string {
	out := output
	for _, re := range dangerousPatterns {
		out = re.ReplaceAllString(out, "")
	}
	if len(allowed) == 0 {
		return out
	}

	type span struct{ start, end int }
	var spans []span
	for _, re := range allowed {
		for _, loc := range re.FindAllStringIndex(out, -1) {
			spans = append(spans, span{loc[0], loc[1]})
		}
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })

	kept := make([]string, 0, len(spans))
	last := -1
	for _, s := range spans {
		if s.start < last {
			continue
		}
		kept = append(kept, out[s.start:s.end])
		last = s.end
	}
	return strings.Join(kept, "\n")
}

var entityRe = regexp.MustCompile(`\b[A-Z][a-z]+(?:\s+[A-Z][a-z]+)+\b`)

// CheckForHallucinations compares output with the source data given to the
// model and warns about numbers and capitalized multi-word names that only
// appear in the output. Either argument may be a string or any value that
// marshals to JSON.
func CheckForHallucinations(output, source any) []string {
	outText := asText(output)
	srcText := asText(source)

	srcNums := NewNumberSet()
	for _, n := range ExtractNumbers(srcText) {
		srcNums.Add(n.Value)
	}
	var novelNums []string
	seenNum := make(map[float64]bool)
	for _, n := range ExtractNumbers(outText) {
		if srcNums.Contains(n.Value) || seenNum[n.Value] {
			continue
		}
		seenNum[n.Value] = true
		novelNums = append(novelNums, formatNumber(n.Value))
	}

	srcLower := strings.ToLower(srcText)
	var novelEntities []string
	seenEntity := make(map[string]bool)
	for _, e := range entityRe.FindAllString(outText, -1) {
		if seenEntity[e] || strings.Contains(srcLower, strings.ToLower(e)) {
			continue
		}
		seenEntity[e] = true
		novelEntities = append(novelEntities, e)
	}
	sort.Strings(novelEntities)

	var warnings []string
	if len(novelNums) > 0 {
		warnings = append(warnings, fmt.Sprintf("Numbers in output not found in source: [%s]", strings.Join(novelNums, ", ")))
	}
	if len(novelEntities) > 0 {
		warnings = append(warnings, fmt.Sprintf("Entities in output not found in source: [%s]", strings.Join(novelEntities, ", ")))
	}
	return warnings
}

func asText(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

var (
	blockedRe = regexp.MustCompile(`(?i)ignore\s+(?:all\s+)?(?:previous\s+)?instructions` +
		`|override\s+safety` +
		`|bypass\s+security` +
		`|execute\s+code` +
		`|run\s+command` +
		`|system\s*:\s*\S*\s*<<<`)
	emailRe = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
	ssnRe   = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)
	cardRe  = regexp.MustCompile(`\b\d{4}[-\s]?\d{4}[-\s]?\d{4}[-\s]?\d{4}\b`)
)

// SafetyValidator screens free text for prompt-injection phrasing, PII and
// runaway length.
type SafetyValidator struct {
	maxLength int
}

// NewSafetyValidator creates a validator. A non-positive maxLength selects
// DefaultMaxLength.
func NewSafetyValidator(maxLength int) *SafetyValidator {
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}
	return &SafetyValidator{maxLength: maxLength}
}

// CheckSafety returns false with a list of violations when text contains
// blocked phrasing, PII-shaped substrings or exceeds the length ceiling.
// At most three blocked matches are quoted.
func (s *SafetyValidator) CheckSafety(text string) (bool, []string) {
	var violations []string

	if blocked := blockedRe.FindAllString(text, 3); len(blocked) > 0 {
		violations = append(violations, "Blocked content patterns detected")
		violations = append(violations, blocked...)
	}
	if n := s.countPII(text); n > 0 {
		violations = append(violations, fmt.Sprintf("Potential PII detected: %d instances", n))
	}
	if len(text) > s.maxLength {
		violations = append(violations, "Output exceeds maximum length")
	}
	return len(violations) == 0, violations
}

// DetectPromptInjection reports whether text contains blocked phrasing.
func (s *SafetyValidator) DetectPromptInjection(text string) bool {
	return blockedRe.MatchString(text)
}

func (s *SafetyValidator) countPII(text string) int {
	return len(emailRe.FindAllStringIndex(text, -1)) +
		len(ssnRe.FindAllStringIndex(text, -1)) +
		len(cardRe.FindAllStringIndex(text, -1))
}

// RedactPII masks emails, SSN-like and card-like numbers and returns the
// redacted text with the number of substitutions made.
func (s *SafetyValidator) RedactPII(text string) (string, int) {
	count := 0
	replace := func(re *regexp.Regexp, mask string, in string) string {
		return re.ReplaceAllStringFunc(in, func(string) string {
			count++
			return mask
		})
	}
	out := replace(emailRe, "[EMAIL_REDACTED]", text)
	out = replace(ssnRe, "***-**-****", out)
	out = replace(cardRe, "****-****-****-****", out)
	return out, count
}
