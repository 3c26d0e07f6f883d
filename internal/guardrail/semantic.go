package guardrail

import (
	"slices"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/clearance-cli/internal/model"
)

// disclaimerKeywords are words an explanation summary is expected to carry
// so the reader knows the output is advisory.
var disclaimerKeywords = []string{"advisory", "review", "qualified", "responsibility"}

func requireKeys(out map[string]any, keys ...string) error {
	for _, k := range keys {
		if _, ok := out[k]; !ok {
			return eris.New("Missing required field: " + k)
		}
	}
	return nil
}

func checkConfidence(out map[string]any) error {
	raw, ok := out["confidence"]
	if !ok || raw == nil {
		return nil
	}
	c, ok := raw.(float64)
	if !ok {
		return eris.Errorf("Confidence must be a number, got %v", raw)
	}
	if c < 0 || c > 1 {
		return eris.Errorf("Confidence must be between 0 and 1, got %v", c)
	}
	return nil
}

// ValidateProcedureClassification checks an intake classification payload.
// A non-null procedure_id must be one of validIDs.
func ValidateProcedureClassification(out map[string]any, validIDs []string) error {
	if err := requireKeys(out, "procedure_id", "confidence", "rationale"); err != nil {
		return err
	}
	if raw := out["procedure_id"]; raw != nil {
		id, ok := raw.(string)
		if !ok || !slices.Contains(validIDs, id) {
			return eris.Errorf("Invalid procedure_id: %v", raw)
		}
	}
	return checkConfidence(out)
}

// ValidateDocumentClassification checks a document-type guess.
func ValidateDocumentClassification(out map[string]any) error {
	if err := requireKeys(out, "doc_type", "confidence"); err != nil {
		return err
	}
	if _, ok := out["doc_type"].(string); !ok {
		return eris.New("doc_type must be a string")
	}
	return checkConfidence(out)
}

// ValidateExtractionOutput checks an extraction payload for docType.
func ValidateExtractionOutput(out map[string]any, docType model.DocType) error {
	if ExtractionSchema(docType) == "" {
		return eris.Errorf("Unsupported document type: %s", docType)
	}
	if err := requireKeys(out, "fields", "confidence"); err != nil {
		return err
	}
	if _, ok := out["fields"].(map[string]any); !ok {
		return eris.New("Fields must be a dictionary")
	}
	if err := checkConfidence(out); err != nil {
		return err
	}
	for _, k := range []string{"low_confidence_fields", "missing_fields"} {
		raw, ok := out[k]
		if !ok || raw == nil {
			continue
		}
		if _, isList := raw.([]any); !isList {
			return eris.New(k + " must be a list")
		}
	}
	return nil
}

// ValidateRiskExplanation checks an explanation payload. A summary without
// any disclaimer keyword is logged but accepted.
func ValidateRiskExplanation(out map[string]any) error {
	if err := requireKeys(out, "executive_summary", "explanation_bullets", "recommended_next_actions"); err != nil {
		return err
	}
	for _, k := range []string{"explanation_bullets", "recommended_next_actions"} {
		if _, ok := out[k].([]any); !ok {
			return eris.New(k + " must be a list")
		}
	}
	summary, ok := out["executive_summary"].(string)
	if !ok || len(summary) < 10 {
		return eris.New("Executive summary must be a string with at least 10 characters")
	}

	lower := strings.ToLower(summary)
	for _, kw := range disclaimerKeywords {
		if strings.Contains(lower, kw) {
			return nil
		}
	}
	zap.L().Warn("guardrail: explanation summary lacks disclaimer language",
		zap.String("summary", truncate(summary, 120)),
	)
	return nil
}

// truncate cuts s to at most n runes, marking the cut with "...".
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
