package pipeline

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/clearance-cli/internal/guardrail"
	"github.com/sells-group/clearance-cli/internal/llm"
	"github.com/sells-group/clearance-cli/internal/model"
)

// AuditMarker is appended to low_confidence_fields when extracted numbers
// cannot be found in the OCR text.
const AuditMarker = "number_audit_mismatch"

const (
	rawTextChars      = 1000
	rawTextConfidence = 0.5
)

// Extractor classifies documents and pulls structured fields from their OCR
// text.
type Extractor struct {
	r   runner
	now func() time.Time
}

// NewExtractor returns an extraction chain.
func NewExtractor(deps Deps) *Extractor {
	return &Extractor{r: runner{Deps: deps}, now: time.Now}
}

// ClassifyDocument guesses a document's type from its filename and the start
// of its OCR text. Unparseable output classifies as other with zero
// confidence.
func (e *Extractor) ClassifyDocument(ctx context.Context, filename, ocrText string) (model.DocumentClassification, error) {
	fallback := model.DocumentClassification{DocType: model.DocOther, Rationale: "Error parsing response"}

	raw, err := e.r.generate(ctx, ChainClassify, llm.Request{
		System:      classifyDocumentPrompt,
		Messages:    llm.UserPrompt(fmt.Sprintf(classifyDocumentUser, filename, truncate(ocrText, e.r.Limits.ClassificationChars))),
		Model:       e.r.ReasonerModel,
		Temperature: classifyTemperature,
		JSONMode:    true,
	})
	if err != nil {
		return fallback, eris.Wrap(err, "pipeline: classify document")
	}

	out, ok := e.r.parse(ctx, ChainClassify, raw, guardrail.SchemaClassification)
	if ok {
		if err := guardrail.ValidateDocumentClassification(out); err != nil {
			zap.L().Warn("pipeline: classification rejected", zap.Error(err))
			ok = false
		}
	}
	if !ok {
		e.r.fallback(ChainClassify, "unparseable classification")
		return fallback, nil
	}

	dt, known := model.ParseDocType(out["doc_type"].(string))
	if !known {
		zap.L().Debug("pipeline: unknown document type", zap.Any("doc_type", out["doc_type"]))
	}
	rationale, _ := out["rationale"].(string)
	return model.DocumentClassification{
		DocType:    dt,
		Confidence: floatValue(out["confidence"]),
		Rationale:  rationale,
	}, nil
}

// Extract pulls fields for docType from ocrText. Documents of type other
// keep their leading raw text without a model call. Output that cannot be
// repaired yields empty fields with zero confidence. A transport failure is
// returned as an error.
func (e *Extractor) Extract(ctx context.Context, docID string, docType model.DocType, ocrText string) (model.Extraction, error) {
	ext := model.Extraction{
		DocID:               docID,
		DocType:             docType,
		Fields:              model.Fields{},
		LowConfidenceFields: []string{},
		MissingFields:       []string{},
		ExtractedAt:         e.now().UTC(),
	}

	system, ok := extractionPrompts[docType]
	if !ok {
		ext.DocType = model.DocOther
		ext.Fields["raw_text"] = model.String(truncate(ocrText, rawTextChars))
		ext.Confidence = rawTextConfidence
		return ext, nil
	}

	raw, err := e.r.generate(ctx, ChainExtract, llm.Request{
		System:      system,
		Messages:    llm.UserPrompt(truncate(ocrText, e.r.Limits.ExtractionChars)),
		Model:       e.r.ReasonerModel,
		Temperature: extractTemperature,
		JSONMode:    true,
	})
	if err != nil {
		return ext, eris.Wrapf(err, "pipeline: extract %s", docID)
	}

	out, ok := e.r.parse(ctx, ChainExtract, raw, guardrail.ExtractionSchema(docType))
	if ok {
		if err := guardrail.ValidateExtractionOutput(out, docType); err != nil {
			zap.L().Warn("pipeline: extraction rejected", zap.String("doc_id", docID), zap.Error(err))
			ok = false
		}
	}
	if !ok {
		e.r.fallback(ChainExtract, "unparseable extraction")
		return ext, nil
	}

	fields, _ := out["fields"].(map[string]any)
	ext.Fields = model.FieldsFromMap(fields)
	ext.Confidence = floatValue(out["confidence"])
	ext.LowConfidenceFields = stringSlice(out["low_confidence_fields"])
	ext.MissingFields = stringSlice(out["missing_fields"])

	e.audit(&ext, ocrText)
	return ext, nil
}

// audit caps confidence when extracted numbers are not in the OCR text. The
// extraction itself is kept.
func (e *Extractor) audit(ext *model.Extraction, ocrText string) {
	ok, issues := e.r.Numbers.VerifyExtractionNumbers(*ext, ocrText)
	if ok {
		return
	}
	e.r.Metrics.RecordAuditFailure(ChainExtract)
	zap.L().Warn("pipeline: extraction number audit failed",
		zap.String("doc_id", ext.DocID),
		zap.Strings("issues", issues),
	)
	if !slices.Contains(ext.LowConfidenceFields, AuditMarker) {
		ext.LowConfidenceFields = append(ext.LowConfidenceFields, AuditMarker)
	}
	ext.Confidence = min(ext.Confidence, e.r.Limits.AuditConfidenceCap)
}

// ExtractAll extracts every document concurrently, classifying those
// without a type first. Documents without an id get a fresh one. Result
// order follows completion, not input order.
func (e *Extractor) ExtractAll(ctx context.Context, docs []model.Document, concurrency int) ([]model.Extraction, error) {
	var (
		mu  sync.Mutex
		out = make([]model.Extraction, 0, len(docs))
	)

	g, gctx := errgroup.WithContext(ctx)
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}
	for _, doc := range docs {
		g.Go(func() error {
			if doc.DocID == "" {
				doc.DocID = uuid.NewString()
			}
			if doc.DocType == "" {
				cls, err := e.ClassifyDocument(gctx, doc.Filename, doc.OCRText)
				if err != nil {
					return err
				}
				doc.DocType = cls.DocType
			}

			ext, err := e.Extract(gctx, doc.DocID, doc.DocType, doc.OCRText)
			if err != nil {
				return err
			}

			mu.Lock()
			out = append(out, ext)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	zap.L().Info("pipeline: documents extracted", zap.Int("documents", len(out)))
	return out, nil
}
