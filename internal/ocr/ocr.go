// Package ocr turns case documents (PDFs, scans, plain text) into the raw
// text the extraction chain and the number audit work from.
package ocr

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/clearance-cli/internal/config"
)

// Extractor extracts text content from a document file.
type Extractor interface {
	ExtractText(ctx context.Context, path string) (string, error)
}

// NewExtractor creates an Extractor based on config.
//
//	local      embedded PDF reader, text files read as-is (default)
//	pdftotext  poppler's pdftotext binary
//	mistral    Mistral OCR API, for scans and images
//	auto       local first, Mistral when the document has no text layer
func NewExtractor(cfg config.OCRConfig) (Extractor, error) {
	switch cfg.Provider {
	case "local", "":
		return NewLocal(), nil
	case "pdftotext":
		return NewPdfToText(cfg.PdfToTextPath), nil
	case "mistral":
		if cfg.MistralKey == "" {
			return nil, eris.New("ocr: mistral provider requires ocr.mistral_key")
		}
		return NewMistralOCR(cfg.MistralKey, cfg.MistralModel, WithEndpoint(cfg.MistralBaseURL)), nil
	case "auto":
		chain := Chain{NewLocal()}
		if cfg.MistralKey != "" {
			chain = append(chain, NewMistralOCR(cfg.MistralKey, cfg.MistralModel, WithEndpoint(cfg.MistralBaseURL)))
		}
		return chain, nil
	default:
		return nil, eris.Errorf("ocr: unknown provider %q", cfg.Provider)
	}
}

// Chain tries each extractor in order and returns the first non-empty text.
type Chain []Extractor

// ExtractText implements Extractor.
func (c Chain) ExtractText(ctx context.Context, path string) (string, error) {
	var lastErr error
	for i, ext := range c {
		text, err := ext.ExtractText(ctx, path)
		if err == nil && strings.TrimSpace(text) != "" {
			return text, nil
		}
		if err != nil {
			lastErr = err
		}
		if i < len(c)-1 {
			zap.L().Warn("ocr: falling back to next provider",
				zap.String("path", path),
				zap.Int("provider_index", i),
				zap.Error(err),
			)
		}
	}
	if lastErr != nil {
		return "", lastErr
	}
	return "", nil
}
