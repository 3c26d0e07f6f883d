package ocr

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/rotisserie/eris"
)

// textExtensions are read verbatim.
var textExtensions = map[string]bool{
	".txt": true, ".md": true, ".csv": true, ".json": true, ".xml": true,
}

// Local reads text-layer PDFs with the embedded PDF parser and plain text
// files directly. Image-only documents yield empty text.
type Local struct{}

// NewLocal creates a Local extractor.
func NewLocal() *Local { return &Local{} }

// ExtractText implements Extractor. PDF pages are separated by a blank line.
func (l *Local) ExtractText(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", eris.Wrapf(err, "ocr: read %s", path)
	}

	ext := strings.ToLower(filepath.Ext(path))
	if textExtensions[ext] {
		return string(data), nil
	}
	if ext != ".pdf" && !bytes.HasPrefix(data, []byte("%PDF-")) {
		return "", eris.Errorf("ocr: local provider cannot read %s files", ext)
	}
	return pdfText(ctx, data)
}

func pdfText(ctx context.Context, data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", eris.Wrap(err, "ocr: open pdf")
	}

	pages := make([]string, 0, r.NumPage())
	for i := 1; i <= r.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return "", eris.Wrap(err, "ocr: pdf text")
		}
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return "", eris.Wrapf(err, "ocr: pdf page %d", i)
		}
		if text = strings.TrimSpace(text); text != "" {
			pages = append(pages, text)
		}
	}
	return strings.Join(pages, "\n\n"), nil
}
