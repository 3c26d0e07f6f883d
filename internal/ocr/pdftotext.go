package ocr

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// PdfToText runs poppler's pdftotext in layout mode, which keeps the column
// alignment of invoice and packing-list tables. Text files are read as-is.
type PdfToText struct {
	binPath string
}

// NewPdfToText returns a PdfToText using binPath, or "pdftotext" from PATH.
func NewPdfToText(binPath string) *PdfToText {
	if binPath == "" {
		binPath = "pdftotext"
	}
	return &PdfToText{binPath: binPath}
}

// ExtractText implements Extractor. Pages are separated by a blank line.
func (p *PdfToText) ExtractText(ctx context.Context, path string) (string, error) {
	if textExtensions[strings.ToLower(filepath.Ext(path))] {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", eris.Wrapf(err, "ocr: read %s", path)
		}
		return string(data), nil
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, p.binPath, "-layout", "-enc", "UTF-8", path, "-")
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", eris.Wrapf(err, "ocr: pdftotext failed for %s: %s", path, strings.TrimSpace(stderr.String()))
	}
	return joinPages(strings.Split(stdout.String(), "\f")), nil
}

func joinPages(pages []string) string {
	kept := pages[:0]
	for _, page := range pages {
		if page = strings.TrimRight(page, " \t\r\n"); strings.TrimSpace(page) != "" {
			kept = append(kept, page)
		}
	}
	return strings.Join(kept, "\n\n")
}
