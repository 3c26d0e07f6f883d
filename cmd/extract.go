package main

import (
	"context"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/clearance-cli/internal/config"
	"github.com/sells-group/clearance-cli/internal/model"
)

const docTypeAuto = "auto"

var (
	extractFile    string
	extractDocType string
	extractDocID   string
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "OCR a document and extract its fields",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runExtract(cmd.Context(), cmd.OutOrStdout(), cfg, extractRequest{
			File:    extractFile,
			DocType: extractDocType,
			DocID:   extractDocID,
		})
	},
}

type extractRequest struct {
	File    string
	DocType string
	DocID   string
}

// extractOutput is the extraction plus the classification when the type
// was detected.
type extractOutput struct {
	Classification *model.DocumentClassification `json:"classification,omitempty"`
	Extraction     model.Extraction              `json:"extraction"`
}

func runExtract(ctx context.Context, w io.Writer, c *config.Config, req extractRequest) error {
	var docType model.DocType
	if req.DocType != docTypeAuto {
		dt, ok := model.ParseDocType(req.DocType)
		if !ok {
			return eris.Errorf("unknown document type %q", req.DocType)
		}
		docType = dt
	}

	env, err := initChains(c)
	if err != nil {
		return err
	}
	defer env.flushMetrics(metricsFile)

	text, err := env.OCR.ExtractText(ctx, req.File)
	if err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" {
		return eris.Errorf("no text found in %s", req.File)
	}

	var out extractOutput
	if docType == "" {
		cls, err := env.Extractor.ClassifyDocument(ctx, filepath.Base(req.File), text)
		if err != nil {
			return err
		}
		out.Classification = &cls
		docType = cls.DocType
	}

	docID := req.DocID
	if docID == "" {
		docID = uuid.NewString()
	}
	out.Extraction, err = env.Extractor.Extract(ctx, docID, docType, text)
	if err != nil {
		return err
	}
	return writeJSON(w, out)
}

func init() {
	extractCmd.Flags().StringVar(&extractFile, "file", "", "document to read (required)")
	extractCmd.Flags().StringVar(&extractDocType, "doc-type", docTypeAuto, "document type: auto, invoice, bill_of_lading, packing_list, declaration, other")
	extractCmd.Flags().StringVar(&extractDocID, "doc-id", "", "document id (default: random UUID)")
	_ = extractCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(extractCmd)
}
