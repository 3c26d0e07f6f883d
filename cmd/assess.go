package main

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/clearance-cli/internal/config"
	"github.com/sells-group/clearance-cli/internal/model"
	"github.com/sells-group/clearance-cli/internal/pipeline"
)

var (
	assessCase     string
	assessExplain  bool
	assessLanguage string
)

var assessCmd = &cobra.Command{
	Use:   "assess",
	Short: "Validate and score a case file",
	Long: "Runs the validation rules and the scoring engine over a JSON case file. " +
		"Cases without extractions have their documents read (paths relative to the case file) and extracted first.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAssess(cmd.Context(), cmd.OutOrStdout(), cfg, assessRequest{
			CasePath: assessCase,
			Explain:  assessExplain,
			Language: assessLanguage,
		})
	},
}

type assessRequest struct {
	CasePath string
	Explain  bool
	Language string
}

func runAssess(ctx context.Context, w io.Writer, c *config.Config, req assessRequest) error {
	kase, err := loadCase(req.CasePath)
	if err != nil {
		return err
	}

	needsChains := req.Explain || (len(kase.Extractions) == 0 && len(kase.Documents) > 0)
	var (
		assessor *pipeline.Assessor
		core     *coreEnv
	)
	if needsChains {
		env, err := initChains(c)
		if err != nil {
			return err
		}
		core = env.coreEnv
		if err := readDocuments(ctx, env, kase, filepath.Dir(req.CasePath)); err != nil {
			return err
		}
		assessor = pipeline.NewAssessor(env.Validation, env.Scorer,
			pipeline.WithExtractor(env.Extractor, c.Extract.Concurrency),
			pipeline.WithExplainer(env.Explainer),
		)
	} else {
		core, err = initCore(c)
		if err != nil {
			return err
		}
		assessor = pipeline.NewAssessor(core.Validation, core.Scorer)
	}
	defer core.flushMetrics(metricsFile)

	result, err := assessor.Assess(ctx, kase, pipeline.AssessOptions{Explain: req.Explain, Language: req.Language})
	if err != nil {
		return err
	}
	return writeJSON(w, result)
}

// loadCase reads a JSON case file.
func loadCase(path string) (*model.Case, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read case %s", path)
	}
	var kase model.Case
	if err := json.Unmarshal(b, &kase); err != nil {
		return nil, eris.Wrapf(err, "parse case %s", path)
	}
	if kase.ID == "" {
		kase.ID = filepath.Base(path)
	}
	return &kase, nil
}

// readDocuments runs OCR over documents that have no text yet. Relative
// filenames resolve against dir.
func readDocuments(ctx context.Context, env *chainEnv, kase *model.Case, dir string) error {
	if len(kase.Extractions) > 0 {
		return nil
	}
	for i := range kase.Documents {
		doc := &kase.Documents[i]
		if doc.OCRText != "" || doc.Filename == "" {
			continue
		}
		path := doc.Filename
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, path)
		}
		text, err := env.OCR.ExtractText(ctx, path)
		if err != nil {
			return eris.Wrapf(err, "ocr %s", doc.Filename)
		}
		doc.OCRText = text
		zap.L().Debug("document read", zap.String("file", doc.Filename), zap.Int("chars", len(text)))
	}
	return nil
}

func init() {
	assessCmd.Flags().StringVar(&assessCase, "case", "", "path to the case JSON file (required)")
	assessCmd.Flags().BoolVar(&assessExplain, "explain", false, "generate a citizen-facing explanation")
	assessCmd.Flags().StringVar(&assessLanguage, "language", pipeline.DefaultLanguage, "explanation language")
	_ = assessCmd.MarkFlagRequired("case")
	rootCmd.AddCommand(assessCmd)
}
