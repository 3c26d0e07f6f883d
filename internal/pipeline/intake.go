package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/clearance-cli/internal/guardrail"
	"github.com/sells-group/clearance-cli/internal/llm"
	"github.com/sells-group/clearance-cli/internal/model"
	"github.com/sells-group/clearance-cli/internal/refdata"
)

// Catalogue is the procedure lookup the intake chain needs.
type Catalogue interface {
	ProceduresText() string
	ProcedureIDs() []string
	Procedure(id string) (refdata.Procedure, bool)
	FieldPrompt(field string) string
}

const (
	rationaleParseError = "Error parsing response"
	rationaleRejected   = "Message rejected by safety screening."
	clarifyPrompt       = "Please describe your customs situation more specifically, such as whether you are importing, exporting, or returning goods."
)

// Classifier routes a citizen's message to a customs procedure and decides
// what to ask next.
type Classifier struct {
	r       runner
	catalog Catalogue
	safety  *guardrail.SafetyValidator
}

// NewClassifier returns an intake chain over catalog.
func NewClassifier(deps Deps, catalog Catalogue) *Classifier {
	return &Classifier{
		r:       runner{Deps: deps},
		catalog: catalog,
		safety:  guardrail.NewSafetyValidator(deps.Limits.MaxInputChars),
	}
}

// Classify screens message, classifies it and builds the reply. collected
// carries fields gathered on earlier turns and may be nil. Messages with
// injection phrasing are never sent to the model.
func (c *Classifier) Classify(ctx context.Context, message string, collected model.Fields) (model.IntakeReply, error) {
	_, issues := c.safety.CheckSafety(message)
	if c.safety.DetectPromptInjection(message) {
		c.r.fallback(ChainIntake, "prompt injection")
		cls := model.ProcedureClassification{Rationale: rationaleRejected, DetectedFields: model.Fields{}, MissingFields: []string{}}
		return model.IntakeReply{Classification: cls, Response: c.respond(cls, collected), SafetyIssues: issues}, nil
	}

	clean, redacted := c.safety.RedactPII(message)
	if redacted > 0 {
		zap.L().Info("pipeline: redacted PII from intake message", zap.Int("count", redacted))
	}

	cls, err := c.classify(ctx, truncate(clean, c.r.Limits.MaxInputChars), collected)
	if err != nil {
		return model.IntakeReply{}, err
	}
	return model.IntakeReply{Classification: cls, Response: c.respond(cls, collected), SafetyIssues: issues}, nil
}

func (c *Classifier) classify(ctx context.Context, message string, collected model.Fields) (model.ProcedureClassification, error) {
	raw, err := c.r.generate(ctx, ChainIntake, llm.Request{
		System:      fmt.Sprintf(intakePrompt, c.catalog.ProceduresText()),
		Messages:    llm.UserPrompt(message),
		Model:       c.r.ReasonerModel,
		Temperature: intakeTemperature,
		JSONMode:    true,
	})
	if err != nil {
		return model.ProcedureClassification{}, eris.Wrap(err, "pipeline: classify intake")
	}

	cls := model.ProcedureClassification{
		Rationale:      rationaleParseError,
		DetectedFields: model.Fields{},
		MissingFields:  []string{},
	}
	out, ok := c.r.parse(ctx, ChainIntake, raw, guardrail.SchemaIntake)
	if !ok {
		c.r.fallback(ChainIntake, "unparseable classification")
		return cls, nil
	}

	cls.Confidence = floatValue(out["confidence"])
	cls.Rationale, _ = out["rationale"].(string)
	detected, _ := out["detected_fields"].(map[string]any)
	cls.DetectedFields = model.FieldsFromMap(detected)
	cls.MissingFields = stringSlice(out["missing_fields"])

	if err := guardrail.ValidateProcedureClassification(out, c.catalog.ProcedureIDs()); err != nil {
		zap.L().Warn("pipeline: discarding procedure id", zap.Any("procedure_id", out["procedure_id"]), zap.Error(err))
		return cls, nil
	}
	id, _ := out["procedure_id"].(string)
	if id == "" {
		return cls, nil
	}
	cls.ProcedureID = &id

	// Missing fields are recomputed from the catalogue so the model cannot
	// skip a required question.
	proc, _ := c.catalog.Procedure(id)
	merged := mergeFields(collected, cls.DetectedFields)
	cls.MissingFields = []string{}
	for _, f := range proc.RequiredFields {
		if merged.Get(f).IsNull() {
			cls.MissingFields = append(cls.MissingFields, f)
		}
	}
	return cls, nil
}

// respond builds the follow-up question, the completion summary or a
// clarification request.
func (c *Classifier) respond(cls model.ProcedureClassification, collected model.Fields) string {
	if cls.ProcedureID == nil {
		return strings.TrimSpace(cls.Rationale + " " + clarifyPrompt)
	}
	proc, ok := c.catalog.Procedure(*cls.ProcedureID)
	if !ok {
		return strings.TrimSpace(cls.Rationale + " " + clarifyPrompt)
	}
	if len(cls.MissingFields) > 0 {
		return fmt.Sprintf("You selected **%s**.\n\n%s", proc.Name, c.catalog.FieldPrompt(cls.MissingFields[0]))
	}
	return c.summary(proc, mergeFields(collected, cls.DetectedFields))
}

func (c *Classifier) summary(proc refdata.Procedure, fields model.Fields) string {
	title := cases.Title(language.English) // a Caser is not safe for concurrent use
	var b strings.Builder
	fmt.Fprintf(&b, "**Procedure Confirmed: %s**\n\nInformation collected:\n", proc.Name)
	for _, k := range orderedKeys(proc.RequiredFields, fields) {
		fmt.Fprintf(&b, "- %s: %s\n", title.String(strings.ReplaceAll(k, "_", " ")), fields[k].Text())
	}
	b.WriteString("\n**Next Step:** Please upload the following documents:\n")
	for _, d := range proc.RequiredDocuments {
		fmt.Fprintf(&b, "- %s\n", d)
	}
	b.WriteString("\nOnce uploaded, the system will process them and provide a risk assessment.")
	return b.String()
}

// orderedKeys lists the procedure's required fields first, then any extra
// collected fields alphabetically.
func orderedKeys(required []string, fields model.Fields) []string {
	seen := make(map[string]bool, len(fields))
	keys := make([]string, 0, len(fields))
	for _, k := range required {
		if _, ok := fields[k]; ok && !seen[k] {
			keys = append(keys, k)
			seen[k] = true
		}
	}
	var extra []string
	for k := range fields {
		if !seen[k] {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	return append(keys, extra...)
}

func mergeFields(base, update model.Fields) model.Fields {
	out := make(model.Fields, len(base)+len(update))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range update {
		if !v.IsNull() {
			out[k] = v
		}
	}
	return out
}
