package guardrail

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"

	"github.com/sells-group/clearance-cli/internal/model"
)

//go:embed schemas/*.json
var embeddedSchemas embed.FS

// Schema names in the default catalogue.
const (
	SchemaIntake         = "intake_output"
	SchemaClassification = "document_classification"
	SchemaTriage         = "triage_explanation"
	SchemaInvoice        = "extraction_invoice"
	SchemaBillOfLading   = "extraction_bl"
	SchemaPackingList    = "extraction_packing_list"
	SchemaDeclaration    = "extraction_declaration"
)

// DefaultSchemas returns the embedded schema catalogue rooted at its
// directory.
func DefaultSchemas() fs.FS {
	sub, err := fs.Sub(embeddedSchemas, "schemas")
	if err != nil {
		panic(err) // embedded path is fixed at build time
	}
	return sub
}

// ExtractionSchema returns the schema name for a document type, or "" when
// the type has none.
func ExtractionSchema(dt model.DocType) string {
	switch dt {
	case model.DocInvoice:
		return SchemaInvoice
	case model.DocBillOfLading:
		return SchemaBillOfLading
	case model.DocPackingList:
		return SchemaPackingList
	case model.DocDeclaration:
		return SchemaDeclaration
	default:
		return ""
	}
}

// ParseError reports output that is not JSON at all.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string { return "Invalid JSON: " + e.Err.Error() }

// Unwrap returns the decoder error.
func (e *ParseError) Unwrap() error { return e.Err }

// SchemaError reports the first structural violation found.
type SchemaError struct {
	Path       string
	Constraint string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("Schema validation failed at %s: %s", e.Path, e.Constraint)
}

// OutputValidator checks generated JSON against a named schema catalogue
// and applies per-output semantic rules.
type OutputValidator struct {
	schemas map[string]*gojsonschema.Schema
	raw     map[string]map[string]any
}

// NewOutputValidator compiles every *.json file in fsys, keyed by file stem.
func NewOutputValidator(fsys fs.FS) (*OutputValidator, error) {
	v := &OutputValidator{
		schemas: make(map[string]*gojsonschema.Schema),
		raw:     make(map[string]map[string]any),
	}

	files, err := fs.Glob(fsys, "*.json")
	if err != nil {
		return nil, eris.Wrap(err, "guardrail: list schemas")
	}
	for _, name := range files {
		b, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, eris.Wrapf(err, "guardrail: read schema %s", name)
		}
		schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(b))
		if err != nil {
			return nil, eris.Wrapf(err, "guardrail: compile schema %s", name)
		}
		var doc map[string]any
		if err := json.Unmarshal(b, &doc); err != nil {
			return nil, eris.Wrapf(err, "guardrail: decode schema %s", name)
		}
		stem := strings.TrimSuffix(path.Base(name), ".json")
		v.schemas[stem] = schema
		v.raw[stem] = doc
	}
	return v, nil
}

// Names lists the loaded schema names in sorted order.
func (v *OutputValidator) Names() []string {
	names := make([]string, 0, len(v.schemas))
	for n := range v.schemas {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Has reports whether schemaName is loaded.
func (v *OutputValidator) Has(schemaName string) bool {
	_, ok := v.schemas[schemaName]
	return ok
}

// ValidateJSON parses output and, when schemaName is set, validates it. On
// a schema violation the parsed data is returned alongside a *SchemaError.
// An unknown schema name passes with a warning.
func (v *OutputValidator) ValidateJSON(output, schemaName string) (any, error) {
	var data any
	if err := json.Unmarshal([]byte(output), &data); err != nil {
		return nil, &ParseError{Err: err}
	}
	if schemaName == "" {
		return data, nil
	}
	return data, v.Validate(data, schemaName)
}

// Validate checks already-decoded data against schemaName.
func (v *OutputValidator) Validate(data any, schemaName string) error {
	schema, ok := v.schemas[schemaName]
	if !ok {
		zap.L().Warn("guardrail: schema not found, skipping validation", zap.String("schema", schemaName))
		return nil
	}

	res, err := schema.Validate(gojsonschema.NewGoLoader(data))
	if err != nil {
		return eris.Wrapf(err, "guardrail: validate against %s", schemaName)
	}
	if res.Valid() {
		return nil
	}

	errs := res.Errors()
	sort.Slice(errs, func(i, j int) bool {
		if errs[i].Field() != errs[j].Field() {
			return errs[i].Field() < errs[j].Field()
		}
		return errs[i].Description() < errs[j].Description()
	})
	first := errs[0]
	return &SchemaError{Path: fieldPath(first.Field()), Constraint: first.Description()}
}

func fieldPath(field string) string {
	if field == "" || field == "(root)" {
		return "root"
	}
	return strings.ReplaceAll(field, ".", " -> ")
}

// Describe renders a schema's top-level properties as "- key: type
// (description)" lines for repair prompts.
func (v *OutputValidator) Describe(schemaName string) string {
	doc, ok := v.raw[schemaName]
	if !ok {
		return ""
	}
	props, _ := doc["properties"].(map[string]any)
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		p, _ := props[k].(map[string]any)
		fmt.Fprintf(&b, "- %s: %s", k, schemaType(p["type"]))
		if d, ok := p["description"].(string); ok && d != "" {
			fmt.Fprintf(&b, " (%s)", d)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// RequiredKeys returns the schema's top-level required keys.
func (v *OutputValidator) RequiredKeys(schemaName string) []string {
	doc, ok := v.raw[schemaName]
	if !ok {
		return nil
	}
	req, _ := doc["required"].([]any)
	out := make([]string, 0, len(req))
	for _, r := range req {
		if s, ok := r.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func schemaType(t any) string {
	switch tt := t.(type) {
	case string:
		return tt
	case []any:
		parts := make([]string, 0, len(tt))
		for _, p := range tt {
			parts = append(parts, fmt.Sprint(p))
		}
		return strings.Join(parts, "|")
	default:
		return "any"
	}
}
