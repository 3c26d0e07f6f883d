// Package refdata loads the read-only reference tables the clearance core
// consults: the procedure catalogue, required documents per procedure, and
// the scoring rule table.
package refdata

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/clearance-cli/internal/model"
)

//go:embed data/*.yaml
var embedded embed.FS

// File names read from a reference-data directory.
const (
	ProceduresFile   = "procedures.yaml"
	RequiredDocsFile = "required_docs.yaml"
	ScoringFile      = "scoring_rules.yaml"
)

var validate = validator.New()

// Procedure is one customs procedure a citizen can be routed to.
type Procedure struct {
	ID                string   `yaml:"id" json:"id" validate:"required"`
	Name              string   `yaml:"name" json:"name" validate:"required"`
	Description       string   `yaml:"description" json:"description" validate:"required"`
	RequiredFields    []string `yaml:"required_fields" json:"required_fields" validate:"dive,required"`
	RequiredDocuments []string `yaml:"required_documents" json:"required_documents" validate:"dive,required"`
}

// RequiredDoc is a document type a procedure cannot proceed without.
type RequiredDoc struct {
	DocType     model.DocType `yaml:"doc_type" json:"doc_type" validate:"required,ne=other"`
	Description string        `yaml:"description" json:"description" validate:"required"`
}

// ScoringRule is one row of the fixed point table. Cap is only meaningful
// for rules that award points per item.
type ScoringRule struct {
	ID          string         `yaml:"id" json:"id" validate:"required"`
	Points      int            `yaml:"points" json:"points" validate:"gte=0,lte=100"`
	Cap         int            `yaml:"cap,omitempty" json:"cap,omitempty" validate:"gte=0,lte=100"`
	Severity    model.Severity `yaml:"severity" json:"severity" validate:"oneof=info warn high critical"`
	Description string         `yaml:"description" json:"description" validate:"required"`
}

// Scoring holds the point table and level thresholds.
type Scoring struct {
	Thresholds model.Thresholds `yaml:"thresholds" json:"thresholds"`
	Rules      []ScoringRule    `yaml:"rules" json:"rules" validate:"required,dive"`
}

// Rule returns the rule with the given id.
func (s Scoring) Rule(id string) (ScoringRule, bool) {
	for _, r := range s.Rules {
		if r.ID == id {
			return r, true
		}
	}
	return ScoringRule{}, false
}

type proceduresDoc struct {
	Procedures   []Procedure       `yaml:"procedures" validate:"required,dive"`
	FieldPrompts map[string]string `yaml:"field_prompts"`
}

type requiredDocsEntry struct {
	Required []RequiredDoc `yaml:"required" validate:"dive"`
}

// Catalogue is the loaded reference data. It is safe for concurrent reads.
type Catalogue struct {
	procedures   []Procedure
	byID         map[string]Procedure
	fieldPrompts map[string]string
	requiredDocs map[string][]RequiredDoc
	scoring      Scoring
}

// Default loads the reference data compiled into the binary.
func Default() (*Catalogue, error) {
	sub, err := fs.Sub(embedded, "data")
	if err != nil {
		return nil, eris.Wrap(err, "refdata: open embedded data")
	}
	return Load(sub)
}

// LoadDir loads reference data from dir, falling back to the embedded copy
// when dir is empty.
func LoadDir(dir string) (*Catalogue, error) {
	if dir == "" {
		return Default()
	}
	return Load(os.DirFS(dir))
}

// Load reads and validates the three reference files from fsys.
func Load(fsys fs.FS) (*Catalogue, error) {
	var procs proceduresDoc
	if err := decode(fsys, ProceduresFile, &procs); err != nil {
		return nil, err
	}
	docs := make(map[string]requiredDocsEntry)
	if err := decode(fsys, RequiredDocsFile, &docs); err != nil {
		return nil, err
	}
	var scoring Scoring
	if err := decode(fsys, ScoringFile, &scoring); err != nil {
		return nil, err
	}

	if err := validate.Struct(procs); err != nil {
		return nil, eris.Wrap(err, "refdata: invalid procedures")
	}
	if err := validate.Struct(scoring); err != nil {
		return nil, eris.Wrap(err, "refdata: invalid scoring rules")
	}

	c := &Catalogue{
		procedures:   procs.Procedures,
		byID:         make(map[string]Procedure, len(procs.Procedures)),
		fieldPrompts: procs.FieldPrompts,
		requiredDocs: make(map[string][]RequiredDoc, len(docs)),
		scoring:      scoring,
	}
	for _, p := range procs.Procedures {
		if _, dup := c.byID[p.ID]; dup {
			return nil, eris.Errorf("refdata: duplicate procedure id %q", p.ID)
		}
		c.byID[p.ID] = p
	}
	for id, entry := range docs {
		if _, ok := c.byID[id]; !ok {
			return nil, eris.Errorf("refdata: required docs listed for unknown procedure %q", id)
		}
		for i, d := range entry.Required {
			if err := validate.Struct(d); err != nil {
				return nil, eris.Wrapf(err, "refdata: invalid required doc %d for %s", i, id)
			}
		}
		c.requiredDocs[id] = entry.Required
	}
	return c, nil
}

func decode(fsys fs.FS, name string, dst any) error {
	b, err := fs.ReadFile(fsys, name)
	if err != nil {
		return eris.Wrapf(err, "refdata: read %s", name)
	}
	if err := yaml.Unmarshal(b, dst); err != nil {
		return eris.Wrapf(err, "refdata: parse %s", name)
	}
	return nil
}

// Procedures returns the catalogue in file order.
func (c *Catalogue) Procedures() []Procedure {
	out := make([]Procedure, len(c.procedures))
	copy(out, c.procedures)
	return out
}

// ProcedureIDs returns the valid procedure identifiers in file order.
func (c *Catalogue) ProcedureIDs() []string {
	ids := make([]string, 0, len(c.procedures))
	for _, p := range c.procedures {
		ids = append(ids, p.ID)
	}
	return ids
}

// Procedure looks up a procedure by id.
func (c *Catalogue) Procedure(id string) (Procedure, bool) {
	p, ok := c.byID[id]
	return p, ok
}

// RequiredDocs returns the documents required for procedureID. Unknown
// procedures have no known requirements and return nil.
func (c *Catalogue) RequiredDocs(procedureID string) []RequiredDoc {
	return c.requiredDocs[procedureID]
}

// FieldPrompt returns the question used to ask a citizen for field.
func (c *Catalogue) FieldPrompt(field string) string {
	if p, ok := c.fieldPrompts[field]; ok {
		return p
	}
	return "Please provide the " + strings.ReplaceAll(field, "_", " ")
}

// Scoring returns the scoring table.
func (c *Catalogue) Scoring() Scoring {
	return c.scoring
}

// ProceduresText renders the catalogue as "- id: name - description" lines
// for classification prompts.
func (c *Catalogue) ProceduresText() string {
	lines := make([]string, 0, len(c.procedures))
	for _, p := range c.procedures {
		lines = append(lines, fmt.Sprintf("- %s: %s - %s", p.ID, p.Name, p.Description))
	}
	return strings.Join(lines, "\n")
}

// Summary describes the catalogue for startup checks.
type Summary struct {
	Procedures   []string `json:"procedures"`
	RequiredDocs int      `json:"required_docs"`
	ScoringRules []string `json:"scoring_rules"`
}

// Summarize counts what was loaded.
func (c *Catalogue) Summarize() Summary {
	s := Summary{Procedures: c.ProcedureIDs()}
	for _, docs := range c.requiredDocs {
		s.RequiredDocs += len(docs)
	}
	for _, r := range c.scoring.Rules {
		s.ScoringRules = append(s.ScoringRules, r.ID)
	}
	sort.Strings(s.ScoringRules)
	return s
}
