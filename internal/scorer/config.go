// Package scorer turns validation failures and case signals into an
// auditable 0-100 risk score.
package scorer

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/clearance-cli/internal/model"
	"github.com/sells-group/clearance-cli/internal/refdata"
)

// Config is the fixed point table and the level thresholds.
type Config struct {
	Thresholds model.Thresholds `json:"thresholds"`

	// Points awarded per factor id. missing_required_doc is per document.
	Points map[string]int `json:"points"`

	// MissingDocCap bounds the missing_required_doc award.
	MissingDocCap int `json:"missing_doc_cap"`
}

// Factors lists the scoring factors in evaluation order.
func Factors() []string {
	return []string{
		model.FactorInvoiceMismatch,
		model.FactorShipmentMismatch,
		model.FactorDateSequence,
		model.FactorMissingDoc,
		model.FactorCurrencyMismatch,
		model.FactorPriorFlag,
		model.FactorHSCodeMismatch,
	}
}

// DefaultConfig returns the standard point table.
func DefaultConfig() Config {
	return Config{
		Thresholds: model.DefaultThresholds(),
		Points: map[string]int{
			model.FactorInvoiceMismatch:  25,
			model.FactorShipmentMismatch: 20,
			model.FactorDateSequence:     10,
			model.FactorMissingDoc:       15, // per missing document
			model.FactorCurrencyMismatch: 10,
			model.FactorPriorFlag:        30,
			model.FactorHSCodeMismatch:   15,
		},
		MissingDocCap: 45,
	}
}

// ConfigFromRefdata overlays the reference scoring table on the defaults.
// Rules the table does not mention keep their default points, and a table
// without a thresholds block keeps the default thresholds.
func ConfigFromRefdata(s refdata.Scoring) Config {
	c := DefaultConfig()
	if s.Thresholds != (model.Thresholds{}) {
		c.Thresholds = s.Thresholds
	}
	for _, r := range s.Rules {
		c.Points[r.ID] = r.Points
		if r.ID == model.FactorMissingDoc && r.Cap > 0 {
			c.MissingDocCap = r.Cap
		}
	}
	return c
}

// ValidateConfig checks that a Config is internally consistent.
func ValidateConfig(c Config) error {
	var errs []string

	t := c.Thresholds
	if t.Low < 0 || t.Critical > 100 {
		errs = append(errs, "thresholds must lie within 0..100")
	}
	if t.Low > t.Medium || t.Medium > t.High || t.High > t.Critical {
		errs = append(errs, fmt.Sprintf("thresholds must be ordered low <= medium <= high <= critical, got %d/%d/%d/%d",
			t.Low, t.Medium, t.High, t.Critical))
	}
	if t.Low >= t.High {
		errs = append(errs, fmt.Sprintf("thresholds must satisfy low < high, got low=%d high=%d", t.Low, t.High))
	}

	for _, id := range Factors() {
		p, ok := c.Points[id]
		if !ok {
			errs = append(errs, fmt.Sprintf("%s has no points", id))
			continue
		}
		if p < 0 || p > 100 {
			errs = append(errs, fmt.Sprintf("%s points must be between 0 and 100", id))
		}
	}
	for id := range c.Points {
		if !isFactor(id) {
			errs = append(errs, fmt.Sprintf("unknown factor %s", id))
		}
	}

	if c.MissingDocCap < c.Points[model.FactorMissingDoc] {
		errs = append(errs, "missing_doc_cap must be >= missing_required_doc points")
	}

	if len(errs) > 0 {
		return eris.Errorf("scorer: config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func isFactor(id string) bool {
	for _, f := range Factors() {
		if f == id {
			return true
		}
	}
	return false
}
