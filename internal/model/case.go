package model

// Case is the aggregate record for one customs-clearance request.
type Case struct {
	ID          string             `json:"case_id"`
	ProcedureID string             `json:"procedure_id"`
	Intake      Intake             `json:"intake"`
	Documents   []Document         `json:"documents,omitempty"`
	Extractions []Extraction       `json:"extractions"`
	Validations []ValidationResult `json:"validations,omitempty"`
}

// Intake holds what the citizen told us before uploading documents.
type Intake struct {
	CollectedFields Fields   `json:"collected_fields"`
	MissingFields   []string `json:"missing_fields,omitempty"`
}

// PriorFlags returns the case's prior compliance flags, if any were
// collected during intake.
func (c *Case) PriorFlags() FieldValue {
	if c == nil {
		return FieldValue{}
	}
	return c.Intake.CollectedFields.Get("prior_flags")
}

// Document is an uploaded file awaiting OCR and extraction.
type Document struct {
	DocID    string  `json:"doc_id"`
	Filename string  `json:"filename"`
	MimeType string  `json:"mime_type"`
	DocType  DocType `json:"doc_type,omitempty"`
	OCRText  string  `json:"-"`
}

// ProcedureClassification is the intake chain's guess at which customs
// procedure a request belongs to. ProcedureID is nil when undetermined.
type ProcedureClassification struct {
	ProcedureID    *string  `json:"procedure_id"`
	Confidence     float64  `json:"confidence"`
	Rationale      string   `json:"rationale"`
	DetectedFields Fields   `json:"detected_fields"`
	MissingFields  []string `json:"missing_fields"`
}

// IntakeReply is the classification plus the next message for the citizen.
type IntakeReply struct {
	Classification ProcedureClassification `json:"classification"`
	Response       string                  `json:"response"`
	SafetyIssues   []string                `json:"safety_issues,omitempty"`
}
