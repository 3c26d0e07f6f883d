package model

import (
	"strings"
	"time"
)

// DocType is the closed set of document kinds the extraction chain handles.
type DocType string

// Supported document types.
const (
	DocInvoice      DocType = "invoice"
	DocBillOfLading DocType = "bill_of_lading"
	DocPackingList  DocType = "packing_list"
	DocDeclaration  DocType = "declaration"
	DocOther        DocType = "other"
)

// docTypeAliases maps the spellings seen on uploads and in model output to
// the canonical type.
var docTypeAliases = map[string]DocType{
	"invoice":             DocInvoice,
	"commercial_invoice":  DocInvoice,
	"bill_of_lading":      DocBillOfLading,
	"bl":                  DocBillOfLading,
	"b/l":                 DocBillOfLading,
	"packing_list":        DocPackingList,
	"pl":                  DocPackingList,
	"declaration":         DocDeclaration,
	"customs_declaration": DocDeclaration,
	"export_declaration":  DocDeclaration,
	"import_declaration":  DocDeclaration,
	"other":               DocOther,
}

// ParseDocType normalizes s to a DocType. Unknown names map to DocOther and
// ok is false.
func ParseDocType(s string) (DocType, bool) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.ReplaceAll(key, " ", "_")
	key = strings.ReplaceAll(key, "-", "_")
	dt, ok := docTypeAliases[key]
	if !ok {
		return DocOther, false
	}
	return dt, true
}

// UnmarshalText normalizes aliases when decoding case files and reference
// data.
func (d *DocType) UnmarshalText(b []byte) error {
	*d, _ = ParseDocType(string(b))
	return nil
}

// DocTypes returns the extractable document types in catalogue order.
func DocTypes() []DocType {
	return []DocType{DocInvoice, DocBillOfLading, DocPackingList, DocDeclaration}
}

// Extraction holds the structured fields pulled from one document.
type Extraction struct {
	DocID               string    `json:"doc_id"`
	DocType             DocType   `json:"doc_type"`
	Fields              Fields    `json:"fields"`
	Confidence          float64   `json:"confidence"`
	LowConfidenceFields []string  `json:"low_confidence_fields"`
	MissingFields       []string  `json:"missing_fields"`
	ExtractedAt         time.Time `json:"extraction_timestamp"`
}

// DocumentClassification is the result of guessing a document's type.
type DocumentClassification struct {
	DocType    DocType `json:"doc_type"`
	Confidence float64 `json:"confidence"`
	Rationale  string  `json:"rationale"`
}
