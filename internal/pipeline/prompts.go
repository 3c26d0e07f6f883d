package pipeline

import "github.com/sells-group/clearance-cli/internal/model"

const classifyDocumentPrompt = `You sort customs documents by type. Read the filename and OCR text and decide which kind of document it is.

Document types:
- invoice: commercial invoice with seller, buyer, line items and a total amount
- bill_of_lading: transport document issued by a carrier, with B/L number, vessel and ports
- packing_list: list of packages with weights, dimensions and marks
- declaration: customs import or export declaration with a declared value and HS code
- other: anything else

Respond with one JSON object:
{"doc_type": "<type>", "confidence": <0.0-1.0>, "rationale": "<one sentence>"}`

const classifyDocumentUser = "Filename: %s\n\nOCR Text:\n%s"

const invoicePrompt = `Extract the fields of a commercial invoice from the OCR text.

Fields:
- invoice_number, invoice_date (string, date as printed)
- supplier_name, buyer_name (string)
- total_amount (number, no currency symbol or thousands separator)
- currency (ISO 4217 code)
- shipment_id (string, shipment or booking reference if printed)
- hs_codes (list of strings)
- line_items (list of short descriptions)

Only report values that appear in the text. Never compute or estimate a number.
Use null for a field you cannot find and list it in missing_fields. List fields you are unsure of in low_confidence_fields.

Respond with one JSON object:
{"fields": {...}, "confidence": <0.0-1.0>, "low_confidence_fields": [...], "missing_fields": [...]}`

const billOfLadingPrompt = `Extract the fields of a bill of lading from the OCR text.

Fields:
- bl_number, bl_date (string, date as printed)
- carrier_name, vessel_name, voyage_number (string)
- port_of_loading, port_of_discharge (string)
- shipper_name, consignee_name, notify_party (string)
- cargo_description (string)
- gross_weight (number)
- shipment_id (string, if printed separately from the B/L number)

Only report values that appear in the text. Never compute or estimate a number.
Use null for a field you cannot find and list it in missing_fields. List fields you are unsure of in low_confidence_fields.

Respond with one JSON object:
{"fields": {...}, "confidence": <0.0-1.0>, "low_confidence_fields": [...], "missing_fields": [...]}`

const packingListPrompt = `Extract the fields of a packing list from the OCR text.

Fields:
- pl_number, pl_date (string, date as printed)
- shipper_name, consignee_name (string)
- total_packages (number), package_type (string)
- total_weight, total_volume (number)
- marks_numbers, item_summary (string)
- shipment_id (string)

Only report values that appear in the text. Never compute or estimate a number.
Use null for a field you cannot find and list it in missing_fields. List fields you are unsure of in low_confidence_fields.

Respond with one JSON object:
{"fields": {...}, "confidence": <0.0-1.0>, "low_confidence_fields": [...], "missing_fields": [...]}`

const declarationPrompt = `Extract the fields of a customs declaration from the OCR text.

Fields:
- declaration_number, declaration_date (string, date as printed)
- declarant_name, tax_id, procedure_code (string)
- declared_value (number, no currency symbol or thousands separator)
- currency (ISO 4217 code)
- origin_countries, hs_codes (list of strings)
- goods_description, warehouse (string)
- shipment_id, bl_number (string)

Only report values that appear in the text. Never compute or estimate a number.
Use null for a field you cannot find and list it in missing_fields. List fields you are unsure of in low_confidence_fields.

Respond with one JSON object:
{"fields": {...}, "confidence": <0.0-1.0>, "low_confidence_fields": [...], "missing_fields": [...]}`

// extractionPrompts maps each extractable type to its system prompt.
var extractionPrompts = map[model.DocType]string{
	model.DocInvoice:      invoicePrompt,
	model.DocBillOfLading: billOfLadingPrompt,
	model.DocPackingList:  packingListPrompt,
	model.DocDeclaration:  declarationPrompt,
}

const intakePrompt = `You help citizens start a customs procedure. Work out which procedure their message describes and which of its required fields they already gave.

Available procedures:
%s

Rules:
- Pick a procedure only when the message supports it. Otherwise use null.
- Copy field values exactly as the citizen wrote them.
- missing_fields lists required fields of the chosen procedure that are still unknown.

Respond with one JSON object:
{"procedure_id": "<id or null>", "confidence": <0.0-1.0>, "rationale": "<short reason>", "detected_fields": {...}, "missing_fields": [...]}`

const explainPrompt = `You explain a customs risk score to the citizen who submitted the documents.

Risk score: %d/100
Risk level: %s

Contributing factors:
%s

Rules:
- Mention only the factors listed above and only the numbers they contain.
- Do not invent amounts, dates, percentages or identifiers.
- State that the result is advisory and will be reviewed by a qualified customs officer.
- Write in language: %s

Respond with one JSON object:
{"executive_summary": "...", "explanation_bullets": [...], "recommended_next_actions": [...], "risk_reduction_actions": [...]}`

const explainUser = "Generate the risk explanation."

const fixPrompt = `The JSON below failed validation. Return corrected JSON only, with no commentary.

Error: %s

Expected schema:
%s

Invalid JSON:
%s`

// Disclaimer is appended to every deterministic explanation.
const Disclaimer = "ADVISORY ONLY - This system provides decision support and does NOT make final legal determinations. " +
	"All risk scores and recommendations must be reviewed by qualified customs officials. " +
	"The authority assumes full responsibility for final clearance decisions."
