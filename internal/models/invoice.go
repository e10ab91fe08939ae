package models

// LineItem is one invoiced line: an item code with quantity and pricing.
type LineItem struct {
	ItemCode    string  `json:"item_code"`
	Description string  `json:"description,omitempty"`
	Quantity    float64 `json:"qty"`
	UnitPrice   float64 `json:"unit_price"`
	Currency    string  `json:"currency"`
	LineTotal   float64 `json:"total"`
}

// StructuredInvoice is the standardized invoice produced by the standardization
// collaborator, always in the target language.
type StructuredInvoice struct {
	InvoiceNumber         string     `json:"invoice_no,omitempty"`
	InvoiceDate           string     `json:"invoice_date,omitempty"`
	VendorID              string     `json:"vendor_id,omitempty"`
	Currency              string     `json:"currency"`
	TotalAmount           float64    `json:"total_amount"`
	LineItems             []LineItem `json:"line_items"`
	OriginalLanguage      string     `json:"original_language"`
	TranslationConfidence float64    `json:"translation_confidence"`
}

// ValidationReport is the outcome of cross-checking every line item.
// Invariant: IsValid is true exactly when Discrepancies is empty.
type ValidationReport struct {
	IsValid       bool     `json:"is_valid"`
	Discrepancies []string `json:"discrepancies"`
	LinesChecked  int      `json:"line_items_checked"`
}

// NewValidationReport builds a report from collected discrepancies, enforcing
// the IsValid invariant.
func NewValidationReport(discrepancies []string, linesChecked int) *ValidationReport {
	if discrepancies == nil {
		discrepancies = []string{}
	}
	return &ValidationReport{
		IsValid:       len(discrepancies) == 0,
		Discrepancies: discrepancies,
		LinesChecked:  linesChecked,
	}
}
