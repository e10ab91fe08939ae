package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"

	"github.com/openclerk/invoiceaudit/internal/models"
)

// JSONRenderer emits the full processing record as indented JSON.
type JSONRenderer struct{}

// Render implements Renderer.
func (r *JSONRenderer) Render(rec *models.ProcessingRecord) ([]byte, error) {
	return json.MarshalIndent(rec, "", "  ")
}

// Extension implements Renderer.
func (r *JSONRenderer) Extension() string { return "json" }

var htmlTmpl = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html>
<head><title>Audit Report: {{.FileName}}</title></head>
<body>
<h1>Audit Report: {{.FileName}}</h1>
<p><strong>Verdict:</strong> {{.Verdict}}</p>
<p><strong>Status:</strong> {{.Status}}</p>
{{if .ErrorMessage}}<p><strong>Error:</strong> {{.ErrorMessage}}</p>{{end}}
{{if .Invoice}}<h2>Invoice</h2>
<p>Number: {{.Invoice.InvoiceNumber}} | Vendor: {{.Invoice.VendorID}} | Total: {{printf "%.2f" .Invoice.TotalAmount}} {{.Invoice.Currency}}</p>{{end}}
{{if .Validation}}<h2>Validation</h2>
<p>Lines checked: {{.Validation.LinesChecked}}</p>
{{if .Validation.Discrepancies}}<ul>
{{range .Validation.Discrepancies}}<li>{{.}}</li>
{{end}}</ul>{{else}}<p>No discrepancies.</p>{{end}}{{end}}
</body>
</html>
`))

type htmlData struct {
	*models.ProcessingRecord
	Verdict string
}

// HTMLRenderer emits a standalone HTML document.
type HTMLRenderer struct{}

// Render implements Renderer.
func (r *HTMLRenderer) Render(rec *models.ProcessingRecord) ([]byte, error) {
	var buf bytes.Buffer
	if err := htmlTmpl.Execute(&buf, htmlData{ProcessingRecord: rec, Verdict: verdict(rec)}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Extension implements Renderer.
func (r *HTMLRenderer) Extension() string { return "html" }

// MarkdownRenderer emits a short Markdown summary.
type MarkdownRenderer struct{}

// Render implements Renderer.
func (r *MarkdownRenderer) Render(rec *models.ProcessingRecord) ([]byte, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "# Audit Report: %s\n\n", rec.FileName)
	fmt.Fprintf(&buf, "**Verdict:** %s\n\n", verdict(rec))
	fmt.Fprintf(&buf, "- Status: `%s`\n", rec.Status)
	if rec.ErrorMessage != "" {
		fmt.Fprintf(&buf, "- Error: %s\n", rec.ErrorMessage)
	}
	if rec.Invoice != nil {
		fmt.Fprintf(&buf, "- Invoice: %s (vendor %s, total %.2f %s)\n",
			rec.Invoice.InvoiceNumber, rec.Invoice.VendorID, rec.Invoice.TotalAmount, rec.Invoice.Currency)
	}
	if rec.Validation != nil {
		fmt.Fprintf(&buf, "- Lines checked: %d\n", rec.Validation.LinesChecked)
		if len(rec.Validation.Discrepancies) > 0 {
			buf.WriteString("\n## Discrepancies\n\n")
			for _, d := range rec.Validation.Discrepancies {
				fmt.Fprintf(&buf, "- %s\n", d)
			}
		}
	}
	return buf.Bytes(), nil
}

// Extension implements Renderer.
func (r *MarkdownRenderer) Extension() string { return "md" }
