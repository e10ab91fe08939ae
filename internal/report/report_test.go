package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/openclerk/invoiceaudit/internal/models"
)

func testRecord() *models.ProcessingRecord {
	return &models.ProcessingRecord{
		ID:       "rec-1",
		FileName: "invoice_001.pdf",
		FilePath: "/inbox/invoice_001.pdf",
		Status:   models.StatusCompleted,
		Invoice: &models.StructuredInvoice{
			InvoiceNumber: "INV-42",
			VendorID:      "V-100",
			Currency:      "EUR",
			TotalAmount:   1050,
		},
		Validation: &models.ValidationReport{
			IsValid:       false,
			Discrepancies: []string{"Item SKU-001: price deviates more than 5%"},
			LinesChecked:  2,
		},
	}
}

func TestWriter_WritesAllArtifacts(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Write(testRecord()); err != nil {
		t.Fatal(err)
	}

	for _, ext := range []string{"json", "html", "md"} {
		path := filepath.Join(dir, "invoice_001.report."+ext)
		if _, err := os.Stat(path); err != nil {
			t.Errorf("missing artifact %s: %v", path, err)
		}
	}

	data, err := os.ReadFile(filepath.Join(dir, "invoice_001.report.json"))
	if err != nil {
		t.Fatal(err)
	}
	var got models.ProcessingRecord
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if got.Validation == nil || got.Validation.LinesChecked != 2 {
		t.Errorf("JSON artifact lost validation: %+v", got.Validation)
	}

	md, _ := os.ReadFile(filepath.Join(dir, "invoice_001.report.md"))
	if !strings.Contains(string(md), "NEEDS REVIEW") {
		t.Errorf("markdown should carry the verdict:\n%s", md)
	}
	if !strings.Contains(string(md), "Item SKU-001") {
		t.Errorf("markdown should list discrepancies:\n%s", md)
	}

	html, _ := os.ReadFile(filepath.Join(dir, "invoice_001.report.html"))
	if !strings.Contains(string(html), "INV-42") {
		t.Errorf("html should include invoice number:\n%s", html)
	}
}

func TestWriter_FailedRecordVerdict(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir)
	if err != nil {
		t.Fatal(err)
	}
	rec := &models.ProcessingRecord{
		FileName:     "broken.pdf",
		Status:       models.StatusFailed,
		ErrorMessage: "extraction error: file corrupt",
	}
	if err := w.Write(rec); err != nil {
		t.Fatal(err)
	}
	md, _ := os.ReadFile(filepath.Join(dir, "broken.report.md"))
	if !strings.Contains(string(md), "SYSTEM FAILURE") {
		t.Errorf("failed record should carry failure verdict:\n%s", md)
	}
	if !strings.Contains(string(md), "file corrupt") {
		t.Errorf("failed record should carry the error:\n%s", md)
	}
}

func TestWriter_ApprovedVerdict(t *testing.T) {
	dir := t.TempDir()
	w, _ := NewWriter(dir)
	rec := testRecord()
	rec.Validation = &models.ValidationReport{IsValid: true, Discrepancies: []string{}, LinesChecked: 2}
	if err := w.Write(rec); err != nil {
		t.Fatal(err)
	}
	md, _ := os.ReadFile(filepath.Join(dir, "invoice_001.report.md"))
	if !strings.Contains(string(md), "APPROVED") {
		t.Errorf("valid record should be approved:\n%s", md)
	}
}
