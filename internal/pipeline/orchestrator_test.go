package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/openclerk/invoiceaudit/internal/crosscheck"
	"github.com/openclerk/invoiceaudit/internal/models"
	"github.com/openclerk/invoiceaudit/internal/standardize"
)

type fakeExtractor struct {
	text string
	err  error
}

func (f *fakeExtractor) Extract(string) (string, error) { return f.text, f.err }

type fakeStandardizer struct {
	invoice *models.StructuredInvoice
	err     error
	called  bool
}

func (f *fakeStandardizer) Standardize(_ context.Context, _ string, _ map[string]string) (*standardize.Result, error) {
	f.called = true
	if f.err != nil {
		return nil, f.err
	}
	return &standardize.Result{Invoice: f.invoice}, nil
}

type fakeChecker struct {
	results map[string]crosscheck.Result
	called  bool
}

func (f *fakeChecker) CheckLineItem(code string, _ float64, _ string) crosscheck.Result {
	f.called = true
	if r, ok := f.results[code]; ok {
		return r
	}
	return crosscheck.Result{Status: crosscheck.OutcomeMatch}
}

type fakeIngestor struct {
	mu   sync.Mutex
	meta map[string]string
	text string
}

func (f *fakeIngestor) Ingest(_ context.Context, text string, meta map[string]string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.text = text
	f.meta = meta
	return 1, nil
}

func testJob() *models.Job {
	return &models.Job{
		SourcePath:   "/inbox/invoice_001.pdf",
		Metadata:     map[string]string{"sender": "billing@acme.example"},
		DiscoveredAt: time.Now(),
	}
}

func TestNextStage(t *testing.T) {
	cases := map[models.Status]Stage{
		models.StatusPending:    StageExtract,
		models.StatusExtracted:  StageStandardize,
		models.StatusTranslated: StageValidate,
		models.StatusValidated:  StageReport,
		models.StatusFailed:     StageReport,
		models.StatusCompleted:  StageDone,
	}
	for status, want := range cases {
		if got := NextStage(status); got != want {
			t.Errorf("NextStage(%s) = %s, want %s", status, got, want)
		}
	}
}

func TestRun_FailedExtractionShortCircuits(t *testing.T) {
	std := &fakeStandardizer{}
	chk := &fakeChecker{}
	o := NewOrchestrator(&fakeExtractor{err: errors.New("file corrupt")}, std, chk)

	rec := o.Run(context.Background(), testJob(), "invoice_001.pdf")

	if rec.Status != models.StatusFailed {
		t.Errorf("status = %s, want failed", rec.Status)
	}
	if !strings.Contains(rec.ErrorMessage, "file corrupt") {
		t.Errorf("error message = %q", rec.ErrorMessage)
	}
	if std.called {
		t.Error("standardizer must not run after failed extraction")
	}
	if chk.called {
		t.Error("validator must not run after failed extraction")
	}
	if rec.FinishedAt.IsZero() {
		t.Error("failed record should still reach reporting and get a finish time")
	}
}

func TestRun_StandardizationErrorShortCircuits(t *testing.T) {
	chk := &fakeChecker{}
	o := NewOrchestrator(
		&fakeExtractor{text: "INVOICE raw text"},
		&fakeStandardizer{err: errors.New("translation agent reported error: not an invoice")},
		chk,
	)

	rec := o.Run(context.Background(), testJob(), "invoice_001.pdf")

	if rec.Status != models.StatusFailed {
		t.Errorf("status = %s, want failed", rec.Status)
	}
	if chk.called {
		t.Error("validator must not run after failed standardization")
	}
}

func TestRun_ZeroLineItemsIsValidatedNotFailed(t *testing.T) {
	o := NewOrchestrator(
		&fakeExtractor{text: "raw"},
		&fakeStandardizer{invoice: &models.StructuredInvoice{InvoiceNumber: "INV-1"}},
		&fakeChecker{},
	)

	rec := o.Run(context.Background(), testJob(), "invoice_001.pdf")

	if rec.Status != models.StatusCompleted {
		t.Errorf("status = %s, want completed", rec.Status)
	}
	if rec.Validation == nil {
		t.Fatal("validation report missing")
	}
	if rec.Validation.IsValid {
		t.Error("zero line items must not validate clean")
	}
	if rec.Validation.LinesChecked != 0 {
		t.Errorf("lines checked = %d", rec.Validation.LinesChecked)
	}
	if len(rec.Validation.Discrepancies) == 0 {
		t.Error("expected an explanatory discrepancy entry")
	}
}

func TestRun_AggregatesDiscrepanciesAndMismatches(t *testing.T) {
	invoice := &models.StructuredInvoice{
		LineItems: []models.LineItem{
			{ItemCode: "SKU-001", UnitPrice: 50, Currency: "USD"},
			{ItemCode: "SKU-002", UnitPrice: 12, Currency: "USD"},
			{ItemCode: "SKU-003", UnitPrice: 9, Currency: "USD"},
			{ItemCode: "SKU-004", UnitPrice: 7, Currency: "USD"},
		},
	}
	chk := &fakeChecker{results: map[string]crosscheck.Result{
		"SKU-001": {Status: crosscheck.OutcomeDiscrepancy, Reason: "price deviates more than 5%"},
		"SKU-002": {Status: crosscheck.OutcomeMatch},
		"SKU-003": {Status: crosscheck.OutcomeMismatch},
		"SKU-004": {Status: crosscheck.OutcomeWarning, Reason: "no PO history"},
	}}
	o := NewOrchestrator(&fakeExtractor{text: "raw"}, &fakeStandardizer{invoice: invoice}, chk)

	rec := o.Run(context.Background(), testJob(), "invoice_001.pdf")

	if rec.Status != models.StatusCompleted {
		t.Fatalf("status = %s", rec.Status)
	}
	v := rec.Validation
	if v.IsValid {
		t.Error("discrepancies present, report must be invalid")
	}
	if v.LinesChecked != 4 {
		t.Errorf("lines checked = %d, want 4", v.LinesChecked)
	}
	if len(v.Discrepancies) != 2 {
		t.Fatalf("discrepancies = %v, want 2 entries (warnings are not discrepancies)", v.Discrepancies)
	}
	if !strings.Contains(v.Discrepancies[0], "SKU-001") || !strings.Contains(v.Discrepancies[0], "deviates") {
		t.Errorf("discrepancy entry = %q", v.Discrepancies[0])
	}
	if !strings.Contains(v.Discrepancies[1], "SKU-003") || !strings.Contains(v.Discrepancies[1], "not found") {
		t.Errorf("mismatch entry = %q", v.Discrepancies[1])
	}
}

func TestRun_CleanInvoiceCompletesValid(t *testing.T) {
	invoice := &models.StructuredInvoice{
		LineItems: []models.LineItem{{ItemCode: "SKU-001", UnitPrice: 12, Currency: "USD"}},
	}
	o := NewOrchestrator(&fakeExtractor{text: "raw"}, &fakeStandardizer{invoice: invoice}, &fakeChecker{})

	rec := o.Run(context.Background(), testJob(), "invoice_001.pdf")

	if rec.Status != models.StatusCompleted {
		t.Errorf("status = %s", rec.Status)
	}
	if !rec.Validation.IsValid || len(rec.Validation.Discrepancies) != 0 {
		t.Errorf("validation = %+v", rec.Validation)
	}
}

func TestRun_IndexesExtractedTextAsync(t *testing.T) {
	ing := &fakeIngestor{}
	o := NewOrchestrator(
		&fakeExtractor{text: "INVOICE #999 Vendor: Acme Corp"},
		&fakeStandardizer{invoice: &models.StructuredInvoice{}},
		&fakeChecker{},
		WithIngestor(ing),
	)

	o.Run(context.Background(), testJob(), "invoice_001.pdf")
	o.WaitForIndexing()

	ing.mu.Lock()
	defer ing.mu.Unlock()
	if ing.text != "INVOICE #999 Vendor: Acme Corp" {
		t.Errorf("indexed text = %q", ing.text)
	}
	if ing.meta["filename"] != "invoice_001.pdf" {
		t.Errorf("filename metadata = %q", ing.meta["filename"])
	}
	if ing.meta["sender"] != "billing@acme.example" {
		t.Errorf("sidecar metadata not passed through: %v", ing.meta)
	}
}

type failingIngestor struct{}

func (failingIngestor) Ingest(context.Context, string, map[string]string) (int, error) {
	return 0, fmt.Errorf("index unavailable")
}

func TestRun_IndexingFailureDoesNotFailExtraction(t *testing.T) {
	o := NewOrchestrator(
		&fakeExtractor{text: "raw"},
		&fakeStandardizer{invoice: &models.StructuredInvoice{}},
		&fakeChecker{},
		WithIngestor(failingIngestor{}),
	)

	rec := o.Run(context.Background(), testJob(), "invoice_001.pdf")
	o.WaitForIndexing()

	if rec.Status != models.StatusCompleted {
		t.Errorf("status = %s, indexing failure must not fail the pipeline", rec.Status)
	}
}
