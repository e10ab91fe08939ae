// Package pipeline drives each document through the audit state machine:
// pending → extracted → translated → validated → completed, with failed
// reachable from the first three stages and short-circuiting to reporting.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/openclerk/invoiceaudit/internal/crosscheck"
	"github.com/openclerk/invoiceaudit/internal/models"
	"github.com/openclerk/invoiceaudit/internal/standardize"
	"github.com/openclerk/invoiceaudit/internal/storage"
)

// Stage identifies one stage function of the state machine.
type Stage string

const (
	StageExtract     Stage = "extract"
	StageStandardize Stage = "standardize"
	StageValidate    Stage = "validate"
	StageReport      Stage = "report"
	// StageDone means the record is terminal and no stage should run.
	StageDone Stage = "done"
)

// Extractor extracts text from a document file.
type Extractor interface {
	Extract(path string) (string, error)
}

// Standardizer turns raw invoice text into a structured invoice.
type Standardizer interface {
	Standardize(ctx context.Context, rawText string, metadata map[string]string) (*standardize.Result, error)
}

// Ingestor indexes document text into the knowledge engine.
type Ingestor interface {
	Ingest(ctx context.Context, text string, metadata map[string]string) (int, error)
}

// Checker cross-checks one line item against reference data.
type Checker interface {
	CheckLineItem(itemCode string, unitPrice float64, currency string) crosscheck.Result
}

// Reporter writes report artifacts for a terminal record.
type Reporter interface {
	Write(rec *models.ProcessingRecord) error
}

// NextStage is the routing rule of the state machine. Failed records route to
// reporting from any stage; validate unconditionally proceeds to report.
func NextStage(s models.Status) Stage {
	switch s {
	case models.StatusPending:
		return StageExtract
	case models.StatusExtracted:
		return StageStandardize
	case models.StatusTranslated:
		return StageValidate
	case models.StatusValidated, models.StatusFailed:
		return StageReport
	default:
		return StageDone
	}
}

// Orchestrator runs the stage functions over a ProcessingRecord. Each run owns
// its record exclusively; stages mutate it in place.
type Orchestrator struct {
	extractor    Extractor
	standardizer Standardizer
	ingestor     Ingestor
	checker      Checker
	reporter     Reporter
	store        storage.Storage
	logger       *zap.Logger
	ingestWG     sync.WaitGroup
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithIngestor enables asynchronous knowledge indexing after extraction.
func WithIngestor(ing Ingestor) Option {
	return func(o *Orchestrator) { o.ingestor = ing }
}

// WithReporter enables report artifact writing at the terminal stage.
func WithReporter(rep Reporter) Option {
	return func(o *Orchestrator) { o.reporter = rep }
}

// WithStorage enables record persistence after every stage.
func WithStorage(store storage.Storage) Option {
	return func(o *Orchestrator) { o.store = store }
}

// NewOrchestrator creates an orchestrator over the given collaborators.
func NewOrchestrator(extractor Extractor, standardizer Standardizer, checker Checker, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		extractor:    extractor,
		standardizer: standardizer,
		checker:      checker,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run processes one job to a terminal status. Stage errors become status
// transitions, never returned errors; every document reaches reporting.
func (o *Orchestrator) Run(ctx context.Context, job *models.Job, fileName string) *models.ProcessingRecord {
	rec := models.NewProcessingRecord(job, fileName)
	o.persist(ctx, rec)

	for {
		stage := NextStage(rec.Status)
		switch stage {
		case StageExtract:
			o.stageExtract(ctx, rec)
		case StageStandardize:
			o.stageStandardize(ctx, rec)
		case StageValidate:
			o.stageValidate(rec)
		case StageReport:
			o.stageReport(rec)
			o.persist(ctx, rec)
			return rec
		case StageDone:
			return rec
		}
		o.persist(ctx, rec)
	}
}

// stageExtract pulls text out of the source file and hands it to the
// knowledge engine in the background. Indexing failure never fails
// extraction; extraction errors are never retried.
func (o *Orchestrator) stageExtract(ctx context.Context, rec *models.ProcessingRecord) {
	o.logger.Info("stage: extraction", zap.String("file", rec.FileName))
	rec.CurrentStage = string(StageExtract)

	text, err := o.extractor.Extract(rec.FilePath)
	if err != nil {
		o.logger.Error("extraction failed", zap.String("file", rec.FileName), zap.Error(err))
		rec.Fail(fmt.Sprintf("extraction error: %v", err))
		return
	}
	rec.RawText = text
	rec.Status = models.StatusExtracted

	if o.ingestor != nil {
		meta := map[string]string{"filename": rec.FileName}
		for k, v := range rec.Metadata {
			meta[k] = v
		}
		o.ingestWG.Add(1)
		go func() {
			defer o.ingestWG.Done()
			if _, err := o.ingestor.Ingest(context.WithoutCancel(ctx), text, meta); err != nil {
				o.logger.Warn("knowledge indexing failed",
					zap.String("file", rec.FileName), zap.Error(err))
			}
		}()
	}
}

// stageStandardize calls the translation agent. A transport failure, schema
// violation, or embedded error field all fail the record.
func (o *Orchestrator) stageStandardize(ctx context.Context, rec *models.ProcessingRecord) {
	o.logger.Info("stage: standardization", zap.String("file", rec.FileName))
	rec.CurrentStage = string(StageStandardize)

	res, err := o.standardizer.Standardize(ctx, rec.RawText, rec.Metadata)
	if err != nil {
		o.logger.Error("standardization failed", zap.String("file", rec.FileName), zap.Error(err))
		rec.Fail(fmt.Sprintf("standardization error: %v", err))
		return
	}
	rec.Invoice = res.Invoice
	rec.Status = models.StatusTranslated
}

// stageValidate cross-checks every line item. Missing line items are a
// data-quality outcome, not a failure: the record still advances to validated
// with a negative report so it reaches reporting.
func (o *Orchestrator) stageValidate(rec *models.ProcessingRecord) {
	o.logger.Info("stage: validation", zap.String("file", rec.FileName))
	rec.CurrentStage = string(StageValidate)

	if rec.Invoice == nil || len(rec.Invoice.LineItems) == 0 {
		rec.Validation = &models.ValidationReport{
			IsValid:       false,
			Discrepancies: []string{"no line items extracted"},
			LinesChecked:  0,
		}
		rec.Status = models.StatusValidated
		return
	}

	var discrepancies []string
	for _, item := range rec.Invoice.LineItems {
		code := item.ItemCode
		if code == "" {
			code = "UNKNOWN"
		}
		currency := item.Currency
		if currency == "" {
			currency = "USD"
		}

		res := o.checker.CheckLineItem(code, item.UnitPrice, currency)
		switch res.Status {
		case crosscheck.OutcomeDiscrepancy:
			discrepancies = append(discrepancies, fmt.Sprintf("Item %s: %s", code, res.Reason))
		case crosscheck.OutcomeMismatch:
			discrepancies = append(discrepancies, fmt.Sprintf("Item %s: SKU not found in item master", code))
		}
	}

	rec.Validation = models.NewValidationReport(discrepancies, len(rec.Invoice.LineItems))
	rec.Status = models.StatusValidated
}

// stageReport is terminal. An already-failed record is left as-is apart from
// its finish time; otherwise the verdict derives from the validation report
// and the record completes.
func (o *Orchestrator) stageReport(rec *models.ProcessingRecord) {
	o.logger.Info("stage: reporting", zap.String("file", rec.FileName))
	rec.CurrentStage = string(StageReport)

	if rec.Status == models.StatusFailed {
		o.logger.Error("final verdict: system failure",
			zap.String("file", rec.FileName),
			zap.String("reason", rec.ErrorMessage))
	} else {
		if rec.Validation != nil && rec.Validation.IsValid {
			o.logger.Info("final verdict: approved", zap.String("file", rec.FileName))
		} else {
			o.logger.Warn("final verdict: needs review", zap.String("file", rec.FileName))
			if rec.Validation != nil {
				for _, d := range rec.Validation.Discrepancies {
					o.logger.Warn("discrepancy", zap.String("file", rec.FileName), zap.String("issue", d))
				}
			}
		}
		rec.Status = models.StatusCompleted
	}
	rec.FinishedAt = time.Now()

	if o.reporter != nil {
		if err := o.reporter.Write(rec); err != nil {
			o.logger.Error("report artifacts failed",
				zap.String("file", rec.FileName), zap.Error(err))
		}
	}
}

// persist saves the record state; persistence failure is logged, never fatal.
func (o *Orchestrator) persist(ctx context.Context, rec *models.ProcessingRecord) {
	if o.store == nil {
		return
	}
	if err := o.store.SaveRecord(ctx, rec); err != nil {
		o.logger.Error("persist record failed", zap.String("file", rec.FileName), zap.Error(err))
	}
}

// WaitForIndexing blocks until in-flight background indexing completes. Used
// on shutdown so the vector index snapshot is complete.
func (o *Orchestrator) WaitForIndexing() {
	o.ingestWG.Wait()
}
