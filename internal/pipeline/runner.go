package pipeline

import (
	"context"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/openclerk/invoiceaudit/internal/inbox"
	"github.com/openclerk/invoiceaudit/internal/models"
)

// Runner drives the scan → process → archive cycle. One document's failure
// never stops the cycle; archival is attempted after every run, success or
// failure, so a poison document cannot block the queue.
type Runner struct {
	scheduler    *inbox.Scheduler
	orchestrator *Orchestrator
	interval     time.Duration
	nudges       <-chan struct{}
	logger       *zap.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithRunnerLogger sets the logger.
func WithRunnerLogger(logger *zap.Logger) RunnerOption {
	return func(r *Runner) { r.logger = logger }
}

// WithNudges wires a channel (typically from the inbox notifier) that
// triggers an immediate scan ahead of the poll interval.
func WithNudges(ch <-chan struct{}) RunnerOption {
	return func(r *Runner) { r.nudges = ch }
}

// NewRunner creates a runner polling at the given interval.
func NewRunner(scheduler *inbox.Scheduler, orchestrator *Orchestrator, interval time.Duration, opts ...RunnerOption) *Runner {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	r := &Runner{
		scheduler:    scheduler,
		orchestrator: orchestrator,
		interval:     interval,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run loops until ctx is canceled. A document already dequeued runs to a
// terminal state even during shutdown; cancellation is only honored between
// documents.
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.ProcessOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			r.orchestrator.WaitForIndexing()
			return ctx.Err()
		case <-ticker.C:
			r.ProcessOnce(ctx)
		case <-r.nudges:
			r.ProcessOnce(ctx)
		}
	}
}

// ProcessOnce scans the inbox and processes every discovered job in FIFO
// order, archiving each afterwards.
func (r *Runner) ProcessOnce(ctx context.Context) {
	jobs, err := r.scheduler.Scan()
	if err != nil {
		r.logger.Error("inbox scan failed", zap.Error(err))
		return
	}
	for _, job := range jobs {
		r.processJob(ctx, job)
	}
}

func (r *Runner) processJob(ctx context.Context, job *models.Job) {
	fileName := filepath.Base(job.SourcePath)
	rec := r.orchestrator.Run(ctx, job, fileName)

	r.logger.Info("document processed",
		zap.String("file", fileName),
		zap.String("status", string(rec.Status)))

	if err := r.scheduler.Archive(job.SourcePath); err != nil {
		// Non-fatal: the file is re-scanned next cycle (at-least-once).
		r.logger.Error("archive failed", zap.String("file", fileName), zap.Error(err))
	}
}
