// Package report writes per-document audit report artifacts. Each processed
// document gets a JSON report, an HTML rendering, and a Markdown snippet, all
// reflecting the final processing record. These are write-only targets; the
// core never reads them back.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/openclerk/invoiceaudit/internal/models"
)

// Renderer renders one processing record into report bytes.
type Renderer interface {
	Render(rec *models.ProcessingRecord) ([]byte, error)
	Extension() string
}

// Writer writes report artifacts for terminal records into a directory.
type Writer struct {
	dir       string
	renderers []Renderer
	logger    *zap.Logger
}

// Option configures a Writer.
type Option func(*Writer)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(w *Writer) { w.logger = logger }
}

// WithRenderers replaces the default renderer set.
func WithRenderers(renderers ...Renderer) Option {
	return func(w *Writer) { w.renderers = renderers }
}

// NewWriter creates a report writer targeting dir, which is created if
// missing. By default it writes JSON, HTML, and Markdown artifacts.
func NewWriter(dir string, opts ...Option) (*Writer, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create reports dir: %w", err)
	}
	w := &Writer{
		dir:       dir,
		renderers: []Renderer{&JSONRenderer{}, &HTMLRenderer{}, &MarkdownRenderer{}},
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Write renders every artifact for the record. Individual renderer failures
// are logged and do not block the remaining artifacts; the first error is
// returned after all renderers ran.
func (w *Writer) Write(rec *models.ProcessingRecord) error {
	stem := strings.TrimSuffix(rec.FileName, filepath.Ext(rec.FileName))
	var firstErr error
	for _, r := range w.renderers {
		data, err := r.Render(rec)
		if err == nil {
			path := filepath.Join(w.dir, stem+".report."+r.Extension())
			err = os.WriteFile(path, data, 0644)
		}
		if err != nil {
			w.logger.Error("write report artifact failed",
				zap.String("file", rec.FileName),
				zap.String("format", r.Extension()),
				zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// verdict summarizes the terminal outcome for human-facing artifacts.
func verdict(rec *models.ProcessingRecord) string {
	switch {
	case rec.Status == models.StatusFailed:
		return "SYSTEM FAILURE"
	case rec.Validation != nil && rec.Validation.IsValid:
		return "APPROVED"
	default:
		return "NEEDS REVIEW"
	}
}
