// Package models defines core data structures for jobs, processing records, and reports.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Status is the processing state of a document as it moves through the pipeline.
type Status string

const (
	StatusPending    Status = "pending"
	StatusExtracted  Status = "extracted"
	StatusTranslated Status = "translated"
	StatusValidated  Status = "validated"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further stage may run after this status.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Job is one discovered, not-yet-processed document plus its optional sidecar metadata.
// Jobs are consumed exactly once and archived after the pipeline run, success or failure.
type Job struct {
	SourcePath   string            `json:"source_path"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	DiscoveredAt time.Time         `json:"discovered_at"`
}

// ProcessingRecord is the unit threaded through the pipeline. It is exclusively
// owned by one pipeline run; stages mutate it in place and return it.
type ProcessingRecord struct {
	ID           string             `json:"id" db:"id"`
	FileName     string             `json:"file_name" db:"file_name"`
	FilePath     string             `json:"file_path" db:"file_path"`
	Metadata     map[string]string  `json:"metadata,omitempty" db:"metadata"`
	RawText      string             `json:"raw_text,omitempty" db:"raw_text"`
	Invoice      *StructuredInvoice `json:"invoice,omitempty" db:"-"`
	Validation   *ValidationReport  `json:"validation,omitempty" db:"-"`
	CurrentStage string             `json:"current_stage" db:"current_stage"`
	Status       Status             `json:"status" db:"status"`
	ErrorMessage string             `json:"error_message,omitempty" db:"error_message"`
	StartedAt    time.Time          `json:"started_at" db:"started_at"`
	FinishedAt   time.Time          `json:"finished_at,omitempty" db:"finished_at"`
}

// NewProcessingRecord creates a pending record for the given job.
func NewProcessingRecord(job *Job, fileName string) *ProcessingRecord {
	return &ProcessingRecord{
		ID:           uuid.NewString(),
		FileName:     fileName,
		FilePath:     job.SourcePath,
		Metadata:     job.Metadata,
		CurrentStage: "start",
		Status:       StatusPending,
		StartedAt:    time.Now(),
	}
}

// Fail marks the record failed with the given message. Extraction and
// standardization errors land here; failed records skip straight to reporting.
func (r *ProcessingRecord) Fail(msg string) {
	r.Status = StatusFailed
	r.ErrorMessage = msg
}
