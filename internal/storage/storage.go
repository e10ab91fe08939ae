// Package storage defines persistence for processing records and knowledge
// base chunks.
package storage

import (
	"context"
	"errors"

	"github.com/openclerk/invoiceaudit/internal/models"
)

// ErrNotFound reports a record ID with no stored row.
var ErrNotFound = errors.New("record not found")

// Chunk is one persisted knowledge base chunk. The vector index holds the
// embedding; this row is the durable source of the text and its provenance.
type Chunk struct {
	ID         string
	Source     string
	Content    string
	ChunkIndex int
}

// Storage defines record and chunk persistence operations.
type Storage interface {
	// Record operations
	SaveRecord(ctx context.Context, rec *models.ProcessingRecord) error
	GetRecord(ctx context.Context, id string) (*models.ProcessingRecord, error)
	ListRecords(ctx context.Context, offset, limit int) ([]*models.ProcessingRecord, error)
	CountRecordsByStatus(ctx context.Context) (map[models.Status]int64, error)

	// Knowledge chunk operations
	BatchCreateChunks(ctx context.Context, chunks []*Chunk) error
	GetChunksBySource(ctx context.Context, source string) ([]*Chunk, error)
	DeleteChunksBySource(ctx context.Context, source string) error
	CountChunks(ctx context.Context) (int64, error)

	Close() error
}
