package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/openclerk/invoiceaudit/internal/models"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and
// initializes the schema. Parent directories are created if needed.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS records (
		id TEXT PRIMARY KEY,
		file_name TEXT NOT NULL,
		file_path TEXT NOT NULL,
		metadata TEXT,
		invoice TEXT,
		validation TEXT,
		current_stage TEXT NOT NULL,
		status TEXT NOT NULL,
		error_message TEXT,
		started_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_records_status ON records(status);
	CREATE INDEX IF NOT EXISTS idx_records_started_at ON records(started_at);

	CREATE TABLE IF NOT EXISTS knowledge_chunks (
		id TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		content TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_chunks_source ON knowledge_chunks(source);
	CREATE INDEX IF NOT EXISTS idx_chunks_source_index ON knowledge_chunks(source, chunk_index);
	`
	_, err := db.Exec(schema)
	return err
}

// SaveRecord upserts a processing record. The pipeline saves after every
// stage transition, so the row always reflects the latest state.
func (s *SQLiteStorage) SaveRecord(ctx context.Context, rec *models.ProcessingRecord) error {
	metadataJSON, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	var invoiceJSON, validationJSON []byte
	if rec.Invoice != nil {
		if invoiceJSON, err = json.Marshal(rec.Invoice); err != nil {
			return fmt.Errorf("marshal invoice: %w", err)
		}
	}
	if rec.Validation != nil {
		if validationJSON, err = json.Marshal(rec.Validation); err != nil {
			return fmt.Errorf("marshal validation: %w", err)
		}
	}

	var finishedAt any
	if !rec.FinishedAt.IsZero() {
		finishedAt = rec.FinishedAt
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO records (id, file_name, file_path, metadata, invoice, validation,
		                      current_stage, status, error_message, started_at, finished_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   metadata = excluded.metadata,
		   invoice = excluded.invoice,
		   validation = excluded.validation,
		   current_stage = excluded.current_stage,
		   status = excluded.status,
		   error_message = excluded.error_message,
		   finished_at = excluded.finished_at,
		   updated_at = excluded.updated_at`,
		rec.ID, rec.FileName, rec.FilePath, string(metadataJSON), nullableJSON(invoiceJSON),
		nullableJSON(validationJSON), rec.CurrentStage, string(rec.Status), rec.ErrorMessage,
		rec.StartedAt, finishedAt, time.Now(),
	)
	return err
}

// GetRecord returns a record by ID.
func (s *SQLiteStorage) GetRecord(ctx context.Context, id string) (*models.ProcessingRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, file_name, file_path, metadata, invoice, validation,
		        current_stage, status, error_message, started_at, finished_at
		 FROM records WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rec, err
}

// ListRecords returns records ordered by most recently started.
func (s *SQLiteStorage) ListRecords(ctx context.Context, offset, limit int) ([]*models.ProcessingRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, file_name, file_path, metadata, invoice, validation,
		        current_stage, status, error_message, started_at, finished_at
		 FROM records ORDER BY started_at DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []*models.ProcessingRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// CountRecordsByStatus returns record counts grouped by status.
func (s *SQLiteStorage) CountRecordsByStatus(ctx context.Context) (map[models.Status]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM records GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[models.Status]int64)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[models.Status(status)] = n
	}
	return counts, rows.Err()
}

// BatchCreateChunks inserts chunks in one transaction, replacing rows with
// the same ID.
func (s *SQLiteStorage) BatchCreateChunks(ctx context.Context, chunks []*Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO knowledge_chunks (id, source, content, chunk_index, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now()
	for _, c := range chunks {
		if _, err := stmt.ExecContext(ctx, c.ID, c.Source, c.Content, c.ChunkIndex, now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetChunksBySource returns all chunks of a source document in order.
func (s *SQLiteStorage) GetChunksBySource(ctx context.Context, source string) ([]*Chunk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source, content, chunk_index
		 FROM knowledge_chunks WHERE source = ? ORDER BY chunk_index`,
		source,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []*Chunk
	for rows.Next() {
		var c Chunk
		if err := rows.Scan(&c.ID, &c.Source, &c.Content, &c.ChunkIndex); err != nil {
			return nil, err
		}
		chunks = append(chunks, &c)
	}
	return chunks, rows.Err()
}

// DeleteChunksBySource removes all chunks of a source document.
func (s *SQLiteStorage) DeleteChunksBySource(ctx context.Context, source string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM knowledge_chunks WHERE source = ?`, source)
	return err
}

// CountChunks returns the total number of knowledge chunks.
func (s *SQLiteStorage) CountChunks(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM knowledge_chunks`).Scan(&count)
	return count, err
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.ProcessingRecord, error) {
	var rec models.ProcessingRecord
	var metadataJSON string
	var invoiceJSON, validationJSON, errorMessage sql.NullString
	var finishedAt sql.NullTime

	err := row.Scan(&rec.ID, &rec.FileName, &rec.FilePath, &metadataJSON, &invoiceJSON,
		&validationJSON, &rec.CurrentStage, &rec.Status, &errorMessage, &rec.StartedAt, &finishedAt)
	if err != nil {
		return nil, err
	}

	if metadataJSON != "" {
		if err := json.Unmarshal([]byte(metadataJSON), &rec.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	if invoiceJSON.Valid && invoiceJSON.String != "" {
		rec.Invoice = &models.StructuredInvoice{}
		if err := json.Unmarshal([]byte(invoiceJSON.String), rec.Invoice); err != nil {
			return nil, fmt.Errorf("unmarshal invoice: %w", err)
		}
	}
	if validationJSON.Valid && validationJSON.String != "" {
		rec.Validation = &models.ValidationReport{}
		if err := json.Unmarshal([]byte(validationJSON.String), rec.Validation); err != nil {
			return nil, fmt.Errorf("unmarshal validation: %w", err)
		}
	}
	rec.ErrorMessage = errorMessage.String
	if finishedAt.Valid {
		rec.FinishedAt = finishedAt.Time
	}
	return &rec, nil
}

func nullableJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
