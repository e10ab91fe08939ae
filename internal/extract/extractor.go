// Package extract provides text extraction from invoice document formats.
package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// UnsupportedFormat is the sentinel prefix returned (as text, not an error)
// when a file's format has no extraction path. Downstream stages surface it in
// the raw text rather than aborting the pipeline.
const UnsupportedFormat = "[ERROR] Unsupported file format for text extraction:"

// Extractor extracts plain text from invoice files.
type Extractor struct{}

// NewExtractor returns a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract reads the file at path and returns its text content.
// PDF pages are delimited with page markers; pages without extractable text
// are marked inline so page count is preserved. Plain text formats (.txt,
// .md, .json) are returned as-is (UTF-8 repaired). DOCX and XLSX are parsed
// from their binary formats. A missing file returns an error wrapping
// os.ErrNotExist; an unrecognized extension returns the UnsupportedFormat
// sentinel as text.
func (e *Extractor) Extract(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	ext := strings.ToLower(filepath.Ext(path))
	return e.ExtractBytes(content, ext)
}

// ExtractBytes extracts text from content based on the given extension.
// ext should include the leading dot (e.g. ".pdf").
func (e *Extractor) ExtractBytes(content []byte, ext string) (string, error) {
	switch ext {
	case ".pdf":
		return extractPDF(content)
	case ".docx":
		return extractDOCX(content)
	case ".xlsx":
		return extractExcel(content)
	case ".txt", ".md", ".json":
		return extractPlain(content)
	default:
		return fmt.Sprintf("%s %s", UnsupportedFormat, ext), nil
	}
}
