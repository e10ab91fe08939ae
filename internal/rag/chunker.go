// Package rag implements the retrieval-augmented knowledge engine: chunking
// and indexing of document text, semantic retrieval, listwise LLM re-ranking,
// answer synthesis, and answer self-evaluation.
package rag

import "strings"

const (
	// DefaultChunkSize and DefaultChunkOverlap give enough local context for
	// invoice clauses while keeping embeddings focused.
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// Chunker splits text into overlapping chunks, cutting preferentially at
// paragraph, then line, then word boundaries so sentences survive intact at
// chunk edges.
type Chunker struct {
	size    int
	overlap int
}

// NewChunker creates a chunker with the given target size and overlap in
// characters. Non-positive values fall back to the defaults.
func NewChunker(size, overlap int) *Chunker {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = DefaultChunkOverlap
		if overlap >= size {
			overlap = size / 5
		}
	}
	return &Chunker{size: size, overlap: overlap}
}

// Split returns the chunks of text. Whitespace-only text yields no chunks;
// text within the target size is returned whole. All positions are measured
// in runes, never bytes, so multibyte text is never cut mid-character.
func (c *Chunker) Split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	runes := []rune(text)
	if len(runes) <= c.size {
		return []string{text}
	}

	var chunks []string
	start := 0
	for start < len(runes) {
		if start+c.size >= len(runes) {
			if tail := strings.TrimSpace(string(runes[start:])); tail != "" {
				chunks = append(chunks, tail)
			}
			break
		}
		end := start + c.cut(runes[start:start+c.size])
		if chunk := strings.TrimSpace(string(runes[start:end])); chunk != "" {
			chunks = append(chunks, chunk)
		}
		next := end - c.overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks
}

// cut returns the split position within window: after the last paragraph
// break if one exists past the midpoint, else the last line break, else the
// last space, else the full window. The midpoint floor avoids degenerate
// chunks when a boundary sits near the window start.
func (c *Chunker) cut(window []rune) int {
	for _, sep := range [][]rune{{'\n', '\n'}, {'\n'}, {' '}} {
		if i := lastIndexRunes(window, sep); i > len(window)/2 {
			return i + len(sep)
		}
	}
	return len(window)
}

// lastIndexRunes is strings.LastIndex over rune slices.
func lastIndexRunes(window, sep []rune) int {
	for i := len(window) - len(sep); i >= 0; i-- {
		match := true
		for j := range sep {
			if window[i+j] != sep[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}
