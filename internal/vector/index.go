// Package vector provides vector storage and similarity search over knowledge
// base chunks. Each stored point carries its chunk text and metadata so search
// hits are self-contained.
package vector

import "context"

// Point is a stored chunk: its embedding plus the payload needed to use a hit
// without a second lookup.
type Point struct {
	ID       string
	Vector   []float32
	Text     string
	Metadata map[string]string
}

// Hit is a single search result.
type Hit struct {
	ID       string
	Score    float64 // inner product; cosine similarity for normalized vectors
	Text     string
	Metadata map[string]string
}

// Index defines vector storage and nearest-neighbor search.
type Index interface {
	Upsert(ctx context.Context, points []Point) error
	Search(ctx context.Context, query []float32, k int) ([]*Hit, error)
	Remove(ctx context.Context, ids []string) error
	Save(path string) error
	Load(path string) error
	Size() int
	Close() error
}
