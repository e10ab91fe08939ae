package vector

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// MemoryIndex is an in-memory index using brute-force inner product search.
// Knowledge bases here are reference documents (contracts, vendor policies),
// not web-scale corpora, so exact search is fast enough and keeps the node
// dependency-free.
type MemoryIndex struct {
	dimensions int
	points     []Point
	byID       map[string]int
	mu         sync.RWMutex
}

// NewMemoryIndex creates an in-memory index with the given dimension.
func NewMemoryIndex(dimensions int) (*MemoryIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	return &MemoryIndex{
		dimensions: dimensions,
		byID:       make(map[string]int),
	}, nil
}

// Upsert inserts points, replacing any existing point with the same ID so
// re-ingesting a document does not duplicate its chunks.
func (m *MemoryIndex) Upsert(_ context.Context, points []Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range points {
		if len(p.Vector) != m.dimensions {
			return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(p.Vector), m.dimensions)
		}
		cp := p
		cp.Vector = make([]float32, m.dimensions)
		copy(cp.Vector, p.Vector)
		if idx, ok := m.byID[p.ID]; ok {
			m.points[idx] = cp
			continue
		}
		m.byID[p.ID] = len(m.points)
		m.points = append(m.points, cp)
	}
	return nil
}

// Search returns the top-k points by inner product.
func (m *MemoryIndex) Search(_ context.Context, query []float32, k int) ([]*Hit, error) {
	if len(query) != m.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), m.dimensions)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if k <= 0 || len(m.points) == 0 {
		return nil, nil
	}
	hits := make([]*Hit, len(m.points))
	for i, p := range m.points {
		hits[i] = &Hit{
			ID:       p.ID,
			Score:    InnerProduct(query, p.Vector),
			Text:     p.Text,
			Metadata: p.Metadata,
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k], nil
}

// Remove deletes points by ID. Unknown IDs are ignored.
func (m *MemoryIndex) Remove(_ context.Context, ids []string) error {
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.points[:0]
	m.byID = make(map[string]int)
	for _, p := range m.points {
		if drop[p.ID] {
			continue
		}
		m.byID[p.ID] = len(kept)
		kept = append(kept, p)
	}
	m.points = kept
	return nil
}

// Save persists the index to path, creating the directory if needed.
/// Format: dimensions (u32), count (u32), then per point: id, text, metadata
// pair count and pairs (all length-prefixed strings), vector bytes.
func (m *MemoryIndex) Save(path string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	defer f.Close()

	if err := binary.Write(f, binary.LittleEndian, uint32(m.dimensions)); err != nil {
		return fmt.Errorf("write dimensions: %w", err)
	}
	if err := binary.Write(f, binary.LittleEndian, uint32(len(m.points))); err != nil {
		return fmt.Errorf("write count: %w", err)
	}
	for _, p := range m.points {
		if err := writeString(f, p.ID); err != nil {
			return fmt.Errorf("write id: %w", err)
		}
		if err := writeString(f, p.Text); err != nil {
			return fmt.Errorf("write text: %w", err)
		}
		if err := binary.Write(f, binary.LittleEndian, uint32(len(p.Metadata))); err != nil {
			return fmt.Errorf("write metadata count: %w", err)
		}
		keys := make([]string, 0, len(p.Metadata))
		for k := range p.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if err := writeString(f, k); err != nil {
				return fmt.Errorf("write metadata key: %w", err)
			}
			if err := writeString(f, p.Metadata[k]); err != nil {
				return fmt.Errorf("write metadata value: %w", err)
			}
		}
		if _, err := f.Write(float32SliceToBytes(p.Vector)); err != nil {
			return fmt.Errorf("write vector: %w", err)
		}
	}
	return nil
}

// Load reads the index from path, replacing in-memory contents. Dimensions
// must match. A missing file is not an error; the index is left empty.
func (m *MemoryIndex) Load(path string) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open index file: %w", err)
	}
	defer f.Close()

	var dim, n uint32
	if err := binary.Read(f, binary.LittleEndian, &dim); err != nil {
		return fmt.Errorf("read dimensions: %w", err)
	}
	if int(dim) != m.dimensions {
		return fmt.Errorf("dimension mismatch: file has %d, index expects %d", dim, m.dimensions)
	}
	if err := binary.Read(f, binary.LittleEndian, &n); err != nil {
		return fmt.Errorf("read count: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.points = make([]Point, 0, n)
	m.byID = make(map[string]int, n)
	vecBuf := make([]byte, m.dimensions*4)
	for i := uint32(0); i < n; i++ {
		id, err := readString(f)
		if err != nil {
			return fmt.Errorf("read id: %w", err)
		}
		text, err := readString(f)
		if err != nil {
			return fmt.Errorf("read text: %w", err)
		}
		var pairs uint32
		if err := binary.Read(f, binary.LittleEndian, &pairs); err != nil {
			return fmt.Errorf("read metadata count: %w", err)
		}
		var meta map[string]string
		if pairs > 0 {
			meta = make(map[string]string, pairs)
			for j := uint32(0); j < pairs; j++ {
				k, err := readString(f)
				if err != nil {
					return fmt.Errorf("read metadata key: %w", err)
				}
				v, err := readString(f)
				if err != nil {
					return fmt.Errorf("read metadata value: %w", err)
				}
				meta[k] = v
			}
		}
		if _, err := io.ReadFull(f, vecBuf); err != nil {
			return fmt.Errorf("read vector: %w", err)
		}
		m.byID[id] = len(m.points)
		m.points = append(m.points, Point{
			ID:       id,
			Vector:   bytesToFloat32Slice(vecBuf),
			Text:     text,
			Metadata: meta,
		})
	}
	return nil
}

// Size returns the number of points in the index.
func (m *MemoryIndex) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.points)
}

// Close is a no-op for MemoryIndex.
func (m *MemoryIndex) Close() error {
	return nil
}

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(s))); err != nil {
		return err
	}
	_, err := w.Write([]byte(s))
	return err
}

func readString(r io.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func float32SliceToBytes(s []float32) []byte {
	out := make([]byte, len(s)*4)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*4:(i+1)*4], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4 : (i+1)*4]))
	}
	return out
}
