package embedding

import (
	"context"
	"math"
	"testing"
)

func TestHashEmbedder_Deterministic(t *testing.T) {
	e := NewHashEmbedder(32)
	a, err := e.Embed(context.Background(), "net 30 payment terms")
	if err != nil {
		t.Fatal(err)
	}
	b, err := e.Embed(context.Background(), "net 30 payment terms")
	if err != nil {
		t.Fatal(err)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("embeddings differ at %d", i)
		}
	}

	var norm float64
	for _, v := range a {
		norm += float64(v) * float64(v)
	}
	if math.Abs(norm-1.0) > 1e-5 {
		t.Errorf("norm = %f, want 1.0", norm)
	}
}

func TestHashEmbedder_Batch(t *testing.T) {
	e := NewHashEmbedder(16)
	out, err := e.EmbedBatch(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 2 || len(out[0]) != 16 {
		t.Errorf("unexpected shape: %d x %d", len(out), len(out[0]))
	}
	if e.Dimensions() != 16 {
		t.Errorf("Dimensions() = %d", e.Dimensions())
	}
}
