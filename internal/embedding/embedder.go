// Package embedding produces vector embeddings for knowledge base chunks and
// audit queries. The real implementation runs a sentence-transformer ONNX
// model; when the model or runtime is unavailable a deterministic hash-based
// embedder keeps the rest of the system functional.
package embedding

import (
	"context"

	"go.uber.org/zap"
)

// Embedder produces vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}

// New returns the best available embedder for the given model path. It tries
// the ONNX runtime first and falls back to the hash embedder, logging the
// reason, so an audit node without onnxruntime installed still starts.
func New(modelPath string, dimensions, maxTokens, cacheSize int, logger *zap.Logger) Embedder {
	e, err := NewONNXEmbedder(modelPath, dimensions, maxTokens, cacheSize)
	if err != nil {
		logger.Warn("ONNX embedder unavailable, using hash embedder",
			zap.String("model", modelPath),
			zap.Error(err))
		return NewHashEmbedder(dimensions)
	}
	logger.Info("ONNX embedder initialized",
		zap.String("model", modelPath),
		zap.Int("dimensions", dimensions))
	return e
}
