package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/openclerk/invoiceaudit/internal/embedding"
	"github.com/openclerk/invoiceaudit/internal/llm"
	"github.com/openclerk/invoiceaudit/internal/models"
	"github.com/openclerk/invoiceaudit/internal/storage"
	"github.com/openclerk/invoiceaudit/internal/vector"
	"github.com/openclerk/invoiceaudit/pkg/utils"
)

// candidatePreview is how much of each chunk the reranking prompt shows.
const candidatePreview = 200

// Engine composes the retrieve, re-rank, generate, and reflect steps over a
// vector knowledge store.
type Engine struct {
	embedder     embedding.Embedder
	index        vector.Index
	store        storage.Storage
	llm          llm.Client
	chunker      *Chunker
	topK         int
	minPassScore float64
	logger       *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithChunking overrides chunk size and overlap.
func WithChunking(size, overlap int) Option {
	return func(e *Engine) { e.chunker = NewChunker(size, overlap) }
}

// WithTopK sets how many chunks retrieval returns.
func WithTopK(k int) Option {
	return func(e *Engine) {
		if k > 0 {
			e.topK = k
		}
	}
}

// WithMinPassScore sets the overall score below which an evaluation does not pass.
func WithMinPassScore(s float64) Option {
	return func(e *Engine) { e.minPassScore = s }
}

// WithStorage sets durable chunk persistence alongside the vector index.
func WithStorage(store storage.Storage) Option {
	return func(e *Engine) { e.store = store }
}

// NewEngine creates a knowledge engine over the given embedder, index, and
// completion client.
func NewEngine(embedder embedding.Embedder, index vector.Index, client llm.Client, opts ...Option) *Engine {
	e := &Engine{
		embedder:     embedder,
		index:        index,
		llm:          client,
		chunker:      NewChunker(DefaultChunkSize, DefaultChunkOverlap),
		topK:         5,
		minPassScore: 0.7,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Ingest chunks text, embeds each chunk, and upserts them into the knowledge
// store tagged with the source filename, chunk index, and pass-through
// metadata. Chunk IDs are derived from source and index so re-ingesting a
// document replaces its chunks; points left over from a longer prior version
// are removed. Returns the number of chunks indexed.
func (e *Engine) Ingest(ctx context.Context, text string, metadata map[string]string) (int, error) {
	source := metadata["filename"]
	chunks := e.chunker.Split(text)
	if len(chunks) == 0 {
		return 0, nil
	}

	vectors, err := e.embedder.EmbedBatch(ctx, chunks)
	if err != nil {
		return 0, fmt.Errorf("embed chunks: %w", err)
	}

	points := make([]vector.Point, len(chunks))
	rows := make([]*storage.Chunk, len(chunks))
	for i, chunk := range chunks {
		meta := make(map[string]string, len(metadata)+1)
		for k, v := range metadata {
			meta[k] = v
		}
		meta["chunk_index"] = fmt.Sprintf("%d", i)
		id := fmt.Sprintf("%s#%d", source, i)
		points[i] = vector.Point{ID: id, Vector: vectors[i], Text: chunk, Metadata: meta}
		rows[i] = &storage.Chunk{ID: id, Source: source, Content: chunk, ChunkIndex: i}
	}

	// A re-ingested document may shrink: index points past the new chunk
	// count would otherwise linger, since the upsert only replaces matching
	// IDs. Prior rows tell us which IDs existed before.
	if e.store != nil {
		if prior, err := e.store.GetChunksBySource(ctx, source); err == nil && len(prior) > 0 {
			var stale []string
			for _, old := range prior {
				if old.ChunkIndex >= len(chunks) {
					stale = append(stale, old.ID)
				}
			}
			if len(stale) > 0 {
				if err := e.index.Remove(ctx, stale); err != nil {
					e.logger.Warn("stale chunk removal failed",
						zap.String("source", source), zap.Error(err))
				}
			}
			if err := e.store.DeleteChunksBySource(ctx, source); err != nil {
				e.logger.Warn("stale chunk delete failed",
					zap.String("source", source), zap.Error(err))
			}
		}
	}

	if err := e.index.Upsert(ctx, points); err != nil {
		return 0, fmt.Errorf("upsert chunks: %w", err)
	}
	if e.store != nil {
		if err := e.store.BatchCreateChunks(ctx, rows); err != nil {
			return 0, fmt.Errorf("persist chunks: %w", err)
		}
	}

	e.logger.Info("indexed document",
		zap.String("source", source),
		zap.Int("chunks", len(chunks)))
	return len(chunks), nil
}

// Retrieve embeds the query and returns up to limit chunks ordered by
// descending similarity. Rank is left unset; only re-ranking assigns it.
func (e *Engine) Retrieve(ctx context.Context, query string, limit int) ([]models.RetrievedChunk, error) {
	if limit <= 0 {
		limit = e.topK
	}
	qvec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	hits, err := e.index.Search(ctx, qvec, limit)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}
	chunks := make([]models.RetrievedChunk, len(hits))
	for i, h := range hits {
		chunks[i] = models.RetrievedChunk{
			Text:     h.Text,
			Score:    h.Score,
			Metadata: h.Metadata,
		}
	}
	return chunks, nil
}

// Rerank asks the completion model to reorder the candidates by relevance
// (listwise re-ranking). The new order is parsed from a bracketed index list
// in the reply; out-of-range indices are dropped and ranks are reassigned
// position+1. Any failure to obtain or parse the reply falls back to the
// original similarity order; re-ranking never fails the request.
func (e *Engine) Rerank(ctx context.Context, query string, chunks []models.RetrievedChunk) []models.RetrievedChunk {
	if len(chunks) == 0 {
		return chunks
	}

	var candidates strings.Builder
	for i, c := range chunks {
		fmt.Fprintf(&candidates, "[%d] %s\n", i, utils.Truncate(c.Text, candidatePreview))
	}

	prompt := fmt.Sprintf(`You are a relevance ranking system.
QUERY: %s

CANDIDATES:
%s
Task: Rank the candidates by relevance to the query.
Return ONLY a list of indices in order of relevance, e.g., [0, 2, 1].`, query, candidates.String())

	reply, err := e.llm.Complete(ctx, prompt)
	if err != nil {
		e.logger.Warn("reranking failed, returning original order", zap.Error(err))
		return chunks
	}

	indices, ok := parseIndexList(reply)
	if !ok {
		e.logger.Warn("reranking reply not parseable, returning original order",
			zap.String("reply", utils.Truncate(reply, 200)))
		return chunks
	}

	ranked := make([]models.RetrievedChunk, 0, len(chunks))
	for _, idx := range indices {
		if idx < 0 || idx >= len(chunks) {
			continue
		}
		ranked = append(ranked, chunks[idx])
	}
	for i := range ranked {
		ranked[i].Rank = i + 1
	}
	return ranked
}

// parseIndexList extracts the first bracketed JSON integer list from s.
func parseIndexList(s string) ([]int, bool) {
	open := strings.Index(s, "[")
	if open < 0 {
		return nil, false
	}
	end := strings.Index(s[open:], "]")
	if end < 0 {
		return nil, false
	}
	var indices []int
	if err := json.Unmarshal([]byte(s[open:open+end+1]), &indices); err != nil {
		return nil, false
	}
	return indices, true
}

// Generate synthesizes an answer strictly from the given chunks, each
// attributed to its source file. The model is instructed to say it does not
// know rather than fabricate when the context is insufficient.
func (e *Engine) Generate(ctx context.Context, query string, chunks []models.RetrievedChunk) (string, error) {
	var contextStr strings.Builder
	for i, c := range chunks {
		if i > 0 {
			contextStr.WriteString("\n\n")
		}
		fmt.Fprintf(&contextStr, "[Source: %s] %s", c.Metadata["filename"], c.Text)
	}

	prompt := fmt.Sprintf(`You are an expert Invoice Auditor Assistant.
Use the following CONTEXT to answer the QUESTION.
If the answer is not in the context, say "I don't know".

CONTEXT:
%s

QUESTION: %s

ANSWER:`, contextStr.String(), query)

	answer, err := e.llm.Complete(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("synthesize answer: %w", err)
	}
	return answer, nil
}

// Reflect scores the answer's relevance to the query and groundedness in the
// retrieved context. A failed or unparseable evaluation yields a non-passing
// report rather than an error, so callers can still return the answer with
// its confidence marked low.
func (e *Engine) Reflect(ctx context.Context, query, answer string, chunks []models.RetrievedChunk) *models.EvaluationReport {
	var contextStr strings.Builder
	for _, c := range chunks {
		contextStr.WriteString(c.Text)
		contextStr.WriteString("\n")
	}

	prompt := fmt.Sprintf(`You are evaluating a retrieval-augmented answer.
QUESTION: %s
ANSWER: %s
CONTEXT:
%s
Score the answer on two metrics, each from 0.0 to 1.0:
- answer_relevance: how directly the answer addresses the question
- faithfulness: how fully the answer is supported by the context
Return ONLY JSON: {"metrics": [{"name": "answer_relevance", "score": 0.0, "reason": ""}, {"name": "faithfulness", "score": 0.0, "reason": ""}]}`,
		query, answer, contextStr.String())

	failing := &models.EvaluationReport{Metrics: []models.EvaluationMetric{}, OverallScore: 0, IsPassing: false}

	reply, err := e.llm.Complete(ctx, prompt)
	if err != nil {
		e.logger.Error("answer evaluation failed", zap.Error(err))
		return failing
	}

	var parsed struct {
		Metrics []models.EvaluationMetric `json:"metrics"`
	}
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end <= start {
		e.logger.Error("answer evaluation reply not parseable",
			zap.String("reply", utils.Truncate(reply, 200)))
		return failing
	}
	if err := json.Unmarshal([]byte(reply[start:end+1]), &parsed); err != nil || len(parsed.Metrics) == 0 {
		e.logger.Error("answer evaluation reply not parseable", zap.Error(err))
		return failing
	}

	var sum float64
	for i := range parsed.Metrics {
		if parsed.Metrics[i].Score < 0 {
			parsed.Metrics[i].Score = 0
		}
		if parsed.Metrics[i].Score > 1 {
			parsed.Metrics[i].Score = 1
		}
		sum += parsed.Metrics[i].Score
	}
	overall := utils.Round2(sum / float64(len(parsed.Metrics)))

	return &models.EvaluationReport{
		Metrics:      parsed.Metrics,
		OverallScore: overall,
		IsPassing:    overall >= e.minPassScore,
	}
}

// Ask composes retrieve, re-rank, generate, and reflect for a free-text
// question about previously indexed documents.
func (e *Engine) Ask(ctx context.Context, query string) (*models.Answer, error) {
	chunks, err := e.Retrieve(ctx, query, e.topK)
	if err != nil {
		return nil, err
	}
	ranked := e.Rerank(ctx, query, chunks)
	answer, err := e.Generate(ctx, query, ranked)
	if err != nil {
		return nil, err
	}
	evaluation := e.Reflect(ctx, query, answer, ranked)

	return &models.Answer{
		Answer:     answer,
		Context:    ranked,
		Evaluation: evaluation,
	}, nil
}
