package kb

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/rescue-agent/backend/internal/engine"
)

// BatchEmbedder embeds many texts in one call. The LLM client satisfies it.
type BatchEmbedder interface {
	Embedder
	GenerateBatchEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

// Reranker scores recall candidates by embedding cosine similarity against
// the query. Raw cosine for text embeddings clusters in a narrow band, so
// scores are remapped onto [0,1] before the threshold filter sees them.
type Reranker struct {
	embedder BatchEmbedder
	log      *zap.Logger
}

func NewReranker(embedder BatchEmbedder, log *zap.Logger) *Reranker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reranker{embedder: embedder, log: log}
}

func (r *Reranker) Rerank(ctx context.Context, query string, docs []engine.Document, attempt int) ([]engine.ScoredDocument, error) {
	if len(docs) == 0 {
		return nil, nil
	}

	queryEmbedding, err := r.embedder.GenerateEmbedding(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = doc.Content
	}
	docEmbeddings, err := r.embedder.GenerateBatchEmbeddings(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed documents: %w", err)
	}
	if len(docEmbeddings) != len(docs) {
		return nil, fmt.Errorf("embedding count mismatch: got %d, want %d", len(docEmbeddings), len(docs))
	}

	scored := make([]engine.ScoredDocument, len(docs))
	for i, doc := range docs {
		cos := cosineSimilarity(queryEmbedding, docEmbeddings[i])
		scored[i] = engine.ScoredDocument{
			Document: doc,
			Score:    remapSimilarity(cos),
		}
	}

	r.log.Debug("Reranked candidates",
		zap.Int("count", len(scored)),
		zap.Int("attempt", attempt),
	)

	return scored, nil
}

// remapSimilarity stretches the useful cosine band [0.2, 0.8] onto [0, 1].
func remapSimilarity(cos float64) float64 {
	s := (cos - 0.2) / 0.6
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
