// Package kb provides retrieval and reranking over the rescue knowledge base.
package kb

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/rescue-agent/backend/internal/engine"
	"github.com/rescue-agent/backend/internal/kb/milvus"
)

// Embedder produces dense vectors for retrieval and reranking. The LLM
// client satisfies it.
type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// Retriever performs dense vector recall against the Milvus collection.
type Retriever struct {
	store    *milvus.Store
	embedder Embedder
	log      *zap.Logger
}

func NewRetriever(store *milvus.Store, embedder Embedder, log *zap.Logger) *Retriever {
	if log == nil {
		log = zap.NewNop()
	}
	return &Retriever{store: store, embedder: embedder, log: log}
}

// Retrieve embeds the query and returns up to topK candidate chunks in the
// store's distance order. Scoring is left to the reranker.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int) ([]engine.Document, error) {
	embedding, err := r.embedder.GenerateEmbedding(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	hits, err := r.store.Search(ctx, embedding, topK, "")
	if err != nil {
		return nil, fmt.Errorf("failed to search knowledge base: %w", err)
	}

	docs := make([]engine.Document, 0, len(hits))
	for _, hit := range hits {
		docs = append(docs, engine.Document{
			ID:      hit.ChunkID,
			Content: hit.Text,
			Source:  hit.Source,
		})
	}

	r.log.Debug("Knowledge base recall",
		zap.Int("top_k", topK),
		zap.Int("returned", len(docs)),
	)

	return docs, nil
}
