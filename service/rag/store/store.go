// Package store persists chunks with their vectors and metadata and answers
// nearest-neighbor queries. Identifiers are opaque strings everywhere; each
// backend decides how to map them onto its own schema.
package store

import (
	"context"
	"fmt"

	"study-assistant-backend/config"
	"study-assistant-backend/model"
)

// VectorStore is the closed capability set shared by all backends.
type VectorStore interface {
	// AddChunks persists chunks together with their embeddings. All chunks of
	// one call belong to the same document.
	AddChunks(ctx context.Context, chunks []model.Chunk) error

	// Query returns up to topK results ordered by descending similarity.
	// Backends apply as much of the filter server-side as they can; the
	// caller re-applies the full filter after enrichment.
	Query(ctx context.Context, vector []float32, topK int, f Filters) ([]model.RetrievalResult, error)

	// GetChunksByDocument returns chunks ordered by chunk_index ascending.
	// No similarity ranking is applied; this feeds consumers that need the
	// document content without semantic bias.
	GetChunksByDocument(ctx context.Context, documentID string, limit int) ([]model.Chunk, error)

	// DeleteChunksByDocument removes every chunk of the document.
	DeleteChunksByDocument(ctx context.Context, documentID string) error
}

// New constructs the backend selected by the validated configuration.
func New(ctx context.Context, cfg config.RAGConfig) (VectorStore, error) {
	switch cfg.StoreBackend {
	case "milvus":
		return NewMilvusStore(ctx, cfg.Milvus, cfg.CollectionName)
	case "pgvector":
		return NewPGStore(ctx, cfg.Postgres.DSN)
	default:
		return NewLocalStore(cfg.StoreDir, cfg.CollectionName)
	}
}

func clampTopK(topK, limit int) int {
	if topK < 1 {
		return 1
	}
	if topK > limit {
		return limit
	}
	return topK
}

const snippetLen = 200

// buildCitation derives the provenance object shown next to a retrieval
// result. Best effort: missing fields stay empty.
func buildCitation(c model.Chunk) model.Citation {
	snippet := c.Content
	if runes := []rune(snippet); len(runes) > snippetLen {
		snippet = string(runes[:snippetLen]) + "…"
	}
	return model.Citation{
		Title:   c.FileName,
		URL:     c.FileURL,
		Page:    c.Page,
		Snippet: snippet,
	}
}

func validateDimensions(chunks []model.Chunk, dim int) (int, error) {
	for _, c := range chunks {
		if len(c.Embedding) == 0 {
			return 0, fmt.Errorf("chunk %s has no embedding", c.ID)
		}
		if dim == 0 {
			dim = len(c.Embedding)
		}
		if len(c.Embedding) != dim {
			return 0, fmt.Errorf("chunk %s embedding dimension %d does not match collection dimension %d",
				c.ID, len(c.Embedding), dim)
		}
	}
	return dim, nil
}
