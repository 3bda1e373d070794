// Package embed turns text into dense vectors through a configurable
// provider. The dimension returned by the active provider becomes the fixed
// dimension of the vector-store collection, so providers must not be mixed
// within one collection.
package embed

import (
	"context"
	"errors"
	"fmt"
	"math"

	"study-assistant-backend/config"
	"study-assistant-backend/utils"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

const embeddingBatchSize = 16

var ErrEmbeddingShape = errors.New("embedding response is not a flat numeric vector")

// Embedder converts texts into equal-length vectors, one per input,
// order-preserving.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// New selects the provider once from validated configuration. There is no
// silent fallback between embedding providers: a misconfigured provider is a
// startup error, not a degraded mode.
func New(ctx context.Context, cfg config.RAGConfig) (Embedder, error) {
	switch cfg.EmbedProvider {
	case "openai":
		return newOpenAIEmbedder(cfg.OpenAI)
	case "gemini":
		return newGeminiEmbedder(ctx, cfg.Gemini)
	default:
		return newLocalEmbedder(cfg.Ollama)
	}
}

// localEmbedder runs a self-hosted embedding model through ollama and
// normalizes every vector to unit length.
type localEmbedder struct {
	inner *embeddings.EmbedderImpl
}

func newLocalEmbedder(cfg config.OllamaConfig) (Embedder, error) {
	opts := []ollama.Option{ollama.WithModel(cfg.EmbedModel)}
	if cfg.ServerURL != "" {
		opts = append(opts, ollama.WithServerURL(cfg.ServerURL))
	}
	client, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create ollama client: %w", err)
	}

	inner, err := embeddings.NewEmbedder(client,
		embeddings.WithBatchSize(embeddingBatchSize),
		embeddings.WithStripNewLines(false),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create local embedder: %w", err)
	}
	return &localEmbedder{inner: inner}, nil
}

func (e *localEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	vectors, err := e.inner.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, err
	}
	for _, v := range vectors {
		normalize(v)
	}
	return vectors, nil
}

func (e *localEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	v, err := e.inner.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	normalize(v)
	return v, nil
}

func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return
	}
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
}

// openaiEmbedder batches all inputs into a single API call.
type openaiEmbedder struct {
	inner *embeddings.EmbedderImpl
}

func newOpenAIEmbedder(cfg config.OpenAIConfig) (Embedder, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai.api_key is required for OpenAI embeddings")
	}

	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
		openai.WithEmbeddingModel(cfg.EmbedModel),
		openai.WithHTTPClient(utils.DefaultHTTPClient()),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create openai client: %w", err)
	}

	inner, err := embeddings.NewEmbedder(client,
		embeddings.WithBatchSize(embeddingBatchSize),
		embeddings.WithStripNewLines(false),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create openai embedder: %w", err)
	}
	return &openaiEmbedder{inner: inner}, nil
}

func (e *openaiEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	return e.inner.EmbedDocuments(ctx, texts)
}

func (e *openaiEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return e.inner.EmbedQuery(ctx, text)
}

// geminiEmbedder issues one call per text; this integration has no native
// batching. Response shapes are validated before use.
type geminiEmbedder struct {
	client *googleai.GoogleAI
}

func newGeminiEmbedder(ctx context.Context, cfg config.GeminiConfig) (Embedder, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini.api_key is required for Gemini embeddings")
	}

	client, err := googleai.New(ctx,
		googleai.WithAPIKey(cfg.APIKey),
		googleai.WithDefaultEmbeddingModel(cfg.EmbedModel),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &geminiEmbedder{client: client}, nil
}

func (e *geminiEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		v, err := e.EmbedQuery(ctx, text)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (e *geminiEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.client.CreateEmbedding(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("gemini embedding call failed: %w", err)
	}
	if len(vectors) != 1 || len(vectors[0]) == 0 {
		return nil, ErrEmbeddingShape
	}
	return vectors[0], nil
}
