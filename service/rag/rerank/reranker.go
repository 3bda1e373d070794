// Package rerank rescores retrieval candidates with an external
// cross-encoder service for better precision at small top_k.
package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"

	"study-assistant-backend/model"
	"study-assistant-backend/utils"
)

// Reranker scores (query, candidate) pairs against a TEI-compatible
// /rerank endpoint. Construction is cheap; the HTTP client is built
// lazily on first use. Any failure falls back to the original
// similarity order, reranking is strictly best effort.
type Reranker struct {
	endpoint string

	once   sync.Once
	client *http.Client
}

func New(endpoint string) *Reranker {
	return &Reranker{endpoint: endpoint}
}

type rerankRequest struct {
	Query string   `json:"query"`
	Texts []string `json:"texts"`
}

type rerankScore struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// Rerank reorders candidates by cross-encoder score and truncates to topK.
// On any error the input order is preserved (still truncated to topK).
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []model.RetrievalResult, topK int) []model.RetrievalResult {
	if len(candidates) == 0 {
		return candidates
	}
	if topK < 1 || topK > len(candidates) {
		topK = len(candidates)
	}

	scores, err := r.score(ctx, query, candidates)
	if err != nil {
		slog.Warn("rerank failed, keeping similarity order", "err", err)
		return candidates[:topK]
	}

	reordered := make([]model.RetrievalResult, len(candidates))
	copy(reordered, candidates)
	for _, s := range scores {
		if s.Index >= 0 && s.Index < len(reordered) {
			reordered[s.Index].Score = s.Score
		}
	}
	sort.SliceStable(reordered, func(i, j int) bool {
		return reordered[i].Score > reordered[j].Score
	})
	return reordered[:topK]
}

func (r *Reranker) score(ctx context.Context, query string, candidates []model.RetrievalResult) ([]rerankScore, error) {
	r.once.Do(func() {
		r.client = utils.DefaultHTTPClient()
	})

	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = c.Chunk.Content
	}
	body, err := json.Marshal(rerankRequest{Query: query, Texts: texts})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rerank endpoint returned status %d", resp.StatusCode)
	}

	var scores []rerankScore
	if err := json.NewDecoder(resp.Body).Decode(&scores); err != nil {
		return nil, fmt.Errorf("failed to decode rerank response: %w", err)
	}
	if len(scores) != len(candidates) {
		return nil, fmt.Errorf("rerank returned %d scores for %d candidates", len(scores), len(candidates))
	}
	return scores, nil
}
