package rerank

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"study-assistant-backend/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeCandidates(contents ...string) []model.RetrievalResult {
	out := make([]model.RetrievalResult, len(contents))
	for i, c := range contents {
		out[i] = model.RetrievalResult{
			Chunk: model.Chunk{ID: c, Content: c},
			Score: float64(len(contents) - i),
		}
	}
	return out
}

func TestRerankReordersByScore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rerankRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "đạo hàm là gì", req.Query)
		require.Len(t, req.Texts, 3)

		// reverse the incoming order
		json.NewEncoder(w).Encode([]rerankScore{
			{Index: 0, Score: 0.1},
			{Index: 1, Score: 0.5},
			{Index: 2, Score: 0.9},
		})
	}))
	defer srv.Close()

	r := New(srv.URL)
	results := r.Rerank(context.Background(), "đạo hàm là gì", makeCandidates("a", "b", "c"), 2)
	require.Len(t, results, 2)
	assert.Equal(t, "c", results[0].Chunk.ID)
	assert.Equal(t, "b", results[1].Chunk.ID)
	assert.Equal(t, 0.9, results[0].Score)
}

func TestRerankFallsBackOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	r := New(srv.URL)
	results := r.Rerank(context.Background(), "q", makeCandidates("a", "b", "c"), 2)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].Chunk.ID)
	assert.Equal(t, "b", results[1].Chunk.ID)
}

func TestRerankFallsBackOnUnreachableEndpoint(t *testing.T) {
	r := New("http://127.0.0.1:1/rerank")
	results := r.Rerank(context.Background(), "q", makeCandidates("a", "b"), 5)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].Chunk.ID)
}

func TestRerankFallsBackOnScoreCountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]rerankScore{{Index: 0, Score: 1}})
	}))
	defer srv.Close()

	r := New(srv.URL)
	results := r.Rerank(context.Background(), "q", makeCandidates("a", "b"), 2)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].Chunk.ID)
}

func TestRerankEmptyCandidates(t *testing.T) {
	r := New("http://127.0.0.1:1/rerank")
	assert.Empty(t, r.Rerank(context.Background(), "q", nil, 3))
}
