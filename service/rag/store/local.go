package store

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"study-assistant-backend/model"
)

const localTopKLimit = 20

// LocalStore is the embedded backend: a named collection held in memory,
// persisted as JSON on disk, searched by brute-force cosine similarity.
// Good enough for single-node deployments with modest corpora.
type LocalStore struct {
	mu   sync.RWMutex
	path string
	dim  int

	chunks []storedChunk
}

type storedChunk struct {
	model.Chunk
	Embedding []float32 `json:"embedding"`
}

type localSnapshot struct {
	Dimension int           `json:"dimension"`
	Chunks    []storedChunk `json:"chunks"`
}

func NewLocalStore(dir, collection string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store dir %s: %w", dir, err)
	}
	s := &LocalStore{path: filepath.Join(dir, collection+".json")}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *LocalStore) load() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read collection file %s: %w", s.path, err)
	}
	var snap localSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("failed to parse collection file %s: %w", s.path, err)
	}
	s.dim = snap.Dimension
	s.chunks = snap.Chunks
	return nil
}

// persist writes through a temp file so a crash cannot truncate the
// collection. Callers hold the write lock.
func (s *LocalStore) persist() error {
	data, err := json.Marshal(localSnapshot{Dimension: s.dim, Chunks: s.chunks})
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *LocalStore) AddChunks(_ context.Context, chunks []model.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dim, err := validateDimensions(chunks, s.dim)
	if err != nil {
		return err
	}
	s.dim = dim

	for _, c := range chunks {
		s.chunks = append(s.chunks, storedChunk{Chunk: c, Embedding: c.Embedding})
	}
	if err := s.persist(); err != nil {
		return fmt.Errorf("failed to persist collection: %w", err)
	}
	return nil
}

func (s *LocalStore) Query(_ context.Context, vector []float32, topK int, f Filters) ([]model.RetrievalResult, error) {
	topK = clampTopK(topK, localTopKLimit)

	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		chunk model.Chunk
		score float64
	}
	var candidates []scored
	for _, sc := range s.chunks {
		if !f.Matches(sc.Chunk) {
			continue
		}
		candidates = append(candidates, scored{
			chunk: sc.Chunk,
			score: cosine(vector, sc.Embedding),
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}

	results := make([]model.RetrievalResult, 0, len(candidates))
	for _, c := range candidates {
		results = append(results, model.RetrievalResult{
			Chunk:    c.chunk,
			Score:    c.score,
			Citation: buildCitation(c.chunk),
		})
	}
	return results, nil
}

func (s *LocalStore) GetChunksByDocument(_ context.Context, documentID string, limit int) ([]model.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Chunk
	for _, sc := range s.chunks {
		if sc.DocumentID == documentID {
			out = append(out, sc.Chunk)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ChunkIndex < out[j].ChunkIndex
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *LocalStore) DeleteChunksByDocument(_ context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.chunks[:0]
	for _, sc := range s.chunks {
		if sc.DocumentID != documentID {
			kept = append(kept, sc)
		}
	}
	s.chunks = kept
	if err := s.persist(); err != nil {
		return fmt.Errorf("failed to persist collection: %w", err)
	}
	return nil
}

func cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
