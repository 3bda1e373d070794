package store

import (
	"context"
	"testing"
	"time"

	"study-assistant-backend/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *LocalStore {
	t.Helper()
	s, err := NewLocalStore(t.TempDir(), "test_docs")
	require.NoError(t, err)
	return s
}

func makeChunk(id, docID, subjectID string, index int, embedding []float32) model.Chunk {
	return model.Chunk{
		ID:         id,
		DocumentID: docID,
		SubjectID:  subjectID,
		FileName:   "notes.pdf",
		ChunkIndex: index,
		Content:    "nội dung " + id,
		Embedding:  embedding,
	}
}

func TestLocalStoreRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.AddChunks(ctx, []model.Chunk{
		makeChunk("c-1", "doc-1", "math", 1, []float32{0, 1}),
		makeChunk("c-0", "doc-1", "math", 0, []float32{1, 0}),
		makeChunk("c-2", "doc-2", "math", 0, []float32{1, 1}),
	})
	require.NoError(t, err)

	chunks, err := s.GetChunksByDocument(ctx, "doc-1", 0)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "c-0", chunks[0].ID)
	assert.Equal(t, "c-1", chunks[1].ID)
}

func TestLocalStorePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := NewLocalStore(dir, "test_docs")
	require.NoError(t, err)
	require.NoError(t, s.AddChunks(ctx, []model.Chunk{
		makeChunk("c-0", "doc-1", "math", 0, []float32{1, 0}),
	}))

	reopened, err := NewLocalStore(dir, "test_docs")
	require.NoError(t, err)
	chunks, err := reopened.GetChunksByDocument(ctx, "doc-1", 0)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "nội dung c-0", chunks[0].Content)
}

func TestLocalStoreQueryRanksBySimilarity(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AddChunks(ctx, []model.Chunk{
		makeChunk("far", "doc-1", "math", 0, []float32{0, 1}),
		makeChunk("near", "doc-1", "math", 1, []float32{1, 0.1}),
		makeChunk("exact", "doc-1", "math", 2, []float32{1, 0}),
	}))

	results, err := s.Query(ctx, []float32{1, 0}, 2, Filters{})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "exact", results[0].Chunk.ID)
	assert.Equal(t, "near", results[1].Chunk.ID)
	assert.Greater(t, results[0].Score, results[1].Score)
}

func TestLocalStoreQuerySubjectFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AddChunks(ctx, []model.Chunk{
		makeChunk("m-0", "doc-1", "math", 0, []float32{1, 0}),
		makeChunk("h-0", "doc-2", "history", 0, []float32{1, 0}),
	}))

	results, err := s.Query(ctx, []float32{1, 0}, 10, Filters{SubjectIDs: []string{"math"}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "m-0", results[0].Chunk.ID)
}

func TestLocalStoreQueryClampsTopK(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var chunks []model.Chunk
	for i := 0; i < 30; i++ {
		chunks = append(chunks, makeChunk("c", "doc-1", "math", i, []float32{1, float32(i)}))
	}
	require.NoError(t, s.AddChunks(ctx, chunks))

	results, err := s.Query(ctx, []float32{1, 0}, 100, Filters{})
	require.NoError(t, err)
	assert.Len(t, results, localTopKLimit)

	results, err = s.Query(ctx, []float32{1, 0}, 0, Filters{})
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestLocalStoreRejectsMismatchedDimension(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AddChunks(ctx, []model.Chunk{
		makeChunk("c-0", "doc-1", "math", 0, []float32{1, 0}),
	}))
	err := s.AddChunks(ctx, []model.Chunk{
		makeChunk("c-1", "doc-1", "math", 1, []float32{1, 0, 0}),
	})
	assert.Error(t, err)
}

func TestLocalStoreDeleteChunksByDocument(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AddChunks(ctx, []model.Chunk{
		makeChunk("c-0", "doc-1", "math", 0, []float32{1, 0}),
		makeChunk("c-1", "doc-2", "math", 0, []float32{0, 1}),
	}))
	require.NoError(t, s.DeleteChunksByDocument(ctx, "doc-1"))

	chunks, err := s.GetChunksByDocument(ctx, "doc-1", 0)
	require.NoError(t, err)
	assert.Empty(t, chunks)

	chunks, err = s.GetChunksByDocument(ctx, "doc-2", 0)
	require.NoError(t, err)
	assert.Len(t, chunks, 1)
}

func TestBuildCitationTruncatesSnippet(t *testing.T) {
	long := ""
	for i := 0; i < 300; i++ {
		long += "ê"
	}
	c := model.Chunk{FileName: "bài.pdf", FileURL: "https://example.com/bài.pdf", Page: 3, Content: long}

	cit := buildCitation(c)
	assert.Equal(t, "bài.pdf", cit.Title)
	assert.Equal(t, 3, cit.Page)
	assert.Equal(t, snippetLen+1, len([]rune(cit.Snippet)))

	short := buildCitation(model.Chunk{Content: "ngắn"})
	assert.Equal(t, "ngắn", short.Snippet)
}

func TestCosineUnnormalizedVectors(t *testing.T) {
	assert.InDelta(t, 1.0, cosine([]float32{2, 0}, []float32{5, 0}), 1e-9)
	assert.InDelta(t, 0.0, cosine([]float32{1, 0}, []float32{0, 3}), 1e-9)
	assert.Equal(t, 0.0, cosine([]float32{0, 0}, []float32{1, 1}))
}

func TestFiltersMatches(t *testing.T) {
	created := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
	chunk := model.Chunk{
		SubjectID: "math",
		UserID:    "u-1",
		Author:    "Nguyễn Văn A",
		Tags:      []string{"đại số", "giải tích"},
		Source:    model.ChunkSourceLocal,
		FileExt:   "pdf",
		CreatedAt: created,
		Page:      4,
	}

	assert.True(t, Filters{}.Matches(chunk))
	assert.True(t, Filters{SubjectIDs: []string{"history", "math"}}.Matches(chunk))
	assert.False(t, Filters{SubjectIDs: []string{"history"}}.Matches(chunk))
	assert.False(t, Filters{UserID: "u-2"}.Matches(chunk))
	assert.True(t, Filters{Tags: []string{"giải tích"}}.Matches(chunk))
	assert.False(t, Filters{Tags: []string{"hình học"}}.Matches(chunk))
	assert.True(t, Filters{FileExt: "PDF"}.Matches(chunk))
	assert.False(t, Filters{Source: model.ChunkSourceURL}.Matches(chunk))

	from := created.Add(-time.Hour)
	to := created.Add(time.Hour)
	assert.True(t, Filters{CreatedFrom: &from, CreatedTo: &to}.Matches(chunk))
	assert.True(t, Filters{CreatedFrom: &created, CreatedTo: &created}.Matches(chunk))
	late := created.Add(time.Minute)
	assert.False(t, Filters{CreatedFrom: &late}.Matches(chunk))

	pageFrom, pageTo := 2, 5
	assert.True(t, Filters{PageFrom: &pageFrom, PageTo: &pageTo}.Matches(chunk))
	noPage := chunk
	noPage.Page = 0
	assert.False(t, Filters{PageFrom: &pageFrom}.Matches(noPage))
}

func TestFiltersEmpty(t *testing.T) {
	assert.True(t, Filters{}.Empty())
	assert.False(t, Filters{UserID: "u-1"}.Empty())
	from := time.Now()
	assert.False(t, Filters{CreatedFrom: &from}.Empty())
}
