package rag

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"study-assistant-backend/config"
	"study-assistant-backend/model"
	"study-assistant-backend/service/job"
	"study-assistant-backend/service/rag/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEmbedder produces deterministic 4-dim vectors from text length so
// tests never touch a provider.
type fakeEmbedder struct {
	fail bool
}

func (f *fakeEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	if f.fail {
		return nil, errors.New("provider unavailable")
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = f.vector(t)
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	if f.fail {
		return nil, errors.New("provider unavailable")
	}
	return f.vector(text), nil
}

func (f *fakeEmbedder) vector(text string) []float32 {
	n := float32(len(text)%7 + 1)
	return []float32{n, 1 / n, n / 2, 1}
}

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *job.Tracker) {
	t.Helper()
	vs, err := store.NewLocalStore(t.TempDir(), "test_docs")
	require.NoError(t, err)
	jobs := job.NewTracker()
	cfg := config.RAGConfig{ChunkSize: 500, ChunkOverlap: 80}
	return NewEngine(cfg, &fakeEmbedder{}, vs, jobs, opts...), jobs
}

func TestIndexDocumentSmallText(t *testing.T) {
	e, jobs := newTestEngine(t)
	jobs.Start("doc-1")

	text := "The quick brown fox jumps. It jumps very high."
	e.cfg.ChunkSize = 50
	e.cfg.ChunkOverlap = 10
	res, err := e.IndexDocument(context.Background(), IndexRequest{
		DocumentID: "doc-1",
		SubjectID:  "english",
		FileBytes:  []byte(text),
		FileName:   "fox.txt",
	})
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, 1, res.Chunks)
	assert.Equal(t, job.StageIndexed, jobs.Get("doc-1").Stage)

	chunks, err := e.DocumentChunks(context.Background(), "doc-1", 0)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, text, chunks[0].Content)
	assert.Equal(t, "txt", chunks[0].FileExt)
	assert.Equal(t, model.ChunkSourceLocal, chunks[0].Source)
}

func TestIndexDocumentEmptyBytes(t *testing.T) {
	e, jobs := newTestEngine(t)
	jobs.Start("doc-empty")

	res, err := e.IndexDocument(context.Background(), IndexRequest{
		DocumentID: "doc-empty",
		FileBytes:  nil,
		FileName:   "empty.txt",
	})
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Zero(t, res.Chunks)
	assert.Equal(t, job.StageFailed, jobs.Get("doc-empty").Stage)
}

func TestIndexDocumentEmbeddingFailure(t *testing.T) {
	vs, err := store.NewLocalStore(t.TempDir(), "test_docs")
	require.NoError(t, err)
	jobs := job.NewTracker()
	e := NewEngine(config.RAGConfig{ChunkSize: 500, ChunkOverlap: 80},
		&fakeEmbedder{fail: true}, vs, jobs)
	jobs.Start("doc-err")

	_, err = e.IndexDocument(context.Background(), IndexRequest{
		DocumentID: "doc-err",
		FileBytes:  []byte("một ít nội dung để chia nhỏ"),
		FileName:   "notes.txt",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "doc-err")
	assert.Equal(t, job.StageFailed, jobs.Get("doc-err").Stage)

	chunks, err := e.store.GetChunksByDocument(context.Background(), "doc-err", 0)
	require.NoError(t, err)
	assert.Empty(t, chunks, "no partial chunks stored after embedding failure")
}

func TestIndexDocumentChunkIDsAndMetadata(t *testing.T) {
	e, jobs := newTestEngine(t)
	jobs.Start("doc-2")

	res, err := e.IndexDocument(context.Background(), IndexRequest{
		DocumentID: "doc-2",
		SubjectID:  "math",
		UserID:     "u-1",
		FileBytes:  []byte("Đạo hàm là giới hạn. Tích phân là diện tích."),
		FileName:   "GiaiTich.PDF",
		Extra: &ExtraMetadata{
			Author:  "Nguyễn Văn A",
			Tags:    []string{"giải tích"},
			FileURL: "https://cdn.example.com/giaitich.pdf",
		},
	})
	require.NoError(t, err)
	require.True(t, res.OK)

	chunks, err := e.DocumentChunks(context.Background(), "doc-2", 0)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	for i, c := range chunks {
		assert.Regexp(t, fmt.Sprintf(`^doc-2-%d-[0-9a-f]{8}$`, i), c.ID)
		assert.Equal(t, "pdf", c.FileExt)
		assert.Equal(t, model.ChunkSourceURL, c.Source)
		assert.Equal(t, "Nguyễn Văn A", c.Author)
	}
}

func TestRetrieveReturnsAllWhenFewerThanTopK(t *testing.T) {
	e, jobs := newTestEngine(t)
	jobs.Start("doc-3")

	_, err := e.IndexDocument(context.Background(), IndexRequest{
		DocumentID: "doc-3",
		SubjectID:  "math",
		FileBytes:  []byte("Câu một. Câu hai. Câu ba."),
		FileName:   "short.txt",
	})
	require.NoError(t, err)

	// one chunk from the document plus two more small documents
	for i := 4; i <= 5; i++ {
		id := fmt.Sprintf("doc-%d", i)
		jobs.Start(id)
		_, err := e.IndexDocument(context.Background(), IndexRequest{
			DocumentID: id,
			SubjectID:  "math",
			FileBytes:  []byte(fmt.Sprintf("Tài liệu số %d.", i)),
			FileName:   "more.txt",
		})
		require.NoError(t, err)
	}

	results, err := e.Retrieve(context.Background(), "câu hỏi", 5, store.Filters{SubjectIDs: []string{"math"}})
	require.NoError(t, err)
	assert.Len(t, results, 3)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}
}

func TestRetrieveSubjectFilter(t *testing.T) {
	e, jobs := newTestEngine(t)
	for _, d := range []struct{ id, subject string }{
		{"doc-a", "math"}, {"doc-b", "history"},
	} {
		jobs.Start(d.id)
		_, err := e.IndexDocument(context.Background(), IndexRequest{
			DocumentID: d.id,
			SubjectID:  d.subject,
			FileBytes:  []byte("Nội dung của " + d.id),
			FileName:   "x.txt",
		})
		require.NoError(t, err)
	}

	results, err := e.Retrieve(context.Background(), "nội dung", 10, store.Filters{SubjectIDs: []string{"math"}})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	for _, r := range results {
		assert.Equal(t, "math", r.Chunk.SubjectID)
	}
}

func TestRetrieveEnrichment(t *testing.T) {
	lookup := func(ids []string) ([]model.Document, error) {
		return []model.Document{{
			ID:      7,
			Name:    "Giải tích 1",
			Author:  "Trần B",
			FileURL: "https://cdn.example.com/gt1.pdf",
		}}, nil
	}
	e, jobs := newTestEngine(t, WithDocumentLookup(lookup))
	jobs.Start("7")

	_, err := e.IndexDocument(context.Background(), IndexRequest{
		DocumentID: "7",
		SubjectID:  "math",
		FileBytes:  []byte("Giới hạn và liên tục."),
		FileName:   "gt1.txt",
	})
	require.NoError(t, err)

	results, err := e.Retrieve(context.Background(), "giới hạn", 5, store.Filters{})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "Trần B", results[0].Chunk.Author)
	assert.Equal(t, "https://cdn.example.com/gt1.pdf", results[0].Chunk.FileURL)
	assert.Equal(t, "https://cdn.example.com/gt1.pdf", results[0].Citation.URL)
}

// relationalShapedStore mimics a backend whose rows carry no source or file
// URL, the shape the rag_chunks schema produces.
type relationalShapedStore struct {
	store.VectorStore
}

func (s *relationalShapedStore) Query(ctx context.Context, vector []float32, topK int, f store.Filters) ([]model.RetrievalResult, error) {
	// only subject/user narrowing happens server-side there
	f.Source = ""
	f.FileExt = ""
	results, err := s.VectorStore.Query(ctx, vector, topK, f)
	for i := range results {
		results[i].Chunk.Source = ""
		results[i].Chunk.FileURL = ""
	}
	return results, err
}

func TestRetrieveInfersSourceWhenBackendOmitsIt(t *testing.T) {
	e, jobs := newTestEngine(t)
	e.store = &relationalShapedStore{VectorStore: e.store}
	jobs.Start("doc-rel")

	_, err := e.IndexDocument(context.Background(), IndexRequest{
		DocumentID: "doc-rel",
		FileBytes:  []byte("Một câu về đạo hàm."),
		FileName:   "dh.txt",
	})
	require.NoError(t, err)

	results, err := e.Retrieve(context.Background(), "đạo hàm", 5, store.Filters{Source: model.ChunkSourceLocal})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	for _, r := range results {
		assert.Equal(t, model.ChunkSourceLocal, r.Chunk.Source)
	}
}

func TestRetrieveInfersURLSourceFromEnrichedFileURL(t *testing.T) {
	lookup := func(ids []string) ([]model.Document, error) {
		return []model.Document{{
			ID:      9,
			FileURL: "https://cdn.example.com/dh.pdf",
		}}, nil
	}
	e, jobs := newTestEngine(t, WithDocumentLookup(lookup))
	e.store = &relationalShapedStore{VectorStore: e.store}
	jobs.Start("9")

	_, err := e.IndexDocument(context.Background(), IndexRequest{
		DocumentID: "9",
		FileBytes:  []byte("Một câu về tích phân."),
		FileName:   "dh.txt",
	})
	require.NoError(t, err)

	results, err := e.Retrieve(context.Background(), "tích phân", 5, store.Filters{Source: model.ChunkSourceURL})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	for _, r := range results {
		assert.Equal(t, model.ChunkSourceURL, r.Chunk.Source)
		assert.Equal(t, "https://cdn.example.com/dh.pdf", r.Chunk.FileURL)
	}
}

func TestRetrieveEnrichmentFailureIsNonFatal(t *testing.T) {
	lookup := func(ids []string) ([]model.Document, error) {
		return nil, errors.New("db down")
	}
	e, jobs := newTestEngine(t, WithDocumentLookup(lookup))
	jobs.Start("doc-x")

	_, err := e.IndexDocument(context.Background(), IndexRequest{
		DocumentID: "doc-x",
		FileBytes:  []byte("Một câu duy nhất."),
		FileName:   "x.txt",
	})
	require.NoError(t, err)

	results, err := e.Retrieve(context.Background(), "câu", 5, store.Filters{})
	require.NoError(t, err)
	assert.NotEmpty(t, results)
}

func TestAnswerExtractiveFallback(t *testing.T) {
	e, _ := newTestEngine(t)
	contexts := []string{"ngữ cảnh một", "ngữ cảnh hai", "ngữ cảnh ba"}

	first := e.Answer(context.Background(), "hỏi gì đó", contexts, "")
	assert.Equal(t, extractivePreface+"\n\nngữ cảnh một\n\nngữ cảnh hai", first)

	// deterministic for identical contexts
	assert.Equal(t, first, e.Answer(context.Background(), "hỏi gì đó", contexts, ""))
}

func TestAnswerRecordsSessionMemory(t *testing.T) {
	e, _ := newTestEngine(t)

	e.Answer(context.Background(), "câu hỏi 1", []string{"ctx"}, "sess-1")
	e.Answer(context.Background(), "câu hỏi 2", []string{"ctx"}, "sess-1")

	turns := e.memory.Turns("sess-1")
	require.Len(t, turns, 2)
	assert.Equal(t, "câu hỏi 1", turns[0].Query)
	assert.Equal(t, "câu hỏi 2", turns[1].Query)

	assert.Empty(t, e.memory.Turns("sess-2"))
}

func TestMemoryBoundedTurns(t *testing.T) {
	m := NewMemory()
	for i := 0; i < memoryTurns+4; i++ {
		m.Append("s", Turn{Query: fmt.Sprintf("q%d", i)})
	}
	turns := m.Turns("s")
	require.Len(t, turns, memoryTurns)
	assert.Equal(t, "q4", turns[0].Query)
}

func TestAnalyzeFile(t *testing.T) {
	var appended []string
	appender := func(id string, tags []string) error {
		appended = tags
		return nil
	}
	e, _ := newTestEngine(t, WithTagAppender(appender))

	text := "Đề thi cuối kỳ môn Giải tích\nNgày 05/03/2024\n" +
		"đạo hàm tích phân đạo hàm tích phân giới hạn chuỗi số"
	meta := e.AnalyzeFile(context.Background(), []byte(text), "dethi.txt", "doc-9")

	assert.Equal(t, "Đề thi cuối kỳ môn Giải tích", meta.Title)
	assert.Equal(t, "exam", meta.DocType)
	assert.Equal(t, "2024-03-05", meta.Date)
	assert.NotEmpty(t, meta.Tags)
	assert.Equal(t, meta.Tags, appended)
}

func TestFileNameFromURL(t *testing.T) {
	assert.Equal(t, "bai1.pdf", fileNameFromURL("https://cdn.example.com/docs/bai1.pdf?token=abc"))
	assert.Equal(t, "file.bin", fileNameFromURL("https://cdn.example.com/docs/"))
}

func TestDiag(t *testing.T) {
	e, _ := newTestEngine(t)
	dim, err := e.Diag(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, dim)
}
