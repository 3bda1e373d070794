package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"study-assistant-backend/config"
	"study-assistant-backend/model"

	"github.com/milvus-io/milvus/client/v2/column"
	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/milvusclient"
)

const (
	milvusTopKLimit = 20

	// equality filters are pushed into the search expression; tag overlap and
	// range predicates are applied client-side, so fetch a few extra
	// candidates before truncating.
	milvusOverFetch = 3
)

// MilvusStore keeps chunks in a Milvus collection with a COSINE HNSW index.
// The collection schema is bootstrapped by cmd/milvus-schema.
type MilvusStore struct {
	client     *milvusclient.Client
	collection string
}

func NewMilvusStore(ctx context.Context, cfg config.MilvusConfig, collection string) (*MilvusStore, error) {
	client, err := milvusclient.New(ctx, &milvusclient.ClientConfig{
		Address: cfg.Endpoint,
		APIKey:  cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}
	return &MilvusStore{client: client, collection: collection}, nil
}

var milvusOutputFields = []string{
	"id", "document_id", "subject_id", "user_id", "file_name", "file_ext",
	"source", "author", "tags", "created_at", "file_url", "page",
	"chunk_index", "text",
}

func (s *MilvusStore) AddChunks(ctx context.Context, chunks []model.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	dim, err := validateDimensions(chunks, 0)
	if err != nil {
		return err
	}

	n := len(chunks)
	ids := make([]string, n)
	docIDs := make([]string, n)
	subjectIDs := make([]string, n)
	userIDs := make([]string, n)
	fileNames := make([]string, n)
	fileExts := make([]string, n)
	sources := make([]string, n)
	authors := make([]string, n)
	tags := make([]string, n)
	createdAts := make([]int64, n)
	fileURLs := make([]string, n)
	pages := make([]int64, n)
	chunkIndexes := make([]int64, n)
	texts := make([]string, n)
	vectors := make([][]float32, n)

	for i, c := range chunks {
		ids[i] = c.ID
		docIDs[i] = c.DocumentID
		subjectIDs[i] = c.SubjectID
		userIDs[i] = c.UserID
		fileNames[i] = c.FileName
		fileExts[i] = strings.ToLower(c.FileExt)
		sources[i] = c.Source
		authors[i] = c.Author
		tagsJSON, _ := json.Marshal(c.Tags)
		tags[i] = string(tagsJSON)
		if !c.CreatedAt.IsZero() {
			createdAts[i] = c.CreatedAt.Unix()
		}
		fileURLs[i] = c.FileURL
		pages[i] = int64(c.Page)
		chunkIndexes[i] = int64(c.ChunkIndex)
		texts[i] = c.Content
		vectors[i] = c.Embedding
	}

	columns := []column.Column{
		column.NewColumnVarChar("id", ids),
		column.NewColumnVarChar("document_id", docIDs),
		column.NewColumnVarChar("subject_id", subjectIDs),
		column.NewColumnVarChar("user_id", userIDs),
		column.NewColumnVarChar("file_name", fileNames),
		column.NewColumnVarChar("file_ext", fileExts),
		column.NewColumnVarChar("source", sources),
		column.NewColumnVarChar("author", authors),
		column.NewColumnVarChar("tags", tags),
		column.NewColumnInt64("created_at", createdAts),
		column.NewColumnVarChar("file_url", fileURLs),
		column.NewColumnInt64("page", pages),
		column.NewColumnInt64("chunk_index", chunkIndexes),
		column.NewColumnVarChar("text", texts),
		column.NewColumnFloatVector("vector", dim, vectors),
	}

	insertOption := milvusclient.NewColumnBasedInsertOption(s.collection).WithColumns(columns...)
	if _, err := s.client.Insert(ctx, insertOption); err != nil {
		return fmt.Errorf("failed to insert chunks into milvus: %w", err)
	}
	return nil
}

func (s *MilvusStore) Query(ctx context.Context, vector []float32, topK int, f Filters) ([]model.RetrievalResult, error) {
	topK = clampTopK(topK, milvusTopKLimit)
	fetch := topK
	if !f.Empty() {
		fetch = topK * milvusOverFetch
	}

	opt := milvusclient.NewSearchOption(s.collection, fetch, []entity.Vector{entity.FloatVector(vector)}).
		WithANNSField("vector").
		WithOutputFields(milvusOutputFields...)
	if expr := buildMilvusExpr(f); expr != "" {
		opt = opt.WithFilter(expr)
	}

	resultSets, err := s.client.Search(ctx, opt)
	if err != nil {
		return nil, fmt.Errorf("milvus search failed: %w", err)
	}

	var results []model.RetrievalResult
	for _, rs := range resultSets {
		for i := 0; i < rs.ResultCount; i++ {
			chunk := chunkFromColumns(rs.Fields, i)
			if !f.Matches(chunk) {
				continue
			}
			results = append(results, model.RetrievalResult{
				Chunk:    chunk,
				Score:    float64(rs.Scores[i]),
				Citation: buildCitation(chunk),
			})
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func (s *MilvusStore) GetChunksByDocument(ctx context.Context, documentID string, limit int) ([]model.Chunk, error) {
	// fetch every row of the document; the query result carries no order, so
	// a server-side limit would truncate an arbitrary subset
	opt := milvusclient.NewQueryOption(s.collection).
		WithFilter(fmt.Sprintf(`document_id == "%s"`, escapeMilvus(documentID))).
		WithOutputFields(milvusOutputFields...)

	rs, err := s.client.Query(ctx, opt)
	if err != nil {
		return nil, fmt.Errorf("milvus query failed: %w", err)
	}

	chunks := make([]model.Chunk, 0, rs.ResultCount)
	for i := 0; i < rs.ResultCount; i++ {
		chunks = append(chunks, chunkFromColumns(rs.Fields, i))
	}
	return sortAndLimitChunks(chunks, limit), nil
}

// sortAndLimitChunks orders by chunk_index ascending and then truncates, so
// a limited fetch always returns the first chunks of the document.
func sortAndLimitChunks(chunks []model.Chunk, limit int) []model.Chunk {
	sort.Slice(chunks, func(i, j int) bool {
		return chunks[i].ChunkIndex < chunks[j].ChunkIndex
	})
	if limit > 0 && len(chunks) > limit {
		chunks = chunks[:limit]
	}
	return chunks
}

func (s *MilvusStore) DeleteChunksByDocument(ctx context.Context, documentID string) error {
	opt := milvusclient.NewDeleteOption(s.collection).
		WithExpr(fmt.Sprintf(`document_id == "%s"`, escapeMilvus(documentID)))
	if _, err := s.client.Delete(ctx, opt); err != nil {
		return fmt.Errorf("milvus delete failed: %w", err)
	}
	return nil
}

// buildMilvusExpr pushes the equality parts of the filter into the search
// expression. Tag overlap and range predicates stay client-side.
func buildMilvusExpr(f Filters) string {
	var parts []string
	if len(f.SubjectIDs) > 0 {
		quoted := make([]string, 0, len(f.SubjectIDs))
		for _, id := range f.SubjectIDs {
			quoted = append(quoted, fmt.Sprintf("%q", escapeMilvus(id)))
		}
		parts = append(parts, fmt.Sprintf("subject_id in [%s]", strings.Join(quoted, ", ")))
	}
	if f.UserID != "" {
		parts = append(parts, fmt.Sprintf(`user_id == "%s"`, escapeMilvus(f.UserID)))
	}
	if f.Author != "" {
		parts = append(parts, fmt.Sprintf(`author == "%s"`, escapeMilvus(f.Author)))
	}
	if f.Source != "" {
		parts = append(parts, fmt.Sprintf(`source == "%s"`, escapeMilvus(f.Source)))
	}
	if f.FileExt != "" {
		parts = append(parts, fmt.Sprintf(`file_ext == "%s"`, escapeMilvus(strings.ToLower(f.FileExt))))
	}
	return strings.Join(parts, " and ")
}

func escapeMilvus(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}

func chunkFromColumns(cols []column.Column, idx int) model.Chunk {
	c := model.Chunk{
		ID:         colString(cols, "id", idx),
		DocumentID: colString(cols, "document_id", idx),
		SubjectID:  colString(cols, "subject_id", idx),
		UserID:     colString(cols, "user_id", idx),
		FileName:   colString(cols, "file_name", idx),
		FileExt:    colString(cols, "file_ext", idx),
		Source:     colString(cols, "source", idx),
		Author:     colString(cols, "author", idx),
		FileURL:    colString(cols, "file_url", idx),
		Page:       int(colInt64(cols, "page", idx)),
		ChunkIndex: int(colInt64(cols, "chunk_index", idx)),
		Content:    colString(cols, "text", idx),
	}
	if ts := colInt64(cols, "created_at", idx); ts > 0 {
		c.CreatedAt = time.Unix(ts, 0)
	}
	if raw := colString(cols, "tags", idx); raw != "" {
		_ = json.Unmarshal([]byte(raw), &c.Tags)
	}
	return c
}

func findColumn(cols []column.Column, name string) column.Column {
	for _, col := range cols {
		if col.Name() == name {
			return col
		}
	}
	return nil
}

func colString(cols []column.Column, name string, idx int) string {
	col := findColumn(cols, name)
	if col == nil {
		return ""
	}
	v, err := col.GetAsString(idx)
	if err != nil {
		return ""
	}
	return v
}

func colInt64(cols []column.Column, name string, idx int) int64 {
	col := findColumn(cols, name)
	if col == nil {
		return 0
	}
	v, err := col.GetAsInt64(idx)
	if err != nil {
		return 0
	}
	return v
}
