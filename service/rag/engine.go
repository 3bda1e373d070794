// Package rag wires extraction, chunking, embedding, vector storage,
// classification and answer synthesis into one ingestion/retrieval engine.
// The engine is constructed once at startup from validated configuration and
// injected into every consumer; nothing here is a lazy global.
package rag

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"study-assistant-backend/config"
	"study-assistant-backend/model"
	"study-assistant-backend/service/job"
	"study-assistant-backend/service/rag/chunk"
	"study-assistant-backend/service/rag/classify"
	"study-assistant-backend/service/rag/embed"
	"study-assistant-backend/service/rag/extract"
	"study-assistant-backend/service/rag/rerank"
	"study-assistant-backend/service/rag/store"
	"study-assistant-backend/utils"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/llms"
)

const defaultTopK = 5

// DocumentLookup fetches external document records for citation enrichment.
type DocumentLookup func(ids []string) ([]model.Document, error)

// TagAppender records derived tags on the external document record.
type TagAppender func(id string, tags []string) error

type Engine struct {
	cfg        config.RAGConfig
	embedder   embed.Embedder
	store      store.VectorStore
	classifier *classify.Classifier
	reranker   *rerank.Reranker
	llm        llms.Model
	jobs       *job.Tracker
	memory     *Memory
	httpClient *http.Client

	lookupDocs DocumentLookup
	appendTags TagAppender
}

type Option func(*Engine)

func WithLLM(llm llms.Model) Option {
	return func(e *Engine) { e.llm = llm }
}

func WithReranker(r *rerank.Reranker) Option {
	return func(e *Engine) { e.reranker = r }
}

func WithDocumentLookup(fn DocumentLookup) Option {
	return func(e *Engine) { e.lookupDocs = fn }
}

func WithTagAppender(fn TagAppender) Option {
	return func(e *Engine) { e.appendTags = fn }
}

func WithHTTPClient(c *http.Client) Option {
	return func(e *Engine) { e.httpClient = c }
}

// NewEngine assembles an engine from already-constructed components. Used
// directly in tests; production code goes through Build.
func NewEngine(cfg config.RAGConfig, embedder embed.Embedder, vs store.VectorStore, jobs *job.Tracker, opts ...Option) *Engine {
	e := &Engine{
		cfg:        cfg,
		embedder:   embedder,
		store:      vs,
		jobs:       jobs,
		memory:     NewMemory(),
		httpClient: utils.DefaultHTTPClient(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.classifier = classify.New(classify.WithLLM(e.llm))
	return e
}

// Build constructs every component from the configuration. Provider and
// backend selectors were validated at config load, so the switches inside
// the component constructors only see known values.
func Build(ctx context.Context, cfg config.RAGConfig, jobs *job.Tracker, opts ...Option) (*Engine, error) {
	embedder, err := embed.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	vs, err := store.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	llm, err := newLLM(ctx, cfg)
	if err != nil {
		return nil, err
	}

	base := []Option{WithLLM(llm)}
	if cfg.Rerank.Enabled && cfg.Rerank.Endpoint != "" {
		base = append(base, WithReranker(rerank.New(cfg.Rerank.Endpoint)))
	}
	return NewEngine(cfg, embedder, vs, jobs, append(base, opts...)...), nil
}

// ExtraMetadata carries optional caller-supplied document metadata that is
// copied onto every chunk.
type ExtraMetadata struct {
	Author    string
	Tags      []string
	CreatedAt time.Time
	FileURL   string
}

type IndexRequest struct {
	DocumentID string
	SubjectID  string
	UserID     string
	FileBytes  []byte
	FileName   string
	Extra      *ExtraMetadata
}

type IndexResult struct {
	OK      bool   `json:"ok"`
	Chunks  int    `json:"chunks"`
	Message string `json:"message,omitempty"`
}

// IndexDocument runs the full ingestion pipeline for one document and drives
// its job record through upload, chunking, embedding, storing and a terminal
// stage. Empty extracted text is a non-error failure result; embedding and
// storage errors mark the job failed and propagate so callers can abort.
func (e *Engine) IndexDocument(ctx context.Context, req IndexRequest) (IndexResult, error) {
	docID := req.DocumentID

	text := extract.Extract(req.FileBytes, req.FileName)
	if strings.TrimSpace(text) == "" {
		e.jobs.Fail(docID, "No text extracted")
		return IndexResult{OK: false, Chunks: 0, Message: "No text extracted"}, nil
	}

	e.jobs.Update(docID, job.StageChunking, 25, "Đang chia nhỏ văn bản")
	pieces := chunk.Split(text, e.cfg.ChunkSize, e.cfg.ChunkOverlap)

	chunks := e.buildChunks(req, pieces)
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}

	e.jobs.Update(docID, job.StageEmbedding, 50, "Đang tạo embedding")
	vectors, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		e.jobs.Fail(docID, fmt.Sprintf("Tạo embedding thất bại: %v", err))
		return IndexResult{}, fmt.Errorf("embedding failed for document %s: %w", docID, err)
	}
	if len(vectors) != len(chunks) {
		e.jobs.Fail(docID, "Số lượng embedding không khớp số đoạn")
		return IndexResult{}, fmt.Errorf("embedding count %d does not match chunk count %d for document %s",
			len(vectors), len(chunks), docID)
	}
	for i := range chunks {
		chunks[i].Embedding = vectors[i]
	}

	e.jobs.Update(docID, job.StageStoring, 80, "Đang lưu vào kho vector")
	if err := e.store.AddChunks(ctx, chunks); err != nil {
		e.jobs.Fail(docID, fmt.Sprintf("Lưu kho vector thất bại: %v", err))
		return IndexResult{}, fmt.Errorf("vector store write failed for document %s: %w", docID, err)
	}

	e.jobs.Success(docID)
	slog.Info("document indexed", "document_id", docID, "chunks", len(chunks))
	return IndexResult{OK: true, Chunks: len(chunks)}, nil
}

func (e *Engine) buildChunks(req IndexRequest, pieces []string) []model.Chunk {
	var extra ExtraMetadata
	if req.Extra != nil {
		extra = *req.Extra
	}
	source := model.ChunkSourceLocal
	if extra.FileURL != "" {
		source = model.ChunkSourceURL
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(req.FileName)), ".")

	chunks := make([]model.Chunk, len(pieces))
	for i, text := range pieces {
		id := uuid.New()
		chunks[i] = model.Chunk{
			ID:         fmt.Sprintf("%s-%d-%s", req.DocumentID, i, hex.EncodeToString(id[:4])),
			DocumentID: req.DocumentID,
			SubjectID:  req.SubjectID,
			UserID:     req.UserID,
			FileName:   req.FileName,
			FileExt:    ext,
			Source:     source,
			Author:     extra.Author,
			Tags:       extra.Tags,
			CreatedAt:  extra.CreatedAt,
			FileURL:    extra.FileURL,
			ChunkIndex: i,
			Content:    text,
		}
	}
	return chunks
}

type IndexFromURLRequest struct {
	DocumentID string
	SubjectID  string
	UserID     string
	URL        string
	FileName   string
	Extra      *ExtraMetadata
}

// IndexDocumentFromURL downloads the file and delegates to IndexDocument.
// The file name falls back to the last URL path segment.
func (e *Engine) IndexDocumentFromURL(ctx context.Context, req IndexFromURLRequest) (IndexResult, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		e.jobs.Fail(req.DocumentID, fmt.Sprintf("URL không hợp lệ: %v", err))
		return IndexResult{}, fmt.Errorf("invalid download url for document %s: %w", req.DocumentID, err)
	}
	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		e.jobs.Fail(req.DocumentID, fmt.Sprintf("Tải tệp thất bại: %v", err))
		return IndexResult{}, fmt.Errorf("download failed for document %s: %w", req.DocumentID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		e.jobs.Fail(req.DocumentID, fmt.Sprintf("Tải tệp thất bại: HTTP %d", resp.StatusCode))
		return IndexResult{}, fmt.Errorf("download for document %s returned status %d", req.DocumentID, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		e.jobs.Fail(req.DocumentID, fmt.Sprintf("Đọc tệp thất bại: %v", err))
		return IndexResult{}, fmt.Errorf("download read failed for document %s: %w", req.DocumentID, err)
	}

	name := req.FileName
	if name == "" {
		name = fileNameFromURL(req.URL)
	}
	extra := req.Extra
	if extra == nil {
		extra = &ExtraMetadata{}
	}
	if extra.FileURL == "" {
		extra.FileURL = req.URL
	}
	return e.IndexDocument(ctx, IndexRequest{
		DocumentID: req.DocumentID,
		SubjectID:  req.SubjectID,
		UserID:     req.UserID,
		FileBytes:  data,
		FileName:   name,
		Extra:      extra,
	})
}

func fileNameFromURL(rawURL string) string {
	trimmed := rawURL
	if i := strings.IndexByte(trimmed, '?'); i >= 0 {
		trimmed = trimmed[:i]
	}
	if i := strings.LastIndexByte(trimmed, '/'); i >= 0 {
		trimmed = trimmed[i+1:]
	}
	if trimmed == "" {
		return "file.bin"
	}
	return trimmed
}

// Retrieve embeds the query once, delegates to the active store and then
// finishes what the backend could not do server-side: metadata enrichment
// from the document table, the full filter predicate, optional reranking
// and final truncation.
func (e *Engine) Retrieve(ctx context.Context, query string, topK int, f store.Filters) ([]model.RetrievalResult, error) {
	if topK < 1 {
		topK = defaultTopK
	}

	vector, err := e.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query embedding failed: %w", err)
	}
	results, err := e.store.Query(ctx, vector, topK, f)
	if err != nil {
		return nil, fmt.Errorf("vector store query failed: %w", err)
	}

	results = e.enrich(results)
	// the relational backend does not persist the source; infer it from the
	// enriched file URL so source filters keep working there
	for i := range results {
		if c := &results[i].Chunk; c.Source == "" {
			if c.FileURL != "" {
				c.Source = model.ChunkSourceURL
			} else {
				c.Source = model.ChunkSourceLocal
			}
		}
	}
	if !f.Empty() {
		filtered := results[:0]
		for _, r := range results {
			if f.Matches(r.Chunk) {
				filtered = append(filtered, r)
			}
		}
		results = filtered
	}

	if e.reranker != nil {
		results = e.reranker.Rerank(ctx, query, results, topK)
	}
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// enrich fills author/tags/created_at/file_url from the external document
// record for chunks whose backend does not store them. Best effort: any
// lookup failure leaves the results as they were.
func (e *Engine) enrich(results []model.RetrievalResult) []model.RetrievalResult {
	if e.lookupDocs == nil {
		return results
	}

	need := make(map[string]bool)
	for _, r := range results {
		c := r.Chunk
		if c.DocumentID != "" && (c.Author == "" || len(c.Tags) == 0 || c.FileURL == "" || c.CreatedAt.IsZero()) {
			need[c.DocumentID] = true
		}
	}
	if len(need) == 0 {
		return results
	}
	ids := make([]string, 0, len(need))
	for id := range need {
		ids = append(ids, id)
	}

	docs, err := e.lookupDocs(ids)
	if err != nil {
		slog.Warn("citation enrichment lookup failed", "err", err)
		return results
	}
	byID := make(map[string]model.Document, len(docs))
	for _, d := range docs {
		byID[fmt.Sprintf("%d", d.ID)] = d
	}

	for i, r := range results {
		doc, ok := byID[r.Chunk.DocumentID]
		if !ok {
			continue
		}
		c := &results[i].Chunk
		if c.Author == "" {
			c.Author = doc.Author
		}
		if len(c.Tags) == 0 {
			c.Tags = doc.Tags
		}
		if c.FileURL == "" {
			c.FileURL = doc.FileURL
		}
		if c.CreatedAt.IsZero() {
			c.CreatedAt = doc.CreatedAt
		}
		if results[i].Citation.URL == "" {
			results[i].Citation.URL = doc.FileURL
		}
		if results[i].Citation.Title == "" {
			results[i].Citation.Title = doc.Name
		}
	}
	return results
}

// AnalyzeFile extracts text and classifies it without touching the vector
// store. Derived tags are appended to the document record as a best-effort
// side effect when a document id is supplied.
func (e *Engine) AnalyzeFile(ctx context.Context, data []byte, fileName, documentID string) classify.Metadata {
	text := extract.Extract(data, fileName)
	meta := e.classifier.Classify(ctx, text)

	if documentID != "" && len(meta.Tags) > 0 && e.appendTags != nil {
		if err := e.appendTags(documentID, meta.Tags); err != nil {
			slog.Warn("failed to append derived tags", "document_id", documentID, "err", err)
		}
	}
	return meta
}

// Diag embeds a single probe string so operators can verify the embedding
// provider end to end and see the active vector dimension.
func (e *Engine) Diag(ctx context.Context) (int, error) {
	vector, err := e.embedder.EmbedQuery(ctx, "chandoan")
	if err != nil {
		return 0, err
	}
	return len(vector), nil
}

// DocumentChunks exposes the order-preserving chunk fetch for consumers
// that need raw document text, such as the quiz generator.
func (e *Engine) DocumentChunks(ctx context.Context, documentID string, limit int) ([]model.Chunk, error) {
	return e.store.GetChunksByDocument(ctx, documentID, limit)
}

// DeleteDocument removes every stored chunk of the document, the first half
// of the reindex recovery path.
func (e *Engine) DeleteDocument(ctx context.Context, documentID string) error {
	return e.store.DeleteChunksByDocument(ctx, documentID)
}

// Jobs exposes the tracker for status polling.
func (e *Engine) Jobs() *job.Tracker {
	return e.jobs
}

// LLM exposes the configured chat model, nil when the provider is "none".
func (e *Engine) LLM() llms.Model {
	return e.llm
}
