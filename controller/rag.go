package controller

import (
	"context"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"time"

	"study-assistant-backend/model"
	"study-assistant-backend/request"
	"study-assistant-backend/response"
	"study-assistant-backend/service/ingest"
	"study-assistant-backend/service/quiz"
	"study-assistant-backend/service/rag"
	"study-assistant-backend/service/rag/store"
	"study-assistant-backend/service/storage"

	"github.com/gin-gonic/gin"
)

// maxUploadSize bounds in-memory reads of uploaded files.
const maxUploadSize = 50 << 20

// Controller carries the injected engine and queue; no handler reaches for
// a global.
type Controller struct {
	engine *rag.Engine
	queue  ingest.Queue
	quiz   *quiz.Generator
	files  *storage.Client
}

// New wires the handlers. files may be nil; uploads then travel inline
// through the queue instead of being archived to object storage first.
func New(engine *rag.Engine, queue ingest.Queue, quizGen *quiz.Generator, files *storage.Client) *Controller {
	return &Controller{engine: engine, queue: queue, quiz: quizGen, files: files}
}

// Query retrieves matching chunks and synthesizes a grounded answer.
func (ct *Controller) Query(c *gin.Context) {
	var req request.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.Error(ErrParseRequest.Error(), "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, response.Response{
			Msg: ErrParseRequest.Error(),
		})
		return
	}

	filters, err := buildFilters(req, c.GetString("user_id"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, response.Response{
			Msg: ErrInvalidTimeRange.Error(),
		})
		return
	}

	results, err := ct.engine.Retrieve(c.Request.Context(), req.Query, req.TopK, filters)
	if err != nil {
		slog.Error(ErrRetrieve.Error(), "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, response.Response{
			Msg: ErrRetrieve.Error(),
		})
		return
	}

	contexts := make([]string, len(results))
	for i, r := range results {
		contexts[i] = r.Chunk.Content
	}
	answer := ct.engine.Answer(c.Request.Context(), req.Query, contexts, req.SessionID)

	c.JSON(http.StatusOK, response.Response{
		Data: response.QueryResponse{
			Answer:   answer,
			Contexts: contexts,
			Results:  toRetrievalItems(results),
		},
	})
}

// Retrieve returns ranked chunks without answer synthesis.
func (ct *Controller) Retrieve(c *gin.Context) {
	var req request.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.Error(ErrParseRequest.Error(), "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, response.Response{
			Msg: ErrParseRequest.Error(),
		})
		return
	}

	filters, err := buildFilters(req, c.GetString("user_id"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, response.Response{
			Msg: ErrInvalidTimeRange.Error(),
		})
		return
	}

	results, err := ct.engine.Retrieve(c.Request.Context(), req.Query, req.TopK, filters)
	if err != nil {
		slog.Error(ErrRetrieve.Error(), "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, response.Response{
			Msg: ErrRetrieve.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, response.Response{
		Data: response.RetrieveResponse{Results: toRetrievalItems(results)},
	})
}

// IndexDocument accepts a multipart upload and queues ingestion. The reply
// carries the document id to poll.
func (ct *Controller) IndexDocument(c *gin.Context) {
	docID := c.Param("id")
	data, fileName, ok := ct.readUpload(c)
	if !ok {
		return
	}

	ct.engine.Jobs().Start(docID)
	task := ingest.Task{
		DocumentID: docID,
		SubjectID:  c.PostForm("subject_id"),
		UserID:     c.GetString("user_id"),
		FileName:   fileName,
		FileBytes:  data,
	}
	ct.archiveUpload(c.Request.Context(), &task)
	if err := ct.queue.Submit(c.Request.Context(), task); err != nil {
		slog.Error(ErrSubmitIngestion.Error(), "document_id", docID, "err", err)
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, response.Response{
			Msg: ErrSubmitIngestion.Error(),
		})
		return
	}

	c.JSON(http.StatusAccepted, response.Response{
		Data: response.IndexResponse{DocumentID: docID, Queued: true},
	})
}

// IndexDocumentFromURL queues ingestion of a remotely stored file.
func (ct *Controller) IndexDocumentFromURL(c *gin.Context) {
	docID := c.Param("id")
	var req request.IndexFromURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.Error(ErrParseRequest.Error(), "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, response.Response{
			Msg: ErrParseRequest.Error(),
		})
		return
	}

	ct.engine.Jobs().Start(docID)
	task := ingest.Task{
		DocumentID: docID,
		SubjectID:  req.SubjectID,
		UserID:     c.GetString("user_id"),
		FileName:   req.FileName,
		FileURL:    req.URL,
	}
	if err := ct.queue.Submit(c.Request.Context(), task); err != nil {
		slog.Error(ErrSubmitIngestion.Error(), "document_id", docID, "err", err)
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, response.Response{
			Msg: ErrSubmitIngestion.Error(),
		})
		return
	}

	c.JSON(http.StatusAccepted, response.Response{
		Data: response.IndexResponse{DocumentID: docID, Queued: true},
	})
}

// GetJob polls ingestion progress. Unknown ids yield a placeholder record,
// never an error, so the frontend can poll before the upload lands.
func (ct *Controller) GetJob(c *gin.Context) {
	c.JSON(http.StatusOK, response.Response{
		Data: response.JobResponse{Job: ct.engine.Jobs().Get(c.Param("id"))},
	})
}

// DeleteDocumentIndex removes all stored chunks of a document, the first
// half of a reindex.
func (ct *Controller) DeleteDocumentIndex(c *gin.Context) {
	docID := c.Param("id")
	if err := ct.engine.DeleteDocument(c.Request.Context(), docID); err != nil {
		slog.Error(ErrDeleteDocument.Error(), "document_id", docID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, response.Response{
			Msg: ErrDeleteDocument.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, response.Response{})
}

// AnalyzeFile classifies an uploaded file without indexing it. When a
// document_id form field is present the derived tags are appended to that
// document record.
func (ct *Controller) AnalyzeFile(c *gin.Context) {
	data, fileName, ok := ct.readUpload(c)
	if !ok {
		return
	}

	meta := ct.engine.AnalyzeFile(c.Request.Context(), data, fileName, c.PostForm("document_id"))
	c.JSON(http.StatusOK, response.Response{Data: meta})
}

// Diag embeds a probe string so operators can verify the embedding pipeline
// and read the active vector dimension.
func (ct *Controller) Diag(c *gin.Context) {
	dim, err := ct.engine.Diag(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusOK, response.Response{
			Data: response.DiagResponse{OK: false, Error: err.Error()},
		})
		return
	}
	c.JSON(http.StatusOK, response.Response{
		Data: response.DiagResponse{OK: true, EmbeddingDim: dim},
	})
}

func (ct *Controller) readUpload(c *gin.Context) ([]byte, string, bool) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		slog.Error(ErrParseRequest.Error(), "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, response.Response{
			Msg: ErrParseRequest.Error(),
		})
		return nil, "", false
	}

	f, err := fileHeader.Open()
	if err != nil {
		slog.Error(ErrReadUpload.Error(), "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, response.Response{
			Msg: ErrReadUpload.Error(),
		})
		return nil, "", false
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxUploadSize))
	if err != nil {
		slog.Error(ErrReadUpload.Error(), "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, response.Response{
			Msg: ErrReadUpload.Error(),
		})
		return nil, "", false
	}
	return data, fileHeader.Filename, true
}

// archiveUpload copies the uploaded bytes to object storage and rewrites the
// task to reference them by URL, keeping queue messages small. Best effort;
// on any storage failure the task keeps its inline payload.
func (ct *Controller) archiveUpload(ctx context.Context, task *ingest.Task) {
	if ct.files == nil {
		return
	}

	key := "documents/" + task.DocumentID + "/" + filepath.Base(task.FileName)
	contentType := mime.TypeByExtension(filepath.Ext(task.FileName))
	publicURL, err := ct.files.Put(ctx, task.FileBytes, key, contentType)
	if err != nil {
		slog.Warn("Failed to archive upload, keeping inline payload",
			"document_id", task.DocumentID, "err", err)
		return
	}

	downloadURL, err := ct.files.PresignGet(ctx, key)
	if err != nil {
		slog.Warn("Failed to presign upload, keeping inline payload",
			"document_id", task.DocumentID, "err", err)
		return
	}

	task.FileBytes = nil
	task.FileURL = downloadURL
	if task.Extra == nil {
		task.Extra = &rag.ExtraMetadata{}
	}
	task.Extra.FileURL = publicURL
}

func buildFilters(req request.QueryRequest, userID string) (store.Filters, error) {
	f := store.Filters{
		SubjectIDs: req.SubjectIDs,
		UserID:     userID,
		Author:     req.Author,
		Tags:       req.Tags,
		Source:     req.Source,
		FileExt:    req.FileExt,
		PageFrom:   req.PageFrom,
		PageTo:     req.PageTo,
	}
	if req.CreatedFrom != "" {
		t, err := time.Parse(time.RFC3339, req.CreatedFrom)
		if err != nil {
			return store.Filters{}, err
		}
		f.CreatedFrom = &t
	}
	if req.CreatedTo != "" {
		t, err := time.Parse(time.RFC3339, req.CreatedTo)
		if err != nil {
			return store.Filters{}, err
		}
		f.CreatedTo = &t
	}
	return f, nil
}

func toRetrievalItems(results []model.RetrievalResult) []response.RetrievalItem {
	items := make([]response.RetrievalItem, len(results))
	for i, r := range results {
		items[i] = response.RetrievalItem{
			Text:       r.Chunk.Content,
			Score:      r.Score,
			Citation:   r.Citation,
			DocumentID: r.Chunk.DocumentID,
			SubjectID:  r.Chunk.SubjectID,
			FileName:   r.Chunk.FileName,
			ChunkIndex: r.Chunk.ChunkIndex,
		}
	}
	return items
}
