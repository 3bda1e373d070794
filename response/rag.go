package response

import (
	"study-assistant-backend/model"
	"study-assistant-backend/service/job"
)

type RetrievalItem struct {
	Text     string         `json:"text"`
	Score    float64        `json:"score"`
	Citation model.Citation `json:"citation"`

	DocumentID string `json:"document_id"`
	SubjectID  string `json:"subject_id,omitempty"`
	FileName   string `json:"file_name,omitempty"`
	ChunkIndex int    `json:"chunk_index"`
}

type QueryResponse struct {
	Answer   string          `json:"answer"`
	Contexts []string        `json:"contexts"`
	Results  []RetrievalItem `json:"results"`
}

type RetrieveResponse struct {
	Results []RetrievalItem `json:"results"`
}

type IndexResponse struct {
	DocumentID string `json:"document_id"`
	Queued     bool   `json:"queued"`
}

type JobResponse struct {
	Job job.Job `json:"job"`
}

type DocumentResponse struct {
	Document model.Document `json:"document"`
}

type DocumentListResponse struct {
	Documents []model.Document `json:"documents"`
}

type DiagResponse struct {
	OK           bool   `json:"ok"`
	EmbeddingDim int    `json:"emb_dim,omitempty"`
	Error        string `json:"error,omitempty"`
}
