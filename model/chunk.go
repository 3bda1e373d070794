package model

import "time"

// ChunkSource marks where the source file of a chunk came from.
const (
	ChunkSourceLocal = "local"
	ChunkSourceURL   = "url"
)

// Chunk is the atomic retrievable unit. Chunks are created in bulk when a
// document is indexed, never mutated, and deleted in bulk when the document
// is deleted or reindexed.
type Chunk struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	SubjectID  string    `json:"subject_id"`
	UserID     string    `json:"user_id"`
	FileName   string    `json:"file_name"`
	FileExt    string    `json:"file_ext"`
	Source     string    `json:"source"`
	Author     string    `json:"author"`
	Tags       []string  `json:"tags"`
	CreatedAt  time.Time `json:"created_at"`
	FileURL    string    `json:"file_url"`
	Page       int       `json:"page,omitempty"`
	ChunkIndex int       `json:"chunk_index"`
	Content    string    `json:"content"`

	// Embedding has the fixed dimension of the collection it lives in.
	Embedding []float32 `json:"-"`
}

// Citation is the provenance object attached to every retrieval result.
type Citation struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Page    int    `json:"page,omitempty"`
	Snippet string `json:"snippet"`
}

// RetrievalResult is one similarity hit, score = 1 - distance.
type RetrievalResult struct {
	Chunk    Chunk    `json:"chunk"`
	Score    float64  `json:"score"`
	Citation Citation `json:"citation"`
}
