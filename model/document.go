package model

import "time"

// Document rows are owned by the CRUD surface; the RAG core only reads them
// to enrich retrieval results and to resolve subject/user associations.
// Tag appends triggered by file analysis are the single write-back exception.
type Document struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `gorm:"not null;index:idx_subject_created" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
	SubjectID string    `gorm:"index:idx_subject_created" json:"subject_id"`
	UserID    string    `gorm:"index" json:"user_id"`
	Name      string    `gorm:"not null" json:"name"`
	Author    string    `json:"author"`
	Tags      []string  `gorm:"serializer:json" json:"tags"`

	// FilePath is the object key in OSS, FileURL the public or presigned URL.
	FilePath string `json:"file_path"`
	FileURL  string `json:"file_url"`
}

func (Document) TableName() string {
	return "documents"
}
