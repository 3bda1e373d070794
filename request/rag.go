package request

// QueryRequest drives both /rag/query (with answer synthesis) and
// /rag/retrieve (results only). All filter fields are optional.
type QueryRequest struct {
	Query     string `json:"query" binding:"required"`
	TopK      int    `json:"top_k"`
	SessionID string `json:"session_id"`

	SubjectIDs []string `json:"subject_ids"`
	Author     string   `json:"author"`
	Tags       []string `json:"tags"`
	Source     string   `json:"source"`
	FileExt    string   `json:"file_ext"`

	// RFC3339 timestamps, inclusive bounds
	CreatedFrom string `json:"created_from"`
	CreatedTo   string `json:"created_to"`

	PageFrom *int `json:"page_from"`
	PageTo   *int `json:"page_to"`
}

// IndexFromURLRequest triggers ingestion of a remotely stored file.
type IndexFromURLRequest struct {
	URL       string `json:"url" binding:"required"`
	FileName  string `json:"file_name"`
	SubjectID string `json:"subject_id"`
}

type QuizGenerateRequest struct {
	DocumentID   string `json:"document_id" binding:"required"`
	NumQuestions int    `json:"num_questions"`
	Difficulty   string `json:"difficulty"`
	Language     string `json:"language"`
	Mode         string `json:"mode"`
}
