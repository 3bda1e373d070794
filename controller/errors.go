package controller

import "errors"

var (
	ErrParseRequest = errors.New("failed to parse request")

	ErrRetrieve         = errors.New("failed to retrieve documents")
	ErrReadUpload       = errors.New("failed to read uploaded file")
	ErrSubmitIngestion  = errors.New("failed to submit ingestion task")
	ErrDeleteDocument   = errors.New("failed to delete document index")
	ErrGenerateQuiz     = errors.New("failed to generate quiz")
	ErrQuizNoContent    = errors.New("document has no indexed content")
	ErrInvalidTimeRange = errors.New("invalid created_from/created_to timestamp")

	ErrDocumentStoreOff = errors.New("document database is not configured")
	ErrGetDocument      = errors.New("failed to get document")
	ErrDocumentNotFound = errors.New("document not found")
	ErrListDocuments    = errors.New("failed to list documents")
)
