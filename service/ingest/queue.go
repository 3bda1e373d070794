// Package ingest decouples ingestion triggers from the indexing work. A
// controller submits a Task and returns immediately with a pollable job id;
// a queue implementation delivers the task to a worker that drives the
// engine. Two implementations exist: an in-process worker pool and a
// RocketMQ-backed variant for multi-instance deployments.
package ingest

import (
	"context"

	"study-assistant-backend/config"
	"study-assistant-backend/service/rag"
)

// Task is one ingestion request. Either FileBytes carries the payload
// directly or FileURL points at a downloadable copy; URL wins when both are
// set so the MQ variant can keep messages small.
type Task struct {
	DocumentID string             `json:"document_id"`
	SubjectID  string             `json:"subject_id,omitempty"`
	UserID     string             `json:"user_id,omitempty"`
	FileName   string             `json:"file_name"`
	FileBytes  []byte             `json:"file_bytes,omitempty"`
	FileURL    string             `json:"file_url,omitempty"`
	Extra      *rag.ExtraMetadata `json:"extra,omitempty"`
}

type Queue interface {
	// Submit enqueues the task. The job record must already be started by
	// the caller; workers only advance or terminate it.
	Submit(ctx context.Context, t Task) error

	// Start launches the workers. Idempotent construction, single Start.
	Start() error

	Shutdown()
}

// New picks the queue implementation from configuration.
func New(cfg config.MQConfig, engine *rag.Engine) (Queue, error) {
	if cfg.Enabled {
		return NewMQQueue(cfg, engine)
	}
	return NewInprocQueue(engine), nil
}

// run executes one task against the engine. Terminal job status is owned by
// the engine; a returned error only matters to queue retry policies.
func run(ctx context.Context, engine *rag.Engine, t Task) error {
	if t.FileURL != "" && len(t.FileBytes) == 0 {
		_, err := engine.IndexDocumentFromURL(ctx, rag.IndexFromURLRequest{
			DocumentID: t.DocumentID,
			SubjectID:  t.SubjectID,
			UserID:     t.UserID,
			URL:        t.FileURL,
			FileName:   t.FileName,
			Extra:      t.Extra,
		})
		return err
	}
	_, err := engine.IndexDocument(ctx, rag.IndexRequest{
		DocumentID: t.DocumentID,
		SubjectID:  t.SubjectID,
		UserID:     t.UserID,
		FileBytes:  t.FileBytes,
		FileName:   t.FileName,
		Extra:      t.Extra,
	})
	return err
}
