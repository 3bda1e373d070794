package ingest

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"study-assistant-backend/service/rag"
)

const (
	inprocQueueSize = 64
	inprocWorkers   = 2
)

var ErrQueueFull = errors.New("ingestion queue is full")

// InprocQueue runs ingestion on a fixed worker pool inside the server
// process. The default for single-instance deployments.
type InprocQueue struct {
	engine *rag.Engine
	tasks  chan Task
	wg     sync.WaitGroup

	closeOnce sync.Once
}

func NewInprocQueue(engine *rag.Engine) *InprocQueue {
	return &InprocQueue{
		engine: engine,
		tasks:  make(chan Task, inprocQueueSize),
	}
}

func (q *InprocQueue) Start() error {
	for i := 0; i < inprocWorkers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	return nil
}

func (q *InprocQueue) worker() {
	defer q.wg.Done()
	for t := range q.tasks {
		// background work owns its own context; the triggering request
		// has already returned
		if err := run(context.Background(), q.engine, t); err != nil {
			slog.Error("ingestion task failed",
				"document_id", t.DocumentID,
				"file_name", t.FileName,
				"err", err)
		}
	}
}

// Submit never blocks: a full queue is reported to the caller (and the job
// marked failed) instead of stalling the upload request.
func (q *InprocQueue) Submit(_ context.Context, t Task) error {
	select {
	case q.tasks <- t:
		return nil
	default:
		q.engine.Jobs().Fail(t.DocumentID, "Hàng đợi xử lý đang đầy, thử lại sau")
		return ErrQueueFull
	}
}

// Shutdown stops accepting tasks and waits for in-flight ones to finish.
func (q *InprocQueue) Shutdown() {
	q.closeOnce.Do(func() {
		close(q.tasks)
	})
	q.wg.Wait()
}
