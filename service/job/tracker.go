package job

import (
	"sync"
	"time"
)

type Stage string

const (
	StageUpload    Stage = "upload"
	StageChunking  Stage = "chunking"
	StageEmbedding Stage = "embedding"
	StageStoring   Stage = "storing"
	StageIndexed   Stage = "indexed"
	StageFailed    Stage = "failed"
	StageUnknown   Stage = "unknown"
)

// Job is the progress record of one document's asynchronous ingestion.
// Exactly one record exists per document id; restarting an index overwrites it.
type Job struct {
	DocID     string    `json:"doc_id"`
	Stage     Stage     `json:"stage"`
	Progress  int       `json:"progress"`
	Message   string    `json:"message"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Tracker serializes all job mutations under one lock. Ingestion volume is
// low relative to request volume, so a single mutex is deliberately favored
// over anything sharded.
type Tracker struct {
	mu   sync.Mutex
	jobs map[string]Job
}

func NewTracker() *Tracker {
	return &Tracker{jobs: make(map[string]Job)}
}

func (t *Tracker) Start(docID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.jobs[docID] = Job{
		DocID:     docID,
		Stage:     StageUpload,
		Progress:  0,
		Message:   "Đã nhận tệp, chuẩn bị xử lý",
		UpdatedAt: time.Now(),
	}
}

// Update merges the non-zero fields into the job record. Progress is clamped
// to [0,100]; pass a negative progress to leave it untouched.
func (t *Tracker) Update(docID string, stage Stage, progress int, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	j, ok := t.jobs[docID]
	if !ok {
		j = Job{DocID: docID}
	}
	if stage != "" {
		j.Stage = stage
	}
	if progress >= 0 {
		j.Progress = min(progress, 100)
	}
	if message != "" {
		j.Message = message
	}
	j.UpdatedAt = time.Now()
	t.jobs[docID] = j
}

func (t *Tracker) Fail(docID, message string) {
	t.Update(docID, StageFailed, 100, message)
}

func (t *Tracker) Success(docID string) {
	t.Update(docID, StageIndexed, 100, "Hoàn tất lập chỉ mục")
}

// Get returns an independent snapshot. An unknown id yields a placeholder
// record rather than an error so pollers can start before ingestion does.
func (t *Tracker) Get(docID string) Job {
	t.mu.Lock()
	defer t.mu.Unlock()
	if j, ok := t.jobs[docID]; ok {
		return j
	}
	return Job{
		DocID:    docID,
		Stage:    StageUnknown,
		Progress: 0,
		Message:  "Không có job",
	}
}
