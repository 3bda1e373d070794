package store

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"study-assistant-backend/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvector "github.com/pgvector/pgvector-go/pgx"
)

const (
	pgTopKLimit = 50

	// the stored function only filters by subject/user; the richer filters
	// run client-side after enrichment, so over-fetch to compensate for
	// candidates they will drop (see scripts/pgvector.sql).
	pgOverFetch = 3

	pgTable = "rag_chunks"
	pgRPC   = "match_rag_chunks"
)

// PGStore is the relational backend: chunk rows in Postgres with a pgvector
// column, similarity search delegated to a server-side function.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(ctx context.Context, dsn string) (*PGStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres dsn: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return &PGStore{pool: pool}, nil
}

// canonicalUserID validates the opaque user id as a UUID. A malformed value
// becomes NULL rather than reaching the uuid column.
func canonicalUserID(userID string) any {
	if userID == "" {
		return nil
	}
	parsed, err := uuid.Parse(userID)
	if err != nil {
		return nil
	}
	return parsed.String()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// AddChunks inserts one row per chunk. The rows are not wrapped in a
// transaction: a failure partway leaves the document partially indexed and
// the recovery path is a reindex (delete then reinsert).
func (s *PGStore) AddChunks(ctx context.Context, chunks []model.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if _, err := validateDimensions(chunks, 0); err != nil {
		return err
	}

	batch := &pgx.Batch{}
	sql := fmt.Sprintf(`INSERT INTO %s
		(id, document_id, subject_id, user_id, file_name, chunk_index, content, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`, pgTable)
	for _, c := range chunks {
		batch.Queue(sql,
			c.ID,
			c.DocumentID,
			nullable(c.SubjectID),
			canonicalUserID(c.UserID),
			c.FileName,
			c.ChunkIndex,
			c.Content,
			pgvector.NewVector(c.Embedding),
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range chunks {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("insert into %s failed: %w", pgTable, err)
		}
	}
	return nil
}

func (s *PGStore) Query(ctx context.Context, vector []float32, topK int, f Filters) ([]model.RetrievalResult, error) {
	topK = clampTopK(topK, pgTopKLimit)
	fetch := topK
	if !f.Empty() {
		fetch = clampTopK(topK*pgOverFetch, pgTopKLimit)
	}

	// the function narrows by a single subject; broader subject sets are
	// enforced by the caller's post-filter
	var subjectID any
	if len(f.SubjectIDs) == 1 {
		subjectID = f.SubjectIDs[0]
	}

	sql := fmt.Sprintf(`SELECT content, file_name, chunk_index, distance, subject_id, user_id, document_id
		FROM %s($1, $2, $3, $4)`, pgRPC)
	rows, err := s.pool.Query(ctx, sql,
		pgvector.NewVector(vector), fetch, subjectID, canonicalUserID(f.UserID))
	if err != nil {
		return nil, fmt.Errorf("%s call failed: %w", pgRPC, err)
	}
	defer rows.Close()

	var results []model.RetrievalResult
	for rows.Next() {
		var (
			content, fileName         string
			chunkIndex                int
			distance                  float64
			subject, user, documentID *string
		)
		if err := rows.Scan(&content, &fileName, &chunkIndex, &distance, &subject, &user, &documentID); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", pgRPC, err)
		}
		chunk := model.Chunk{
			DocumentID: deref(documentID),
			SubjectID:  deref(subject),
			UserID:     deref(user),
			FileName:   fileName,
			FileExt:    fileExtFromName(fileName),
			ChunkIndex: chunkIndex,
			Content:    content,
		}
		results = append(results, model.RetrievalResult{
			Chunk:    chunk,
			Score:    1 - distance,
			Citation: buildCitation(chunk),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s rows failed: %w", pgRPC, err)
	}
	return results, nil
}

func (s *PGStore) GetChunksByDocument(ctx context.Context, documentID string, limit int) ([]model.Chunk, error) {
	sql := fmt.Sprintf(`SELECT id, document_id, subject_id, user_id, file_name, chunk_index, content
		FROM %s WHERE document_id = $1 ORDER BY chunk_index ASC`, pgTable)
	args := []any{documentID}
	if limit > 0 {
		sql += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch chunks for document %s: %w", documentID, err)
	}
	defer rows.Close()

	var chunks []model.Chunk
	for rows.Next() {
		var (
			c             model.Chunk
			subject, user *string
		)
		if err := rows.Scan(&c.ID, &c.DocumentID, &subject, &user, &c.FileName, &c.ChunkIndex, &c.Content); err != nil {
			return nil, fmt.Errorf("failed to scan chunk row: %w", err)
		}
		c.SubjectID = deref(subject)
		c.UserID = deref(user)
		c.FileExt = fileExtFromName(c.FileName)
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

func (s *PGStore) DeleteChunksByDocument(ctx context.Context, documentID string) error {
	sql := fmt.Sprintf("DELETE FROM %s WHERE document_id = $1", pgTable)
	if _, err := s.pool.Exec(ctx, sql, documentID); err != nil {
		return fmt.Errorf("failed to delete chunks for document %s: %w", documentID, err)
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// fileExtFromName recovers the lowercased extension from the stored file
// name. The rag_chunks table has no file_ext column, so extension filters
// rely on this derivation.
func fileExtFromName(name string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
}
