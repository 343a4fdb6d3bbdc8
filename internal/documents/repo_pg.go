package documents

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pgvector/pgvector-go"

	"paper-backend/internal/paper"
)

// PGRepo implements Repo using Postgres with the pgvector extension.
type PGRepo struct {
	DB *sql.DB
}

const documentColumns = `id, user_id, file_name, original_filename, file_type, mime_type, file_size, content_hash, file_path, storage_provider, content, metadata, status, upload_date, processed_date, last_accessed, processing_time_seconds, error_message, tags, notes, is_favorite, embedding::text, version, processing_started_at`

const searchVector = `to_tsvector('english', coalesce(metadata->>'title', '') || ' ' || coalesce(content, ''))`

// Create inserts a new document.
func (r *PGRepo) Create(ctx context.Context, doc Document) error {
	const query = `
INSERT INTO documents (
    id,
    user_id,
    file_name,
    original_filename,
    file_type,
    mime_type,
    file_size,
    content_hash,
    file_path,
    storage_provider,
    content,
    metadata,
    status,
    upload_date,
    tags,
    notes,
    is_favorite,
    embedding,
    version
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`

	metadata, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	tags, err := marshalTags(doc.Tags)
	if err != nil {
		return err
	}
	version := doc.Version
	if version == 0 {
		version = 1
	}

	_, err = r.DB.ExecContext(
		ctx,
		query,
		doc.ID,
		doc.UserID,
		doc.FileName,
		doc.OriginalFilename,
		string(doc.FileType),
		doc.MimeType,
		doc.FileSize,
		doc.ContentHash,
		doc.FilePath,
		doc.StorageProvider,
		nullString(doc.Content),
		metadata,
		string(doc.Status),
		doc.UploadDate,
		tags,
		nullString(doc.Notes),
		doc.IsFavorite,
		vectorValue(doc.Embedding),
		version,
	)
	return err
}

// Get fetches a document by ID in any status.
func (r *PGRepo) Get(ctx context.Context, id string) (Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`
	doc, err := scanDocument(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Document{}, ErrNotFound
		}
		return Document{}, err
	}
	return doc, nil
}

// Update applies upd in one statement and returns the stored row.
func (r *PGRepo) Update(ctx context.Context, id string, upd Update) (Document, error) {
	if upd.Empty() {
		doc, err := r.Get(ctx, id)
		if err != nil {
			return Document{}, err
		}
		if upd.ExpectVersion != nil && *upd.ExpectVersion != doc.Version {
			return Document{}, fmt.Errorf("%w: document %s at version %d, expected %d", ErrVersionConflict, id, doc.Version, *upd.ExpectVersion)
		}
		return doc, nil
	}

	query, args, err := buildUpdate(id, upd)
	if err != nil {
		return Document{}, err
	}
	doc, err := scanDocument(r.DB.QueryRowContext(ctx, query, args...))
	if err == nil {
		return doc, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Document{}, err
	}

	var current int64
	if err := r.DB.QueryRowContext(ctx, `SELECT version FROM documents WHERE id = $1`, id).Scan(&current); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Document{}, ErrNotFound
		}
		return Document{}, err
	}
	return Document{}, fmt.Errorf("%w: document %s at version %d", ErrVersionConflict, id, current)
}

func buildUpdate(id string, upd Update) (string, []any, error) {
	var sets []string
	var args []any
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if upd.Status != nil {
		add("status", string(*upd.Status))
	}
	if upd.Content != nil {
		add("content", *upd.Content)
	} else if upd.ClearContent {
		sets = append(sets, "content = NULL")
	}
	if upd.Metadata != nil {
		raw, err := json.Marshal(*upd.Metadata)
		if err != nil {
			return "", nil, fmt.Errorf("marshal metadata: %w", err)
		}
		add("metadata", raw)
	}
	if upd.ProcessedDate != nil {
		add("processed_date", *upd.ProcessedDate)
	}
	if upd.ProcessingTimeSeconds != nil {
		add("processing_time_seconds", *upd.ProcessingTimeSeconds)
	}
	if upd.ProcessingStartedAt != nil {
		add("processing_started_at", *upd.ProcessingStartedAt)
	}
	if upd.ErrorMessage != nil {
		add("error_message", *upd.ErrorMessage)
	} else if upd.ClearError {
		sets = append(sets, "error_message = NULL")
	}
	if upd.Tags != nil {
		raw, err := marshalTags(*upd.Tags)
		if err != nil {
			return "", nil, err
		}
		add("tags", raw)
	}
	if upd.Notes != nil {
		add("notes", *upd.Notes)
	}
	if upd.IsFavorite != nil {
		add("is_favorite", *upd.IsFavorite)
	}
	if upd.Embedding != nil {
		add("embedding", vectorValue(upd.Embedding))
	}
	sets = append(sets, "version = version + 1")

	args = append(args, id)
	where := fmt.Sprintf("id = $%d", len(args))
	if upd.ExpectVersion != nil {
		args = append(args, *upd.ExpectVersion)
		where += fmt.Sprintf(" AND version = $%d", len(args))
	}

	query := "UPDATE documents SET " + strings.Join(sets, ", ") + " WHERE " + where + " RETURNING " + documentColumns
	return query, args, nil
}

// Touch records a read without bumping the version.
func (r *PGRepo) Touch(ctx context.Context, id string, at time.Time) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE documents SET last_accessed = $1 WHERE id = $2`, at, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns a user's live documents newest first with the total count.
func (r *PGRepo) List(ctx context.Context, userID string, q ListQuery) ([]Document, int, error) {
	q = q.normalized()

	const countQuery = `
SELECT count(*)
FROM documents
WHERE user_id = $1 AND status <> 'deleted' AND ($2 = '' OR status = $2)`
	var total int
	if err := r.DB.QueryRowContext(ctx, countQuery, userID, string(q.Status)).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + documentColumns + `
FROM documents
WHERE user_id = $1 AND status <> 'deleted' AND ($2 = '' OR status = $2)
ORDER BY upload_date DESC, id DESC
LIMIT $3 OFFSET $4`
	rows, err := r.DB.QueryContext(ctx, query, userID, string(q.Status), q.PageSize, q.offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]Document, 0, q.PageSize)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, doc)
	}
	return out, total, rows.Err()
}

// Search runs a full-text query over title and content.
func (r *PGRepo) Search(ctx context.Context, userID, query string, limit int) ([]Document, error) {
	if strings.TrimSpace(query) == "" {
		return []Document{}, nil
	}
	if limit <= 0 {
		limit = defaultPageSize
	}
	stmt := `SELECT ` + documentColumns + `
FROM documents
WHERE user_id = $1 AND status <> 'deleted'
  AND ` + searchVector + ` @@ plainto_tsquery('english', $2)
ORDER BY ts_rank(` + searchVector + `, plainto_tsquery('english', $2)) DESC, upload_date DESC
LIMIT $3`
	rows, err := r.DB.QueryContext(ctx, stmt, userID, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

// Similar orders a user's embedded documents by cosine distance.
func (r *PGRepo) Similar(ctx context.Context, userID, excludeID string, embedding []float32, topK int, minSimilarity float64) ([]Match, error) {
	if len(embedding) == 0 {
		return []Match{}, nil
	}
	if topK <= 0 {
		topK = 5
	}
	stmt := `SELECT ` + documentColumns + `, 1 - (embedding <=> $3) AS similarity
FROM documents
WHERE user_id = $1 AND id <> $2 AND status <> 'deleted'
  AND embedding IS NOT NULL AND vector_dims(embedding) = $5
ORDER BY embedding <=> $3
LIMIT $4`
	rows, err := r.DB.QueryContext(ctx, stmt, userID, excludeID, pgvector.NewVector(embedding), topK, len(embedding))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Match, 0, topK)
	for rows.Next() {
		var sim float64
		doc, err := scanDocument(rows, &sim)
		if err != nil {
			return nil, err
		}
		if sim < minSimilarity {
			continue
		}
		out = append(out, Match{Document: doc, Similarity: sim})
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner, extra ...any) (Document, error) {
	var doc Document
	var fileType, status string
	var content, errorMessage, notes, embedding sql.NullString
	var metadata, tags []byte
	var processedDate, lastAccessed, processingStarted sql.NullTime
	var processingTime sql.NullFloat64

	dest := []any{
		&doc.ID,
		&doc.UserID,
		&doc.FileName,
		&doc.OriginalFilename,
		&fileType,
		&doc.MimeType,
		&doc.FileSize,
		&doc.ContentHash,
		&doc.FilePath,
		&doc.StorageProvider,
		&content,
		&metadata,
		&status,
		&doc.UploadDate,
		&processedDate,
		&lastAccessed,
		&processingTime,
		&errorMessage,
		&tags,
		&notes,
		&doc.IsFavorite,
		&embedding,
		&doc.Version,
		&processingStarted,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return Document{}, err
	}

	doc.FileType = paper.FileType(fileType)
	doc.Status = Status(status)
	if content.Valid {
		doc.Content = &content.String
	}
	if errorMessage.Valid {
		doc.ErrorMessage = &errorMessage.String
	}
	if notes.Valid {
		doc.Notes = &notes.String
	}
	if processedDate.Valid {
		doc.ProcessedDate = &processedDate.Time
	}
	if lastAccessed.Valid {
		doc.LastAccessed = &lastAccessed.Time
	}
	if processingTime.Valid {
		doc.ProcessingTimeSeconds = &processingTime.Float64
	}
	if processingStarted.Valid {
		doc.ProcessingStartedAt = &processingStarted.Time
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &doc.Metadata); err != nil {
			return Document{}, fmt.Errorf("decode metadata: %w", err)
		}
	}
	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &doc.Tags); err != nil {
			return Document{}, fmt.Errorf("decode tags: %w", err)
		}
	}
	if embedding.Valid && embedding.String != "" {
		var v pgvector.Vector
		if err := v.Parse(embedding.String); err != nil {
			return Document{}, fmt.Errorf("decode embedding: %w", err)
		}
		doc.Embedding = v.Slice()
	}
	return doc, nil
}

func marshalTags(tags []string) ([]byte, error) {
	if tags == nil {
		tags = []string{}
	}
	raw, err := json.Marshal(tags)
	if err != nil {
		return nil, fmt.Errorf("marshal tags: %w", err)
	}
	return raw, nil
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

func vectorValue(v []float32) any {
	if len(v) == 0 {
		return nil
	}
	return pgvector.NewVector(v)
}

var _ Repo = (*PGRepo)(nil)
