package store

import (
	"context"
	"database/sql"
	"fmt"

	"marginalia/api/internal/annotation"
)

// PostgresStore persists documents and annotation spans. It implements
// annotation.Persister; spans list in arrival order (created_at, id).
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ---- documents ----

func (s *PostgresStore) InsertDocument(ctx context.Context, doc Document, content string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (id, title, filename, status, content, content_sha)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, doc.ID, doc.Title, doc.Filename, doc.Status, content, doc.ContentSHA)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListDocuments(ctx context.Context) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, filename, status, content_sha, created_at, updated_at
		FROM documents
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	items := make([]Document, 0)
	for rows.Next() {
		var item Document
		if err := rows.Scan(&item.ID, &item.Title, &item.Filename, &item.Status, &item.ContentSHA, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetDocument(ctx context.Context, documentID string) (Document, error) {
	var item Document
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, filename, status, content_sha, created_at, updated_at
		FROM documents
		WHERE id=$1
	`, documentID).Scan(&item.ID, &item.Title, &item.Filename, &item.Status, &item.ContentSHA, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Document{}, err
	}
	return item, nil
}

func (s *PostgresStore) GetDocumentContent(ctx context.Context, documentID string) (string, error) {
	var content string
	err := s.db.QueryRowContext(ctx, `SELECT content FROM documents WHERE id=$1`, documentID).Scan(&content)
	if err != nil {
		return "", err
	}
	return content, nil
}

func (s *PostgresStore) UpdateDocumentStatus(ctx context.Context, documentID, status string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE documents SET status=$2, updated_at=NOW() WHERE id=$1
	`, documentID, status)
	if err != nil {
		return fmt.Errorf("update document status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update document status: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) DeleteDocument(ctx context.Context, documentID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id=$1`, documentID)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ---- spans (annotation.Persister) ----

func (s *PostgresStore) ListSpans(ctx context.Context, documentID string) ([]annotation.Span, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, label, span_start, span_end, text, confidence, source, created_at
		FROM spans
		WHERE document_id=$1
		ORDER BY created_at ASC, id ASC
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list spans: %w", err)
	}
	defer rows.Close()

	items := make([]annotation.Span, 0)
	for rows.Next() {
		var item annotation.Span
		if err := rows.Scan(&item.ID, &item.DocumentID, &item.Label, &item.Start, &item.End, &item.Text, &item.Confidence, &item.Source, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan span: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate spans: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) CreateSpan(ctx context.Context, documentID string, draft annotation.Draft) (annotation.Span, error) {
	span := annotation.Span{
		DocumentID: documentID,
		Label:      draft.Label,
		Start:      draft.Start,
		End:        draft.End,
		Text:       draft.Text,
		Confidence: draft.Confidence,
		Source:     draft.Source,
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO spans (document_id, label, span_start, span_end, text, confidence, source)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`, documentID, draft.Label, draft.Start, draft.End, draft.Text, draft.Confidence, string(draft.Source)).Scan(&span.ID, &span.CreatedAt)
	if err != nil {
		return annotation.Span{}, fmt.Errorf("insert span: %w", err)
	}
	return span, nil
}

func (s *PostgresStore) DeleteSpan(ctx context.Context, documentID, spanID string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM spans WHERE document_id=$1 AND id=$2
	`, documentID, spanID)
	if err != nil {
		return fmt.Errorf("delete span: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete span: %w", err)
	}
	if affected == 0 {
		return &annotation.NotFoundError{SpanID: spanID}
	}
	return nil
}

// AcceptSpan flips a pending span to the confirmed ai source. A span
// that is not pending (or is gone) affects zero rows and reports
// NotFoundError; the lifecycle controller treats that as resolved.
func (s *PostgresStore) AcceptSpan(ctx context.Context, documentID, spanID string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE spans SET source=$3
		WHERE document_id=$1 AND id=$2 AND source=$4
	`, documentID, spanID, string(annotation.SourceAI), string(annotation.SourcePendingBatch))
	if err != nil {
		return fmt.Errorf("accept span: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("accept span: %w", err)
	}
	if affected == 0 {
		return &annotation.NotFoundError{SpanID: spanID}
	}
	return nil
}

// RejectSpan removes a pending span entirely.
func (s *PostgresStore) RejectSpan(ctx context.Context, documentID, spanID string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM spans
		WHERE document_id=$1 AND id=$2 AND source=$3
	`, documentID, spanID, string(annotation.SourcePendingBatch))
	if err != nil {
		return fmt.Errorf("reject span: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("reject span: %w", err)
	}
	if affected == 0 {
		return &annotation.NotFoundError{SpanID: spanID}
	}
	return nil
}

// SpanCount reports how many spans a document has, split by pending.
func (s *PostgresStore) SpanCount(ctx context.Context, documentID string) (pending int, confirmed int, err error) {
	err = s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE source = $2),
			COUNT(*) FILTER (WHERE source <> $2)
		FROM spans WHERE document_id=$1
	`, documentID, string(annotation.SourcePendingBatch)).Scan(&pending, &confirmed)
	if err != nil {
		return 0, 0, fmt.Errorf("count spans: %w", err)
	}
	return pending, confirmed, nil
}
