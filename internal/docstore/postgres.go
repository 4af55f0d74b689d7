package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"bordereau/pkg/platform/sentinel"
)

// PostgresStore keeps documents of one type in the documents table, body as
// JSONB.
type PostgresStore[D any] struct {
	db      *pgxpool.Pool
	docType string
}

func NewPostgresStore[D any](db *pgxpool.Pool, docType string) *PostgresStore[D] {
	return &PostgresStore[D]{db: db, docType: docType}
}

func (s *PostgresStore[D]) Get(ctx context.Context, id string) (*Record[D], error) {
	row := s.db.QueryRow(ctx, `
SELECT id, version, body, created_at, updated_at
FROM documents
WHERE id = $1 AND doc_type = $2`, id, s.docType)
	rec, err := s.scan(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s %s: %w", s.docType, id, err)
	}
	return rec, nil
}

func (s *PostgresStore[D]) Create(ctx context.Context, id string, doc D) (*Record[D], error) {
	body, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode %s %s: %w", s.docType, id, err)
	}
	row := s.db.QueryRow(ctx, `
INSERT INTO documents (id, doc_type, version, body)
VALUES ($1, $2, 1, $3)
ON CONFLICT (id) DO NOTHING
RETURNING id, version, body, created_at, updated_at`, id, s.docType, body)
	rec, err := s.scan(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sentinel.ErrConflict
	}
	if err != nil {
		return nil, fmt.Errorf("create %s %s: %w", s.docType, id, err)
	}
	return rec, nil
}

func (s *PostgresStore[D]) Save(ctx context.Context, id string, doc D, expectedVersion int) (*Record[D], error) {
	body, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode %s %s: %w", s.docType, id, err)
	}
	row := s.db.QueryRow(ctx, `
UPDATE documents
SET body = $4, version = version + 1, updated_at = now()
WHERE id = $1 AND doc_type = $2 AND version = $3
RETURNING id, version, body, created_at, updated_at`, id, s.docType, expectedVersion, body)
	rec, err := s.scan(row)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("save %s %s: %w", s.docType, id, err)
	}

	// no row matched: either the document is gone or the version moved
	var exists bool
	if err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM documents WHERE id = $1 AND doc_type = $2)`,
		id, s.docType).Scan(&exists); err != nil {
		return nil, fmt.Errorf("save %s %s: %w", s.docType, id, err)
	}
	if !exists {
		return nil, sentinel.ErrNotFound
	}
	return nil, sentinel.ErrConflict
}

func (s *PostgresStore[D]) scan(row pgx.Row) (*Record[D], error) {
	rec := Record[D]{Type: s.docType}
	var body []byte
	if err := row.Scan(&rec.ID, &rec.Version, &body, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(body, &rec.Doc); err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}
	return &rec, nil
}
