package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"bordereau/internal/receipt"
	"bordereau/pkg/platform/sentinel"
	"bordereau/pkg/platform/tx"
)

// PostgresStore reads receipts from the receipts table through database/sql.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) FindReceipt(ctx context.Context, orgID string, kind receipt.Kind) (*receipt.Record, error) {
	var rec receipt.Record
	var validity sql.NullTime
	err := tx.Use(ctx, s.db).QueryRowContext(ctx,
		`SELECT org_id, kind, number, department, validity_limit FROM receipts WHERE org_id = $1 AND kind = $2`,
		orgID, string(kind),
	).Scan(&rec.OrgID, &rec.Kind, &rec.Number, &rec.Department, &validity)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find receipt: %w", err)
	}
	if validity.Valid {
		rec.ValidityLimit = &validity.Time
	}
	return &rec, nil
}

// FindReceipts resolves every company of orgIDs in one query.
func (s *PostgresStore) FindReceipts(ctx context.Context, kind receipt.Kind, orgIDs []string) (map[string]*receipt.Record, error) {
	rows, err := tx.Use(ctx, s.db).QueryContext(ctx,
		`SELECT org_id, kind, number, department, validity_limit FROM receipts WHERE kind = $1 AND org_id = ANY($2)`,
		string(kind), pq.Array(orgIDs),
	)
	if err != nil {
		return nil, fmt.Errorf("find receipts: %w", err)
	}
	defer rows.Close()

	out := make(map[string]*receipt.Record, len(orgIDs))
	for rows.Next() {
		var rec receipt.Record
		var validity sql.NullTime
		if err := rows.Scan(&rec.OrgID, &rec.Kind, &rec.Number, &rec.Department, &validity); err != nil {
			return nil, fmt.Errorf("scan receipt: %w", err)
		}
		if validity.Valid {
			rec.ValidityLimit = &validity.Time
		}
		out[rec.OrgID] = &rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate receipts: %w", err)
	}
	return out, nil
}

// Upsert declares or replaces a receipt.
func (s *PostgresStore) Upsert(ctx context.Context, rec receipt.Record) error {
	_, err := tx.Use(ctx, s.db).ExecContext(ctx, `
INSERT INTO receipts (org_id, kind, number, department, validity_limit)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (org_id, kind) DO UPDATE SET
    number = EXCLUDED.number,
    department = EXCLUDED.department,
    validity_limit = EXCLUDED.validity_limit`,
		rec.OrgID, string(rec.Kind), rec.Number, rec.Department, rec.ValidityLimit,
	)
	if err != nil {
		return fmt.Errorf("upsert receipt: %w", err)
	}
	return nil
}

// Import replaces the receipts of one kind with records, atomically. It is
// how the periodic registry export is loaded.
func (s *PostgresStore) Import(ctx context.Context, kind receipt.Kind, records []receipt.Record) error {
	return tx.Run(ctx, s.db, 0, func(ctx context.Context) error {
		if _, err := tx.Use(ctx, s.db).ExecContext(ctx, `DELETE FROM receipts WHERE kind = $1`, string(kind)); err != nil {
			return fmt.Errorf("clear receipts: %w", err)
		}
		for _, rec := range records {
			if rec.Kind != kind {
				return fmt.Errorf("import %s receipts: record %s has kind %s", kind, rec.OrgID, rec.Kind)
			}
			if err := s.Upsert(ctx, rec); err != nil {
				return err
			}
		}
		return nil
	})
}
