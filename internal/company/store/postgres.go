package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"bordereau/internal/company"
	"bordereau/pkg/platform/sentinel"
)

// PostgresRegistry reads companies from the registry tables.
//
//	CREATE TABLE companies (
//	    siret            TEXT UNIQUE,
//	    vat_number       TEXT UNIQUE,
//	    name             TEXT NOT NULL,
//	    address          TEXT NOT NULL,
//	    company_types    TEXT[] NOT NULL DEFAULT '{}',
//	    processor_types  TEXT[] NOT NULL DEFAULT '{}',
//	    verification     TEXT NOT NULL DEFAULT 'TO_BE_VERIFIED',
//	    dormant_since    TIMESTAMPTZ,
//	    handles          TEXT[] NOT NULL DEFAULT '{}'
//	);
type PostgresRegistry struct {
	db *pgxpool.Pool
}

func NewPostgresRegistry(db *pgxpool.Pool) *PostgresRegistry {
	return &PostgresRegistry{db: db}
}

const findCompanySQL = `
SELECT COALESCE(siret, ''), COALESCE(vat_number, ''), name, address,
       company_types, processor_types, verification, dormant_since, handles
FROM companies
WHERE siret = $1 OR vat_number = $1
LIMIT 1`

func (r *PostgresRegistry) FindCompany(ctx context.Context, orgID string) (*company.Record, error) {
	var (
		record         company.Record
		types          []string
		processorTypes []string
		handles        []string
		verification   string
		dormantSince   *time.Time
	)
	err := r.db.QueryRow(ctx, findCompanySQL, orgID).Scan(
		&record.Siret, &record.VatNumber, &record.Name, &record.Address,
		&types, &processorTypes, &verification, &dormantSince, &handles,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find company: %w", err)
	}
	for _, t := range types {
		record.Types = append(record.Types, company.Type(t))
	}
	for _, t := range processorTypes {
		record.ProcessorTypes = append(record.ProcessorTypes, company.ProcessorType(t))
	}
	for _, h := range handles {
		record.Handles = append(record.Handles, company.DocumentType(h))
	}
	record.Verification = company.VerificationStatus(verification)
	record.DormantSince = dormantSince
	return &record, nil
}

// Upsert registers a company. It is used to seed the registry.
func (r *PostgresRegistry) Upsert(ctx context.Context, record company.Record) error {
	types := make([]string, 0, len(record.Types))
	for _, t := range record.Types {
		types = append(types, string(t))
	}
	processorTypes := make([]string, 0, len(record.ProcessorTypes))
	for _, t := range record.ProcessorTypes {
		processorTypes = append(processorTypes, string(t))
	}
	handles := make([]string, 0, len(record.Handles))
	for _, h := range record.Handles {
		handles = append(handles, string(h))
	}
	_, err := r.db.Exec(ctx, `
INSERT INTO companies (siret, vat_number, name, address, company_types, processor_types, verification, dormant_since, handles)
VALUES (NULLIF($1, ''), NULLIF($2, ''), $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (siret) DO UPDATE SET
    vat_number = EXCLUDED.vat_number,
    name = EXCLUDED.name,
    address = EXCLUDED.address,
    company_types = EXCLUDED.company_types,
    processor_types = EXCLUDED.processor_types,
    verification = EXCLUDED.verification,
    dormant_since = EXCLUDED.dormant_since,
    handles = EXCLUDED.handles`,
		record.Siret, record.VatNumber, record.Name, record.Address,
		types, processorTypes, string(record.Verification), record.DormantSince, handles,
	)
	if err != nil {
		return fmt.Errorf("upsert company: %w", err)
	}
	return nil
}
