package company

//go:generate mockgen -source=registry.go -destination=mocks/mocks.go -package=mocks

import "context"

// Registry looks up a company by SIRET or VAT number. Implementations
// return sentinel.ErrNotFound when the company is unknown.
type Registry interface {
	FindCompany(ctx context.Context, orgID string) (*Record, error)
}

// Cache stores registry records for a bounded time. Find returns
// sentinel.ErrNotFound on a miss or an expired entry.
type Cache interface {
	Find(ctx context.Context, orgID string) (*Record, error)
	Save(ctx context.Context, record *Record) error
}
