// Package store holds company registry backends.
package store

import (
	"context"
	"sync"

	"bordereau/internal/company"
	"bordereau/pkg/platform/sentinel"
	pstrings "bordereau/pkg/platform/strings"
)

// InMemoryRegistry is a registry seeded in process, used in tests and local
// development.
type InMemoryRegistry struct {
	mu      sync.RWMutex
	records map[string]company.Record
}

func NewInMemoryRegistry(records ...company.Record) *InMemoryRegistry {
	r := &InMemoryRegistry{records: make(map[string]company.Record)}
	for _, rec := range records {
		r.Put(rec)
	}
	return r
}

// Put registers or replaces a company, indexed by SIRET and VAT number.
func (r *InMemoryRegistry) Put(record company.Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, key := range []string{record.Siret, record.VatNumber} {
		if k := pstrings.CompactIdentifier(key); k != "" {
			r.records[k] = record
		}
	}
}

func (r *InMemoryRegistry) FindCompany(_ context.Context, orgID string) (*company.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	record, ok := r.records[pstrings.CompactIdentifier(orgID)]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &record, nil
}
