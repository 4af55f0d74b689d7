// Package store holds receipt backends.
package store

import (
	"context"
	"sync"

	"bordereau/internal/receipt"
	"bordereau/pkg/platform/sentinel"
	pstrings "bordereau/pkg/platform/strings"
)

type key struct {
	orgID string
	kind  receipt.Kind
}

// InMemoryStore keeps receipts in process.
type InMemoryStore struct {
	mu       sync.RWMutex
	receipts map[key]receipt.Record
}

func NewInMemoryStore(records ...receipt.Record) *InMemoryStore {
	s := &InMemoryStore{receipts: make(map[key]receipt.Record)}
	for _, rec := range records {
		s.Put(rec)
	}
	return s
}

func (s *InMemoryStore) Put(rec receipt.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.OrgID = pstrings.CompactIdentifier(rec.OrgID)
	s.receipts[key{rec.OrgID, rec.Kind}] = rec
}

func (s *InMemoryStore) FindReceipt(_ context.Context, orgID string, kind receipt.Kind) (*receipt.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.receipts[key{pstrings.CompactIdentifier(orgID), kind}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &rec, nil
}
