// Package cache holds the company record caches placed in front of the
// registry.
package cache

import (
	"context"
	"sync"
	"time"

	"bordereau/internal/company"
	"bordereau/internal/company/metrics"
	"bordereau/pkg/platform/sentinel"
	pstrings "bordereau/pkg/platform/strings"
)

type cachedRecord struct {
	record   company.Record
	storedAt time.Time
}

// InMemoryCache keeps company records in process with TTL expiration.
type InMemoryCache struct {
	mu       sync.RWMutex
	records  map[string]cachedRecord
	cacheTTL time.Duration
	now      func() time.Time
	metrics  *metrics.Metrics
}

// NewInMemoryCache creates a cache whose entries expire after cacheTTL.
func NewInMemoryCache(cacheTTL time.Duration, m *metrics.Metrics) *InMemoryCache {
	return &InMemoryCache{
		records:  make(map[string]cachedRecord),
		cacheTTL: cacheTTL,
		now:      time.Now,
		metrics:  m,
	}
}

// Save stores record under both its SIRET and VAT number. A nil record is
// a no-op.
func (c *InMemoryCache) Save(_ context.Context, record *company.Record) error {
	if record == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	entry := cachedRecord{record: *record, storedAt: c.now()}
	for _, key := range keysOf(record) {
		c.records[key] = entry
	}
	return nil
}

// keysOf returns the compact identifiers a record is cached under, the
// form FindCompany looks up.
func keysOf(record *company.Record) []string {
	return pstrings.CompactIdentifiers([]string{record.Siret, record.VatNumber})
}

// Find returns sentinel.ErrNotFound when the entry is missing or older than
// the TTL.
func (c *InMemoryCache) Find(_ context.Context, orgID string) (*company.Record, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if cached, ok := c.records[pstrings.CompactIdentifier(orgID)]; ok && c.now().Sub(cached.storedAt) < c.cacheTTL {
		c.metrics.RecordCacheHit("memory")
		record := cached.record
		return &record, nil
	}
	c.metrics.RecordCacheMiss("memory")
	return nil, sentinel.ErrNotFound
}
