package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"bordereau/pkg/platform/sentinel"
)

type memoryEntry struct {
	version   int
	body      []byte
	createdAt time.Time
	updatedAt time.Time
}

// MemoryStore keeps documents as JSON so callers never share memory with
// the store.
type MemoryStore[D any] struct {
	mu      sync.RWMutex
	docType string
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryStore[D any](docType string) *MemoryStore[D] {
	return &MemoryStore[D]{
		docType: docType,
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (s *MemoryStore[D]) Get(_ context.Context, id string) (*Record[D], error) {
	s.mu.RLock()
	entry, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return s.record(id, entry)
}

func (s *MemoryStore[D]) Create(_ context.Context, id string, doc D) (*Record[D], error) {
	body, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode %s %s: %w", s.docType, id, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[id]; exists {
		return nil, sentinel.ErrConflict
	}
	now := s.now()
	entry := memoryEntry{version: 1, body: body, createdAt: now, updatedAt: now}
	s.entries[id] = entry
	return s.record(id, entry)
}

func (s *MemoryStore[D]) Save(_ context.Context, id string, doc D, expectedVersion int) (*Record[D], error) {
	body, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode %s %s: %w", s.docType, id, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if entry.version != expectedVersion {
		return nil, sentinel.ErrConflict
	}
	entry.version++
	entry.body = body
	entry.updatedAt = s.now()
	s.entries[id] = entry
	return s.record(id, entry)
}

func (s *MemoryStore[D]) record(id string, entry memoryEntry) (*Record[D], error) {
	var doc D
	if err := json.Unmarshal(entry.body, &doc); err != nil {
		return nil, fmt.Errorf("decode %s %s: %w", s.docType, id, err)
	}
	return &Record[D]{
		ID:        id,
		Type:      s.docType,
		Version:   entry.version,
		Doc:       doc,
		CreatedAt: entry.createdAt,
		UpdatedAt: entry.updatedAt,
	}, nil
}
