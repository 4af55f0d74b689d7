// Package events publishes signature events. A signature is recorded on the
// document first; the event follows and is delivered at least once.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"bordereau/internal/signature"
)

// SignatureRecorded is emitted once a stage signature has been persisted.
type SignatureRecorded struct {
	ID           uuid.UUID       `json:"id"`
	DocumentID   string          `json:"documentId"`
	DocumentType string          `json:"type"`
	Stage        signature.Stage `json:"stage"`
	Author       string          `json:"author"`
	SignedAt     time.Time       `json:"signedAt"`
	// Version is the document version the signature produced.
	Version int `json:"version"`
}

// NewSignatureRecorded stamps a fresh event id.
func NewSignatureRecorded(docType, docID string, stage signature.Stage, rec signature.Record, version int) SignatureRecorded {
	return SignatureRecorded{
		ID:           uuid.New(),
		DocumentID:   docID,
		DocumentType: docType,
		Stage:        stage,
		Author:       rec.Author,
		SignedAt:     rec.Date,
		Version:      version,
	}
}

type Publisher interface {
	PublishSignature(ctx context.Context, event SignatureRecorded) error
}

// MemoryPublisher keeps published events in order, for tests and local runs.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []SignatureRecorded
}

func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

func (p *MemoryPublisher) PublishSignature(_ context.Context, event SignatureRecorded) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

// Events returns a copy of the events published so far.
func (p *MemoryPublisher) Events() []SignatureRecorded {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]SignatureRecorded(nil), p.events...)
}
