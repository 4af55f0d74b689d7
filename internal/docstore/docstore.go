// Package docstore persists validated documents as JSON with an optimistic
// version check.
package docstore

import (
	"context"
	"time"
)

// Record is a stored document. Version starts at 1 and grows by one on
// every save.
type Record[D any] struct {
	ID        string
	Type      string
	Version   int
	Doc       D
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store persists one document type.
//
// Get returns sentinel.ErrNotFound for an unknown id. Create fails with
// sentinel.ErrConflict when the id exists. Save only succeeds when the
// stored version equals expectedVersion and fails with sentinel.ErrConflict
// otherwise.
type Store[D any] interface {
	Get(ctx context.Context, id string) (*Record[D], error)
	Create(ctx context.Context, id string, doc D) (*Record[D], error)
	Save(ctx context.Context, id string, doc D, expectedVersion int) (*Record[D], error)
}
