// Package receipt models the prefectural receipts (récépissés) held by
// transporters, brokers and traders, and the lookups against them.
package receipt

//go:generate mockgen -source=receipt.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"errors"
	"time"

	"bordereau/pkg/platform/sentinel"
)

// Kind is the activity a receipt was issued for.
type Kind string

const (
	KindTransporter Kind = "TRANSPORTER"
	KindBroker      Kind = "BROKER"
	KindTrader      Kind = "TRADER"
)

func (k Kind) IsValid() bool {
	switch k {
	case KindTransporter, KindBroker, KindTrader:
		return true
	}
	return false
}

// Record is a receipt as declared by the company.
type Record struct {
	OrgID         string     `json:"orgId"`
	Kind          Kind       `json:"kind"`
	Number        string     `json:"number"`
	Department    string     `json:"department"`
	ValidityLimit *time.Time `json:"validityLimit,omitempty"`
}

// Store finds the receipt a company holds for kind. It returns
// sentinel.ErrNotFound when the company declared none.
type Store interface {
	FindReceipt(ctx context.Context, orgID string, kind Kind) (*Record, error)
}

// BatchStore is implemented by stores that can resolve several companies in
// one round trip.
type BatchStore interface {
	FindReceipts(ctx context.Context, kind Kind, orgIDs []string) (map[string]*Record, error)
}

// Lookup resolves the receipts of orgIDs. Companies without a receipt are
// absent from the result.
func Lookup(ctx context.Context, store Store, kind Kind, orgIDs []string) (map[string]*Record, error) {
	if len(orgIDs) == 0 {
		return map[string]*Record{}, nil
	}
	if batch, ok := store.(BatchStore); ok {
		return batch.FindReceipts(ctx, kind, orgIDs)
	}
	out := make(map[string]*Record, len(orgIDs))
	for _, id := range orgIDs {
		rec, err := store.FindReceipt(ctx, id, kind)
		if errors.Is(err, sentinel.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[id] = rec
	}
	return out, nil
}
