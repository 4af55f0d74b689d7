package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bordereau/internal/receipt"
	"bordereau/pkg/platform/sentinel"
)

func TestInMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore(receipt.Record{OrgID: "850 019 464 00021", Kind: receipt.KindTransporter, Number: "T-42", Department: "13"})

	got, err := s.FindReceipt(ctx, "85001946400021", receipt.KindTransporter)
	require.NoError(t, err)
	assert.Equal(t, "T-42", got.Number)

	_, err = s.FindReceipt(ctx, "85001946400021", receipt.KindBroker)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}
