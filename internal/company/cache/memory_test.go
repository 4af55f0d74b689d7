package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bordereau/internal/company"
	"bordereau/pkg/platform/sentinel"
)

func TestInMemoryCache(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewInMemoryCache(time.Minute, nil)
	c.now = func() time.Time { return now }

	rec := &company.Record{Siret: "85001946400021", VatNumber: "FR70850019464", Name: "Transports Martin"}
	require.NoError(t, c.Save(ctx, rec))

	t.Run("hit by siret and vat", func(t *testing.T) {
		got, err := c.Find(ctx, "85001946400021")
		require.NoError(t, err)
		assert.Equal(t, "Transports Martin", got.Name)

		got, err = c.Find(ctx, "FR70850019464")
		require.NoError(t, err)
		assert.Equal(t, "85001946400021", got.Siret)
	})

	t.Run("identifiers are compacted on write", func(t *testing.T) {
		spaced := &company.Record{Siret: "130 010 457 00013", VatNumber: "fr 40 130010457", Name: "CHU Nord"}
		require.NoError(t, c.Save(ctx, spaced))

		got, err := c.Find(ctx, "13001045700013")
		require.NoError(t, err)
		assert.Equal(t, "CHU Nord", got.Name)

		got, err = c.Find(ctx, "FR40130010457")
		require.NoError(t, err)
		assert.Equal(t, "CHU Nord", got.Name)
	})

	t.Run("returned record is a copy", func(t *testing.T) {
		got, err := c.Find(ctx, "85001946400021")
		require.NoError(t, err)
		got.Name = "changed"

		again, err := c.Find(ctx, "85001946400021")
		require.NoError(t, err)
		assert.Equal(t, "Transports Martin", again.Name)
	})

	t.Run("expired entry is a miss", func(t *testing.T) {
		now = now.Add(2 * time.Minute)
		_, err := c.Find(ctx, "85001946400021")
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("nil record is ignored", func(t *testing.T) {
		assert.NoError(t, c.Save(ctx, nil))
	})
}
