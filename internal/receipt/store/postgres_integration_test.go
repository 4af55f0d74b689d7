//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"bordereau/internal/receipt"
	"bordereau/internal/receipt/store"
	"bordereau/pkg/platform/sentinel"
	"bordereau/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = store.NewPostgresStore(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "receipts"))
}

func (s *PostgresStoreSuite) TestFindReceipt() {
	ctx := context.Background()
	limit := time.Date(2027, 1, 31, 0, 0, 0, 0, time.UTC)
	s.Require().NoError(s.store.Upsert(ctx, receipt.Record{
		OrgID: "85001946400021", Kind: receipt.KindTransporter,
		Number: "T-42", Department: "13", ValidityLimit: &limit,
	}))

	got, err := s.store.FindReceipt(ctx, "85001946400021", receipt.KindTransporter)
	s.Require().NoError(err)
	s.Equal("T-42", got.Number)
	s.Require().NotNil(got.ValidityLimit)
	s.True(limit.Equal(*got.ValidityLimit))

	_, err = s.store.FindReceipt(ctx, "85001946400021", receipt.KindTrader)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestFindReceiptsBatch() {
	ctx := context.Background()
	for _, id := range []string{"A", "B", "C"} {
		s.Require().NoError(s.store.Upsert(ctx, receipt.Record{
			OrgID: id, Kind: receipt.KindTransporter, Number: "T-" + id, Department: "75",
		}))
	}

	got, err := receipt.Lookup(ctx, s.store, receipt.KindTransporter, []string{"A", "C", "Z"})
	s.Require().NoError(err)
	s.Len(got, 2)
	s.Equal("T-C", got["C"].Number)
}

func (s *PostgresStoreSuite) TestImport() {
	ctx := context.Background()
	s.Require().NoError(s.store.Upsert(ctx, receipt.Record{OrgID: "OLD", Kind: receipt.KindTransporter, Number: "T-0"}))
	s.Require().NoError(s.store.Upsert(ctx, receipt.Record{OrgID: "OLD", Kind: receipt.KindTrader, Number: "N-0"}))

	s.Run("replaces the receipts of the kind", func() {
		err := s.store.Import(ctx, receipt.KindTransporter, []receipt.Record{
			{OrgID: "NEW", Kind: receipt.KindTransporter, Number: "T-1", Department: "13"},
		})
		s.Require().NoError(err)

		_, err = s.store.FindReceipt(ctx, "OLD", receipt.KindTransporter)
		s.ErrorIs(err, sentinel.ErrNotFound)
		_, err = s.store.FindReceipt(ctx, "OLD", receipt.KindTrader)
		s.NoError(err)
		got, err := s.store.FindReceipt(ctx, "NEW", receipt.KindTransporter)
		s.Require().NoError(err)
		s.Equal("T-1", got.Number)
	})

	s.Run("a rejected import leaves the table untouched", func() {
		err := s.store.Import(ctx, receipt.KindTransporter, []receipt.Record{
			{OrgID: "OTHER", Kind: receipt.KindTransporter, Number: "T-2"},
			{OrgID: "BROKER", Kind: receipt.KindBroker, Number: "B-1"},
		})
		s.Require().Error(err)

		got, err := s.store.FindReceipt(ctx, "NEW", receipt.KindTransporter)
		s.Require().NoError(err)
		s.Equal("T-1", got.Number)
		_, err = s.store.FindReceipt(ctx, "OTHER", receipt.KindTransporter)
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}
