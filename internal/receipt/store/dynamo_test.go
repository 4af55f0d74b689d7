package store

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bordereau/internal/receipt"
	"bordereau/pkg/platform/sentinel"
)

// tableStub keeps items keyed by orgId#kind and records the last request.
type tableStub struct {
	items   map[string]map[string]types.AttributeValue
	lastGet *dynamodb.GetItemInput
}

func itemKey(item map[string]types.AttributeValue) string {
	org := item["orgId"].(*types.AttributeValueMemberS).Value
	kind := item["kind"].(*types.AttributeValueMemberS).Value
	return org + "#" + kind
}

func (t *tableStub) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	t.lastGet = in
	return &dynamodb.GetItemOutput{Item: t.items[itemKey(in.Key)]}, nil
}

func (t *tableStub) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	t.items[itemKey(in.Item)] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func TestDynamoStore(t *testing.T) {
	ctx := context.Background()
	table := &tableStub{items: map[string]map[string]types.AttributeValue{}}
	s := NewDynamoStore(table, "receipts")

	limit := time.Date(2027, 1, 31, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.Put(ctx, receipt.Record{
		OrgID:         "85001946400021",
		Kind:          receipt.KindTransporter,
		Number:        "T-42",
		Department:    "13",
		ValidityLimit: &limit,
	}))

	got, err := s.FindReceipt(ctx, "85001946400021", receipt.KindTransporter)
	require.NoError(t, err)
	assert.Equal(t, "T-42", got.Number)
	assert.Equal(t, receipt.KindTransporter, got.Kind)
	require.NotNil(t, got.ValidityLimit)
	assert.True(t, limit.Equal(*got.ValidityLimit))

	require.NotNil(t, table.lastGet)
	assert.Equal(t, "receipts", aws.ToString(table.lastGet.TableName))
	assert.NotEmpty(t, aws.ToString(table.lastGet.ProjectionExpression))

	_, err = s.FindReceipt(ctx, "85001946400021", receipt.KindBroker)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}
