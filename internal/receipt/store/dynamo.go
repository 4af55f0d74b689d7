package store

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"bordereau/internal/receipt"
	"bordereau/pkg/platform/sentinel"
)

// DynamoAPI is the subset of the DynamoDB client the store calls.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// receiptItem is the table layout: partition key orgId, sort key kind.
type receiptItem struct {
	OrgID         string     `dynamodbav:"orgId"`
	Kind          string     `dynamodbav:"kind"`
	Number        string     `dynamodbav:"number"`
	Department    string     `dynamodbav:"department"`
	ValidityLimit *time.Time `dynamodbav:"validityLimit,omitempty"`
}

// DynamoStore reads receipts from a DynamoDB table.
type DynamoStore struct {
	client    DynamoAPI
	tableName string
}

func NewDynamoStore(client DynamoAPI, tableName string) *DynamoStore {
	return &DynamoStore{client: client, tableName: tableName}
}

// NewDynamoClient loads the default AWS configuration. A non-empty endpoint
// points the client at a local DynamoDB.
func NewDynamoClient(ctx context.Context, endpoint string) (*dynamodb.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS SDK config: %w", err)
	}
	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	}), nil
}

func (s *DynamoStore) FindReceipt(ctx context.Context, orgID string, kind receipt.Kind) (*receipt.Record, error) {
	key, err := attributevalue.MarshalMap(map[string]string{"orgId": orgID, "kind": string(kind)})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal key: %w", err)
	}
	proj := expression.NamesList(
		expression.Name("orgId"),
		expression.Name("kind"),
		expression.Name("number"),
		expression.Name("department"),
		expression.Name("validityLimit"),
	)
	expr, err := expression.NewBuilder().WithProjection(proj).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build projection: %w", err)
	}

	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:                aws.String(s.tableName),
		Key:                      key,
		ProjectionExpression:     expr.Projection(),
		ExpressionAttributeNames: expr.Names(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get receipt from DynamoDB: %w", err)
	}
	if result.Item == nil {
		return nil, sentinel.ErrNotFound
	}

	var item receiptItem
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal receipt item: %w", err)
	}
	return &receipt.Record{
		OrgID:         item.OrgID,
		Kind:          receipt.Kind(item.Kind),
		Number:        item.Number,
		Department:    item.Department,
		ValidityLimit: item.ValidityLimit,
	}, nil
}

func (s *DynamoStore) Put(ctx context.Context, rec receipt.Record) error {
	av, err := attributevalue.MarshalMap(receiptItem{
		OrgID:         rec.OrgID,
		Kind:          string(rec.Kind),
		Number:        rec.Number,
		Department:    rec.Department,
		ValidityLimit: rec.ValidityLimit,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal receipt item: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("failed to put receipt in DynamoDB: %w", err)
	}
	return nil
}
