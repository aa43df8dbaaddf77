// Package dynamorepo implements the repositories on one DynamoDB table keyed
// by PK and SK.
package dynamorepo

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/tilerush/scoreboard/common/database"
	apperrors "github.com/tilerush/scoreboard/common/errors"
	"github.com/tilerush/scoreboard/services/scoring-service/internal/repository"
)

const (
	batchGetLimit   = 100
	batchWriteLimit = 25
	maxBatchRetries = 5
)

func New(db *database.DynamoDBClient) *repository.Repositories {
	tx := database.NewTransactionRepository(db)
	return &repository.Repositories{
		Users:     NewUserRepository(db, tx),
		Totals:    NewTotalsRepository(db),
		Games:     NewGameRepository(db, tx),
		Tiers:     NewTierRepository(db),
		Inventory: NewInventoryRepository(db),
		Grants:    NewGrantRepository(db, tx),
		Friends:   NewFriendshipRepository(db, tx),
	}
}

// table holds the item helpers shared by every repository.
type table struct {
	db *database.DynamoDBClient
}

func keyOf(pk, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pk},
		"SK": &types.AttributeValueMemberS{Value: sk},
	}
}

func str(v string) types.AttributeValue {
	return &types.AttributeValueMemberS{Value: v}
}

func timeValue(t time.Time) types.AttributeValue {
	av, err := attributevalue.Marshal(t.UTC())
	if err != nil {
		return str(t.UTC().Format(time.RFC3339Nano))
	}
	return av
}

// getItem reports false when the item does not exist. Reads are strongly
// consistent so a read-modify-write sees the previous write.
func (t table) getItem(ctx context.Context, pk, sk string, out any) (bool, error) {
	result, err := t.db.Client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(t.db.Table()),
		Key:            keyOf(pk, sk),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return false, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to get item")
	}
	if result.Item == nil {
		return false, nil
	}
	if err := attributevalue.UnmarshalMap(result.Item, out); err != nil {
		return false, apperrors.Wrap(err, apperrors.CodeObjectUnmarshalError, "failed to unmarshal item")
	}
	return true, nil
}

func (t table) putItem(ctx context.Context, item any) error {
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeObjectMarshalError, "failed to marshal item")
	}
	_, err = t.db.Client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(t.db.Table()),
		Item:      av,
	})
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to put item")
	}
	return nil
}

// queryPrefix loads every item of a partition whose SK starts with skPrefix.
func (t table) queryPrefix(ctx context.Context, pk, skPrefix string) ([]map[string]types.AttributeValue, error) {
	paginator := dynamodb.NewQueryPaginator(t.db.Client, &dynamodb.QueryInput{
		TableName:              aws.String(t.db.Table()),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     str(pk),
			":prefix": str(skPrefix),
		},
	})

	var items []map[string]types.AttributeValue
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to query items")
		}
		items = append(items, page.Items...)
	}
	return items, nil
}

// scan visits every item matching filter. Used by operator statistics only.
func (t table) scan(
	ctx context.Context,
	filter string,
	values map[string]types.AttributeValue,
	projection string,
	visit func(items []map[string]types.AttributeValue) error,
) error {
	input := &dynamodb.ScanInput{
		TableName:                 aws.String(t.db.Table()),
		FilterExpression:          aws.String(filter),
		ExpressionAttributeValues: values,
	}
	if projection != "" {
		input.ProjectionExpression = aws.String(projection)
	}

	paginator := dynamodb.NewScanPaginator(t.db.Client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to scan items")
		}
		if err := visit(page.Items); err != nil {
			return err
		}
	}
	return nil
}

func (t table) count(ctx context.Context, filter string, values map[string]types.AttributeValue) (int64, error) {
	paginator := dynamodb.NewScanPaginator(t.db.Client, &dynamodb.ScanInput{
		TableName:                 aws.String(t.db.Table()),
		FilterExpression:          aws.String(filter),
		ExpressionAttributeValues: values,
		Select:                    types.SelectCount,
	})

	var n int64
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return 0, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to count items")
		}
		n += int64(page.Count)
	}
	return n, nil
}

// batchGet loads items by key, retrying unprocessed keys.
func (t table) batchGet(ctx context.Context, keys []map[string]types.AttributeValue) ([]map[string]types.AttributeValue, error) {
	var items []map[string]types.AttributeValue

	for start := 0; start < len(keys); start += batchGetLimit {
		pending := keys[start:min(start+batchGetLimit, len(keys))]

		for attempt := 0; len(pending) > 0; attempt++ {
			if attempt == maxBatchRetries {
				return nil, apperrors.New(apperrors.CodeDatabaseError, "batch get left unprocessed keys")
			}

			result, err := t.db.Client.BatchGetItem(ctx, &dynamodb.BatchGetItemInput{
				RequestItems: map[string]types.KeysAndAttributes{
					t.db.Table(): {Keys: pending},
				},
			})
			if err != nil {
				return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to batch get items")
			}

			items = append(items, result.Responses[t.db.Table()]...)
			pending = result.UnprocessedKeys[t.db.Table()].Keys
		}
	}
	return items, nil
}

// batchPut writes items in chunks, retrying unprocessed writes.
func (t table) batchPut(ctx context.Context, items []map[string]types.AttributeValue) error {
	for start := 0; start < len(items); start += batchWriteLimit {
		chunk := items[start:min(start+batchWriteLimit, len(items))]

		pending := make([]types.WriteRequest, 0, len(chunk))
		for _, item := range chunk {
			pending = append(pending, types.WriteRequest{PutRequest: &types.PutRequest{Item: item}})
		}

		for attempt := 0; len(pending) > 0; attempt++ {
			if attempt == maxBatchRetries {
				return apperrors.New(apperrors.CodeDatabaseError, "batch write left unprocessed items")
			}

			result, err := t.db.Client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
				RequestItems: map[string][]types.WriteRequest{t.db.Table(): pending},
			})
			if err != nil {
				return apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to batch write items")
			}
			pending = result.UnprocessedItems[t.db.Table()]
		}
	}
	return nil
}
