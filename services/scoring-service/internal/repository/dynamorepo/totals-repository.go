package dynamorepo

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/goccy/go-json"

	"github.com/tilerush/scoreboard/common/database"
	apperrors "github.com/tilerush/scoreboard/common/errors"
	"github.com/tilerush/scoreboard/common/models"
	"github.com/tilerush/scoreboard/services/scoring-service/internal/repository"
)

type totalsRepo struct {
	table
}

func NewTotalsRepository(db *database.DynamoDBClient) repository.TotalsRepository {
	return &totalsRepo{table: table{db: db}}
}

func (r *totalsRepo) Find(ctx context.Context, userId string) (*models.ScoreTotals, error) {
	var totals models.ScoreTotals
	found, err := r.getItem(ctx, models.UserPK(userId), models.TotalsSK(), &totals)
	if err != nil || !found {
		return nil, err
	}
	return &totals, nil
}

func (r *totalsRepo) GetMany(ctx context.Context, userIds []string) (map[string]*models.ScoreTotals, error) {
	keys := make([]map[string]types.AttributeValue, 0, len(userIds))
	for _, id := range userIds {
		keys = append(keys, keyOf(models.UserPK(id), models.TotalsSK()))
	}

	items, err := r.batchGet(ctx, keys)
	if err != nil {
		return nil, err
	}

	totals := make(map[string]*models.ScoreTotals, len(items))
	for _, item := range items {
		var t models.ScoreTotals
		if err := attributevalue.UnmarshalMap(item, &t); err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeObjectUnmarshalError, "failed to unmarshal score totals")
		}
		totals[t.UserId] = &t
	}
	return totals, nil
}

func (r *totalsRepo) Save(ctx context.Context, totals, prev *models.ScoreTotals) error {
	totals.PK = models.UserPK(totals.UserId)
	totals.SK = models.TotalsSK()

	item, err := attributevalue.MarshalMap(totals)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeObjectMarshalError, "failed to marshal score totals")
	}

	input := &dynamodb.PutItemInput{
		TableName:           aws.String(r.db.Table()),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	}
	if prev != nil {
		input.ConditionExpression = aws.String("#version = :version OR (attribute_not_exists(#version) AND :version = :zero)")
		input.ExpressionAttributeNames = map[string]string{"#version": "version"}
		input.ExpressionAttributeValues = map[string]types.AttributeValue{
			":version": &types.AttributeValueMemberN{Value: itoa(prev.Version)},
			":zero":    &types.AttributeValueMemberN{Value: "0"},
		}
	}

	_, err = r.db.Client.PutItem(ctx, input)
	if database.IsConditionFailed(err) {
		return apperrors.New(apperrors.CodeConflict, "score totals changed concurrently")
	}
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to save score totals")
	}
	return nil
}

type scanCursor struct {
	PK string `json:"pk"`
	SK string `json:"sk"`
}

// ListTotalsPage scans the table; the cursor is the encoded last evaluated
// key. Pages can come back short because the filter runs after the limit.
func (r *totalsRepo) ListTotalsPage(ctx context.Context, cursor string, limit int) ([]*models.ScoreTotals, string, error) {
	input := &dynamodb.ScanInput{
		TableName:        aws.String(r.db.Table()),
		FilterExpression: aws.String("SK = :sk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":sk": str(models.TotalsSK()),
		},
		Limit: aws.Int32(int32(limit)),
	}

	if cursor != "" {
		var start scanCursor
		if err := json.Unmarshal([]byte(cursor), &start); err != nil {
			return nil, "", apperrors.Wrap(err, apperrors.CodeInvalidInput, "invalid totals cursor")
		}
		input.ExclusiveStartKey = keyOf(start.PK, start.SK)
	}

	result, err := r.db.Client.Scan(ctx, input)
	if err != nil {
		return nil, "", apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to page score totals")
	}

	var rows []*models.ScoreTotals
	if err := attributevalue.UnmarshalListOfMaps(result.Items, &rows); err != nil {
		return nil, "", apperrors.Wrap(err, apperrors.CodeObjectUnmarshalError, "failed to unmarshal score totals")
	}

	if len(result.LastEvaluatedKey) == 0 {
		return rows, "", nil
	}

	var last scanCursor
	if err := attributevalue.UnmarshalMap(result.LastEvaluatedKey, &last); err != nil {
		return nil, "", apperrors.Wrap(err, apperrors.CodeObjectUnmarshalError, "failed to read scan key")
	}
	next, err := json.Marshal(last)
	if err != nil {
		return nil, "", apperrors.Wrap(err, apperrors.CodeObjectMarshalError, "failed to encode totals cursor")
	}
	return rows, string(next), nil
}
