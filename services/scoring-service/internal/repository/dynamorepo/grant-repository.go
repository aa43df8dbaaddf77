package dynamorepo

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/tilerush/scoreboard/common/database"
	apperrors "github.com/tilerush/scoreboard/common/errors"
	"github.com/tilerush/scoreboard/common/models"
	"github.com/tilerush/scoreboard/services/scoring-service/internal/repository"
)

const (
	maxAllocateAttempts = 3
	allocateCandidates  = 5
)

type grantRepo struct {
	table
	tx database.TransactionRepository
}

func NewGrantRepository(db *database.DynamoDBClient, tx database.TransactionRepository) repository.GrantRepository {
	return &grantRepo{table: table{db: db}, tx: tx}
}

func (r *grantRepo) ListByUser(ctx context.Context, userId string) ([]*models.Grant, error) {
	items, err := r.queryPrefix(ctx, models.UserPK(userId), models.GrantSKPrefix())
	if err != nil {
		return nil, err
	}

	var grants []*models.Grant
	if err := attributevalue.UnmarshalListOfMaps(items, &grants); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeObjectUnmarshalError, "failed to unmarshal grants")
	}
	return grants, nil
}

// Allocate deletes one code item and puts the grant item in one
// TransactWriteItems call. The grant key is (user, tier), so a second grant
// for the same tier fails its condition and the code stays in the pool.
func (r *grantRepo) Allocate(ctx context.Context, userId, tierId string, now time.Time) (repository.Allocation, error) {
	for attempt := range maxAllocateAttempts {
		candidates, err := r.db.Client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(r.db.Table()),
			KeyConditionExpression: aws.String("PK = :pk"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk": str(models.InventoryPK(tierId)),
			},
			Limit:          aws.Int32(allocateCandidates),
			ConsistentRead: aws.Bool(true),
		})
		if err != nil {
			return repository.Allocation{}, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to read inventory")
		}
		if len(candidates.Items) == 0 {
			return repository.Allocation{Outcome: repository.OutOfStock}, nil
		}

		// spread concurrent allocators over different candidates on retry
		var code models.InventoryCode
		if err := attributevalue.UnmarshalMap(candidates.Items[attempt%len(candidates.Items)], &code); err != nil {
			return repository.Allocation{}, apperrors.Wrap(err, apperrors.CodeObjectUnmarshalError, "failed to unmarshal inventory code")
		}

		grant := &models.Grant{
			GrantId:   uuid.NewString(),
			UserId:    userId,
			TierId:    tierId,
			Code:      code.Code,
			CreatedAt: now,
			UpdatedAt: now,
			PK:        models.UserPK(userId),
			SK:        models.GrantSK(tierId),
		}
		item, err := attributevalue.MarshalMap(grant)
		if err != nil {
			return repository.Allocation{}, apperrors.Wrap(err, apperrors.CodeObjectMarshalError, "failed to marshal grant")
		}

		tb := database.NewTransactionBuilder()
		if err := tb.AddDelete(types.Delete{
			TableName:           aws.String(r.db.Table()),
			Key:                 keyOf(models.InventoryPK(tierId), models.InventorySK(code.CodeId)),
			ConditionExpression: aws.String("attribute_exists(PK)"),
		}); err != nil {
			return repository.Allocation{}, apperrors.Wrap(err, apperrors.CodeTransactionError, "failed to build allocation")
		}
		if err := tb.AddPut(types.Put{
			TableName:           aws.String(r.db.Table()),
			Item:                item,
			ConditionExpression: aws.String("attribute_not_exists(PK)"),
		}); err != nil {
			return repository.Allocation{}, apperrors.Wrap(err, apperrors.CodeTransactionError, "failed to build allocation")
		}

		err = r.tx.Execute(ctx, tb)
		if err == nil {
			return repository.Allocation{Outcome: repository.Allocated, Grant: grant}, nil
		}

		failed := database.FailedConditions(err)
		switch {
		case len(failed) == 2 && failed[1]:
			return repository.Allocation{Outcome: repository.AlreadyGranted}, nil
		case len(failed) == 2 && failed[0]:
			continue
		default:
			return repository.Allocation{}, apperrors.Wrap(err, apperrors.CodeTransactionError, "failed to allocate inventory code")
		}
	}

	return repository.Allocation{}, apperrors.New(apperrors.CodeConflict, "inventory allocation contended")
}

func (r *grantRepo) Open(ctx context.Context, userId, grantId string, now time.Time) (*models.Grant, error) {
	grants, err := r.ListByUser(ctx, userId)
	if err != nil {
		return nil, err
	}

	var grant *models.Grant
	for _, g := range grants {
		if g.GrantId == grantId {
			grant = g
			break
		}
	}
	if grant == nil {
		return nil, apperrors.New(apperrors.CodeNotFound, "grant not found")
	}
	if grant.Opened {
		return grant, nil
	}

	_, err = r.db.Client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.db.Table()),
		Key:                 keyOf(models.UserPK(userId), models.GrantSK(grant.TierId)),
		UpdateExpression:    aws.String("SET opened = :opened, updated_at = :now"),
		ConditionExpression: aws.String("opened = :closed"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":opened": &types.AttributeValueMemberBOOL{Value: true},
			":closed": &types.AttributeValueMemberBOOL{Value: false},
			":now":    timeValue(now),
		},
	})
	if err != nil && !database.IsConditionFailed(err) {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to open grant")
	}

	grant.Opened = true
	if err == nil {
		grant.UpdatedAt = now
	}
	return grant, nil
}
