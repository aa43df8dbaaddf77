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
	"github.com/tilerush/scoreboard/common/models"
	"github.com/tilerush/scoreboard/services/scoring-service/internal/repository"
)

type userRepo struct {
	table
	tx database.TransactionRepository
}

func NewUserRepository(db *database.DynamoDBClient, tx database.TransactionRepository) repository.UserRepository {
	return &userRepo{table: table{db: db}, tx: tx}
}

func (r *userRepo) Get(ctx context.Context, userId string) (*models.User, error) {
	var user models.User
	found, err := r.getItem(ctx, models.UserPK(userId), models.ProfileSK(), &user)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, apperrors.New(apperrors.CodeNotFound, "user not found")
	}
	return &user, nil
}

func (r *userRepo) GetByExternalId(ctx context.Context, externalId int64) (*models.User, error) {
	var ref models.ExternalUserRef
	found, err := r.getItem(ctx, models.ExternalPK(externalId), models.ExternalSK(), &ref)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, apperrors.New(apperrors.CodeNotFound, "user not found")
	}
	return r.Get(ctx, ref.UserId)
}

func (r *userRepo) GetMany(ctx context.Context, userIds []string) (map[string]*models.User, error) {
	keys := make([]map[string]types.AttributeValue, 0, len(userIds))
	for _, id := range userIds {
		keys = append(keys, keyOf(models.UserPK(id), models.ProfileSK()))
	}

	items, err := r.batchGet(ctx, keys)
	if err != nil {
		return nil, err
	}

	users := make(map[string]*models.User, len(items))
	for _, item := range items {
		var user models.User
		if err := attributevalue.UnmarshalMap(item, &user); err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeObjectUnmarshalError, "failed to unmarshal user")
		}
		users[user.UserId] = &user
	}
	return users, nil
}

// Create writes the profile and the external id reference together so an
// external id can never point at two users.
func (r *userRepo) Create(ctx context.Context, user *models.User) error {
	user.PK = models.UserPK(user.UserId)
	user.SK = models.ProfileSK()

	profile, err := attributevalue.MarshalMap(user)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeObjectMarshalError, "failed to marshal user")
	}
	ref, err := attributevalue.MarshalMap(models.ExternalUserRef{
		ExternalId: user.ExternalId,
		UserId:     user.UserId,
		PK:         models.ExternalPK(user.ExternalId),
		SK:         models.ExternalSK(),
	})
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeObjectMarshalError, "failed to marshal user reference")
	}

	tb := database.NewTransactionBuilder()
	for _, item := range []map[string]types.AttributeValue{profile, ref} {
		if err := tb.AddPut(types.Put{
			TableName:           aws.String(r.db.Table()),
			Item:                item,
			ConditionExpression: aws.String("attribute_not_exists(PK)"),
		}); err != nil {
			return apperrors.Wrap(err, apperrors.CodeTransactionError, "failed to build user transaction")
		}
	}

	if err := r.tx.Execute(ctx, tb); err != nil {
		for _, failed := range database.FailedConditions(err) {
			if failed {
				return apperrors.New(apperrors.CodeAlreadyExists, "user already exists")
			}
		}
		return apperrors.Wrap(err, apperrors.CodeTransactionError, "failed to create user")
	}
	return nil
}

func (r *userRepo) UpdateNickname(ctx context.Context, userId, nickname string, now time.Time) (*models.User, error) {
	result, err := r.db.Client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.db.Table()),
		Key:                 keyOf(models.UserPK(userId), models.ProfileSK()),
		UpdateExpression:    aws.String("SET nickname = :nickname, updated_at = :now"),
		ConditionExpression: aws.String("attribute_exists(PK)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":nickname": str(nickname),
			":now":      timeValue(now),
		},
		ReturnValues: types.ReturnValueAllNew,
	})
	if database.IsConditionFailed(err) {
		return nil, apperrors.New(apperrors.CodeNotFound, "user not found")
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to update nickname")
	}

	var user models.User
	if err := attributevalue.UnmarshalMap(result.Attributes, &user); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeObjectUnmarshalError, "failed to unmarshal user")
	}
	return &user, nil
}

func (r *userRepo) Count(ctx context.Context) (int64, error) {
	return r.count(ctx, "SK = :sk", map[string]types.AttributeValue{
		":sk": str(models.ProfileSK()),
	})
}

func (r *userRepo) CountCreatedBetween(ctx context.Context, from, to time.Time) (int64, error) {
	return r.count(ctx, "SK = :sk AND created_at >= :from AND created_at < :to", map[string]types.AttributeValue{
		":sk":   str(models.ProfileSK()),
		":from": timeValue(from),
		":to":   timeValue(to),
	})
}
