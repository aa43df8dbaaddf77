package dynamorepo

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/tilerush/scoreboard/common/database"
	apperrors "github.com/tilerush/scoreboard/common/errors"
	"github.com/tilerush/scoreboard/common/models"
	"github.com/tilerush/scoreboard/services/scoring-service/internal/repository"
)

// friendshipRepo writes each edge under both users so either side can list
// it with one query.
type friendshipRepo struct {
	table
	tx database.TransactionRepository
}

func NewFriendshipRepository(db *database.DynamoDBClient, tx database.TransactionRepository) repository.FriendshipRepository {
	return &friendshipRepo{table: table{db: db}, tx: tx}
}

func (r *friendshipRepo) Add(ctx context.Context, userId, friendId string, now time.Time) error {
	tb := database.NewTransactionBuilder()
	for _, pair := range [][2]string{{userId, friendId}, {friendId, userId}} {
		item, err := attributevalue.MarshalMap(&models.Friendship{
			User1Id:   pair[0],
			User2Id:   pair[1],
			CreatedAt: now,
			PK:        models.UserPK(pair[0]),
			SK:        models.FriendSK(pair[1]),
		})
		if err != nil {
			return apperrors.Wrap(err, apperrors.CodeObjectMarshalError, "failed to marshal friendship")
		}
		if err := tb.AddPut(types.Put{
			TableName: aws.String(r.db.Table()),
			Item:      item,
		}); err != nil {
			return apperrors.Wrap(err, apperrors.CodeTransactionError, "failed to build friendship transaction")
		}
	}

	if err := r.tx.Execute(ctx, tb); err != nil {
		return apperrors.Wrap(err, apperrors.CodeTransactionError, "failed to add friend")
	}
	return nil
}

func (r *friendshipRepo) Remove(ctx context.Context, userId, friendId string) error {
	tb := database.NewTransactionBuilder()
	for _, pair := range [][2]string{{userId, friendId}, {friendId, userId}} {
		if err := tb.AddDelete(types.Delete{
			TableName: aws.String(r.db.Table()),
			Key:       keyOf(models.UserPK(pair[0]), models.FriendSK(pair[1])),
		}); err != nil {
			return apperrors.Wrap(err, apperrors.CodeTransactionError, "failed to build friendship transaction")
		}
	}

	if err := r.tx.Execute(ctx, tb); err != nil {
		return apperrors.Wrap(err, apperrors.CodeTransactionError, "failed to remove friend")
	}
	return nil
}

func (r *friendshipRepo) ListFriendIds(ctx context.Context, userId string) ([]string, error) {
	items, err := r.queryPrefix(ctx, models.UserPK(userId), models.FriendSKPrefix())
	if err != nil {
		return nil, err
	}

	var edges []models.Friendship
	if err := attributevalue.UnmarshalListOfMaps(items, &edges); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeObjectUnmarshalError, "failed to unmarshal friendships")
	}

	ids := make([]string, 0, len(edges))
	for _, e := range edges {
		ids = append(ids, e.Other(userId))
	}
	return ids, nil
}
