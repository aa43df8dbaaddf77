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

// gameRepo keeps the running game under a fixed sort key, so "one running
// game per user" is enforced by the key itself. Finishing moves the game to
// a time-ordered history key.
type gameRepo struct {
	table
	tx database.TransactionRepository
}

func NewGameRepository(db *database.DynamoDBClient, tx database.TransactionRepository) repository.GameRepository {
	return &gameRepo{table: table{db: db}, tx: tx}
}

func (r *gameRepo) FindInProgress(ctx context.Context, userId string) (*models.Game, error) {
	var game models.Game
	found, err := r.getItem(ctx, models.UserPK(userId), models.ActiveGameSK(), &game)
	if err != nil || !found {
		return nil, err
	}
	return &game, nil
}

func (r *gameRepo) Create(ctx context.Context, game *models.Game) error {
	game.PK = models.UserPK(game.UserId)
	game.SK = models.ActiveGameSK()

	item, err := attributevalue.MarshalMap(game)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeObjectMarshalError, "failed to marshal game")
	}

	_, err = r.db.Client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.db.Table()),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if database.IsConditionFailed(err) {
		return apperrors.New(apperrors.CodeConflict, "game already in progress")
	}
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to create game")
	}
	return nil
}

func (r *gameRepo) RaiseScore(ctx context.Context, game *models.Game, candidate int64, now time.Time) (bool, error) {
	_, err := r.db.Client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.db.Table()),
		Key:                 keyOf(models.UserPK(game.UserId), models.ActiveGameSK()),
		UpdateExpression:    aws.String("SET score = :candidate, updated_at = :now"),
		ConditionExpression: aws.String("game_id = :gameId AND #status = :inProgress AND score < :candidate"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":candidate":  &types.AttributeValueMemberN{Value: itoa(candidate)},
			":now":        timeValue(now),
			":gameId":     str(game.GameId),
			":inProgress": str(string(models.GameInProgress)),
		},
	})
	if database.IsConditionFailed(err) {
		return false, nil
	}
	if err != nil {
		return false, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to update game score")
	}
	return true, nil
}

func (r *gameRepo) Finish(ctx context.Context, game *models.Game, now time.Time) (bool, error) {
	current, err := r.FindInProgress(ctx, game.UserId)
	if err != nil {
		return false, err
	}
	if current == nil || current.GameId != game.GameId {
		return false, nil
	}

	finished := *current
	finished.Status = models.GameFinished
	finished.UpdatedAt = now
	finished.SK = models.FinishedGameSK(finished.CreatedAt, finished.GameId)

	item, err := attributevalue.MarshalMap(&finished)
	if err != nil {
		return false, apperrors.Wrap(err, apperrors.CodeObjectMarshalError, "failed to marshal game")
	}

	tb := database.NewTransactionBuilder()
	if err := tb.AddDelete(types.Delete{
		TableName:           aws.String(r.db.Table()),
		Key:                 keyOf(models.UserPK(game.UserId), models.ActiveGameSK()),
		ConditionExpression: aws.String("game_id = :gameId"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":gameId": str(current.GameId),
		},
	}); err != nil {
		return false, apperrors.Wrap(err, apperrors.CodeTransactionError, "failed to build finish transaction")
	}
	if err := tb.AddPut(types.Put{
		TableName: aws.String(r.db.Table()),
		Item:      item,
	}); err != nil {
		return false, apperrors.Wrap(err, apperrors.CodeTransactionError, "failed to build finish transaction")
	}

	if err := r.tx.Execute(ctx, tb); err != nil {
		if failed := database.FailedConditions(err); len(failed) > 0 && failed[0] {
			return false, nil
		}
		return false, apperrors.Wrap(err, apperrors.CodeTransactionError, "failed to finish game")
	}

	*game = finished
	return true, nil
}

func (r *gameRepo) CountCreatedBetween(ctx context.Context, from, to time.Time) (int64, error) {
	return r.count(ctx, "begins_with(SK, :prefix) AND created_at >= :from AND created_at < :to", map[string]types.AttributeValue{
		":prefix": str(models.GameSKPrefix()),
		":from":   timeValue(from),
		":to":     timeValue(to),
	})
}

func (r *gameRepo) CountPlayersBetween(ctx context.Context, from, to time.Time) (int64, error) {
	players := make(map[string]struct{})
	err := r.scan(ctx,
		"begins_with(SK, :prefix) AND created_at >= :from AND created_at < :to",
		map[string]types.AttributeValue{
			":prefix": str(models.GameSKPrefix()),
			":from":   timeValue(from),
			":to":     timeValue(to),
		},
		"user_id",
		func(items []map[string]types.AttributeValue) error {
			for _, item := range items {
				if v, ok := item["user_id"].(*types.AttributeValueMemberS); ok {
					players[v.Value] = struct{}{}
				}
			}
			return nil
		},
	)
	if err != nil {
		return 0, err
	}
	return int64(len(players)), nil
}
