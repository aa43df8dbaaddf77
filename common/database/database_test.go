package database

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tilerush/scoreboard/common/config"
	"github.com/tilerush/scoreboard/common/logger"
)

func TestTransactionBuilderLimit(t *testing.T) {
	tb := NewTransactionBuilder()
	tb.limit = 2

	require.NoError(t, tb.AddPut(types.Put{TableName: aws.String("t")}))
	require.NoError(t, tb.AddDelete(types.Delete{TableName: aws.String("t")}))
	assert.Error(t, tb.AddUpdate(types.Update{TableName: aws.String("t")}))
	assert.Equal(t, 2, tb.Count())
}

func TestFailedConditions(t *testing.T) {
	err := &types.TransactionCanceledException{
		CancellationReasons: []types.CancellationReason{
			{Code: aws.String("None")},
			{Code: aws.String("ConditionalCheckFailed")},
		},
	}

	assert.Equal(t, []bool{false, true}, FailedConditions(err))
	assert.Nil(t, FailedConditions(errors.New("boom")))
	assert.True(t, IsConditionFailed(&types.ConditionalCheckFailedException{}))
}

func TestIsTransactionConflict(t *testing.T) {
	cancelled := func(codes ...string) error {
		reasons := make([]types.CancellationReason, 0, len(codes))
		for _, c := range codes {
			reasons = append(reasons, types.CancellationReason{Code: aws.String(c)})
		}
		return fmt.Errorf("allocate: %w", &types.TransactionCanceledException{CancellationReasons: reasons})
	}

	assert.True(t, IsTransactionConflict(cancelled("None", "TransactionConflict")))
	assert.False(t, IsTransactionConflict(cancelled("TransactionConflict", "ConditionalCheckFailed")),
		"a failed condition is final")
	assert.False(t, IsTransactionConflict(cancelled("None", "None")))
	assert.False(t, IsTransactionConflict(errors.New("throttled")))
}

func TestOpenSQLite(t *testing.T) {
	db, err := OpenSQL(context.Background(), DriverSQLite, config.SQLConfig{
		DSN:            ":memory:",
		ConnectTimeout: time.Second,
	}, logger.Nop())
	require.NoError(t, err)

	var one int
	require.NoError(t, db.Raw("SELECT 1").Scan(&one).Error)
	assert.Equal(t, 1, one)
}

func TestOpenSQLUnknownDriver(t *testing.T) {
	_, err := OpenSQL(context.Background(), "oracle", config.SQLConfig{}, logger.Nop())
	assert.Error(t, err)
}
