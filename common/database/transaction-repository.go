package database

import (
	"context"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/cenkalti/backoff/v4"
)

// TransactionRepository runs TransactWriteItems against the client's table.
// Attempts cancelled only because another transaction touched the same items
// are retried; condition failures come back unchanged for FailedConditions.
type TransactionRepository interface {
	Execute(ctx context.Context, transactionBuilder *TransactionBuilder) error
}

type transactionRepo struct {
	db      *DynamoDBClient
	retries uint64
	wait    time.Duration
}

func NewTransactionRepository(db *DynamoDBClient) TransactionRepository {
	return &transactionRepo{db: db, retries: 3, wait: 25 * time.Millisecond}
}

func (r *transactionRepo) Execute(ctx context.Context, transactionBuilder *TransactionBuilder) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = r.wait

	return backoff.Retry(func() error {
		err := transactionBuilder.Execute(ctx, r.db.Client)
		if err != nil && !IsTransactionConflict(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(policy, r.retries), ctx))
}

// IsTransactionConflict reports whether a transaction was cancelled only by
// concurrent transactions, with no failed condition among its items.
func IsTransactionConflict(err error) bool {
	var cancelled *types.TransactionCanceledException
	if !errors.As(err, &cancelled) {
		return false
	}

	conflict := false
	for _, reason := range cancelled.CancellationReasons {
		if reason.Code == nil {
			continue
		}
		switch *reason.Code {
		case "TransactionConflict":
			conflict = true
		case "None":
		default:
			return false
		}
	}
	return conflict
}
