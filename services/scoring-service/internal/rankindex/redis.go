package rankindex

import (
	"context"
	"errors"
	"fmt"

	apperrors "github.com/tilerush/scoreboard/common/errors"
	"github.com/redis/go-redis/v9"
)

const maxWatchRetries = 5

// RedisIndex keeps one sorted set per partition and a pointer key per owner
// naming the partition it currently sits in. Equal scores fall back to
// lexicographic member order, which matches SkipList's owner id tie-break.
type RedisIndex struct {
	client *redis.Client
	prefix string
}

// NewRedisIndex stores keys under "<keyPrefix>:<name>".
func NewRedisIndex(client *redis.Client, keyPrefix, name string) *RedisIndex {
	return &RedisIndex{
		client: client,
		prefix: fmt.Sprintf("%s:%s", keyPrefix, name),
	}
}

// Key Generation Helpers

func (r *RedisIndex) setKey(partition string) string {
	if partition == "" {
		return r.prefix
	}
	return fmt.Sprintf("%s:p:%s", r.prefix, partition)
}

func (r *RedisIndex) ownerKey(ownerID string) string {
	return fmt.Sprintf("%s:owner:%s", r.prefix, ownerID)
}

// Write Operations

func (r *RedisIndex) Upsert(ctx context.Context, ownerID string, key Key) error {
	pointer := r.ownerKey(ownerID)

	txf := func(tx *redis.Tx) error {
		previous, found, err := r.partitionOf(ctx, tx, pointer)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if found && previous != key.Partition {
				pipe.ZRem(ctx, r.setKey(previous), ownerID)
			}
			pipe.ZAdd(ctx, r.setKey(key.Partition), redis.Z{
				Score:  float64(key.Value),
				Member: ownerID,
			})
			pipe.Set(ctx, pointer, key.Partition, 0)
			return nil
		})
		return err
	}

	return r.watch(ctx, txf, pointer, "failed to upsert rank entry")
}

func (r *RedisIndex) Remove(ctx context.Context, ownerID string) error {
	pointer := r.ownerKey(ownerID)

	txf := func(tx *redis.Tx) error {
		previous, found, err := r.partitionOf(ctx, tx, pointer)
		if err != nil || !found {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.ZRem(ctx, r.setKey(previous), ownerID)
			pipe.Del(ctx, pointer)
			return nil
		})
		return err
	}

	return r.watch(ctx, txf, pointer, "failed to remove rank entry")
}

func (r *RedisIndex) watch(ctx context.Context, txf func(*redis.Tx) error, pointer, msg string) error {
	var err error
	for range maxWatchRetries {
		err = r.client.Watch(ctx, txf, pointer)
		if err == nil {
			return nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	return apperrors.Wrap(err, apperrors.CodeRedisOperationError, msg)
}

func (r *RedisIndex) partitionOf(ctx context.Context, cmd redis.Cmdable, pointer string) (string, bool, error) {
	partition, err := cmd.Get(ctx, pointer).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return partition, true, nil
}

// Read Operations

func (r *RedisIndex) Get(ctx context.Context, ownerID string) (Key, bool, error) {
	partition, found, err := r.partitionOf(ctx, r.client, r.ownerKey(ownerID))
	if err != nil {
		return Key{}, false, apperrors.Wrap(err, apperrors.CodeRedisOperationError, "failed to read rank pointer")
	}
	if !found {
		return Key{}, false, nil
	}

	score, err := r.client.ZScore(ctx, r.setKey(partition), ownerID).Result()
	if errors.Is(err, redis.Nil) {
		return Key{}, false, nil
	}
	if err != nil {
		return Key{}, false, apperrors.Wrap(err, apperrors.CodeRedisOperationError, "failed to read rank score")
	}

	return Key{Partition: partition, Value: int64(score)}, true, nil
}

// TopK retrieves the first k entries of one partition, best first.
func (r *RedisIndex) TopK(ctx context.Context, prefix string, k int) ([]Entry, error) {
	if k <= 0 {
		return []Entry{}, nil
	}

	members, err := r.client.ZRangeWithScores(ctx, r.setKey(prefix), 0, int64(k-1)).Result()
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeRedisOperationError, "failed to read top entries")
	}

	entries := make([]Entry, 0, len(members))
	for i, z := range members {
		owner, _ := z.Member.(string)
		entries = append(entries, Entry{
			OwnerID:  owner,
			Key:      Key{Partition: prefix, Value: int64(z.Score)},
			Position: i,
		})
	}
	return entries, nil
}

// PositionOf returns the owner's 0-based position within the partition.
func (r *RedisIndex) PositionOf(ctx context.Context, ownerID, prefix string) (int, bool, error) {
	partition, found, err := r.partitionOf(ctx, r.client, r.ownerKey(ownerID))
	if err != nil {
		return 0, false, apperrors.Wrap(err, apperrors.CodeRedisOperationError, "failed to read rank pointer")
	}
	if !found || partition != prefix {
		return 0, false, nil
	}

	rank, err := r.client.ZRank(ctx, r.setKey(prefix), ownerID).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, apperrors.Wrap(err, apperrors.CodeRedisOperationError, "failed to read rank")
	}

	return int(rank), true, nil
}

func (r *RedisIndex) Count(ctx context.Context, prefix string) (int, error) {
	n, err := r.client.ZCard(ctx, r.setKey(prefix)).Result()
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.CodeRedisOperationError, "failed to count entries")
	}
	return int(n), nil
}
