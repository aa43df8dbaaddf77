// Package rankindex keeps order-statistics indexes over score keys: top-K
// pages and the rank of any single owner, both in logarithmic time.
package rankindex

import (
	"context"

	"github.com/tilerush/scoreboard/common/models"
)

// Key orders entries ascending by Partition, then Value, then owner id.
// Lower is better, so descending scores are stored as negated values.
type Key struct {
	Partition string
	Value     int64
}

// Entry is one owner's position inside the partition a query addressed.
type Entry struct {
	OwnerID  string
	Key      Key
	Position int
}

// Index is implemented by SkipList and RedisIndex.
//
// A non-empty prefix restricts a query to entries whose Partition equals it.
// An empty prefix addresses the whole ordering; RedisIndex stores partitions
// in separate sorted sets and only supports it on unpartitioned indexes.
type Index interface {
	Upsert(ctx context.Context, ownerID string, key Key) error
	Remove(ctx context.Context, ownerID string) error
	Get(ctx context.Context, ownerID string) (Key, bool, error)
	TopK(ctx context.Context, prefix string, k int) ([]Entry, error)
	PositionOf(ctx context.Context, ownerID, prefix string) (int, bool, error)
	Count(ctx context.Context, prefix string) (int, error)
}

// DailyKey partitions by the reset date so stale days drop out of "today".
func DailyKey(t *models.ScoreTotals) Key {
	return Key{Partition: t.DailyResetDate, Value: -t.DailyBestScore}
}

func TotalKey(t *models.ScoreTotals) Key {
	return Key{Value: -t.TotalScore}
}

// Score recovers the score a key was built from.
func (k Key) Score() int64 {
	return -k.Value
}
