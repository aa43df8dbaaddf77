package rankindex

import (
	"context"

	"github.com/tilerush/scoreboard/common/models"
)

// TotalsPager pages through every stored totals record. An empty next
// cursor ends the scan.
type TotalsPager interface {
	ListTotalsPage(ctx context.Context, cursor string, limit int) ([]*models.ScoreTotals, string, error)
}

// Backfill loads every totals record into both indexes. It is idempotent,
// so it can run on each start of a process with an empty in-memory index.
func Backfill(ctx context.Context, source TotalsPager, pageSize int, daily, total Index) (int, error) {
	if pageSize <= 0 {
		pageSize = 500
	}

	loaded := 0
	cursor := ""
	for {
		page, next, err := source.ListTotalsPage(ctx, cursor, pageSize)
		if err != nil {
			return loaded, err
		}

		for _, t := range page {
			if err := daily.Upsert(ctx, t.UserId, DailyKey(t)); err != nil {
				return loaded, err
			}
			if err := total.Upsert(ctx, t.UserId, TotalKey(t)); err != nil {
				return loaded, err
			}
			loaded++
		}

		if next == "" {
			return loaded, nil
		}
		cursor = next

		if err := ctx.Err(); err != nil {
			return loaded, err
		}
	}
}
