package models

import "time"

// ScoreTotals is the per-user aggregate over finished games. TotalScore and
// RecordScore never decrease; DailyBestScore is reset whenever DailyResetDate
// is not the current UTC date key.
type ScoreTotals struct {
	UserId         string    `dynamodbav:"user_id" gorm:"column:user_id;primaryKey;size:64" json:"user_id"`
	TotalScore     int64     `dynamodbav:"total_score" gorm:"column:total_score;not null;default:0" json:"total_score"`
	RecordScore    int64     `dynamodbav:"record_score" gorm:"column:record_score;not null;default:0" json:"record_score"`
	DailyBestScore int64     `dynamodbav:"daily_best_score" gorm:"column:daily_best_score;not null;default:0" json:"daily_best_score"`
	DailyResetDate string    `dynamodbav:"daily_reset_date" gorm:"column:daily_reset_date;not null;size:10" json:"daily_reset_date"`
	UpdatedAt      time.Time `dynamodbav:"updated_at" gorm:"column:updated_at;not null" json:"updated_at"`

	// LastGameId is the game most recently folded in. A finish for the same
	// game is not applied twice.
	LastGameId string `dynamodbav:"last_game_id" gorm:"column:last_game_id;size:64" json:"-"`
	// Version counts saves and guards concurrent writers.
	Version int64 `dynamodbav:"version" gorm:"column:version;not null;default:0" json:"-"`

	PK string `dynamodbav:"PK" gorm:"-" json:"-"`
	SK string `dynamodbav:"SK" gorm:"-" json:"-"`
}

func (ScoreTotals) TableName() string { return "score_totals" }

// DailyScoreOn returns the daily best if it belongs to dateKey, otherwise 0.
func (t *ScoreTotals) DailyScoreOn(dateKey string) int64 {
	if t == nil || t.DailyResetDate != dateKey {
		return 0
	}
	return t.DailyBestScore
}

func TotalsSK() string {
	return "TOTALS"
}
