package models

import "time"

type GameStatus string

const (
	GameInProgress GameStatus = "in_progress"
	GameFinished   GameStatus = "finished"
)

// Game is one tile-merge session. A user has at most one in-progress game.
type Game struct {
	GameId    string     `dynamodbav:"game_id" gorm:"column:game_id;primaryKey;size:64" json:"game_id"`
	UserId    string     `dynamodbav:"user_id" gorm:"column:user_id;not null;index:idx_games_user_status,priority:1" json:"user_id"`
	Score     int64      `dynamodbav:"score" gorm:"column:score;not null;default:0" json:"score"`
	Status    GameStatus `dynamodbav:"status" gorm:"column:status;not null;size:16;index:idx_games_user_status,priority:2" json:"status"`
	CreatedAt time.Time  `dynamodbav:"created_at" gorm:"column:created_at;not null;index" json:"created_at"`
	UpdatedAt time.Time  `dynamodbav:"updated_at" gorm:"column:updated_at;not null" json:"updated_at"`

	PK string `dynamodbav:"PK" gorm:"-" json:"-"`
	SK string `dynamodbav:"SK" gorm:"-" json:"-"`
}

func (Game) TableName() string { return "games" }

func ActiveGameSK() string {
	return "GAME#ACTIVE"
}

func FinishedGameSK(createdAt time.Time, gameId string) string {
	return "GAME#DONE#" + createdAt.UTC().Format(time.RFC3339Nano) + "#" + gameId
}

func GameSKPrefix() string {
	return "GAME#"
}
