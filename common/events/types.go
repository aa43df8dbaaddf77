package events

import "time"

const (
	// Streams
	GameEventsStream       = "GAME_EVENTS"
	ScoreboardEventsStream = "SCOREBOARD_EVENTS"

	// Events consumed from the game-session collaborator
	GameFinished     = "events.game.finished"
	GameScoreUpdated = "events.game.scoreUpdated"

	// Events published by the scoreboard
	TotalsUpdated = "events.totals.updated"
	RewardGranted = "events.reward.granted"

	// Event Wildcards
	GameEventsWildcard       = "events.game.*"
	ScoreboardEventsWildcard = "events.totals.>"
	RewardEventsWildcard     = "events.reward.>"
)

// GameFinishedEvent may carry the game id; a redelivered event for a game
// that is no longer in progress is then ignored.
type GameFinishedEvent struct {
	UserId     string    `json:"user_id"`
	GameId     string    `json:"game_id,omitempty"`
	FinalScore int64     `json:"final_score"`
	FinishedAt time.Time `json:"finished_at"`
}

type GameScoreUpdatedEvent struct {
	UserId string `json:"user_id"`
	Score  int64  `json:"score"`
}

type TotalsUpdatedEvent struct {
	UserId         string    `json:"user_id"`
	TotalScore     int64     `json:"total_score"`
	RecordScore    int64     `json:"record_score"`
	DailyBestScore int64     `json:"daily_best_score"`
	DailyResetDate string    `json:"daily_reset_date"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type RewardGrantedEvent struct {
	GrantId   string    `json:"grant_id"`
	UserId    string    `json:"user_id"`
	TierId    string    `json:"tier_id"`
	GrantedAt time.Time `json:"granted_at"`
}
