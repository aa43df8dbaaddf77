package handler

import (
	"github.com/tilerush/scoreboard/common/models"
	"github.com/tilerush/scoreboard/services/scoring-service/internal/service"
)

const defaultRatingLimit = 10

type Empty struct{}

type UserRequest struct {
	UserId string `json:"user_id" validate:"required"`
}

type EnsureUserRequest struct {
	ExternalId int64  `json:"external_id" validate:"gt=0"`
	Username   string `json:"username" validate:"max=64"`
	FirstName  string `json:"first_name" validate:"max=64"`
	LastName   string `json:"last_name" validate:"max=64"`
}

type EnsureUserResponse struct {
	User    *models.User `json:"user"`
	Created bool         `json:"created"`
}

type UserResponse struct {
	User *models.User `json:"user"`
}

type UsersResponse struct {
	Users []*models.User `json:"users"`
}

type SetNicknameRequest struct {
	UserId   string `json:"user_id" validate:"required"`
	Nickname string `json:"nickname" validate:"required,max=128"`
}

type GameResponse struct {
	// Game is null when the user has no game in progress.
	Game *models.Game `json:"game"`
}

type UpdateScoreRequest struct {
	UserId string `json:"user_id" validate:"required"`
	Score  int64  `json:"score" validate:"gte=0"`
}

type UpdateScoreResponse struct {
	Game     *models.Game    `json:"game"`
	Accepted bool            `json:"accepted"`
	Grants   []*models.Grant `json:"grants"`
}

type FinishGameRequest struct {
	UserId     string `json:"user_id" validate:"required"`
	GameId     string `json:"game_id"`
	FinalScore int64  `json:"final_score" validate:"gte=0"`
}

type FinishGameResponse struct {
	Game     *models.Game        `json:"game"`
	Totals   *models.ScoreTotals `json:"totals,omitempty"`
	Grants   []*models.Grant     `json:"grants"`
	Recorded bool                `json:"recorded"`
}

type ScoreResponse struct {
	Score int64 `json:"score"`
}

type GetRatingRequest struct {
	UserId    string `json:"user_id" validate:"required"`
	Dimension string `json:"dimension" validate:"required,oneof=daily total"`
	Scope     string `json:"scope" validate:"required,oneof=global friends"`
	// Limit defaults to 10 when zero.
	Limit int `json:"limit" validate:"gte=0,lte=100"`
}

type RatingResponse struct {
	Rows []service.RatingRow `json:"rows"`
}

type ListPromocodeTypesRequest struct {
	Scope string `json:"scope" validate:"omitempty,oneof=record total"`
}

type PromocodeTypesResponse struct {
	Types []*models.PromocodeType `json:"types"`
}

type UpsertPromocodeTypeRequest struct {
	TierId         string `json:"tier_id" validate:"max=64"`
	Scope          string `json:"scope" validate:"required,oneof=record total"`
	ThresholdScore int64  `json:"threshold_score" validate:"gte=0"`
	Discount       int64  `json:"discount" validate:"gte=0"`
	MinOrder       int64  `json:"min_order" validate:"gte=0"`
	Label          string `json:"label" validate:"max=128"`
	URL            string `json:"url" validate:"omitempty,url"`
	SortOrder      int    `json:"sort_order"`
}

type PromocodeTypeResponse struct {
	Type *models.PromocodeType `json:"type"`
}

type GrantsResponse struct {
	Grants []*models.Grant `json:"grants"`
}

type ClaimGrantRequest struct {
	UserId  string `json:"user_id" validate:"required"`
	GrantId string `json:"grant_id" validate:"required"`
}

type GrantResponse struct {
	Grant *models.Grant `json:"grant"`
}

type AddInventoryCodesRequest struct {
	TierId string   `json:"tier_id" validate:"required"`
	Codes  []string `json:"codes" validate:"min=1,max=10000"`
}

type AddInventoryCodeCopiesRequest struct {
	TierId string `json:"tier_id" validate:"required"`
	Code   string `json:"code" validate:"required"`
	Copies int    `json:"copies" validate:"gte=1,lte=10000"`
}

type AddInventoryResponse struct {
	Added int `json:"added"`
}

type FriendRequest struct {
	UserId   string `json:"user_id" validate:"required"`
	FriendId string `json:"friend_id" validate:"required"`
}

type ReindexResponse struct {
	Entries int `json:"entries"`
}
