package handler

import (
	"context"

	"github.com/tilerush/scoreboard/common/logger"
	"github.com/tilerush/scoreboard/common/models"
	"github.com/tilerush/scoreboard/services/scoring-service/internal/service"
)

type Services struct {
	Users      service.UserService
	Games      service.GameService
	Totals     service.TotalsService
	Ratings    service.RatingService
	Promocodes service.PromocodeService
	Friends    service.FriendService
	Stats      service.StatsService
}

type ScoreboardHandler struct {
	services Services
	logger   *logger.Logger
}

func NewScoreboardHandler(services Services, log *logger.Logger) *ScoreboardHandler {
	return &ScoreboardHandler{
		services: services,
		logger:   log.With("component", "ScoreboardHandler"),
	}
}

func (h *ScoreboardHandler) EnsureUser(ctx context.Context, req *EnsureUserRequest) (*EnsureUserResponse, error) {
	user, created, err := h.services.Users.EnsureUser(ctx, service.EnsureUserInput{
		ExternalId: req.ExternalId,
		Username:   req.Username,
		FirstName:  req.FirstName,
		LastName:   req.LastName,
	})
	if err != nil {
		return nil, err
	}
	return &EnsureUserResponse{User: user, Created: created}, nil
}

func (h *ScoreboardHandler) GetUser(ctx context.Context, req *UserRequest) (*UserResponse, error) {
	user, err := h.services.Users.GetUser(ctx, req.UserId)
	if err != nil {
		return nil, err
	}
	return &UserResponse{User: user}, nil
}

func (h *ScoreboardHandler) SetNickname(ctx context.Context, req *SetNicknameRequest) (*UserResponse, error) {
	user, err := h.services.Users.SetNickname(ctx, req.UserId, req.Nickname)
	if err != nil {
		return nil, err
	}
	return &UserResponse{User: user}, nil
}

func (h *ScoreboardHandler) StartGame(ctx context.Context, req *UserRequest) (*GameResponse, error) {
	game, err := h.services.Games.StartGame(ctx, req.UserId)
	if err != nil {
		return nil, err
	}
	return &GameResponse{Game: game}, nil
}

func (h *ScoreboardHandler) UpdateScore(ctx context.Context, req *UpdateScoreRequest) (*UpdateScoreResponse, error) {
	result, err := h.services.Games.UpdateScore(ctx, req.UserId, req.Score)
	if err != nil {
		return nil, err
	}
	return &UpdateScoreResponse{Game: result.Game, Accepted: result.Accepted, Grants: result.Grants}, nil
}

func (h *ScoreboardHandler) FinishGame(ctx context.Context, req *FinishGameRequest) (*FinishGameResponse, error) {
	result, err := h.services.Games.FinishGame(ctx, req.UserId, req.GameId, req.FinalScore)
	if err != nil {
		return nil, err
	}
	return &FinishGameResponse{
		Game:     result.Game,
		Totals:   result.Totals,
		Grants:   result.Grants,
		Recorded: result.Recorded,
	}, nil
}

func (h *ScoreboardHandler) GetInProgressGame(ctx context.Context, req *UserRequest) (*GameResponse, error) {
	game, err := h.services.Games.GetInProgressGame(ctx, req.UserId)
	if err != nil {
		return nil, err
	}
	return &GameResponse{Game: game}, nil
}

func (h *ScoreboardHandler) GetTotalScore(ctx context.Context, req *UserRequest) (*ScoreResponse, error) {
	score, err := h.services.Games.GetTotalScore(ctx, req.UserId)
	if err != nil {
		return nil, err
	}
	return &ScoreResponse{Score: score}, nil
}

func (h *ScoreboardHandler) GetRecordScore(ctx context.Context, req *UserRequest) (*ScoreResponse, error) {
	score, err := h.services.Games.GetRecordScore(ctx, req.UserId)
	if err != nil {
		return nil, err
	}
	return &ScoreResponse{Score: score}, nil
}

func (h *ScoreboardHandler) GetRating(ctx context.Context, req *GetRatingRequest) (*RatingResponse, error) {
	limit := req.Limit
	if limit == 0 {
		limit = defaultRatingLimit
	}

	rows, err := h.services.Ratings.GetRating(ctx, req.UserId, service.Dimension(req.Dimension), service.Scope(req.Scope), limit)
	if err != nil {
		return nil, err
	}
	return &RatingResponse{Rows: rows}, nil
}

func (h *ScoreboardHandler) ListPromocodeTypes(ctx context.Context, req *ListPromocodeTypesRequest) (*PromocodeTypesResponse, error) {
	types, err := h.services.Promocodes.ListPromocodeTypes(ctx, req.Scope)
	if err != nil {
		return nil, err
	}
	return &PromocodeTypesResponse{Types: types}, nil
}

func (h *ScoreboardHandler) UpsertPromocodeType(ctx context.Context, req *UpsertPromocodeTypeRequest) (*PromocodeTypeResponse, error) {
	tier, err := h.services.Promocodes.UpsertPromocodeType(ctx, &models.PromocodeType{
		TierId:         req.TierId,
		Scope:          models.TierScope(req.Scope),
		ThresholdScore: req.ThresholdScore,
		Discount:       req.Discount,
		MinOrder:       req.MinOrder,
		Label:          req.Label,
		URL:            req.URL,
		SortOrder:      req.SortOrder,
	})
	if err != nil {
		return nil, err
	}
	return &PromocodeTypeResponse{Type: tier}, nil
}

func (h *ScoreboardHandler) ListUserGrants(ctx context.Context, req *UserRequest) (*GrantsResponse, error) {
	grants, err := h.services.Promocodes.ListUserGrants(ctx, req.UserId)
	if err != nil {
		return nil, err
	}
	return &GrantsResponse{Grants: grants}, nil
}

func (h *ScoreboardHandler) ClaimGrant(ctx context.Context, req *ClaimGrantRequest) (*GrantResponse, error) {
	grant, err := h.services.Promocodes.ClaimGrant(ctx, req.UserId, req.GrantId)
	if err != nil {
		return nil, err
	}
	return &GrantResponse{Grant: grant}, nil
}

func (h *ScoreboardHandler) AddInventoryCodes(ctx context.Context, req *AddInventoryCodesRequest) (*AddInventoryResponse, error) {
	added, err := h.services.Promocodes.AddInventoryCodes(ctx, req.TierId, req.Codes)
	if err != nil {
		return nil, err
	}
	return &AddInventoryResponse{Added: added}, nil
}

func (h *ScoreboardHandler) AddInventoryCodeCopies(ctx context.Context, req *AddInventoryCodeCopiesRequest) (*AddInventoryResponse, error) {
	added, err := h.services.Promocodes.AddInventoryCodeCopies(ctx, req.TierId, req.Code, req.Copies)
	if err != nil {
		return nil, err
	}
	return &AddInventoryResponse{Added: added}, nil
}

func (h *ScoreboardHandler) AddFriend(ctx context.Context, req *FriendRequest) (*Empty, error) {
	if err := h.services.Friends.AddFriend(ctx, req.UserId, req.FriendId); err != nil {
		return nil, err
	}
	return &Empty{}, nil
}

func (h *ScoreboardHandler) RemoveFriend(ctx context.Context, req *FriendRequest) (*Empty, error) {
	if err := h.services.Friends.RemoveFriend(ctx, req.UserId, req.FriendId); err != nil {
		return nil, err
	}
	return &Empty{}, nil
}

func (h *ScoreboardHandler) ListFriends(ctx context.Context, req *UserRequest) (*UsersResponse, error) {
	users, err := h.services.Friends.ListFriends(ctx, req.UserId)
	if err != nil {
		return nil, err
	}
	return &UsersResponse{Users: users}, nil
}

func (h *ScoreboardHandler) GetStats(ctx context.Context, _ *Empty) (*service.Stats, error) {
	return h.services.Stats.GetStats(ctx)
}

func (h *ScoreboardHandler) ReindexTotals(ctx context.Context, _ *Empty) (*ReindexResponse, error) {
	entries, err := h.services.Totals.Reindex(ctx)
	if err != nil {
		return nil, err
	}
	h.logger.Info("Totals reindexed on request", "entries", entries)
	return &ReindexResponse{Entries: entries}, nil
}
