package service

import (
	"context"
	"slices"
	"strings"

	apperrors "github.com/tilerush/scoreboard/common/errors"
	"github.com/tilerush/scoreboard/common/logger"
	"github.com/tilerush/scoreboard/common/utils"
	"github.com/tilerush/scoreboard/services/scoring-service/internal/rankindex"
	"github.com/tilerush/scoreboard/services/scoring-service/internal/repository"
)

type Dimension string

const (
	DimensionDaily Dimension = "daily"
	DimensionTotal Dimension = "total"
)

type Scope string

const (
	ScopeGlobal  Scope = "global"
	ScopeFriends Scope = "friends"
)

type RatingRow struct {
	UserId    string `json:"user_id"`
	DisplayId int64  `json:"display_id"`
	Nickname  string `json:"nickname"`
	Score     int64  `json:"score"`
	Place     int    `json:"place"`
}

type RatingService interface {
	// GetRating returns up to limit rows, then the requester's own row when
	// it ranks below them.
	GetRating(ctx context.Context, userId string, dimension Dimension, scope Scope, limit int) ([]RatingRow, error)
}

type ratingService struct {
	users    repository.UserRepository
	totals   repository.TotalsRepository
	friends  repository.FriendshipRepository
	rankings *Rankings
	clock    utils.Clock
	logger   *logger.Logger
}

func NewRatingService(
	users repository.UserRepository,
	totals repository.TotalsRepository,
	friends repository.FriendshipRepository,
	rankings *Rankings,
	clock utils.Clock,
	log *logger.Logger,
) RatingService {
	return &ratingService{
		users:    users,
		totals:   totals,
		friends:  friends,
		rankings: rankings,
		clock:    clock,
		logger:   log.With("component", "RatingService"),
	}
}

func (s *ratingService) GetRating(ctx context.Context, userId string, dimension Dimension, scope Scope, limit int) ([]RatingRow, error) {
	if dimension != DimensionDaily && dimension != DimensionTotal {
		return nil, apperrors.New(apperrors.CodeInvalidInput, "unknown rating dimension")
	}
	if limit <= 0 {
		return nil, apperrors.New(apperrors.CodeInvalidInput, "limit must be positive")
	}
	if _, err := s.users.Get(ctx, userId); err != nil {
		return nil, err
	}

	var (
		rows []RatingRow
		err  error
	)
	switch scope {
	case ScopeGlobal:
		rows, err = s.globalRows(ctx, userId, dimension, limit)
	case ScopeFriends:
		rows, err = s.friendRows(ctx, userId, dimension, limit)
	default:
		return nil, apperrors.New(apperrors.CodeInvalidInput, "unknown rating scope")
	}
	if err != nil {
		return nil, err
	}

	if err := s.attachProfiles(ctx, rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// globalRows reads the top page and the requester's position under one read
// lock so both come from the same published state.
func (s *ratingService) globalRows(ctx context.Context, userId string, dimension Dimension, limit int) ([]RatingRow, error) {
	prefix := ""
	if dimension == DimensionDaily {
		prefix = utils.DateKey(s.clock.Now())
	}
	idx := s.rankings.index(dimension)

	s.rankings.mu.RLock()
	defer s.rankings.mu.RUnlock()

	top, err := idx.TopK(ctx, prefix, limit)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeIndexError, "failed to read top entries")
	}

	rows := make([]RatingRow, 0, len(top)+1)
	present := false
	for _, e := range top {
		rows = append(rows, rowOf(e))
		if e.OwnerID == userId {
			present = true
		}
	}
	if present {
		return rows, nil
	}

	position, ok, err := idx.PositionOf(ctx, userId, prefix)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeIndexError, "failed to read requester position")
	}
	if !ok {
		return rows, nil
	}
	key, ok, err := idx.Get(ctx, userId)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeIndexError, "failed to read requester entry")
	}
	if ok {
		rows = append(rows, rowOf(rankindex.Entry{OwnerID: userId, Key: key, Position: position}))
	}
	return rows, nil
}

func rowOf(e rankindex.Entry) RatingRow {
	return RatingRow{UserId: e.OwnerID, Score: e.Key.Score(), Place: e.Position + 1}
}

// friendRows ranks the requester and their friends from stored totals. The
// set is small, so it is sorted in memory instead of going through an index.
func (s *ratingService) friendRows(ctx context.Context, userId string, dimension Dimension, limit int) ([]RatingRow, error) {
	friendIds, err := s.friends.ListFriendIds(ctx, userId)
	if err != nil {
		return nil, err
	}

	totals, err := s.totals.GetMany(ctx, append(friendIds, userId))
	if err != nil {
		return nil, err
	}

	today := utils.DateKey(s.clock.Now())
	ranked := make([]RatingRow, 0, len(totals))
	for id, t := range totals {
		score := t.TotalScore
		if dimension == DimensionDaily {
			score = t.DailyScoreOn(today)
		}
		if score > 0 {
			ranked = append(ranked, RatingRow{UserId: id, Score: score})
		}
	}

	slices.SortFunc(ranked, func(a, b RatingRow) int {
		if a.Score != b.Score {
			if a.Score > b.Score {
				return -1
			}
			return 1
		}
		return strings.Compare(a.UserId, b.UserId)
	})

	rows := make([]RatingRow, 0, min(limit, len(ranked))+1)
	for i := range ranked {
		ranked[i].Place = i + 1
		if i < limit {
			rows = append(rows, ranked[i])
		} else if ranked[i].UserId == userId {
			rows = append(rows, ranked[i])
		}
	}
	return rows, nil
}

func (s *ratingService) attachProfiles(ctx context.Context, rows []RatingRow) error {
	if len(rows) == 0 {
		return nil
	}

	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.UserId)
	}

	users, err := s.users.GetMany(ctx, ids)
	if err != nil {
		return err
	}

	for i := range rows {
		u, ok := users[rows[i].UserId]
		if !ok {
			s.logger.Warn("Ranked user has no profile", "user_id", rows[i].UserId)
			continue
		}
		rows[i].DisplayId = u.ExternalId
		rows[i].Nickname = u.Nickname
	}
	return nil
}
