package handler

import (
	"context"

	"google.golang.org/grpc"

	apperrors "github.com/tilerush/scoreboard/common/errors"
	"github.com/tilerush/scoreboard/services/scoring-service/internal/service"
)

const ServiceName = "scoreboard.v1.ScoreboardService"

// ScoreboardServiceServer is the server API of scoreboard.v1.ScoreboardService.
type ScoreboardServiceServer interface {
	EnsureUser(context.Context, *EnsureUserRequest) (*EnsureUserResponse, error)
	GetUser(context.Context, *UserRequest) (*UserResponse, error)
	SetNickname(context.Context, *SetNicknameRequest) (*UserResponse, error)

	StartGame(context.Context, *UserRequest) (*GameResponse, error)
	UpdateScore(context.Context, *UpdateScoreRequest) (*UpdateScoreResponse, error)
	FinishGame(context.Context, *FinishGameRequest) (*FinishGameResponse, error)
	GetInProgressGame(context.Context, *UserRequest) (*GameResponse, error)
	GetTotalScore(context.Context, *UserRequest) (*ScoreResponse, error)
	GetRecordScore(context.Context, *UserRequest) (*ScoreResponse, error)

	GetRating(context.Context, *GetRatingRequest) (*RatingResponse, error)

	ListPromocodeTypes(context.Context, *ListPromocodeTypesRequest) (*PromocodeTypesResponse, error)
	UpsertPromocodeType(context.Context, *UpsertPromocodeTypeRequest) (*PromocodeTypeResponse, error)
	ListUserGrants(context.Context, *UserRequest) (*GrantsResponse, error)
	ClaimGrant(context.Context, *ClaimGrantRequest) (*GrantResponse, error)
	AddInventoryCodes(context.Context, *AddInventoryCodesRequest) (*AddInventoryResponse, error)
	AddInventoryCodeCopies(context.Context, *AddInventoryCodeCopiesRequest) (*AddInventoryResponse, error)

	AddFriend(context.Context, *FriendRequest) (*Empty, error)
	RemoveFriend(context.Context, *FriendRequest) (*Empty, error)
	ListFriends(context.Context, *UserRequest) (*UsersResponse, error)

	GetStats(context.Context, *Empty) (*service.Stats, error)
	ReindexTotals(context.Context, *Empty) (*ReindexResponse, error)
}

// unary builds the method descriptor for one RPC. The request is validated
// inside the interceptor chain and errors leave as gRPC statuses.
func unary[Req, Resp any](name string, call func(ScoreboardServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	fullMethod := "/" + ServiceName + "/" + name

	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}

			handle := func(ctx context.Context, req any) (any, error) {
				r := req.(*Req)
				if err := validateRequest(r); err != nil {
					return nil, apperrors.ToGRPCError(err)
				}
				resp, err := call(srv.(ScoreboardServiceServer), ctx, r)
				if err != nil {
					return nil, apperrors.ToGRPCError(err)
				}
				return resp, nil
			}

			if interceptor == nil {
				return handle(ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			return interceptor(ctx, in, info, handle)
		},
	}
}

var ScoreboardServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ScoreboardServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("EnsureUser", ScoreboardServiceServer.EnsureUser),
		unary("GetUser", ScoreboardServiceServer.GetUser),
		unary("SetNickname", ScoreboardServiceServer.SetNickname),
		unary("StartGame", ScoreboardServiceServer.StartGame),
		unary("UpdateScore", ScoreboardServiceServer.UpdateScore),
		unary("FinishGame", ScoreboardServiceServer.FinishGame),
		unary("GetInProgressGame", ScoreboardServiceServer.GetInProgressGame),
		unary("GetTotalScore", ScoreboardServiceServer.GetTotalScore),
		unary("GetRecordScore", ScoreboardServiceServer.GetRecordScore),
		unary("GetRating", ScoreboardServiceServer.GetRating),
		unary("ListPromocodeTypes", ScoreboardServiceServer.ListPromocodeTypes),
		unary("UpsertPromocodeType", ScoreboardServiceServer.UpsertPromocodeType),
		unary("ListUserGrants", ScoreboardServiceServer.ListUserGrants),
		unary("ClaimGrant", ScoreboardServiceServer.ClaimGrant),
		unary("AddInventoryCodes", ScoreboardServiceServer.AddInventoryCodes),
		unary("AddInventoryCodeCopies", ScoreboardServiceServer.AddInventoryCodeCopies),
		unary("AddFriend", ScoreboardServiceServer.AddFriend),
		unary("RemoveFriend", ScoreboardServiceServer.RemoveFriend),
		unary("ListFriends", ScoreboardServiceServer.ListFriends),
		unary("GetStats", ScoreboardServiceServer.GetStats),
		unary("ReindexTotals", ScoreboardServiceServer.ReindexTotals),
	},
	Streams: []grpc.StreamDesc{},
}

func RegisterScoreboardServiceServer(s grpc.ServiceRegistrar, srv ScoreboardServiceServer) {
	s.RegisterService(&ScoreboardServiceDesc, srv)
}
