// Package graph exposes the lobby service over GraphQL.
package graph

import (
	"context"
	"log"
	"math"

	"github.com/freeboardgames/fbg-lobby/internal/auth"
	"github.com/freeboardgames/fbg-lobby/internal/lobby"
	graphql "github.com/graph-gophers/graphql-go"
)

// Resolver is the root resolver for queries, mutations and subscriptions.
type Resolver struct {
	log    *log.Logger
	svc    *lobby.Service
	tokens *auth.TokenManager
}

func NewSchema(logger *log.Logger, svc *lobby.Service, tokens *auth.TokenManager) *graphql.Schema {
	r := &Resolver{
		log:    logger,
		svc:    svc,
		tokens: tokens,
	}
	return graphql.MustParseSchema(Schema, r)
}

// viewer returns the authenticated user id, or 0 for anonymous requests.
func viewer(ctx context.Context) int {
	userId, _ := auth.UserId(ctx)
	return userId
}

func capacity(v float64) (int, error) {
	if v != math.Trunc(v) || v < 0 || v > math.MaxInt32 {
		return 0, &Error{Message: "capacity must be a whole number", Code: CodeBadUserInput}
	}
	return int(v), nil
}

// Queries

func (r *Resolver) Lobby(ctx context.Context) (*lobbyResolver, error) {
	l, err := r.svc.Lobby(ctx)
	if err != nil {
		return nil, r.toError(err)
	}
	return &lobbyResolver{lobby: l, viewer: viewer(ctx)}, nil
}

func (r *Resolver) Match(ctx context.Context, args struct{ Id string }) (*matchResolver, error) {
	m, err := r.svc.GetMatch(ctx, args.Id)
	if err != nil {
		return nil, r.toError(err)
	}
	return &matchResolver{match: m, viewer: viewer(ctx)}, nil
}

func (r *Resolver) User(ctx context.Context) (*userResolver, error) {
	u, err := r.svc.GetUser(ctx, viewer(ctx))
	if err != nil {
		return nil, r.toError(err)
	}
	return &userResolver{user: u}, nil
}

// Mutations

type newUserInput struct {
	Nickname string
}

type newRoomInput struct {
	Capacity float64
	GameCode string
	IsPublic bool
}

type updateRoomInput struct {
	Capacity float64
	GameCode string
	RoomId   string
}

type sendMessageInput struct {
	ChannelId   string
	ChannelType string
	Message     string
}

func (r *Resolver) NewUser(ctx context.Context, args struct{ User newUserInput }) (*newUserResolver, error) {
	u, err := r.svc.NewUser(ctx, args.User.Nickname)
	if err != nil {
		return nil, r.toError(err)
	}

	token, err := r.tokens.Sign(u.Id)
	if err != nil {
		return nil, r.toError(err)
	}

	return &newUserResolver{token: token}, nil
}

func (r *Resolver) UpdateUser(ctx context.Context, args struct{ User newUserInput }) (bool, error) {
	if err := r.svc.UpdateUser(ctx, viewer(ctx), args.User.Nickname); err != nil {
		return false, r.toError(err)
	}
	return true, nil
}

func (r *Resolver) NewRoom(ctx context.Context, args struct{ Room newRoomInput }) (*newRoomResolver, error) {
	c, err := capacity(args.Room.Capacity)
	if err != nil {
		return nil, err
	}

	id, err := r.svc.NewRoom(ctx, viewer(ctx), lobby.NewRoomParams{
		GameCode: args.Room.GameCode,
		Capacity: c,
		IsPublic: args.Room.IsPublic,
	})
	if err != nil {
		return nil, r.toError(err)
	}
	return &newRoomResolver{roomId: id}, nil
}

func (r *Resolver) UpdateRoom(ctx context.Context, args struct{ Room updateRoomInput }) (bool, error) {
	c, err := capacity(args.Room.Capacity)
	if err != nil {
		return false, err
	}

	err = r.svc.UpdateRoom(ctx, viewer(ctx), lobby.UpdateRoomParams{
		RoomId:   args.Room.RoomId,
		GameCode: args.Room.GameCode,
		Capacity: c,
	})
	if err != nil {
		return false, r.toError(err)
	}
	return true, nil
}

func (r *Resolver) JoinRoom(ctx context.Context, args struct{ RoomId string }) (*roomResolver, error) {
	room, err := r.svc.JoinRoom(ctx, viewer(ctx), args.RoomId)
	if err != nil {
		return nil, r.toError(err)
	}
	return &roomResolver{room: room, viewer: viewer(ctx)}, nil
}

func (r *Resolver) LeaveRoom(ctx context.Context, args struct{ RoomId string }) (bool, error) {
	if err := r.svc.LeaveRoom(ctx, viewer(ctx), args.RoomId); err != nil {
		return false, r.toError(err)
	}
	return true, nil
}

func (r *Resolver) RemoveFromRoom(ctx context.Context, args struct {
	RoomId            string
	UserIdToBeRemoved int32
}) (bool, error) {
	if err := r.svc.RemoveFromRoom(ctx, viewer(ctx), args.RoomId, int(args.UserIdToBeRemoved)); err != nil {
		return false, r.toError(err)
	}
	return true, nil
}

func (r *Resolver) MoveUserUp(ctx context.Context, args struct {
	RoomId            string
	UserIdToBeMovedUp int32
}) (bool, error) {
	if err := r.svc.MoveUserUp(ctx, viewer(ctx), args.RoomId, int(args.UserIdToBeMovedUp)); err != nil {
		return false, r.toError(err)
	}
	return true, nil
}

func (r *Resolver) ShuffleUsers(ctx context.Context, args struct{ RoomId string }) (bool, error) {
	if err := r.svc.ShuffleUsers(ctx, viewer(ctx), args.RoomId); err != nil {
		return false, r.toError(err)
	}
	return true, nil
}

func (r *Resolver) StartMatch(ctx context.Context, args struct {
	RoomId       string
	SetupData    string
	ShuffleUsers bool
}) (string, error) {
	matchId, err := r.svc.StartMatch(ctx, viewer(ctx), lobby.StartMatchParams{
		RoomId:       args.RoomId,
		SetupData:    args.SetupData,
		ShuffleUsers: args.ShuffleUsers,
	})
	if err != nil {
		return "", r.toError(err)
	}
	return matchId, nil
}

func (r *Resolver) NextRoom(ctx context.Context, args struct{ MatchId string }) (string, error) {
	roomId, err := r.svc.NextRoom(ctx, viewer(ctx), args.MatchId)
	if err != nil {
		return "", r.toError(err)
	}
	return roomId, nil
}

func (r *Resolver) SendMessage(ctx context.Context, args struct{ Message sendMessageInput }) (bool, error) {
	err := r.svc.SendMessage(ctx, viewer(ctx), lobby.SendMessageParams{
		ChannelType: args.Message.ChannelType,
		ChannelId:   args.Message.ChannelId,
		Message:     args.Message.Message,
	})
	if err != nil {
		return false, r.toError(err)
	}
	return true, nil
}
