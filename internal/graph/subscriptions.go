package graph

import (
	"context"

	"github.com/freeboardgames/fbg-lobby/internal/types"
)

func (r *Resolver) LobbyMutated(ctx context.Context) (<-chan *lobbyResolver, error) {
	events, err := r.svc.SubscribeLobby(ctx)
	if err != nil {
		return nil, r.toError(err)
	}

	userId := viewer(ctx)
	return forward(ctx, events, func(l types.Lobby) *lobbyResolver {
		return &lobbyResolver{lobby: l, viewer: userId}
	}), nil
}

func (r *Resolver) RoomMutated(ctx context.Context, args struct{ RoomId string }) (<-chan *roomResolver, error) {
	events, err := r.svc.SubscribeRoom(ctx, args.RoomId)
	if err != nil {
		return nil, r.toError(err)
	}

	userId := viewer(ctx)
	return forward(ctx, events, func(room types.Room) *roomResolver {
		return &roomResolver{room: room, viewer: userId}
	}), nil
}

func (r *Resolver) ChatMutated(ctx context.Context, args struct {
	ChannelType string
	ChannelId   string
}) (<-chan *messageResolver, error) {
	events, err := r.svc.SubscribeChat(ctx, args.ChannelType, args.ChannelId)
	if err != nil {
		return nil, r.toError(err)
	}

	return forward(ctx, events, func(m types.Message) *messageResolver {
		return &messageResolver{msg: m}
	}), nil
}

// forward wraps every event in its resolver until the source closes or ctx
// is done.
func forward[T any, R any](ctx context.Context, in <-chan T, wrap func(T) R) <-chan R {
	out := make(chan R)
	go func() {
		defer close(out)
		for v := range in {
			select {
			case out <- wrap(v):
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
