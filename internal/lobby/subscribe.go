package lobby

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/freeboardgames/fbg-lobby/internal/pubsub"
	"github.com/freeboardgames/fbg-lobby/internal/stats"
	"github.com/freeboardgames/fbg-lobby/internal/types"
)

// SubscribeLobby streams lobby snapshots until ctx is done.
func (s *Service) SubscribeLobby(ctx context.Context) (<-chan types.Lobby, error) {
	return subscribe[types.Lobby](ctx, s, pubsub.LobbyChannel)
}

// SubscribeRoom streams snapshots of one room until ctx is done.
func (s *Service) SubscribeRoom(ctx context.Context, roomId string) (<-chan types.Room, error) {
	if _, err := s.store.GetRoom(ctx, roomId); err != nil {
		return nil, storeErr("get room", err)
	}
	return subscribe[types.Room](ctx, s, pubsub.RoomChannel(roomId))
}

// SubscribeChat streams chat messages of a room or match channel.
func (s *Service) SubscribeChat(ctx context.Context, channelType, channelId string) (<-chan types.Message, error) {
	if err := validateChannelType(channelType); err != nil {
		return nil, err
	}
	return subscribe[types.Message](ctx, s, pubsub.ChatChannel(channelType, channelId))
}

func subscribe[T any](ctx context.Context, s *Service, channel string) (<-chan T, error) {
	raw, err := s.bc.Subscribe(ctx, channel)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}

	s.stats.Incr(stats.ActiveSubscriptions)
	out := make(chan T)

	go func() {
		defer func() {
			close(out)
			s.stats.Decr(stats.ActiveSubscriptions)
		}()

		for payload := range raw {
			var v T
			if err := json.Unmarshal(payload, &v); err != nil {
				s.log.Printf("decode event on %q: %v", channel, err)
				continue
			}

			select {
			case out <- v:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}
