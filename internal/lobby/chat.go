package lobby

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/freeboardgames/fbg-lobby/internal/pubsub"
	"github.com/freeboardgames/fbg-lobby/internal/stats"
	"github.com/freeboardgames/fbg-lobby/internal/types"
)

const (
	ChannelRoom  = "room"
	ChannelMatch = "match"

	maxMessageLength = 500
	isoLayout        = "2006-01-02T15:04:05.000Z"
)

type SendMessageParams struct {
	ChannelType string
	ChannelId   string
	Message     string
}

// SendMessage broadcasts a chat message to the members of a room or the
// players of a match. Messages are not stored.
func (s *Service) SendMessage(ctx context.Context, userId int, params SendMessageParams) error {
	u, err := s.requireUser(ctx, userId)
	if err != nil {
		return err
	}
	if err := validateChannelType(params.ChannelType); err != nil {
		return err
	}

	text := strings.TrimSpace(params.Message)
	if text == "" {
		return invalid("message is empty")
	}
	if utf8.RuneCountInString(text) > maxMessageLength {
		return invalid("message must be at most %d characters", maxMessageLength)
	}

	if err := s.checkChannelMember(ctx, userId, params.ChannelType, params.ChannelId); err != nil {
		return err
	}

	msg := types.Message{
		ChannelType:  params.ChannelType,
		ChannelId:    params.ChannelId,
		UserId:       u.Id,
		UserNickname: u.Nickname,
		Message:      text,
		IsoTimestamp: s.now().UTC().Format(isoLayout),
	}
	if err := s.publish(ctx, pubsub.ChatChannel(msg.ChannelType, msg.ChannelId), msg); err != nil {
		return err
	}

	s.stats.Incr(stats.ChatMessages)
	return nil
}

func validateChannelType(channelType string) error {
	if channelType != ChannelRoom && channelType != ChannelMatch {
		return invalid("unknown channel type %q", channelType)
	}
	return nil
}

func (s *Service) checkChannelMember(ctx context.Context, userId int, channelType, channelId string) error {
	switch channelType {
	case ChannelRoom:
		room, err := s.store.GetRoom(ctx, channelId)
		if err != nil {
			return storeErr("get room", err)
		}
		if memberIndex(&room, userId) < 0 {
			return fmt.Errorf("not a member of room %q: %w", channelId, ErrForbidden)
		}
	case ChannelMatch:
		match, err := s.GetMatch(ctx, channelId)
		if err != nil {
			return err
		}
		if _, ok := match.Seat(userId); !ok {
			return fmt.Errorf("not a player of match %q: %w", channelId, ErrForbidden)
		}
	}
	return nil
}
