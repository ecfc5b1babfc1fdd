// Package pubsub delivers change events to subscribers of named channels.
//
// Delivery is at-most-once to currently attached subscribers. A subscriber
// that falls behind loses events and is expected to refetch state.
package pubsub

import (
	"context"
	"errors"
	"strings"
)

const (
	LobbyChannel = "lobby"

	subscriberBuffer = 64
)

var ErrClosed = errors.New("broadcaster closed")

type Broadcaster interface {
	// Publish hands payload to every subscriber of channel without waiting
	// for them to consume it.
	Publish(ctx context.Context, channel string, payload []byte) error
	// Subscribe returns a stream of payloads published to channel. The stream
	// is closed once ctx is done or the broadcaster is closed.
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	Close() error
}

func RoomChannel(roomId string) string {
	return "room:" + roomId
}

func ChatChannel(channelType, channelId string) string {
	return strings.Join([]string{"chat", channelType, channelId}, ":")
}
