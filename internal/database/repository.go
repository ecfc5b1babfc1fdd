package database

import (
	"context"
	"errors"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a write targets a stale room version.
	ErrConflict = errors.New("stale version")
)

type Store interface {
	Ping(ctx context.Context) error
	Close() error
	CreateUser(ctx context.Context, nickname string) (User, error)
	UpdateUser(ctx context.Context, params UpdateUserParams) (User, error)
	GetUser(ctx context.Context, id int) (User, error)
	CreateRoom(ctx context.Context, params CreateRoomParams) (Room, error)
	GetRoom(ctx context.Context, id string) (Room, error)
	// SaveRoom persists room settings and memberships if room.Version is
	// still current and returns the room with its new version.
	SaveRoom(ctx context.Context, room Room) (Room, error)
	DeleteRoom(ctx context.Context, id string, version int) error
	ListPublicRooms(ctx context.Context) ([]Room, error)
	ListRoomsForUser(ctx context.Context, userId int) ([]Room, error)
	// StartMatch stores the match and marks the room as started in one step.
	StartMatch(ctx context.Context, room Room, match Match) (Room, error)
	GetMatch(ctx context.Context, id string) (Match, error)
	// SetNextRoom records roomId as the follow-up room of a match unless one
	// is already set, and returns whichever id is stored afterwards.
	SetNextRoom(ctx context.Context, matchId, roomId string) (string, error)
}
