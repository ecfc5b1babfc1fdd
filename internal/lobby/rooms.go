package lobby

import (
	"context"
	"errors"
	"fmt"

	"github.com/freeboardgames/fbg-lobby/internal/database"
	"github.com/freeboardgames/fbg-lobby/internal/stats"
	"github.com/freeboardgames/fbg-lobby/internal/types"
)

type NewRoomParams struct {
	GameCode string
	Capacity int
	IsPublic bool
}

type UpdateRoomParams struct {
	RoomId   string
	GameCode string
	Capacity int
}

func (s *Service) validateGame(gameCode string, capacity int) error {
	game, ok := s.games.Get(gameCode)
	if !ok {
		return invalid("unknown game %q", gameCode)
	}
	if !game.Fits(capacity) {
		return invalid("%s needs %d to %d players, got %d", game.Code, game.MinPlayers, game.MaxPlayers, capacity)
	}
	return nil
}

// NewRoom creates an empty room. The first user to join becomes its creator.
func (s *Service) NewRoom(ctx context.Context, userId int, params NewRoomParams) (string, error) {
	if _, err := s.requireUser(ctx, userId); err != nil {
		return "", err
	}
	if err := s.validateGame(params.GameCode, params.Capacity); err != nil {
		return "", err
	}

	room, err := s.createRoom(ctx, database.CreateRoomParams{
		GameCode: params.GameCode,
		Capacity: params.Capacity,
		IsPublic: params.IsPublic,
	})
	if err != nil {
		return "", err
	}

	if err := s.publishRoom(ctx, room, room.IsPublic); err != nil {
		return "", err
	}

	return room.Id, nil
}

func (s *Service) createRoom(ctx context.Context, params database.CreateRoomParams) (database.Room, error) {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		id, err := s.roomId()
		if err != nil {
			return database.Room{}, fmt.Errorf("generate room id: %w", err)
		}
		params.Id = id

		room, err := s.store.CreateRoom(ctx, params)
		if errors.Is(err, database.ErrConflict) {
			s.log.Printf("room id %q already taken", id)
			continue
		}
		if err != nil {
			return database.Room{}, storeErr("create room", err)
		}

		s.stats.Incr(stats.RoomsCreated)
		s.log.Printf("created room %q for %s (%d players)", room.Id, room.GameCode, room.Capacity)
		return room, nil
	}

	return database.Room{}, fmt.Errorf("create room: %w", ErrConflict)
}

func (s *Service) GetRoom(ctx context.Context, roomId string) (types.Room, error) {
	room, err := s.store.GetRoom(ctx, roomId)
	if err != nil {
		return types.Room{}, storeErr("get room", err)
	}
	return roomSnapshot(room), nil
}

// Lobby lists public rooms that have not started yet.
func (s *Service) Lobby(ctx context.Context) (types.Lobby, error) {
	rooms, err := s.store.ListPublicRooms(ctx)
	if err != nil {
		return types.Lobby{}, storeErr("list rooms", err)
	}

	l := types.Lobby{Rooms: make([]types.Room, 0, len(rooms))}
	for _, r := range rooms {
		l.Rooms = append(l.Rooms, roomSnapshot(r))
	}
	return l, nil
}

// JoinRoom seats the user at the next free position. Joining a room twice
// returns the room unchanged, including after it started.
func (s *Service) JoinRoom(ctx context.Context, userId int, roomId string) (types.Room, error) {
	u, err := s.requireUser(ctx, userId)
	if err != nil {
		return types.Room{}, err
	}

	room, err := s.mutateRoom(ctx, roomId, func(room *database.Room) error {
		if memberIndex(room, userId) >= 0 {
			return errUnchanged
		}
		if room.Started() || len(room.Memberships) >= room.Capacity {
			return ErrRoomFull
		}

		room.Memberships = append(room.Memberships, database.Membership{
			UserId:    userId,
			Nickname:  u.Nickname,
			IsCreator: len(room.Memberships) == 0,
			Position:  len(room.Memberships),
		})
		return nil
	})
	if err != nil {
		return types.Room{}, err
	}

	return roomSnapshot(room), nil
}

// LeaveRoom removes the user from the room. The lowest remaining seat
// inherits the creator role and an emptied room is deleted.
func (s *Service) LeaveRoom(ctx context.Context, userId int, roomId string) error {
	if _, err := s.requireUser(ctx, userId); err != nil {
		return err
	}

	_, err := s.mutateRoom(ctx, roomId, func(room *database.Room) error {
		i := memberIndex(room, userId)
		if i < 0 {
			return errUnchanged
		}
		if room.Started() {
			return ErrRoomStarted
		}

		room.Memberships = append(room.Memberships[:i], room.Memberships[i+1:]...)
		return nil
	})
	return err
}

// UpdateRoom changes the game and capacity of a room. Creator only.
func (s *Service) UpdateRoom(ctx context.Context, userId int, params UpdateRoomParams) error {
	if _, err := s.requireUser(ctx, userId); err != nil {
		return err
	}

	_, err := s.mutateRoom(ctx, params.RoomId, func(room *database.Room) error {
		if err := requireCreator(room, userId); err != nil {
			return err
		}
		if room.Started() {
			return ErrRoomStarted
		}
		if err := s.validateGame(params.GameCode, params.Capacity); err != nil {
			return err
		}
		if params.Capacity < len(room.Memberships) {
			return fmt.Errorf("%d players already joined: %w", len(room.Memberships), ErrCapacityTooLow)
		}
		if room.GameCode == params.GameCode && room.Capacity == params.Capacity {
			return errUnchanged
		}

		room.GameCode = params.GameCode
		room.Capacity = params.Capacity
		return nil
	})
	return err
}

// RemoveFromRoom kicks another user out of the room. Creator only.
func (s *Service) RemoveFromRoom(ctx context.Context, userId int, roomId string, targetId int) error {
	if _, err := s.requireUser(ctx, userId); err != nil {
		return err
	}

	_, err := s.mutateRoom(ctx, roomId, func(room *database.Room) error {
		if err := requireCreator(room, userId); err != nil {
			return err
		}
		if room.Started() {
			return ErrRoomStarted
		}
		if targetId == userId {
			return invalid("cannot remove yourself, leave the room instead")
		}

		i := memberIndex(room, targetId)
		if i < 0 {
			return fmt.Errorf("user %d is not in the room: %w", targetId, ErrNotFound)
		}

		room.Memberships = append(room.Memberships[:i], room.Memberships[i+1:]...)
		return nil
	})
	return err
}

// MoveUserUp swaps the user with the seat right before it. Creator only.
func (s *Service) MoveUserUp(ctx context.Context, userId int, roomId string, targetId int) error {
	if _, err := s.requireUser(ctx, userId); err != nil {
		return err
	}

	_, err := s.mutateRoom(ctx, roomId, func(room *database.Room) error {
		if err := requireCreator(room, userId); err != nil {
			return err
		}
		if room.Started() {
			return ErrRoomStarted
		}

		i := memberIndex(room, targetId)
		if i < 0 {
			return fmt.Errorf("user %d is not in the room: %w", targetId, ErrNotFound)
		}
		if room.Memberships[i].Position == 0 {
			return invalid("user %d is already in the first seat", targetId)
		}

		// memberships are sorted by seat, so i-1 holds the preceding seat
		prev := &room.Memberships[i-1]
		cur := &room.Memberships[i]
		prev.Position, cur.Position = cur.Position, prev.Position
		return nil
	})
	return err
}

// ShuffleUsers assigns the members a random seat order. Creator only.
func (s *Service) ShuffleUsers(ctx context.Context, userId int, roomId string) error {
	if _, err := s.requireUser(ctx, userId); err != nil {
		return err
	}

	_, err := s.mutateRoom(ctx, roomId, func(room *database.Room) error {
		if err := requireCreator(room, userId); err != nil {
			return err
		}
		if room.Started() {
			return ErrRoomStarted
		}

		s.shuffleSeats(room)
		return nil
	})
	return err
}

func (s *Service) shuffleSeats(room *database.Room) {
	members := room.Memberships
	s.shuffle(len(members), func(i, j int) {
		members[i], members[j] = members[j], members[i]
	})
	for i := range members {
		members[i].Position = i
	}
}
