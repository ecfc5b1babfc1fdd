package lobby

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/freeboardgames/fbg-lobby/internal/database"
	"github.com/freeboardgames/fbg-lobby/internal/stats"
	"github.com/freeboardgames/fbg-lobby/internal/types"
)

type StartMatchParams struct {
	RoomId string
	// SetupData is passed to the game server as is. It must be empty or JSON.
	SetupData    string
	ShuffleUsers bool
}

// StartMatch turns a full room into a match on the game server and returns
// the match id. Creator only. A room is started at most once.
func (s *Service) StartMatch(ctx context.Context, userId int, params StartMatchParams) (string, error) {
	if _, err := s.requireUser(ctx, userId); err != nil {
		return "", err
	}

	setupData := strings.TrimSpace(params.SetupData)
	if setupData != "" && !json.Valid([]byte(setupData)) {
		return "", invalid("setupData is not valid JSON")
	}

	unlock := s.locks.Lock(params.RoomId)
	defer unlock()

	room, err := s.store.GetRoom(ctx, params.RoomId)
	if err != nil {
		return "", storeErr("get room", err)
	}
	wasPublic := room.IsPublic

	if err := requireCreator(&room, userId); err != nil {
		return "", err
	}
	if room.Started() {
		return "", fmt.Errorf("room %q: %w", room.Id, ErrRoomStarted)
	}
	if len(room.Memberships) != room.Capacity {
		return "", fmt.Errorf("%d of %d players joined: %w", len(room.Memberships), room.Capacity, ErrNotEnoughPlayers)
	}

	if params.ShuffleUsers {
		s.shuffleSeats(&room)
	}
	normalize(&room)

	match, err := s.createMatch(ctx, room, setupData)
	if err != nil {
		return "", err
	}

	started, err := s.store.StartMatch(ctx, room, match)
	if err != nil {
		return "", storeErr("start match", err)
	}

	s.stats.Incr(stats.MatchesStarted)
	s.log.Printf("started match %q from room %q", match.Id, room.Id)

	if err := s.publishRoom(ctx, started, wasPublic); err != nil {
		return "", err
	}

	return match.Id, nil
}

// createMatch allocates the match on the game server and claims one seat per
// member in seat order.
func (s *Service) createMatch(ctx context.Context, room database.Room, setupData string) (database.Match, error) {
	var raw json.RawMessage
	if setupData != "" {
		raw = json.RawMessage(setupData)
	}

	matchId, err := s.transport.CreateMatch(ctx, room.GameCode, room.Capacity, raw)
	if err != nil {
		return database.Match{}, fmt.Errorf("game server: %w", err)
	}

	match := database.Match{
		Id:        matchId,
		GameCode:  room.GameCode,
		Capacity:  room.Capacity,
		ServerUrl: s.serverUrl,
		SetupData: setupData,
		Players:   make([]database.MatchPlayer, 0, len(room.Memberships)),
	}

	for _, m := range room.Memberships {
		secret, err := s.transport.JoinMatch(ctx, room.GameCode, matchId, m.Position, m.Nickname)
		if err != nil {
			return database.Match{}, fmt.Errorf("game server: %w", err)
		}
		match.Players = append(match.Players, database.MatchPlayer{
			UserId:   m.UserId,
			Nickname: m.Nickname,
			PlayerId: strconv.Itoa(m.Position),
			Secret:   secret,
		})
	}

	return match, nil
}

func (s *Service) GetMatch(ctx context.Context, matchId string) (types.Match, error) {
	match, err := s.store.GetMatch(ctx, matchId)
	if err != nil {
		return types.Match{}, storeErr("get match", err)
	}
	return matchSnapshot(match), nil
}

// NextRoom returns the room for a rematch, creating a private room with the
// same game and capacity on first use. Every caller gets the same room.
func (s *Service) NextRoom(ctx context.Context, userId int, matchId string) (string, error) {
	if _, err := s.requireUser(ctx, userId); err != nil {
		return "", err
	}

	match, err := s.store.GetMatch(ctx, matchId)
	if err != nil {
		return "", storeErr("get match", err)
	}
	if match.NextRoomId != "" {
		return match.NextRoomId, nil
	}

	room, err := s.createRoom(ctx, database.CreateRoomParams{
		GameCode: match.GameCode,
		Capacity: match.Capacity,
		IsPublic: false,
	})
	if err != nil {
		return "", err
	}

	winner, err := s.store.SetNextRoom(ctx, matchId, room.Id)
	if err != nil {
		return "", storeErr("set next room", err)
	}

	if winner != room.Id {
		s.log.Printf("match %q already has next room %q, dropping %q", matchId, winner, room.Id)
		if err := s.store.DeleteRoom(ctx, room.Id, room.Version); err != nil && !errors.Is(err, database.ErrNotFound) {
			s.log.Printf("delete room %q: %v", room.Id, err)
		}
		return winner, nil
	}

	if err := s.publishRoom(ctx, room, false); err != nil {
		return "", err
	}

	return room.Id, nil
}
