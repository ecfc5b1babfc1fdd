package lobby

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/freeboardgames/fbg-lobby/internal/database"
	"github.com/freeboardgames/fbg-lobby/internal/types"
)

const maxNicknameLength = 64

func validateNickname(nickname string) (string, error) {
	nickname = strings.TrimSpace(nickname)
	if nickname == "" {
		return "", invalid("nickname is required")
	}
	if utf8.RuneCountInString(nickname) > maxNicknameLength {
		return "", invalid("nickname must be at most %d characters", maxNicknameLength)
	}
	return nickname, nil
}

func (s *Service) NewUser(ctx context.Context, nickname string) (types.User, error) {
	nickname, err := validateNickname(nickname)
	if err != nil {
		return types.User{}, err
	}

	u, err := s.store.CreateUser(ctx, nickname)
	if err != nil {
		return types.User{}, storeErr("create user", err)
	}

	s.log.Printf("created user %d", u.Id)
	return types.User{Id: u.Id, Nickname: u.Nickname}, nil
}

func (s *Service) GetUser(ctx context.Context, userId int) (types.User, error) {
	u, err := s.requireUser(ctx, userId)
	if err != nil {
		return types.User{}, err
	}
	return types.User{Id: u.Id, Nickname: u.Nickname}, nil
}

// UpdateUser renames the user and refreshes every room still waiting for
// players that shows the old nickname.
func (s *Service) UpdateUser(ctx context.Context, userId int, nickname string) error {
	if _, err := s.requireUser(ctx, userId); err != nil {
		return err
	}

	nickname, err := validateNickname(nickname)
	if err != nil {
		return err
	}

	if _, err := s.store.UpdateUser(ctx, database.UpdateUserParams{UserId: userId, Nickname: nickname}); err != nil {
		return storeErr("update user", err)
	}

	rooms, err := s.store.ListRoomsForUser(ctx, userId)
	if err != nil {
		return storeErr("list rooms", err)
	}

	lobby := false
	for _, room := range rooms {
		if room.Started() {
			continue
		}
		if err := s.publishRoom(ctx, room, false); err != nil {
			return err
		}
		lobby = lobby || room.IsPublic
	}

	if lobby {
		return s.publishLobby(ctx)
	}
	return nil
}
