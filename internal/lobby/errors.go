package lobby

import (
	"errors"
	"fmt"

	"github.com/freeboardgames/fbg-lobby/internal/database"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrForbidden        = errors.New("forbidden")
	ErrInvalidInput     = errors.New("invalid input")
	ErrRoomFull         = errors.New("room is full")
	ErrNotEnoughPlayers = errors.New("not enough players")
	ErrCapacityTooLow   = errors.New("capacity is lower than the number of players")
	ErrUnauthenticated  = errors.New("unauthenticated")
	ErrConflict         = errors.New("concurrent update, try again")
	ErrRoomStarted      = errors.New("room already started")
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// storeErr maps persistence errors onto service errors.
func storeErr(what string, err error) error {
	switch {
	case errors.Is(err, database.ErrNotFound):
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	case errors.Is(err, database.ErrConflict):
		return fmt.Errorf("%s: %w", what, ErrConflict)
	default:
		return fmt.Errorf("%s: %w", what, err)
	}
}
