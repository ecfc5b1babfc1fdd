package graph

import (
	"errors"
	"net/http"

	"github.com/freeboardgames/fbg-lobby/internal/lobby"
)

const (
	CodeNotFound         = "NOT_FOUND"
	CodeForbidden        = "FORBIDDEN"
	CodeBadUserInput     = "BAD_USER_INPUT"
	CodeRoomFull         = "ROOM_FULL"
	CodeNotEnoughPlayers = "NOT_ENOUGH_PLAYERS"
	CodeCapacityTooLow   = "CAPACITY_TOO_LOW"
	CodeUnauthenticated  = "UNAUTHENTICATED"
	CodeConflict         = "CONFLICT"
	CodeInternal         = "INTERNAL_SERVER_ERROR"
)

// Error is a resolver error that carries a stable code in the GraphQL
// error extensions.
type Error struct {
	Message string
	Code    string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Extensions() map[string]interface{} {
	ext := map[string]interface{}{"code": e.Code}
	if e.Code == CodeUnauthenticated {
		ext["status"] = http.StatusUnauthorized
	}
	return ext
}

var codes = []struct {
	err  error
	code string
}{
	{lobby.ErrNotFound, CodeNotFound},
	{lobby.ErrForbidden, CodeForbidden},
	{lobby.ErrInvalidInput, CodeBadUserInput},
	{lobby.ErrRoomFull, CodeRoomFull},
	{lobby.ErrNotEnoughPlayers, CodeNotEnoughPlayers},
	{lobby.ErrCapacityTooLow, CodeCapacityTooLow},
	{lobby.ErrUnauthenticated, CodeUnauthenticated},
	{lobby.ErrConflict, CodeConflict},
	{lobby.ErrRoomStarted, CodeConflict},
}

// toError converts a service error for the client. Unknown errors are logged
// and hidden behind a generic message. The result must be returned as is so
// the executor can find its extensions.
func (r *Resolver) toError(err error) error {
	if err == nil {
		return nil
	}

	var gqlErr *Error
	if errors.As(err, &gqlErr) {
		return gqlErr
	}

	for _, c := range codes {
		if errors.Is(err, c.err) {
			return &Error{Message: err.Error(), Code: c.code}
		}
	}

	r.log.Printf("graphql: %v", err)
	return &Error{
		Message: "internal server error",
		Code:    CodeInternal,
	}
}
