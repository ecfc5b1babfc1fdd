package api

import (
	"fmt"
	"net/http"

	"github.com/freeboardgames/fbg-lobby/internal/auth"
	"github.com/freeboardgames/fbg-lobby/internal/graph"
	graphql "github.com/graph-gophers/graphql-go"
	gqlerrors "github.com/graph-gophers/graphql-go/errors"
)

func (s *FbgApp) errorHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				var panicError error
				switch e := err.(type) {
				case error:
					panicError = e
				default:
					panicError = fmt.Errorf("%v", e)
				}
				s.log.Printf("panic: %v", panicError)
				errResp := NewInternalServerError(panicError)
				w.Header().Set("Connection", "close")
				s.writeJson(w, errResp.StatusCode, errResp)
				return
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// authMiddleware puts the bearer token's user on the request context.
// Requests without a token continue anonymously and fail in the resolvers
// that need a user. A token that does not verify is rejected with an
// UNAUTHENTICATED GraphQL error.
func (s *FbgApp) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, private")

		if token, ok := auth.BearerToken(r.Header.Get("Authorization")); ok {
			userId, err := s.tokens.Verify(token)
			if err != nil {
				s.log.Printf("failed to extract user id from token: %v", err)
				s.writeJson(w, http.StatusUnauthorized, invalidTokenResponse())
				return
			}
			r = r.WithContext(auth.WithUserId(r.Context(), userId))
		}

		next(w, r)
	}
}

func invalidTokenResponse() *graphql.Response {
	return &graphql.Response{
		Errors: []*gqlerrors.QueryError{{
			Message: "invalid token",
			Extensions: map[string]interface{}{
				"code":   graph.CodeUnauthenticated,
				"status": http.StatusUnauthorized,
			},
		}},
	}
}
