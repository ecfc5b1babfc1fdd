package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	graphql "github.com/graph-gophers/graphql-go"
)

const (
	maxRequestSize = 1 << 20
	healthTimeout  = 5 * time.Second
)

// lobbyQuery is what the readiness check runs against the schema.
const lobbyQuery = `query GetLobby { lobby { rooms { gameCode capacity userMemberships { isCreator position } } } }`

type GraphqlRequest struct {
	Query         string                 `json:"query"`
	OperationName string                 `json:"operationName"`
	Variables     map[string]interface{} `json:"variables"`
}

func (s *FbgApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

func (s *FbgApp) graphql(w http.ResponseWriter, r *http.Request) {
	var req GraphqlRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestSize)).Decode(&req); err != nil || req.Query == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	resp := s.schema.Exec(r.Context(), req.Query, req.OperationName, req.Variables)
	s.writeJson(w, http.StatusOK, resp)
}

func (s *FbgApp) serveWs(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		errResp := NewMethodNotAllowedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.subs.ServeHTTP(w, r)
}

// healthCheck runs the lobby query and fails when it errors or takes longer
// than healthTimeout.
func (s *FbgApp) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	result := make(chan *graphql.Response, 1)
	go func() {
		result <- s.schema.Exec(ctx, lobbyQuery, "GetLobby", nil)
	}()

	select {
	case resp := <-result:
		if len(resp.Errors) > 0 {
			s.unavailable(w, resp.Errors[0])
			return
		}
	case <-ctx.Done():
		s.unavailable(w, ctx.Err())
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *FbgApp) unavailable(w http.ResponseWriter, err error) {
	errResp := NewServiceUnavailableError(err)
	s.log.Printf("health check: %v", errResp)
	s.writeJson(w, errResp.StatusCode, errResp)
}

func (s *FbgApp) liveness(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}
