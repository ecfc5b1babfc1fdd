// Package bgio talks to the boardgame.io server that hosts running matches.
//
// The lobby only needs two things from it: a match id for a new game and a
// set of per-seat credentials. Everything after that happens between the
// client and the game server.
package bgio

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const requestTimeout = 10 * time.Second

var ErrUnexpectedStatus = errors.New("unexpected status from game server")

type Transport interface {
	// CreateMatch allocates a match for numPlayers seats and returns its id.
	CreateMatch(ctx context.Context, gameCode string, numPlayers int, setupData json.RawMessage) (string, error)
	// JoinMatch claims a seat and returns the credentials for it.
	JoinMatch(ctx context.Context, gameCode, matchId string, playerId int, playerName string) (string, error)
}

type createMatchRequest struct {
	NumPlayers int             `json:"numPlayers"`
	SetupData  json.RawMessage `json:"setupData,omitempty"`
}

type createMatchResponse struct {
	MatchID string `json:"matchID"`
}

type joinMatchRequest struct {
	PlayerID   string `json:"playerID"`
	PlayerName string `json:"playerName"`
}

type joinMatchResponse struct {
	PlayerCredentials string `json:"playerCredentials"`
}

// LobbyClient calls the boardgame.io lobby REST API.
type LobbyClient struct {
	baseURL string
	client  *http.Client
}

func NewLobbyClient(baseURL string, client *http.Client) *LobbyClient {
	if client == nil {
		client = &http.Client{Timeout: requestTimeout}
	}
	return &LobbyClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

func (c *LobbyClient) CreateMatch(ctx context.Context, gameCode string, numPlayers int, setupData json.RawMessage) (string, error) {
	var resp createMatchResponse
	err := c.post(ctx, c.endpoint(gameCode, "create"), createMatchRequest{
		NumPlayers: numPlayers,
		SetupData:  setupData,
	}, &resp)
	if err != nil {
		return "", fmt.Errorf("create match: %w", err)
	}
	if resp.MatchID == "" {
		return "", errors.New("create match: empty match id")
	}

	return resp.MatchID, nil
}

func (c *LobbyClient) JoinMatch(ctx context.Context, gameCode, matchId string, playerId int, playerName string) (string, error) {
	var resp joinMatchResponse
	err := c.post(ctx, c.endpoint(gameCode, matchId, "join"), joinMatchRequest{
		PlayerID:   strconv.Itoa(playerId),
		PlayerName: playerName,
	}, &resp)
	if err != nil {
		return "", fmt.Errorf("join match: %w", err)
	}

	return resp.PlayerCredentials, nil
}

func (c *LobbyClient) endpoint(parts ...string) string {
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.PathEscape(p)
	}
	return c.baseURL + "/games/" + strings.Join(escaped, "/")
}

func (c *LobbyClient) post(ctx context.Context, endpoint string, body, out any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %d %s", ErrUnexpectedStatus, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

// LocalMinter hands out match ids and credentials without a game server.
// It is meant for development and tests.
type LocalMinter struct{}

func (LocalMinter) CreateMatch(ctx context.Context, _ string, _ int, _ json.RawMessage) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return uuid.NewString(), nil
}

func (LocalMinter) JoinMatch(ctx context.Context, _, _ string, _ int, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return uuid.NewString(), nil
}
