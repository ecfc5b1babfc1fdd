// Package lobby implements the room and match lifecycle: users gather in a
// room, the creator arranges seats and starts a match on the game server.
//
// Every successful change is stored first and then published on the room's
// channel, and on the lobby channel when the room is public.
package lobby

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"slices"
	"sync"
	"time"

	"github.com/freeboardgames/fbg-lobby/internal/bgio"
	"github.com/freeboardgames/fbg-lobby/internal/database"
	"github.com/freeboardgames/fbg-lobby/internal/games"
	"github.com/freeboardgames/fbg-lobby/internal/pubsub"
	"github.com/freeboardgames/fbg-lobby/internal/stats"
	"github.com/freeboardgames/fbg-lobby/internal/types"
	"github.com/teris-io/shortid"
)

const maxAttempts = 3

// errUnchanged aborts a room mutation without saving or publishing.
var errUnchanged = errors.New("unchanged")

type Service struct {
	log       *log.Logger
	store     database.Store
	bc        pubsub.Broadcaster
	games     *games.Catalog
	transport bgio.Transport
	stats     stats.StatsProvider
	serverUrl string
	shuffle   func(n int, swap func(i, j int))
	roomId    func() (string, error)
	now       func() time.Time
	locks     *keyedMutex

	// lobbyMu serializes building and publishing lobby snapshots.
	lobbyMu sync.Mutex
}

type Option func(*Service)

// WithServerUrl sets the public game server URL handed out with matches.
func WithServerUrl(url string) Option {
	return func(s *Service) { s.serverUrl = url }
}

func WithStats(sp stats.StatsProvider) Option {
	return func(s *Service) { s.stats = sp }
}

// WithShuffle replaces the seat permutation used by shuffleUsers and
// startMatch. It has the signature of rand.Shuffle.
func WithShuffle(shuffle func(n int, swap func(i, j int))) Option {
	return func(s *Service) { s.shuffle = shuffle }
}

func WithRoomIds(gen func() (string, error)) Option {
	return func(s *Service) { s.roomId = gen }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(logger *log.Logger, store database.Store, bc pubsub.Broadcaster, catalog *games.Catalog, transport bgio.Transport, opts ...Option) *Service {
	s := &Service{
		log:       logger,
		store:     store,
		bc:        bc,
		games:     catalog,
		transport: transport,
		stats:     stats.Nop{},
		shuffle:   rand.Shuffle,
		roomId:    shortid.Generate,
		now:       time.Now,
		locks:     newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ping checks that the store is reachable.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// mutateRoom runs a read-modify-write of one room under the room lock,
// retrying when another writer saved the room first. fn returns
// errUnchanged to skip the write.
func (s *Service) mutateRoom(ctx context.Context, roomId string, fn func(room *database.Room) error) (database.Room, error) {
	unlock := s.locks.Lock(roomId)
	defer unlock()

	for attempt := 0; attempt < maxAttempts; attempt++ {
		room, err := s.store.GetRoom(ctx, roomId)
		if err != nil {
			return database.Room{}, storeErr("get room", err)
		}

		next := room.Clone()
		if err := fn(&next); err != nil {
			if errors.Is(err, errUnchanged) {
				return room, nil
			}
			return database.Room{}, err
		}
		normalize(&next)

		var saved database.Room
		if len(next.Memberships) == 0 && !next.Started() {
			err = s.store.DeleteRoom(ctx, room.Id, room.Version)
			saved = next
		} else {
			saved, err = s.store.SaveRoom(ctx, next)
		}
		if errors.Is(err, database.ErrConflict) {
			s.log.Printf("room %q changed concurrently, retrying", roomId)
			continue
		}
		if err != nil {
			return database.Room{}, storeErr("save room", err)
		}

		if len(saved.Memberships) == 0 {
			s.log.Printf("removed empty room %q", roomId)
		}

		if err := s.publishRoom(ctx, saved, room.IsPublic || saved.IsPublic); err != nil {
			return database.Room{}, err
		}
		return saved, nil
	}

	return database.Room{}, fmt.Errorf("room %q: %w", roomId, ErrConflict)
}

// normalize sorts memberships by seat, renumbers seats densely from 0 and
// makes sure a non-empty room has exactly one creator.
func normalize(room *database.Room) {
	slices.SortStableFunc(room.Memberships, func(a, b database.Membership) int {
		return a.Position - b.Position
	})

	creator := -1
	for i := range room.Memberships {
		room.Memberships[i].Position = i
		if room.Memberships[i].IsCreator {
			if creator >= 0 {
				room.Memberships[i].IsCreator = false
			} else {
				creator = i
			}
		}
	}

	if creator < 0 && len(room.Memberships) > 0 {
		room.Memberships[0].IsCreator = true
	}
}

func (s *Service) publishRoom(ctx context.Context, room database.Room, lobby bool) error {
	if err := s.publish(ctx, pubsub.RoomChannel(room.Id), roomSnapshot(room)); err != nil {
		return err
	}
	if lobby {
		return s.publishLobby(ctx)
	}
	return nil
}

func (s *Service) publishLobby(ctx context.Context) error {
	s.lobbyMu.Lock()
	defer s.lobbyMu.Unlock()

	l, err := s.Lobby(ctx)
	if err != nil {
		return err
	}
	return s.publish(ctx, pubsub.LobbyChannel, l)
}

func (s *Service) publish(ctx context.Context, channel string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", channel, err)
	}

	if err := s.bc.Publish(ctx, channel, payload); err != nil {
		s.log.Printf("publish on %q failed: %v", channel, err)
		return fmt.Errorf("publish %s: %w", channel, err)
	}
	return nil
}

func roomSnapshot(room database.Room) types.Room {
	r := types.Room{
		Id:              room.Id,
		GameCode:        room.GameCode,
		Capacity:        room.Capacity,
		IsPublic:        room.IsPublic,
		MatchId:         room.MatchId,
		UserMemberships: make([]types.RoomMembership, 0, len(room.Memberships)),
	}
	for _, m := range room.Memberships {
		r.UserMemberships = append(r.UserMemberships, types.RoomMembership{
			IsCreator: m.IsCreator,
			Position:  m.Position,
			User:      types.User{Id: m.UserId, Nickname: m.Nickname},
		})
	}
	return r
}

func matchSnapshot(match database.Match) types.Match {
	m := types.Match{
		Id:        match.Id,
		GameCode:  match.GameCode,
		ServerUrl: match.ServerUrl,
		Players:   make([]types.MatchPlayer, 0, len(match.Players)),
	}
	for _, p := range match.Players {
		m.Players = append(m.Players, types.MatchPlayer{
			User:     types.User{Id: p.UserId, Nickname: p.Nickname},
			PlayerId: p.PlayerId,
			Secret:   p.Secret,
		})
	}
	return m
}

// requireUser loads the acting user. A token for a user the store does not
// know is treated like no token at all.
func (s *Service) requireUser(ctx context.Context, userId int) (database.User, error) {
	if userId <= 0 {
		return database.User{}, ErrUnauthenticated
	}

	u, err := s.store.GetUser(ctx, userId)
	if errors.Is(err, database.ErrNotFound) {
		return database.User{}, fmt.Errorf("user %d: %w", userId, ErrUnauthenticated)
	}
	if err != nil {
		return database.User{}, storeErr("get user", err)
	}
	return u, nil
}

func memberIndex(room *database.Room, userId int) int {
	return slices.IndexFunc(room.Memberships, func(m database.Membership) bool {
		return m.UserId == userId
	})
}

func requireCreator(room *database.Room, userId int) error {
	i := memberIndex(room, userId)
	if i < 0 || !room.Memberships[i].IsCreator {
		return fmt.Errorf("only the room creator can do this: %w", ErrForbidden)
	}
	return nil
}
