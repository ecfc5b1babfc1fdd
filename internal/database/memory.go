package database

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"
)

// MemoryStore keeps all records in process memory. It is used for
// single-instance deployments and tests.
type MemoryStore struct {
	mu         sync.RWMutex
	nextUserId int
	users      map[int]User
	rooms      map[string]Room
	matches    map[string]Match
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:   make(map[int]User),
		rooms:   make(map[string]Room),
		matches: make(map[string]Match),
	}
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *MemoryStore) Close() error {
	return nil
}

func (s *MemoryStore) CreateUser(ctx context.Context, nickname string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextUserId++
	now := time.Now().UTC()
	u := User{
		Id:        s.nextUserId,
		Nickname:  nickname,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.users[u.Id] = u

	return u, nil
}

func (s *MemoryStore) UpdateUser(ctx context.Context, params UpdateUserParams) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[params.UserId]
	if !ok {
		return User{}, ErrNotFound
	}

	u.Nickname = params.Nickname
	u.UpdatedAt = time.Now().UTC()
	s.users[u.Id] = u

	return u, nil
}

func (s *MemoryStore) GetUser(ctx context.Context, id int) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return User{}, ErrNotFound
	}

	return u, nil
}

func (s *MemoryStore) CreateRoom(ctx context.Context, params CreateRoomParams) (Room, error) {
	if err := ctx.Err(); err != nil {
		return Room{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rooms[params.Id]; ok {
		return Room{}, ErrConflict
	}

	now := time.Now().UTC()
	room := Room{
		Id:          params.Id,
		GameCode:    params.GameCode,
		Capacity:    params.Capacity,
		IsPublic:    params.IsPublic,
		Version:     1,
		Memberships: make([]Membership, 0),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.rooms[room.Id] = room

	return room.Clone(), nil
}

func (s *MemoryStore) GetRoom(ctx context.Context, id string) (Room, error) {
	if err := ctx.Err(); err != nil {
		return Room{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	room, ok := s.rooms[id]
	if !ok {
		return Room{}, ErrNotFound
	}

	return s.hydrate(room), nil
}

func (s *MemoryStore) SaveRoom(ctx context.Context, room Room) (Room, error) {
	if err := ctx.Err(); err != nil {
		return Room{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.rooms[room.Id]
	if !ok {
		return Room{}, ErrNotFound
	}
	if cur.Version != room.Version {
		return Room{}, ErrConflict
	}

	cur.GameCode = room.GameCode
	cur.Capacity = room.Capacity
	cur.IsPublic = room.IsPublic
	cur.Memberships = slices.Clone(room.Memberships)
	cur.Version++
	cur.UpdatedAt = time.Now().UTC()
	s.rooms[cur.Id] = cur

	return s.hydrate(cur), nil
}

func (s *MemoryStore) DeleteRoom(ctx context.Context, id string, version int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.rooms[id]
	if !ok {
		return ErrNotFound
	}
	if cur.Version != version {
		return ErrConflict
	}

	delete(s.rooms, id)
	return nil
}

func (s *MemoryStore) ListPublicRooms(ctx context.Context) ([]Room, error) {
	return s.listRooms(ctx, func(r Room) bool {
		return r.IsPublic && !r.Started()
	})
}

func (s *MemoryStore) ListRoomsForUser(ctx context.Context, userId int) ([]Room, error) {
	return s.listRooms(ctx, func(r Room) bool {
		return slices.ContainsFunc(r.Memberships, func(m Membership) bool {
			return m.UserId == userId
		})
	})
}

func (s *MemoryStore) listRooms(ctx context.Context, keep func(Room) bool) ([]Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rooms := make([]Room, 0)
	for _, r := range s.rooms {
		if keep(r) {
			rooms = append(rooms, s.hydrate(r))
		}
	}

	slices.SortFunc(rooms, func(a, b Room) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.Id, b.Id)
	})

	return rooms, nil
}

func (s *MemoryStore) StartMatch(ctx context.Context, room Room, match Match) (Room, error) {
	if err := ctx.Err(); err != nil {
		return Room{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.rooms[room.Id]
	if !ok {
		return Room{}, ErrNotFound
	}
	if cur.Version != room.Version || cur.Started() {
		return Room{}, ErrConflict
	}
	if _, ok := s.matches[match.Id]; ok {
		return Room{}, ErrConflict
	}

	now := time.Now().UTC()
	match.CreatedAt = now
	match.Players = slices.Clone(match.Players)
	s.matches[match.Id] = match

	cur.Memberships = slices.Clone(room.Memberships)
	cur.MatchId = match.Id
	cur.Version++
	cur.UpdatedAt = now
	s.rooms[cur.Id] = cur

	return s.hydrate(cur), nil
}

func (s *MemoryStore) GetMatch(ctx context.Context, id string) (Match, error) {
	if err := ctx.Err(); err != nil {
		return Match{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.matches[id]
	if !ok {
		return Match{}, ErrNotFound
	}

	m.Players = slices.Clone(m.Players)
	for i, p := range m.Players {
		if u, ok := s.users[p.UserId]; ok {
			m.Players[i].Nickname = u.Nickname
		}
	}

	return m, nil
}

func (s *MemoryStore) SetNextRoom(ctx context.Context, matchId, roomId string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.matches[matchId]
	if !ok {
		return "", ErrNotFound
	}

	if m.NextRoomId == "" {
		m.NextRoomId = roomId
		s.matches[matchId] = m
	}

	return m.NextRoomId, nil
}

// hydrate copies a room and fills membership nicknames from the user table.
// Callers must hold s.mu.
func (s *MemoryStore) hydrate(r Room) Room {
	r = r.Clone()
	for i, m := range r.Memberships {
		if u, ok := s.users[m.UserId]; ok {
			r.Memberships[i].Nickname = u.Nickname
		}
	}
	slices.SortFunc(r.Memberships, func(a, b Membership) int {
		return a.Position - b.Position
	})
	return r
}
