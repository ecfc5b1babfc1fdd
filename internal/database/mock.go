package database

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
func (m *MockStore) Close() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockStore) CreateUser(ctx context.Context, nickname string) (User, error) {
	args := m.Called(ctx, nickname)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockStore) UpdateUser(ctx context.Context, params UpdateUserParams) (User, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockStore) GetUser(ctx context.Context, id int) (User, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockStore) CreateRoom(ctx context.Context, params CreateRoomParams) (Room, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockStore) GetRoom(ctx context.Context, id string) (Room, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockStore) SaveRoom(ctx context.Context, room Room) (Room, error) {
	args := m.Called(ctx, room)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockStore) DeleteRoom(ctx context.Context, id string, version int) error {
	args := m.Called(ctx, id, version)
	return args.Error(0)
}
func (m *MockStore) ListPublicRooms(ctx context.Context) ([]Room, error) {
	args := m.Called(ctx)
	return args.Get(0).([]Room), args.Error(1)
}
func (m *MockStore) ListRoomsForUser(ctx context.Context, userId int) ([]Room, error) {
	args := m.Called(ctx, userId)
	return args.Get(0).([]Room), args.Error(1)
}
func (m *MockStore) StartMatch(ctx context.Context, room Room, match Match) (Room, error) {
	args := m.Called(ctx, room, match)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockStore) GetMatch(ctx context.Context, id string) (Match, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(Match), args.Error(1)
}
func (m *MockStore) SetNextRoom(ctx context.Context, matchId, roomId string) (string, error) {
	args := m.Called(ctx, matchId, roomId)
	return args.String(0), args.Error(1)
}
