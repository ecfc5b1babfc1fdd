package lobby

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/freeboardgames/fbg-lobby/internal/bgio"
	"github.com/freeboardgames/fbg-lobby/internal/database"
	"github.com/freeboardgames/fbg-lobby/internal/games"
	"github.com/freeboardgames/fbg-lobby/internal/pubsub"
	"github.com/freeboardgames/fbg-lobby/internal/testutil"
	"github.com/freeboardgames/fbg-lobby/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type event struct {
	channel string
	payload []byte
}

// recorder is a broadcaster that keeps every publish for inspection.
type recorder struct {
	mu     sync.Mutex
	events []event
	err    error
}

func (r *recorder) Publish(ctx context.Context, channel string, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, event{channel: channel, payload: payload})
	return nil
}

func (r *recorder) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	return nil, errors.New("not supported")
}

func (r *recorder) Close() error { return nil }

func (r *recorder) count(channel string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.channel == channel {
			n++
		}
	}
	return n
}

func (r *recorder) lastRoom(t *testing.T, roomId string) types.Room {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].channel == pubsub.RoomChannel(roomId) {
			var room types.Room
			require.NoError(t, json.Unmarshal(r.events[i].payload, &room))
			return room
		}
	}
	t.Fatalf("no event for room %q", roomId)
	return types.Room{}
}

func (r *recorder) fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

type fixture struct {
	svc   *Service
	store *database.MemoryStore
	rec   *recorder
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	f := &fixture{
		store: database.NewMemoryStore(),
		rec:   &recorder{},
	}

	ids := 0
	opts = append([]Option{
		WithServerUrl("http://games.test"),
		WithRoomIds(func() (string, error) {
			ids++
			return fmt.Sprintf("room%d", ids), nil
		}),
	}, opts...)

	f.svc = NewService(testutil.TestLogger(t), f.store, f.rec, games.Default(), bgio.LocalMinter{}, opts...)
	return f
}

func (f *fixture) user(t *testing.T, nickname string) int {
	t.Helper()
	u, err := f.svc.NewUser(context.Background(), nickname)
	require.NoError(t, err)
	return u.Id
}

// room creates a room and joins the given users in order.
func (f *fixture) room(t *testing.T, game string, capacity int, public bool, users ...int) string {
	t.Helper()
	ctx := context.Background()
	id, err := f.svc.NewRoom(ctx, users[0], NewRoomParams{GameCode: game, Capacity: capacity, IsPublic: public})
	require.NoError(t, err)
	for _, u := range users {
		_, err := f.svc.JoinRoom(ctx, u, id)
		require.NoError(t, err)
	}
	return id
}

func (f *fixture) get(t *testing.T, roomId string) types.Room {
	t.Helper()
	room, err := f.svc.GetRoom(context.Background(), roomId)
	require.NoError(t, err)
	assertSeats(t, room)
	return room
}

// assertSeats checks that seats are 0..n-1 and that a non-empty room has
// exactly one creator.
func assertSeats(t *testing.T, room types.Room) {
	t.Helper()
	creators := 0
	for i, m := range room.UserMemberships {
		assert.Equal(t, i, m.Position, "seats must be dense and ordered")
		if m.IsCreator {
			creators++
		}
	}
	if len(room.UserMemberships) > 0 {
		assert.Equal(t, 1, creators, "exactly one creator")
	}
}

func seatOrder(room types.Room) []int {
	ids := make([]int, 0, len(room.UserMemberships))
	for _, m := range room.UserMemberships {
		ids = append(ids, m.User.Id)
	}
	return ids
}

func TestNewRoom(t *testing.T) {
	tcases := []struct {
		name   string
		userId int
		params NewRoomParams
		err    error
	}{
		{
			name:   "public room",
			userId: 1,
			params: NewRoomParams{GameCode: "chess", Capacity: 2, IsPublic: true},
		},
		{
			name:   "private room",
			userId: 1,
			params: NewRoomParams{GameCode: "estatebuyer", Capacity: 5},
		},
		{
			name:   "unknown game",
			userId: 1,
			params: NewRoomParams{GameCode: "nope", Capacity: 2},
			err:    ErrInvalidInput,
		},
		{
			name:   "capacity above game maximum",
			userId: 1,
			params: NewRoomParams{GameCode: "chess", Capacity: 3},
			err:    ErrInvalidInput,
		},
		{
			name:   "capacity below game minimum",
			userId: 1,
			params: NewRoomParams{GameCode: "estatebuyer", Capacity: 1},
			err:    ErrInvalidInput,
		},
		{
			name:   "anonymous",
			params: NewRoomParams{GameCode: "chess", Capacity: 2},
			err:    ErrUnauthenticated,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			if tc.userId != 0 {
				f.user(t, "alice")
			}

			id, err := f.svc.NewRoom(context.Background(), tc.userId, tc.params)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)
				assert.Empty(t, f.rec.events)
				return
			}

			require.NoError(t, err)
			room := f.get(t, id)
			assert.Equal(t, tc.params.GameCode, room.GameCode)
			assert.Equal(t, tc.params.Capacity, room.Capacity)
			assert.Empty(t, room.UserMemberships)

			assert.Equal(t, 1, f.rec.count(pubsub.RoomChannel(id)))
			lobbyEvents := 0
			if tc.params.IsPublic {
				lobbyEvents = 1
			}
			assert.Equal(t, lobbyEvents, f.rec.count(pubsub.LobbyChannel))
		})
	}
}

func TestJoinRoom(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice, bob, carol := f.user(t, "alice"), f.user(t, "bob"), f.user(t, "carol")

	id, err := f.svc.NewRoom(ctx, alice, NewRoomParams{GameCode: "chess", Capacity: 2, IsPublic: true})
	require.NoError(t, err)

	room, err := f.svc.JoinRoom(ctx, alice, id)
	require.NoError(t, err)
	require.Len(t, room.UserMemberships, 1)
	assert.True(t, room.UserMemberships[0].IsCreator)
	assert.Equal(t, 0, room.UserMemberships[0].Position)
	assert.Equal(t, "alice", room.UserMemberships[0].User.Nickname)

	room, err = f.svc.JoinRoom(ctx, bob, id)
	require.NoError(t, err)
	assertSeats(t, room)
	assert.Equal(t, []int{alice, bob}, seatOrder(room))
	assert.False(t, room.UserMemberships[1].IsCreator)

	t.Run("publishes the new snapshot", func(t *testing.T) {
		published := f.rec.lastRoom(t, id)
		assert.Equal(t, room, published)
	})

	t.Run("joining twice changes nothing", func(t *testing.T) {
		before := f.rec.count(pubsub.RoomChannel(id))
		again, err := f.svc.JoinRoom(ctx, bob, id)
		require.NoError(t, err)
		assert.Equal(t, room, again)
		assert.Equal(t, before, f.rec.count(pubsub.RoomChannel(id)))
	})

	t.Run("full room", func(t *testing.T) {
		_, err := f.svc.JoinRoom(ctx, carol, id)
		assert.ErrorIs(t, err, ErrRoomFull)
		assert.Len(t, f.get(t, id).UserMemberships, 2)
	})

	t.Run("unknown room", func(t *testing.T) {
		_, err := f.svc.JoinRoom(ctx, carol, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("anonymous", func(t *testing.T) {
		_, err := f.svc.JoinRoom(ctx, 0, id)
		assert.ErrorIs(t, err, ErrUnauthenticated)
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := f.svc.JoinRoom(ctx, 4242, id)
		assert.ErrorIs(t, err, ErrUnauthenticated)
		for _, m := range f.get(t, id).UserMemberships {
			assert.NotEqual(t, 4242, m.User.Id)
		}
	})
}

func TestUnknownUser(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := f.user(t, "alice")
	id := f.room(t, "chess", 2, false, alice)
	events := len(f.rec.events)

	const ghost = 4242

	tcases := []struct {
		name string
		call func() error
	}{
		{name: "newRoom", call: func() error {
			_, err := f.svc.NewRoom(ctx, ghost, NewRoomParams{GameCode: "chess", Capacity: 2, IsPublic: true})
			return err
		}},
		{name: "joinRoom", call: func() error {
			_, err := f.svc.JoinRoom(ctx, ghost, id)
			return err
		}},
		{name: "leaveRoom", call: func() error { return f.svc.LeaveRoom(ctx, ghost, id) }},
		{name: "shuffleUsers", call: func() error { return f.svc.ShuffleUsers(ctx, ghost, id) }},
		{name: "sendMessage", call: func() error {
			return f.svc.SendMessage(ctx, ghost, SendMessageParams{ChannelType: ChannelRoom, ChannelId: id, Message: "hi"})
		}},
		{name: "user", call: func() error {
			_, err := f.svc.GetUser(ctx, ghost)
			return err
		}},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, tc.call(), ErrUnauthenticated)
		})
	}

	assert.Len(t, f.rec.events, events, "nothing is published for an unknown user")
}

func TestJoinRoom_StartedRoom(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice, bob, carol := f.user(t, "alice"), f.user(t, "bob"), f.user(t, "carol")
	id := f.room(t, "chess", 2, true, alice, bob)

	matchId, err := f.svc.StartMatch(ctx, alice, StartMatchParams{RoomId: id})
	require.NoError(t, err)
	assert.NotEmpty(t, matchId)

	_, err = f.svc.JoinRoom(ctx, carol, id)
	assert.ErrorIs(t, err, ErrRoomFull)

	room, err := f.svc.JoinRoom(ctx, bob, id)
	require.NoError(t, err)
	assert.Equal(t, matchId, room.MatchId, "members are sent to the match")
}

func TestJoinRoom_Concurrent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	users := make([]int, 8)
	for i := range users {
		users[i] = f.user(t, fmt.Sprintf("user%d", i))
	}
	id, err := f.svc.NewRoom(ctx, users[0], NewRoomParams{GameCode: "cornerus", Capacity: 3})
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, len(users))
	for i, u := range users {
		i, u := i, u
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.svc.JoinRoom(ctx, u, id)
		}()
	}
	wg.Wait()

	joined := 0
	for _, err := range errs {
		if err == nil {
			joined++
			continue
		}
		assert.ErrorIs(t, err, ErrRoomFull)
	}
	assert.Equal(t, 3, joined)
	assert.Len(t, f.get(t, id).UserMemberships, 3)
	assert.Equal(t, 0, f.svc.locks.size())
}

func TestLeaveRoom(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice, bob, carol := f.user(t, "alice"), f.user(t, "bob"), f.user(t, "carol")
	id := f.room(t, "estatebuyer", 3, true, alice, bob, carol)

	t.Run("creator leaves", func(t *testing.T) {
		require.NoError(t, f.svc.LeaveRoom(ctx, alice, id))

		room := f.get(t, id)
		assert.Equal(t, []int{bob, carol}, seatOrder(room))
		assert.True(t, room.UserMemberships[0].IsCreator, "next seat becomes creator")
		assert.Equal(t, room, f.rec.lastRoom(t, id))
	})

	t.Run("non member is a no-op", func(t *testing.T) {
		before := f.rec.count(pubsub.RoomChannel(id))
		require.NoError(t, f.svc.LeaveRoom(ctx, alice, id))
		assert.Equal(t, before, f.rec.count(pubsub.RoomChannel(id)))
	})

	t.Run("last member removes the room", func(t *testing.T) {
		require.NoError(t, f.svc.LeaveRoom(ctx, carol, id))
		require.NoError(t, f.svc.LeaveRoom(ctx, bob, id))

		_, err := f.svc.GetRoom(ctx, id)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.Empty(t, f.rec.lastRoom(t, id).UserMemberships)

		lobby, err := f.svc.Lobby(ctx)
		require.NoError(t, err)
		assert.Empty(t, lobby.Rooms)
	})
}

func TestLeaveRoom_Started(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice, bob := f.user(t, "alice"), f.user(t, "bob")
	id := f.room(t, "chess", 2, false, alice, bob)

	_, err := f.svc.StartMatch(ctx, alice, StartMatchParams{RoomId: id})
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.LeaveRoom(ctx, bob, id), ErrRoomStarted)
}

func TestUpdateRoom(t *testing.T) {
	ctx := context.Background()

	tcases := []struct {
		name      string
		asCreator bool
		params    UpdateRoomParams
		err       error
		publishes int
	}{
		{
			name:      "change game and capacity",
			asCreator: true,
			params:    UpdateRoomParams{GameCode: "estatebuyer", Capacity: 4},
			publishes: 1,
		},
		{
			name:      "same settings",
			asCreator: true,
			params:    UpdateRoomParams{GameCode: "cornerus", Capacity: 3},
		},
		{
			name:   "not the creator",
			params: UpdateRoomParams{GameCode: "cornerus", Capacity: 4},
			err:    ErrForbidden,
		},
		{
			name:      "capacity below occupancy",
			asCreator: true,
			params:    UpdateRoomParams{GameCode: "cornerus", Capacity: 2},
			err:       ErrCapacityTooLow,
		},
		{
			name:      "capacity outside game bounds",
			asCreator: true,
			params:    UpdateRoomParams{GameCode: "chess", Capacity: 3},
			err:       ErrInvalidInput,
		},
		{
			name:      "unknown game",
			asCreator: true,
			params:    UpdateRoomParams{GameCode: "nope", Capacity: 3},
			err:       ErrInvalidInput,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			alice, bob, carol := f.user(t, "alice"), f.user(t, "bob"), f.user(t, "carol")
			id := f.room(t, "cornerus", 3, true, alice, bob, carol)
			before := f.get(t, id)
			events := f.rec.count(pubsub.RoomChannel(id))

			requester := bob
			if tc.asCreator {
				requester = alice
			}
			tc.params.RoomId = id

			err := f.svc.UpdateRoom(ctx, requester, tc.params)
			assert.Equal(t, events+tc.publishes, f.rec.count(pubsub.RoomChannel(id)))

			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)
				assert.Equal(t, before, f.get(t, id), "room must not change")
				return
			}

			require.NoError(t, err)
			room := f.get(t, id)
			assert.Equal(t, tc.params.GameCode, room.GameCode)
			assert.Equal(t, tc.params.Capacity, room.Capacity)
			assert.Equal(t, before.UserMemberships, room.UserMemberships)
		})
	}
}

func TestRemoveFromRoom(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice, bob, carol := f.user(t, "alice"), f.user(t, "bob"), f.user(t, "carol")
	id := f.room(t, "estatebuyer", 3, false, alice, bob, carol)

	assert.ErrorIs(t, f.svc.RemoveFromRoom(ctx, bob, id, carol), ErrForbidden)
	assert.ErrorIs(t, f.svc.RemoveFromRoom(ctx, alice, id, alice), ErrInvalidInput)
	assert.ErrorIs(t, f.svc.RemoveFromRoom(ctx, alice, id, 999), ErrNotFound)

	events := f.rec.count(pubsub.RoomChannel(id))
	require.NoError(t, f.svc.RemoveFromRoom(ctx, alice, id, carol))
	assert.Equal(t, events+1, f.rec.count(pubsub.RoomChannel(id)))

	room := f.get(t, id)
	assert.Equal(t, []int{alice, bob}, seatOrder(room))
	assert.Equal(t, 1, room.UserMemberships[1].Position, "remaining seat is untouched")
}

func TestRemoveFromRoom_MiddleSeat(t *testing.T) {
	f := newFixture(t)
	alice, bob, carol := f.user(t, "alice"), f.user(t, "bob"), f.user(t, "carol")
	id := f.room(t, "estatebuyer", 3, false, alice, bob, carol)

	require.NoError(t, f.svc.RemoveFromRoom(context.Background(), alice, id, bob))

	room := f.get(t, id)
	assert.Equal(t, []int{alice, carol}, seatOrder(room))
}

func TestMoveUserUp(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice, bob, carol := f.user(t, "alice"), f.user(t, "bob"), f.user(t, "carol")
	id := f.room(t, "estatebuyer", 3, false, alice, bob, carol)

	require.NoError(t, f.svc.MoveUserUp(ctx, alice, id, carol))
	room := f.get(t, id)
	assert.Equal(t, []int{alice, carol, bob}, seatOrder(room))

	require.NoError(t, f.svc.MoveUserUp(ctx, alice, id, carol))
	room = f.get(t, id)
	assert.Equal(t, []int{carol, alice, bob}, seatOrder(room))
	assert.True(t, room.UserMemberships[1].IsCreator, "creator role stays with the user")
	assert.Equal(t, alice, room.Creator())

	assert.ErrorIs(t, f.svc.MoveUserUp(ctx, alice, id, carol), ErrInvalidInput)
	assert.ErrorIs(t, f.svc.MoveUserUp(ctx, bob, id, bob), ErrForbidden)
	assert.ErrorIs(t, f.svc.MoveUserUp(ctx, alice, id, 999), ErrNotFound)
}

func reverse(n int, swap func(i, j int)) {
	for i := 0; i < n/2; i++ {
		swap(i, n-1-i)
	}
}

func TestShuffleUsers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, WithShuffle(reverse))
	alice, bob, carol := f.user(t, "alice"), f.user(t, "bob"), f.user(t, "carol")
	id := f.room(t, "estatebuyer", 4, false, alice, bob, carol)

	assert.ErrorIs(t, f.svc.ShuffleUsers(ctx, bob, id), ErrForbidden)

	events := f.rec.count(pubsub.RoomChannel(id))
	require.NoError(t, f.svc.ShuffleUsers(ctx, alice, id))
	assert.Equal(t, events+1, f.rec.count(pubsub.RoomChannel(id)))

	room := f.get(t, id)
	assert.Equal(t, []int{carol, bob, alice}, seatOrder(room))
	assert.Equal(t, alice, room.Creator())
}

func TestShuffleUsers_Random(t *testing.T) {
	f := newFixture(t)
	users := make([]int, 6)
	for i := range users {
		users[i] = f.user(t, fmt.Sprintf("user%d", i))
	}
	id := f.room(t, "estatebuyer", 6, false, users...)

	require.NoError(t, f.svc.ShuffleUsers(context.Background(), users[0], id))

	room := f.get(t, id)
	assert.ElementsMatch(t, users, seatOrder(room))
}

func TestUpdateUser(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice, bob := f.user(t, "alice"), f.user(t, "bob")
	open := f.room(t, "estatebuyer", 3, true, alice)
	started := f.room(t, "chess", 2, false, alice, bob)
	_, err := f.svc.StartMatch(ctx, alice, StartMatchParams{RoomId: started})
	require.NoError(t, err)

	openEvents := f.rec.count(pubsub.RoomChannel(open))
	startedEvents := f.rec.count(pubsub.RoomChannel(started))
	lobbyEvents := f.rec.count(pubsub.LobbyChannel)

	require.NoError(t, f.svc.UpdateUser(ctx, alice, "  alicia "))

	u, err := f.svc.GetUser(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, "alicia", u.Nickname)

	assert.Equal(t, openEvents+1, f.rec.count(pubsub.RoomChannel(open)))
	assert.Equal(t, startedEvents, f.rec.count(pubsub.RoomChannel(started)))
	assert.Equal(t, lobbyEvents+1, f.rec.count(pubsub.LobbyChannel))
	assert.Equal(t, "alicia", f.rec.lastRoom(t, open).UserMemberships[0].User.Nickname)

	assert.ErrorIs(t, f.svc.UpdateUser(ctx, alice, "   "), ErrInvalidInput)
	assert.ErrorIs(t, f.svc.UpdateUser(ctx, 0, "x"), ErrUnauthenticated)
	assert.ErrorIs(t, f.svc.UpdateUser(ctx, 999, "x"), ErrUnauthenticated)
}

func TestNewUser(t *testing.T) {
	f := newFixture(t)

	tcases := []struct {
		nickname string
		want     string
		err      error
	}{
		{nickname: "alice", want: "alice"},
		{nickname: "  bob  ", want: "bob"},
		{nickname: "", err: ErrInvalidInput},
		{nickname: "\t", err: ErrInvalidInput},
		{nickname: string(make([]byte, 65)), err: ErrInvalidInput},
	}

	for _, tc := range tcases {
		u, err := f.svc.NewUser(context.Background(), tc.nickname)
		if tc.err != nil {
			assert.ErrorIs(t, err, tc.err)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tc.want, u.Nickname)
		assert.NotZero(t, u.Id)
	}
}

func TestPublishFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := f.user(t, "alice")
	id := f.room(t, "chess", 2, false, alice)

	f.rec.fail(errors.New("broker down"))

	bob := f.user(t, "bob")
	_, err := f.svc.JoinRoom(ctx, bob, id)
	assert.ErrorContains(t, err, "broker down")

	// the stored state stays authoritative
	f.rec.fail(nil)
	assert.Equal(t, []int{alice, bob}, seatOrder(f.get(t, id)))
}

func TestMutateRoom_Conflict(t *testing.T) {
	ctx := context.Background()
	room := database.Room{
		Id:       "r1",
		GameCode: "chess",
		Capacity: 2,
		Version:  1,
		Memberships: []database.Membership{
			{UserId: 1, Nickname: "alice", IsCreator: true, Position: 0},
		},
	}
	bob := database.User{Id: 2, Nickname: "bob"}

	t.Run("gives up after retries", func(t *testing.T) {
		store := new(database.MockStore)
		rec := &recorder{}
		svc := NewService(testutil.TestLogger(t), store, rec, games.Default(), bgio.LocalMinter{})

		store.On("GetUser", mock.Anything, 2).Return(bob, nil).Once()
		store.On("GetRoom", mock.Anything, "r1").Return(room, nil).Times(maxAttempts)
		store.On("SaveRoom", mock.Anything, mock.Anything).Return(database.Room{}, database.ErrConflict).Times(maxAttempts)

		_, err := svc.JoinRoom(ctx, 2, "r1")
		assert.ErrorIs(t, err, ErrConflict)
		assert.Empty(t, rec.events)
		store.AssertExpectations(t)
	})

	t.Run("retries once", func(t *testing.T) {
		store := new(database.MockStore)
		rec := &recorder{}
		svc := NewService(testutil.TestLogger(t), store, rec, games.Default(), bgio.LocalMinter{})

		saved := room.Clone()
		saved.Version = 2
		saved.Memberships = append(saved.Memberships, database.Membership{UserId: 2, Nickname: "bob", Position: 1})

		store.On("GetUser", mock.Anything, 2).Return(bob, nil).Once()
		store.On("GetRoom", mock.Anything, "r1").Return(room, nil).Twice()
		joined := mock.MatchedBy(func(r database.Room) bool {
			return len(r.Memberships) == 2 && r.Memberships[1].Nickname == "bob"
		})
		store.On("SaveRoom", mock.Anything, joined).Return(database.Room{}, database.ErrConflict).Once()
		store.On("SaveRoom", mock.Anything, joined).Return(saved, nil).Once()

		got, err := svc.JoinRoom(ctx, 2, "r1")
		require.NoError(t, err)
		assert.Len(t, got.UserMemberships, 2)
		assert.Equal(t, 1, rec.count(pubsub.RoomChannel("r1")))
		store.AssertExpectations(t)
	})

	t.Run("store failure", func(t *testing.T) {
		store := new(database.MockStore)
		rec := &recorder{}
		svc := NewService(testutil.TestLogger(t), store, rec, games.Default(), bgio.LocalMinter{})

		store.On("GetUser", mock.Anything, 2).Return(bob, nil).Once()
		store.On("GetRoom", mock.Anything, "r1").Return(room, nil).Once()
		store.On("SaveRoom", mock.Anything, mock.Anything).Return(database.Room{}, errors.New("connection reset")).Once()

		_, err := svc.JoinRoom(ctx, 2, "r1")
		assert.ErrorContains(t, err, "connection reset")
		assert.Empty(t, rec.events, "nothing is published for a failed write")
		store.AssertExpectations(t)
	})
}

func TestSubscribeRoom(t *testing.T) {
	store := database.NewMemoryStore()
	bc := pubsub.NewMemoryBroadcaster(testutil.TestLogger(t))
	defer bc.Close()
	svc := NewService(testutil.TestLogger(t), store, bc, games.Default(), bgio.LocalMinter{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	alice, err := svc.NewUser(ctx, "alice")
	require.NoError(t, err)
	id, err := svc.NewRoom(ctx, alice.Id, NewRoomParams{GameCode: "chess", Capacity: 2, IsPublic: true})
	require.NoError(t, err)

	rooms, err := svc.SubscribeRoom(ctx, id)
	require.NoError(t, err)
	lobbies, err := svc.SubscribeLobby(ctx)
	require.NoError(t, err)

	_, err = svc.JoinRoom(ctx, alice.Id, id)
	require.NoError(t, err)

	room := testutil.Receive(t, rooms)
	assert.Equal(t, id, room.Id)
	assert.Equal(t, []int{alice.Id}, seatOrder(room))

	l := testutil.Receive(t, lobbies)
	require.Len(t, l.Rooms, 1)
	assert.Len(t, l.Rooms[0].UserMemberships, 1)

	_, err = svc.SubscribeRoom(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	cancel()
	testutil.AssertClosed(t, rooms)
}

func TestKeyedMutex(t *testing.T) {
	k := newKeyedMutex()

	unlockA := k.Lock("a")
	unlockB := k.Lock("b")
	assert.Equal(t, 2, k.size())

	locked := make(chan struct{})
	go func() {
		unlock := k.Lock("a")
		close(locked)
		unlock()
	}()

	select {
	case <-locked:
		t.Fatal("second lock on the same key must wait")
	case <-time.After(50 * time.Millisecond):
	}

	unlockA()
	<-locked
	unlockB()
	assert.Equal(t, 0, k.size())
}

func TestPing(t *testing.T) {
	tcases := []struct {
		name     string
		storeErr error
	}{
		{name: "store reachable"},
		{name: "store down", storeErr: errors.New("connection refused")},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			store := new(database.MockStore)
			svc := NewService(testutil.TestLogger(t), store, &recorder{}, games.Default(), bgio.LocalMinter{})

			store.On("Ping", mock.Anything).Return(tc.storeErr)

			err := svc.Ping(context.Background())
			if tc.storeErr != nil {
				assert.ErrorIs(t, err, tc.storeErr)
			} else {
				assert.NoError(t, err)
			}
			store.AssertExpectations(t)
		})
	}
}

// gatedRecorder holds the first lobby publish until release is closed.
type gatedRecorder struct {
	*recorder
	once    sync.Once
	held    chan struct{}
	release chan struct{}
	armed   bool
}

func (g *gatedRecorder) Publish(ctx context.Context, channel string, payload []byte) error {
	if g.armed && channel == pubsub.LobbyChannel {
		first := false
		g.once.Do(func() { first = true })
		if first {
			close(g.held)
			<-g.release
		}
	}
	return g.recorder.Publish(ctx, channel, payload)
}

func (r *recorder) lastLobby(t *testing.T) types.Lobby {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].channel == pubsub.LobbyChannel {
			var l types.Lobby
			require.NoError(t, json.Unmarshal(r.events[i].payload, &l))
			return l
		}
	}
	t.Fatal("no lobby event")
	return types.Lobby{}
}

func TestPublishLobby_Ordering(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryStore()
	gate := &gatedRecorder{
		recorder: &recorder{},
		held:     make(chan struct{}),
		release:  make(chan struct{}),
	}
	svc := NewService(testutil.TestLogger(t), store, gate, games.Default(), bgio.LocalMinter{})

	alice, err := svc.NewUser(ctx, "alice")
	require.NoError(t, err)
	bob, err := svc.NewUser(ctx, "bob")
	require.NoError(t, err)
	roomA, err := svc.NewRoom(ctx, alice.Id, NewRoomParams{GameCode: "chess", Capacity: 2, IsPublic: true})
	require.NoError(t, err)
	roomB, err := svc.NewRoom(ctx, bob.Id, NewRoomParams{GameCode: "chess", Capacity: 2, IsPublic: true})
	require.NoError(t, err)
	gate.armed = true

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := svc.JoinRoom(ctx, alice.Id, roomA)
		assert.NoError(t, err)
	}()
	<-gate.held

	go func() {
		defer wg.Done()
		_, err := svc.JoinRoom(ctx, bob.Id, roomB)
		assert.NoError(t, err)
	}()

	// room B is stored while room A's lobby snapshot is still in flight
	require.Eventually(t, func() bool {
		room, err := store.GetRoom(ctx, roomB)
		return err == nil && len(room.Memberships) == 1
	}, 2*time.Second, 5*time.Millisecond)

	close(gate.release)
	wg.Wait()

	want, err := svc.Lobby(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, gate.lastLobby(t), "the last lobby event matches the stored state")
}
