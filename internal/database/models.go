package database

import (
	"slices"
	"time"
)

type User struct {
	Id        int
	Nickname  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Room struct {
	Id       string
	GameCode string
	Capacity int
	IsPublic bool
	// MatchId is empty until the room is started.
	MatchId     string
	Version     int
	Memberships []Membership
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Started reports whether a match was minted for the room.
func (r Room) Started() bool {
	return r.MatchId != ""
}

// Clone returns a copy of the room that does not share its membership slice.
func (r Room) Clone() Room {
	r.Memberships = slices.Clone(r.Memberships)
	return r
}

type Membership struct {
	UserId    int
	Nickname  string
	IsCreator bool
	Position  int
}

type Match struct {
	Id         string
	GameCode   string
	Capacity   int
	ServerUrl  string
	SetupData  string
	NextRoomId string
	Players    []MatchPlayer
	CreatedAt  time.Time
}

type MatchPlayer struct {
	UserId   int
	Nickname string
	PlayerId string
	Secret   string
}

type UpdateUserParams struct {
	UserId   int
	Nickname string
}

type CreateRoomParams struct {
	Id       string
	GameCode string
	Capacity int
	IsPublic bool
}
