package graph

import (
	"github.com/freeboardgames/fbg-lobby/internal/types"
)

type userResolver struct {
	user types.User
}

func (u *userResolver) Id() *int32 {
	id := int32(u.user.Id)
	return &id
}

func (u *userResolver) Nickname() string {
	return u.user.Nickname
}

type lobbyResolver struct {
	lobby  types.Lobby
	viewer int
}

func (l *lobbyResolver) Rooms() []*roomResolver {
	rooms := make([]*roomResolver, 0, len(l.lobby.Rooms))
	for _, room := range l.lobby.Rooms {
		rooms = append(rooms, &roomResolver{room: room, viewer: l.viewer})
	}
	return rooms
}

type roomResolver struct {
	room types.Room
	// viewer is the user looking at the room, 0 when anonymous
	viewer int
}

func (r *roomResolver) Capacity() float64 {
	return float64(r.room.Capacity)
}

func (r *roomResolver) GameCode() string {
	return r.room.GameCode
}

func (r *roomResolver) Id() *string {
	return &r.room.Id
}

func (r *roomResolver) IsPublic() bool {
	return r.room.IsPublic
}

func (r *roomResolver) MatchId() *string {
	if r.room.MatchId == "" {
		return nil
	}
	return &r.room.MatchId
}

func (r *roomResolver) UserId() *float64 {
	if r.viewer == 0 {
		return nil
	}
	id := float64(r.viewer)
	return &id
}

func (r *roomResolver) UserMemberships() []*membershipResolver {
	ms := make([]*membershipResolver, 0, len(r.room.UserMemberships))
	for _, m := range r.room.UserMemberships {
		ms = append(ms, &membershipResolver{m: m})
	}
	return ms
}

type membershipResolver struct {
	m types.RoomMembership
}

func (m *membershipResolver) IsCreator() bool {
	return m.m.IsCreator
}

func (m *membershipResolver) Position() float64 {
	return float64(m.m.Position)
}

func (m *membershipResolver) User() *userResolver {
	return &userResolver{user: m.m.User}
}

type matchResolver struct {
	match  types.Match
	viewer int
}

func (m *matchResolver) BgioMatchId() string {
	return m.match.Id
}

func (m *matchResolver) BgioPlayerId() *string {
	seat, ok := m.match.Seat(m.viewer)
	if !ok || m.viewer == 0 {
		return nil
	}
	return &seat.PlayerId
}

func (m *matchResolver) BgioSecret() *string {
	seat, ok := m.match.Seat(m.viewer)
	if !ok || m.viewer == 0 {
		return nil
	}
	return &seat.Secret
}

func (m *matchResolver) BgioServerUrl() string {
	return m.match.ServerUrl
}

func (m *matchResolver) GameCode() string {
	return m.match.GameCode
}

// Id is always null. Matches are identified by bgioMatchId.
func (m *matchResolver) Id() *int32 {
	return nil
}

func (m *matchResolver) PlayerMemberships() []*matchMembershipResolver {
	ps := make([]*matchMembershipResolver, 0, len(m.match.Players))
	for _, p := range m.match.Players {
		ps = append(ps, &matchMembershipResolver{user: p.User})
	}
	return ps
}

type matchMembershipResolver struct {
	user types.User
}

func (m *matchMembershipResolver) User() *userResolver {
	return &userResolver{user: m.user}
}

type messageResolver struct {
	msg types.Message
}

func (m *messageResolver) ChannelId() string    { return m.msg.ChannelId }
func (m *messageResolver) ChannelType() string  { return m.msg.ChannelType }
func (m *messageResolver) IsoTimestamp() string { return m.msg.IsoTimestamp }
func (m *messageResolver) Message() string      { return m.msg.Message }
func (m *messageResolver) UserId() float64      { return float64(m.msg.UserId) }
func (m *messageResolver) UserNickname() string { return m.msg.UserNickname }

type newRoomResolver struct {
	roomId string
}

func (n *newRoomResolver) RoomId() string {
	return n.roomId
}

type newUserResolver struct {
	token string
}

func (n *newUserResolver) JwtToken() string {
	return n.token
}
