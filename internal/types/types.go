package types

// Snapshots published on broadcaster channels and served by the API.

type User struct {
	Id       int    `json:"id"`
	Nickname string `json:"nickname"`
}

type RoomMembership struct {
	IsCreator bool `json:"isCreator"`
	Position  int  `json:"position"`
	User      User `json:"user"`
}

type Room struct {
	Id              string           `json:"id"`
	GameCode        string           `json:"gameCode"`
	Capacity        int              `json:"capacity"`
	IsPublic        bool             `json:"isPublic"`
	MatchId         string           `json:"matchId,omitempty"`
	UserMemberships []RoomMembership `json:"userMemberships"`
}

// Creator returns the id of the room creator, or 0 for an empty room.
func (r Room) Creator() int {
	for _, m := range r.UserMemberships {
		if m.IsCreator {
			return m.User.Id
		}
	}
	return 0
}

type Lobby struct {
	Rooms []Room `json:"rooms"`
}

type MatchPlayer struct {
	User     User   `json:"user"`
	PlayerId string `json:"playerId"`
	Secret   string `json:"-"`
}

type Match struct {
	Id        string        `json:"id"`
	GameCode  string        `json:"gameCode"`
	ServerUrl string        `json:"serverUrl"`
	Players   []MatchPlayer `json:"players"`
}

// Seat returns the player entry of userId, if the user plays in the match.
func (m Match) Seat(userId int) (MatchPlayer, bool) {
	for _, p := range m.Players {
		if p.User.Id == userId {
			return p, true
		}
	}
	return MatchPlayer{}, false
}

type Message struct {
	ChannelType  string `json:"channelType"`
	ChannelId    string `json:"channelId"`
	UserId       int    `json:"userId"`
	UserNickname string `json:"userNickname"`
	Message      string `json:"message"`
	IsoTimestamp string `json:"isoTimestamp"`
}
