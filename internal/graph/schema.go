package graph

// Schema is the GraphQL contract the web client is generated against.
const Schema = `
schema {
	query: Query
	mutation: Mutation
	subscription: Subscription
}

type Query {
	lobby: Lobby!
	match(id: String!): Match!
	user: User!
}

type Mutation {
	joinRoom(roomId: String!): Room!
	leaveRoom(roomId: String!): Boolean!
	moveUserUp(roomId: String!, userIdToBeMovedUp: Int!): Boolean!
	newRoom(room: NewRoomInput!): NewRoom!
	newUser(user: NewUserInput!): NewUser!
	nextRoom(matchId: String!): String!
	removeFromRoom(roomId: String!, userIdToBeRemoved: Int!): Boolean!
	sendMessage(message: SendMessageInput!): Boolean!
	shuffleUsers(roomId: String!): Boolean!
	startMatch(roomId: String!, setupData: String!, shuffleUsers: Boolean!): String!
	updateRoom(room: UpdateRoomInput!): Boolean!
	updateUser(user: NewUserInput!): Boolean!
}

type Subscription {
	chatMutated(channelType: String!, channelId: String!): Message!
	lobbyMutated: Lobby!
	roomMutated(roomId: String!): Room!
}

type Lobby {
	rooms: [Room!]!
}

type Room {
	capacity: Float!
	gameCode: String!
	id: String
	isPublic: Boolean!
	matchId: String
	userId: Float
	userMemberships: [RoomMembership!]!
}

type RoomMembership {
	isCreator: Boolean!
	position: Float!
	user: User!
}

type User {
	id: Int
	nickname: String!
}

type Match {
	bgioMatchId: String!
	bgioPlayerId: String
	bgioSecret: String
	bgioServerUrl: String!
	gameCode: String!
	id: Int
	playerMemberships: [MatchMembership!]!
}

type MatchMembership {
	user: User!
}

type Message {
	channelId: String!
	channelType: String!
	isoTimestamp: String!
	message: String!
	userId: Float!
	userNickname: String!
}

type NewRoom {
	roomId: String!
}

type NewUser {
	jwtToken: String!
}

input NewRoomInput {
	capacity: Float!
	gameCode: String!
	isPublic: Boolean!
}

input NewUserInput {
	nickname: String!
}

input UpdateRoomInput {
	capacity: Float!
	gameCode: String!
	roomId: String!
}

input SendMessageInput {
	channelId: String!
	channelType: String!
	message: String!
}
`
