package server

import (
	"encoding/json"
	"strings"
)

// Subprotocols accepted on the subscription endpoint, in order of preference.
const (
	ProtocolTransportWs = "graphql-transport-ws"
	ProtocolGraphqlWs   = "graphql-ws"
)

// Message types shared by both protocols.
const (
	MsgConnectionInit = "connection_init"
	MsgConnectionAck  = "connection_ack"
	MsgError          = "error"
	MsgComplete       = "complete"
)

// graphql-transport-ws message types.
const (
	MsgPing      = "ping"
	MsgPong      = "pong"
	MsgSubscribe = "subscribe"
	MsgNext      = "next"
)

// graphql-ws message types.
const (
	MsgStart               = "start"
	MsgStop                = "stop"
	MsgData                = "data"
	MsgKeepAlive           = "ka"
	MsgConnectionError     = "connection_error"
	MsgConnectionTerminate = "connection_terminate"
)

// Close codes used by graphql-transport-ws.
const (
	CloseInvalidMessage     = 4400
	CloseUnauthorized       = 4401
	CloseForbidden          = 4403
	CloseInitTimeout        = 4408
	CloseSubscriberExists   = 4409
	CloseTooManyInitRequest = 4429
)

type ClientMessage struct {
	Id      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type ServerMessage struct {
	Id      string      `json:"id,omitempty"`
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// OperationPayload is the payload of a start or subscribe message.
type OperationPayload struct {
	Query         string                 `json:"query"`
	OperationName string                 `json:"operationName,omitempty"`
	Variables     map[string]interface{} `json:"variables,omitempty"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// InitPayload is the connection_init payload. Clients put the token under
// different keys, with or without the Bearer scheme.
type InitPayload map[string]interface{}

func (p InitPayload) Token() string {
	for _, key := range []string{"authorization", "Authorization", "authToken"} {
		v, ok := p[key].(string)
		if !ok || v == "" {
			continue
		}
		if after, found := strings.CutPrefix(v, "Bearer "); found {
			return strings.TrimSpace(after)
		}
		return strings.TrimSpace(v)
	}
	return ""
}

func ack() *ServerMessage {
	return &ServerMessage{Type: MsgConnectionAck}
}

// dataMessage carries one execution result in the protocol's framing.
func dataMessage(protocol, id string, payload interface{}) *ServerMessage {
	if protocol == ProtocolTransportWs {
		return &ServerMessage{Id: id, Type: MsgNext, Payload: payload}
	}
	return &ServerMessage{Id: id, Type: MsgData, Payload: payload}
}

func completeMessage(id string) *ServerMessage {
	return &ServerMessage{Id: id, Type: MsgComplete}
}

// errorMessage reports an operation that could not be executed at all.
// graphql-transport-ws expects a list of errors, graphql-ws a single one.
func errorMessage(protocol, id, message string) *ServerMessage {
	if protocol == ProtocolTransportWs {
		return &ServerMessage{Id: id, Type: MsgError, Payload: []errorPayload{{Message: message}}}
	}
	return &ServerMessage{Id: id, Type: MsgError, Payload: errorPayload{Message: message}}
}

func serializeMessage(msg *ServerMessage) ([]byte, error) {
	return json.Marshal(msg)
}
