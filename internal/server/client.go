package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/freeboardgames/fbg-lobby/internal/auth"
	"github.com/gorilla/websocket"
	graphql "github.com/graph-gophers/graphql-go"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 256
)

// Client is one websocket connection speaking graphql-ws or
// graphql-transport-ws.
type Client struct {
	conn     *websocket.Conn
	srv      *SubscriptionServer
	log      *log.Logger
	protocol string
	send     chan *ServerMessage

	initialized atomic.Bool
	userId      int

	ctx    context.Context
	cancel context.CancelFunc

	ops     map[string]context.CancelFunc
	opsLock sync.Mutex

	stop     chan struct{}
	stopOnce sync.Once

	closeLock   sync.Mutex
	closeCode   int
	closeReason string
}

func NewClient(conn *websocket.Conn, srv *SubscriptionServer, l *log.Logger) *Client {
	protocol := conn.Subprotocol()
	if protocol == "" {
		protocol = ProtocolGraphqlWs
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		conn:     conn,
		srv:      srv,
		log:      l,
		protocol: protocol,
		send:     make(chan *ServerMessage, sendBuffer),
		ctx:      ctx,
		cancel:   cancel,
		ops:      make(map[string]context.CancelFunc),
		stop:     make(chan struct{}),
	}
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			bytes, err := serializeMessage(msg)
			if err != nil {
				c.log.Println("failed to serialize message:", err)
				continue
			}

			if !c.sendMessage(websocket.TextMessage, bytes) {
				return
			}
		case <-c.stop:
			c.flush()
			code, reason := c.closeFrame()
			c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
			return
		case <-ticker.C:
			if c.protocol == ProtocolGraphqlWs && c.initialized.Load() {
				ka, _ := serializeMessage(&ServerMessage{Type: MsgKeepAlive})
				if !c.sendMessage(websocket.TextMessage, ka) {
					return
				}
			}
			if !c.sendMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) Read() {
	defer c.cleanup()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(appData string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("ws: read: %v", err)
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil || msg.Type == "" {
			c.log.Println("error parsing message:", err)
			if c.protocol == ProtocolTransportWs {
				c.closeWith(CloseInvalidMessage, "Invalid message received")
				return
			}
			c.queueMessage(errorMessage(c.protocol, "", "invalid message format"))
			continue
		}

		if !c.handle(&msg) {
			return
		}
	}
}

// handle processes one client message and reports whether the connection
// stays open.
func (c *Client) handle(msg *ClientMessage) bool {
	switch msg.Type {
	case MsgConnectionInit:
		return c.init(msg)
	case MsgPing:
		c.queueMessage(&ServerMessage{Type: MsgPong, Payload: msg.Payload})
	case MsgPong:
	case MsgStart, MsgSubscribe:
		return c.start(msg)
	case MsgStop, MsgComplete:
		c.stopOperation(msg.Id)
	case MsgConnectionTerminate:
		return false
	default:
		c.log.Printf("unknown message type %q", msg.Type)
		if c.protocol == ProtocolTransportWs {
			c.closeWith(CloseInvalidMessage, fmt.Sprintf("Invalid message type %q", msg.Type))
			return false
		}
		c.queueMessage(errorMessage(c.protocol, msg.Id, "unknown message type"))
	}
	return true
}

func (c *Client) init(msg *ClientMessage) bool {
	if c.initialized.Load() {
		if c.protocol == ProtocolTransportWs {
			c.closeWith(CloseTooManyInitRequest, "Too many initialisation requests")
			return false
		}
		c.queueMessage(ack())
		return true
	}

	var payload InitPayload
	if len(msg.Payload) > 0 {
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			c.log.Printf("invalid connection_init payload: %v", err)
		}
	}

	// a token that fails verification rejects the connection
	if token := payload.Token(); token != "" {
		userId, err := c.srv.tokens.Verify(token)
		if err != nil {
			c.log.Printf("ws: rejecting invalid token: %v", err)
			if c.protocol == ProtocolGraphqlWs {
				c.queueMessage(&ServerMessage{Type: MsgConnectionError, Payload: errorPayload{Message: "invalid token"}})
			}
			c.closeWith(CloseForbidden, "Forbidden")
			return false
		}
		c.userId = userId
		c.ctx = auth.WithUserId(c.ctx, userId)
	}

	c.initialized.Store(true)
	c.queueMessage(ack())
	if c.protocol == ProtocolGraphqlWs {
		c.queueMessage(&ServerMessage{Type: MsgKeepAlive})
	}
	return true
}

func (c *Client) start(msg *ClientMessage) bool {
	if !c.initialized.Load() {
		if c.protocol == ProtocolTransportWs {
			c.closeWith(CloseUnauthorized, "Unauthorized")
			return false
		}
		c.queueMessage(errorMessage(c.protocol, msg.Id, "connection not initialized"))
		return true
	}

	var payload OperationPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil || msg.Id == "" || payload.Query == "" {
		if c.protocol == ProtocolTransportWs {
			c.closeWith(CloseInvalidMessage, "Invalid subscribe message")
			return false
		}
		c.queueMessage(errorMessage(c.protocol, msg.Id, "invalid operation"))
		return true
	}

	ctx, cancel := context.WithCancel(c.ctx)
	if !c.addOperation(msg.Id, cancel) {
		cancel()
		if c.protocol == ProtocolTransportWs {
			c.closeWith(CloseSubscriberExists, fmt.Sprintf("Subscriber for %s already exists", msg.Id))
			return false
		}
		c.queueMessage(errorMessage(c.protocol, msg.Id, "operation id already in use"))
		return true
	}

	go c.run(ctx, msg.Id, payload)
	return true
}

// run executes one operation and streams its results until it completes or
// the client stops it.
func (c *Client) run(ctx context.Context, id string, payload OperationPayload) {
	defer c.removeOperation(id)

	if !isSubscription(payload.Query, payload.OperationName) {
		resp := c.srv.schema.Exec(ctx, payload.Query, payload.OperationName, payload.Variables)
		if ctx.Err() != nil {
			return
		}
		c.queueMessage(dataMessage(c.protocol, id, resp))
		c.queueMessage(completeMessage(id))
		return
	}

	events, err := c.srv.schema.Subscribe(ctx, payload.Query, payload.OperationName, payload.Variables)
	if err != nil {
		c.queueMessage(errorMessage(c.protocol, id, err.Error()))
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				if ctx.Err() == nil {
					c.queueMessage(completeMessage(id))
				}
				return
			}
			resp, ok := ev.(*graphql.Response)
			if !ok {
				continue
			}
			c.queueMessage(dataMessage(c.protocol, id, resp))
		}
	}
}

func (c *Client) addOperation(id string, cancel context.CancelFunc) bool {
	c.opsLock.Lock()
	defer c.opsLock.Unlock()

	if _, ok := c.ops[id]; ok {
		return false
	}
	c.ops[id] = cancel
	return true
}

func (c *Client) removeOperation(id string) {
	c.opsLock.Lock()
	defer c.opsLock.Unlock()

	if cancel, ok := c.ops[id]; ok {
		cancel()
		delete(c.ops, id)
	}
}

func (c *Client) stopOperation(id string) {
	c.opsLock.Lock()
	cancel, ok := c.ops[id]
	delete(c.ops, id)
	c.opsLock.Unlock()

	if ok {
		cancel()
	}
}

func (c *Client) operations() int {
	c.opsLock.Lock()
	defer c.opsLock.Unlock()
	return len(c.ops)
}

func (c *Client) queueMessage(msg *ServerMessage) bool {
	select {
	case c.send <- msg:
	default:
		c.log.Println("failed to send message to client, channel is full")
		return false
	}

	return true
}

func (c *Client) sendMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Printf("write message: %s", err)
		}
		return false
	}

	return true
}

// flush writes whatever is still queued before the connection closes.
func (c *Client) flush() {
	for {
		select {
		case msg := <-c.send:
			bytes, err := serializeMessage(msg)
			if err != nil {
				continue
			}
			if !c.sendMessage(websocket.TextMessage, bytes) {
				return
			}
		default:
			return
		}
	}
}

// closeWith sets the close frame the writer sends once the client stops.
// The first code wins.
func (c *Client) closeWith(code int, reason string) {
	c.closeLock.Lock()
	defer c.closeLock.Unlock()

	if c.closeCode != 0 {
		return
	}
	c.log.Printf("closing connection: %d %s", code, reason)
	c.closeCode = code
	c.closeReason = reason
}

func (c *Client) closeFrame() (int, string) {
	c.closeLock.Lock()
	defer c.closeLock.Unlock()

	if c.closeCode == 0 {
		return websocket.CloseGoingAway, "going away"
	}
	return c.closeCode, c.closeReason
}

func (c *Client) stopClient() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Client) cleanup() {
	c.cancel()
	c.srv.deregister(c)
	c.stopClient()
}
