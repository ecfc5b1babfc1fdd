// Package server serves GraphQL operations over websockets for the
// graphql-ws and graphql-transport-ws protocols.
package server

import (
	"context"
	"log"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/freeboardgames/fbg-lobby/internal/stats"
	"github.com/gorilla/websocket"
	graphql "github.com/graph-gophers/graphql-go"
)

const initTimeout = 10 * time.Second

// Executor runs GraphQL documents. *graphql.Schema implements it.
type Executor interface {
	Exec(ctx context.Context, query, operationName string, variables map[string]interface{}) *graphql.Response
	Subscribe(ctx context.Context, query, operationName string, variables map[string]interface{}) (<-chan interface{}, error)
}

type TokenVerifier interface {
	Verify(token string) (int, error)
}

type SubscriptionServer struct {
	log            *log.Logger
	schema         Executor
	tokens         TokenVerifier
	stats          stats.StatsProvider
	upgrader       websocket.Upgrader
	clients        map[*Client]struct{}
	clientsLock    sync.Mutex
	registerChan   chan *Client
	deRegisterChan chan *Client
	stop           chan struct{}
	done           chan struct{}
}

// NewSubscriptionServer creates the websocket hub. Requests without an Origin
// header or from one of allowedOrigins are accepted, "*" accepts any.
func NewSubscriptionServer(logger *log.Logger, schema Executor, tokens TokenVerifier, sp stats.StatsProvider, allowedOrigins []string) *SubscriptionServer {
	if sp == nil {
		sp = stats.Nop{}
	}

	return &SubscriptionServer{
		log:    logger,
		schema: schema,
		tokens: tokens,
		stats:  sp,
		upgrader: websocket.Upgrader{
			Subprotocols: []string{ProtocolTransportWs, ProtocolGraphqlWs},
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				return slices.Contains(allowedOrigins, "*") || slices.Contains(allowedOrigins, origin)
			},
		},
		clients:        make(map[*Client]struct{}),
		registerChan:   make(chan *Client),
		deRegisterChan: make(chan *Client),
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}
}

func (s *SubscriptionServer) Run() {
	for {
		select {
		case client := <-s.registerChan:
			s.addClient(client)
			s.stats.Incr(stats.ActiveConnections)
			s.log.Printf("ws: client connected (%s)", client.protocol)
		case client := <-s.deRegisterChan:
			if s.removeClient(client) {
				s.stats.Decr(stats.ActiveConnections)
				s.log.Println("ws: client disconnected")
			}
		case <-s.stop:
			s.log.Println("closing websocket connections")
			s.clientsLock.Lock()
			for c := range s.clients {
				c.cancel()
				c.stopClient()
			}
			s.clientsLock.Unlock()

			close(s.done)
			return
		}
	}
}

// ServeHTTP upgrades the request and starts the client pumps.
func (s *SubscriptionServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	client := NewClient(conn, s, s.log)
	select {
	case s.registerChan <- client:
	case <-s.done:
		conn.Close()
		return
	}

	go client.Write()
	go client.Read()

	if client.protocol == ProtocolTransportWs {
		time.AfterFunc(initTimeout, func() {
			if !client.initialized.Load() {
				client.closeWith(CloseInitTimeout, "Connection initialisation timeout")
				client.stopClient()
			}
		})
	}
}

func (s *SubscriptionServer) deregister(c *Client) {
	select {
	case s.deRegisterChan <- c:
	case <-s.done:
	}
}

func (s *SubscriptionServer) addClient(c *Client) {
	s.clientsLock.Lock()
	defer s.clientsLock.Unlock()
	s.clients[c] = struct{}{}
}

func (s *SubscriptionServer) removeClient(c *Client) bool {
	s.clientsLock.Lock()
	defer s.clientsLock.Unlock()
	if _, ok := s.clients[c]; !ok {
		return false
	}
	delete(s.clients, c)
	return true
}

// Clients returns the number of open connections.
func (s *SubscriptionServer) Clients() int {
	s.clientsLock.Lock()
	defer s.clientsLock.Unlock()
	return len(s.clients)
}

// Shutdown closes every connection and stops the hub.
func (s *SubscriptionServer) Shutdown(ctx context.Context) error {
	s.log.Println("received shutdown signal")
	select {
	case <-s.done:
		return nil
	default:
	}

	select {
	case s.stop <- struct{}{}:
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
