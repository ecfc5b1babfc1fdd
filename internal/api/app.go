package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/freeboardgames/fbg-lobby/internal/config"
	"github.com/freeboardgames/fbg-lobby/internal/server"
	"github.com/gorilla/handlers"
)

type FbgApp struct {
	log    *log.Logger
	srv    *http.Server
	schema server.Executor
	subs   http.Handler
	tokens server.TokenVerifier
}

// NewFbgApp registers the lobby routes on mux. Websocket upgrades on
// /graphql are handed to subs.
func NewFbgApp(mux *http.ServeMux, logger *log.Logger, schema server.Executor, subs http.Handler, tokens server.TokenVerifier, cfg *config.Config) *FbgApp {
	s := &FbgApp{
		log:    logger,
		schema: schema,
		subs:   subs,
		tokens: tokens,
	}

	mux.HandleFunc("POST /graphql", s.authMiddleware(s.graphql))
	mux.HandleFunc("GET /graphql", s.serveWs)
	mux.HandleFunc("GET /healthz", s.healthCheck)
	mux.HandleFunc("GET /healthz/live", s.liveness)

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept", "Authorization"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)

	s.srv = &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	return s
}

func (s *FbgApp) Handler() http.Handler {
	return s.srv.Handler
}

func (s *FbgApp) Start() error {
	s.log.Printf("starting server on %s\n", s.srv.Addr)
	return s.srv.ListenAndServe()
}

func (s *FbgApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
