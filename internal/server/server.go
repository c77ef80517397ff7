// Package server exposes the signaling hub over HTTP and websockets.
package server

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/BioHazard786/camrelay/internal/config"
	"github.com/BioHazard786/camrelay/internal/origin"
	"github.com/BioHazard786/camrelay/internal/signaling"
)

var ErrServerClosed = http.ErrServerClosed

type Server struct {
	log *slog.Logger
	cfg *config.Server
	hub *signaling.Hub

	origins  *origin.Checker
	upgrader websocket.Upgrader

	ready atomic.Bool

	mux *http.ServeMux
	srv *http.Server
}

// New wires the HTTP surface around hub. The hub must be running (or about
// to run) for websocket connections to be served.
func New(cfg *config.Server, hub *signaling.Hub, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	origins, rejected := origin.NewChecker(cfg.AllowedOrigins)
	for _, r := range rejected {
		logger.Warn("ignoring invalid allowed origin", "origin", r)
	}

	s := &Server{
		log:     logger,
		cfg:     cfg,
		hub:     hub,
		origins: origins,
		mux:     http.NewServeMux(),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		Subprotocols:    signaling.Subprotocols,
		CheckOrigin:     s.origins.CheckRequest,
	}

	s.registerRoutes()

	handler := chain(s.mux,
		recoverMiddleware(s.log),
		requestLoggerMiddleware(s.log),
	)

	s.srv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the fully wrapped root handler.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

func (s *Server) Serve(l net.Listener) error {
	s.ready.Store(true)
	s.log.Info("http server serving", "addr", l.Addr().String())
	return s.srv.Serve(l)
}

// ListenAndServe listens on the configured address and serves until
// Shutdown is called.
func (s *Server) ListenAndServe() error {
	l, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(l)
}

// Shutdown stops accepting requests. Upgraded websocket connections are not
// tracked by net/http; they close when the hub stops.
func (s *Server) Shutdown(ctx context.Context) error {
	s.ready.Store(false)
	return s.srv.Shutdown(ctx)
}
