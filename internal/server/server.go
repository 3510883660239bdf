// Package server accepts websocket connections and runs the session
// lifecycle around them: attach to a registry, replay history, feed frames to
// the router, detach on disconnect.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lanchat/relay/internal/observability"
	"github.com/lanchat/relay/internal/protocol"
	"github.com/lanchat/relay/internal/registry"
	"github.com/lanchat/relay/internal/router"
)

// Config configures the relay server.
type Config struct {
	Host string
	Port int
}

// Server owns the HTTP listener and the per-connection lifecycles.
type Server struct {
	config  Config
	chat    *registry.Registry
	notice  *registry.Registry
	store   router.Store
	router  *router.Router
	logger  *slog.Logger
	metrics *observability.Metrics

	upgrader     websocket.Upgrader
	httpServer   *http.Server
	httpListener net.Listener
}

// Deps carries the collaborators the server wires together.
type Deps struct {
	Chat    *registry.Registry
	Notice  *registry.Registry
	Store   router.Store
	Router  *router.Router
	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// New creates a server. If Logger is nil, slog.Default() is used.
func New(cfg Config, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		config:  cfg,
		chat:    deps.Chat,
		notice:  deps.Notice,
		store:   deps.Store,
		router:  deps.Router,
		logger:  logger,
		metrics: deps.Metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  8192,
			WriteBufferSize: 8192,
			// LAN deployment: clients connect from arbitrary origins.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Start begins serving. It returns once the listener is bound; serving
// continues on a background goroutine until Shutdown.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	mux := http.NewServeMux()

	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("GET /ws/{username}", s.handleChat)
	mux.HandleFunc("GET /notice/{username}", s.handleNotice)
	mux.HandleFunc("GET /validate", s.handleValidate)

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}

	s.httpServer = server
	s.httpListener = listener

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", "error", err)
		}
	}()

	s.logger.Info("relay listening", "addr", addr)
	return nil
}

// Shutdown stops accepting connections and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Addr returns the bound listen address, useful when Port was 0.
func (s *Server) Addr() string {
	if s.httpListener == nil {
		return ""
	}
	return s.httpListener.Addr().String()
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck
		"status":      "ok",
		"connections": s.chat.Len(),
	})
}

// handleChat runs the chat-connection lifecycle: read the user's read
// position, attach, broadcast the membership change, replay today's history,
// then feed every inbound frame to the router until the transport closes.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	username := r.PathValue("username")
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	ctx := r.Context()
	conn := newWSConn(ws)
	go conn.writeLoop()
	conn.configureRead()

	s.logger.Info("chat connected", "username", username)

	// Read position is loaded before attach so a store hiccup cannot leave a
	// half-attached session behind.
	lastRead, known, err := s.store.LastReadID(ctx, username)
	if err != nil {
		s.logger.Error("failed to load read position", "username", username, "error", err)
	}

	s.chat.Attach(username, conn)
	s.gauge("chat", 1)
	defer func() {
		// The gauge pairs with this handler's attach, so it comes down even
		// when a later attach superseded the registry entry.
		s.gauge("chat", -1)
		if s.chat.DetachConn(username, conn) {
			s.router.BroadcastUserList()
		}
		_ = conn.Close()
		s.logger.Info("chat disconnected", "username", username)
	}()

	s.router.BroadcastUserList()

	history, err := s.store.ListByDate(ctx, time.Now())
	if err != nil {
		s.logger.Error("failed to load history", "username", username, "error", err)
	}
	if err := conn.Send(protocol.NewHistory(history, lastRead, known)); err != nil {
		s.logger.Warn("history delivery failed", "username", username, "error", err)
		return
	}

	for {
		messageType, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		s.router.Handle(ctx, username, conn, data)
	}
}

// handleNotice runs the announcement-only lifecycle. The channel is send-only
// from the server's perspective: inbound frames are read and discarded to
// keep the transport alive, and membership changes trigger no user-list
// broadcast.
func (s *Server) handleNotice(w http.ResponseWriter, r *http.Request) {
	username := r.PathValue("username")
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	conn := newWSConn(ws)
	go conn.writeLoop()
	conn.configureRead()

	s.notice.Attach(username, conn)
	s.gauge("notice", 1)
	s.logger.Info("notice connected", "username", username)
	defer func() {
		s.gauge("notice", -1)
		s.notice.DetachConn(username, conn)
		_ = conn.Close()
		s.logger.Info("notice disconnected", "username", username)
	}()

	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
	}
}

// handleValidate answers a one-shot nickname-availability query and closes.
// The registry is never mutated here.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer ws.Close()

	var req struct {
		Nickname string `json:"nickname"`
	}
	_ = ws.SetReadDeadline(time.Now().Add(10 * time.Second)) //nolint:errcheck
	if err := ws.ReadJSON(&req); err != nil {
		return
	}

	reply := protocol.Availability{Available: !s.chat.Contains(req.Nickname)}
	if err := ws.WriteJSON(reply); err != nil {
		s.logger.Warn("nickname reply failed", "error", err)
	}
}

func (s *Server) gauge(reg string, delta float64) {
	if s.metrics != nil {
		s.metrics.ActiveConnections.WithLabelValues(reg).Add(delta)
	}
}
