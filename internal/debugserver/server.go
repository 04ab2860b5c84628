// Package debugserver streams per-tick pipeline state to attached
// visualization clients over websockets. The engine itself never renders;
// this is a one-way broadcast of the debug tap.
package debugserver

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/cliplab/autoframe/internal/pipeline"
	"github.com/cliplab/autoframe/internal/trace"
)

// tickMessage wraps a debug tick for the wire.
type tickMessage struct {
	Type string             `json:"type"`
	Tick pipeline.TickDebug `json:"tick"`
}

// Server broadcasts debug ticks to all connected clients.
type Server struct {
	mu    sync.RWMutex
	conns map[*websocket.Conn]struct{}
}

// New creates a debug server draining the given tap. The broadcaster stops
// when the channel is closed.
func New(tap <-chan pipeline.TickDebug) *Server {
	s := &Server{conns: make(map[*websocket.Conn]struct{})}
	go s.broadcast(tap)
	return s
}

// Handler returns the HTTP handler exposing the websocket endpoint.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug", s.handleWebSocket)
	return trace.Middleware(mux)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("websocket accept error", "error", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
	}()

	log := trace.Logger(r.Context())
	log.Info("debug client connected", "remote", r.RemoteAddr)

	// Clients only listen; reading drains control frames and detects
	// disconnects.
	ctx := r.Context()
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			log.Debug("debug client gone", "error", err)
			return
		}
	}
}

func (s *Server) broadcast(tap <-chan pipeline.TickDebug) {
	for tick := range tap {
		msg := tickMessage{Type: "tick", Tick: tick}

		s.mu.RLock()
		for conn := range s.conns {
			go func(c *websocket.Conn) {
				_ = wsjson.Write(context.Background(), c, msg)
			}(conn)
		}
		s.mu.RUnlock()
	}
}
