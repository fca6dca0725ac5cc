// Package debugapi exposes a minimal chi-routed HTTP surface for local
// operator visibility: a health check and a live WebSocket feed of rule
// fires, trimmed from the core's full REST+WebSocket API down to the one
// ambient concern SPEC_FULL.md names for switchsentry.
package debugapi

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/nerrad567/switchsentry/internal/infrastructure/logging"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(_ *http.Request) bool { return true },
}

// Server serves the debug HTTP/WS surface. It satisfies the lifecycle
// controller's component contract: Start binds the listening socket
// synchronously, so a port conflict fails startup/reload immediately
// rather than surfacing later from a background goroutine.
type Server struct {
	addr       string
	hub        *Hub
	logger     *logging.Logger
	httpServer *http.Server
}

// New builds a Server that will listen on addr, mounting /health,
// /debug/ws, and metricsHandler (if non-nil) at /metrics.
func New(addr string, hub *Hub, metricsHandler http.Handler, logger *logging.Logger) *Server {
	r := chi.NewRouter()

	s := &Server{addr: addr, hub: hub, logger: logger}

	r.Get("/health", s.handleHealth)
	r.Get("/debug/ws", s.handleWS)
	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler)
	}

	s.httpServer = &http.Server{Addr: addr, Handler: r}
	return s
}

// Start binds the listening socket and serves in the background. The
// bind itself happens before Start returns, so a port already in use
// is reported to the caller rather than silently logged later.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("binding debug server: %w", err)
	}
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("debug server stopped", "error", err)
		}
	}()
	return nil
}

// Stop gracefully drains connections and closes every WebSocket client.
func (s *Server) Stop(ctx context.Context) error {
	s.hub.Close()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("debug websocket upgrade failed", "error", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, wsSendBufferSize)}
	s.hub.register(c)

	go s.writePump(c)
	go s.readPump(c)
}

// readPump only drains the connection so the client's pings/closes are
// observed; the debug feed is server-to-client only, so incoming
// application messages are discarded.
func (s *Server) readPump(c *client) {
	defer func() {
		s.hub.unregister(c)
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) writePump(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
