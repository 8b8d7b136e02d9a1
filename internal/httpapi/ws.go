package httpapi

import (
	"context"
	"net/http"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/you/sanctum-chat/internal/core"
)

// handleWS serves the same feed as /stream over a WebSocket.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	session := r.URL.Query().Get("session")
	if session == "" {
		http.Error(w, "session query parameter required", http.StatusBadRequest)
		return
	}
	filters, err := FiltersFromRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(baseWriter(w), r, &websocket.AcceptOptions{
		InsecureSkipVerify: s.cors == nil,
	})
	if err != nil {
		s.logger.Warn("ws accept failed", "err", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "closed")

	client := &streamClient{
		session: session,
		filters: filters.CloneForStream(),
		ch:      make(chan core.Message, 256),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	s.clients[client] = struct{}{}
	s.mu.Unlock()
	s.metrics.IncWSClients(1)

	defer func() {
		s.mu.Lock()
		delete(s.clients, client)
		s.mu.Unlock()
		s.metrics.IncWSClients(-1)
	}()

	// Reads are discarded; the socket is a one-way feed. CloseRead keeps
	// control frames (ping/close) processed.
	ctx := conn.CloseRead(r.Context())

	ticker := time.NewTicker(20 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		case msg, ok := <-client.ch:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := wsjson.Write(writeCtx, conn, msg)
			cancel()
			if err != nil {
				s.metrics.IncBroadcastDrops("ws")
				return
			}
		}
	}
}
