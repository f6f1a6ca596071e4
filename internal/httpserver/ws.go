package httpserver

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"telemed-admin/internal/feed"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The console is fronted by its own gateway; origin policy lives there.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const (
	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
)

// handleSessionFeed upgrades to a websocket and streams messages for one
// session as they are stored.
func (s *Server) handleSessionFeed(w http.ResponseWriter, r *http.Request) {
	if s.deps.Hub == nil {
		writeError(w, http.StatusServiceUnavailable, "live feed unavailable")
		return
	}
	sessionID := r.PathValue("id")
	if _, err := s.deps.Store.GetSession(r.Context(), sessionID); err != nil {
		s.writeStoreError(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	sub := s.deps.Hub.Subscribe(sessionID)
	defer s.deps.Hub.Unsubscribe(sub)

	// Drain client frames so close and pong handling work.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-clientGone:
			return
		case msg, ok := <-sub.C:
			if !ok {
				return
			}
			// Re-order whatever has already arrived before writing.
			for _, m := range feed.DrainOrdered(msg, sub.C) {
				conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := conn.WriteJSON(m); err != nil {
					s.logger.Debug("websocket write failed", "session_id", sessionID, "error", err)
					return
				}
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
