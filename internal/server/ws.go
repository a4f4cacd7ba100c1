package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lukaswerner/starmirror/internal/broadcast"
)

const (
	heartbeatInterval = 30 * time.Second
	writeTimeout      = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The API is same-host or trusted-network only; origins are not
	// restricted.
	CheckOrigin: func(*http.Request) bool { return true },
}

// handleWebSocket upgrades the connection and streams job events. A fresh
// subscriber first receives both status snapshots so it never starts blind.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		writeError(w, http.StatusServiceUnavailable, "event stream not available")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	events, cancel := s.hub.Subscribe()
	defer cancel()

	now := time.Now().UTC()
	snapshots := []broadcast.Event{
		{Type: broadcast.EventSyncStatus, Data: s.jobs.SyncStatus(), Timestamp: now},
		{Type: broadcast.EventReadmeStatus, Data: s.jobs.ReadmeStatus(), Timestamp: now},
	}
	for _, ev := range snapshots {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteJSON(ev); err != nil {
			return
		}
	}

	// Reader detects the peer going away; its messages are ignored.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case payload, ok := <-events:
			if !ok {
				// Pruned by the hub for falling behind.
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-heartbeat.C:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			err := conn.WriteJSON(broadcast.Event{
				Type:      broadcast.EventHeartbeat,
				Timestamp: time.Now().UTC(),
			})
			if err != nil {
				return
			}

		case <-done:
			return
		}
	}
}
