package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/yok-tottii/mic-calibrator/internal/server"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	CheckOrigin: checkOrigin,
}

// checkOrigin applies the same loopback-only rule as the server's CORS.
// Requests without an Origin header come from non-browser clients.
func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	return origin == "" || server.IsLocalOrigin(origin)
}

// handleEvents handles GET /api/calibration/{id}/events.
// Every snapshot change is pushed as a JSON message; the connection is
// closed after a Confirmed or Aborted snapshot.
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	snaps, unsubscribe, err := h.calib.Subscribe(id)
	if err != nil {
		h.writeError(w, err, nil)
		return
	}
	defer unsubscribe()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	// the read pump only watches for the client going away
	closed := make(chan struct{})
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case snap, ok := <-snaps:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(snap); err != nil {
				h.log.Debug("websocket write for session %s failed: %v", id, err)
				return
			}
			if snap.State.Terminal() {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, snap.State.String()),
					time.Now().Add(writeWait))
				return
			}
		}
	}
}
